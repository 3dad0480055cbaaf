package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/pmak99/trading-desk-public-sub000/internal/metrics"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// SkipReason explains why a candidate was passed over during selection.
type SkipReason string

const (
	SkipDailyLimit    SkipReason = SkipReason(models.DenyDailyLimit)
	SkipMonthlyBudget SkipReason = SkipReason(models.DenyMonthlyBudget)
	SkipHardCap       SkipReason = SkipReason(models.DenyHardCap)
	SkipRateLimited   SkipReason = "rate_limited"
)

// Attempt records one candidate that was tried and skipped, in cascade order.
type Attempt struct {
	Provider string     `json:"provider"`
	Model    string     `json:"model"`
	Reason   SkipReason `json:"reason"`
}

// Selection is a granted (provider, model) pair. The budget for its
// estimated cost has already been committed; the caller must Settle the
// true usage after the real call completes.
type Selection struct {
	Provider      string
	Model         string
	EstimatedCost float64

	// Attempts lists the candidates skipped before this one, in order.
	Attempts []Attempt
}

// Ledger defines the budget operations the cascade needs
type Ledger interface {
	TryAcquire(ctx context.Context, service string, estimatedCost float64, usage models.Usage) (models.Decision, error)
	RecordUsage(ctx context.Context, service string, cost float64, usage models.Usage) error
}

// Selector walks a capability's ranked candidate list, acquiring budget for
// the first usable provider. Candidate order is static configuration.
type Selector struct {
	candidates map[models.Capability][]models.ProviderCandidate
	ledger     Ledger
	limiters   map[string]*rate.Limiter
	logger     *slog.Logger
}

// Option configures the selector
type Option func(*Selector)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// New creates a selector over the configured candidate lists.
func New(candidates map[models.Capability][]models.ProviderCandidate, ledger Ledger, opts ...Option) *Selector {
	s := &Selector{
		candidates: candidates,
		ledger:     ledger,
		limiters:   make(map[string]*rate.Limiter),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, list := range candidates {
		for _, cand := range list {
			if cand.RequestsPerMinute <= 0 {
				continue
			}
			key := limiterKey(cand)
			if _, ok := s.limiters[key]; !ok {
				s.limiters[key] = rate.NewLimiter(rate.Limit(cand.RequestsPerMinute/60.0), 1)
			}
		}
	}

	return s
}

func limiterKey(c models.ProviderCandidate) string {
	return c.Provider + "/" + c.Model
}

// Select returns a usable (provider, model) for the capability, trying
// preferred first and then the ranked fallbacks. Each denied candidate is
// tried exactly once; the denial reasons are recorded in cascade order.
// When every candidate is denied an ExhaustedError is returned.
func (s *Selector) Select(ctx context.Context, capability models.Capability, preferred string) (*Selection, error) {
	list, ok := s.candidates[capability]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("no candidates configured for capability %q", capability)
	}

	// Preferred first, then the rest in configured order, skipping the
	// preferred so no candidate is tried twice.
	ordered := make([]models.ProviderCandidate, 0, len(list))
	for _, cand := range list {
		if cand.Provider == preferred {
			ordered = append(ordered, cand)
			break
		}
	}
	for _, cand := range list {
		if cand.Provider != preferred {
			ordered = append(ordered, cand)
		}
	}

	var attempts []Attempt
	for i, cand := range ordered {
		if lim, ok := s.limiters[limiterKey(cand)]; ok && !lim.Allow() {
			attempts = append(attempts, Attempt{Provider: cand.Provider, Model: cand.Model, Reason: SkipRateLimited})
			s.logger.Debug("candidate rate limited",
				slog.String("capability", string(capability)),
				slog.String("provider", cand.Provider),
				slog.String("model", cand.Model))
			continue
		}

		decision, err := s.ledger.TryAcquire(ctx, cand.Provider, cand.EstimatedCost, models.Usage{})
		if err != nil {
			// Storage trouble is not a budget denial; surface it rather
			// than silently walking past a provider that may have headroom.
			return nil, fmt.Errorf("selecting %s provider: %w", capability, err)
		}

		if decision.Granted {
			if i > 0 {
				metrics.RecordCascadeFallback(string(capability))
			}
			s.logger.Info("provider selected",
				slog.String("capability", string(capability)),
				slog.String("provider", cand.Provider),
				slog.String("model", cand.Model),
				slog.Int("fallback_depth", i),
				slog.Float64("estimated_cost", cand.EstimatedCost))
			return &Selection{
				Provider:      cand.Provider,
				Model:         cand.Model,
				EstimatedCost: cand.EstimatedCost,
				Attempts:      attempts,
			}, nil
		}

		attempts = append(attempts, Attempt{Provider: cand.Provider, Model: cand.Model, Reason: SkipReason(decision.Reason)})
	}

	metrics.RecordCascadeExhausted(string(capability))
	s.logger.Warn("all providers exhausted",
		slog.String("capability", string(capability)),
		slog.Int("candidates_tried", len(attempts)))

	return nil, &ExhaustedError{Capability: capability, Attempts: attempts}
}

// Settle re-records the true usage of a completed call. The estimate was
// already committed at selection time, so only the positive residual is
// posted; an overestimate is left in place rather than refunded, keeping
// grants irrevocable.
func (s *Selector) Settle(ctx context.Context, sel *Selection, actualCost float64, usage models.Usage) error {
	residual := actualCost - sel.EstimatedCost
	if residual < 0 {
		residual = 0
	}

	return s.ledger.RecordUsage(ctx, sel.Provider, residual, usage)
}
