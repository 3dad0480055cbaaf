package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// BudgetStore handles the durable spend ledger. All mutation goes through
// TryAcquire and RecordUsage; no caller may read-then-write a counter
// outside those transactions.
type BudgetStore struct {
	db  *DB
	loc *time.Location

	// For time mocking in tests
	now func() time.Time
}

// BudgetStoreOption configures the budget store
type BudgetStoreOption func(*BudgetStore)

// WithBudgetTimeFunc sets a custom time function (for testing)
func WithBudgetTimeFunc(fn func() time.Time) BudgetStoreOption {
	return func(s *BudgetStore) {
		s.now = fn
	}
}

// NewBudgetStore creates a new budget store. Days and months are computed
// in loc, the business timezone.
func NewBudgetStore(db *DB, loc *time.Location, opts ...BudgetStoreOption) *BudgetStore {
	s := &BudgetStore{
		db:  db,
		loc: loc,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Day returns today's ledger key in the business timezone.
func (s *BudgetStore) Day() string {
	return s.now().In(s.loc).Format("2006-01-02")
}

// monthRange returns the inclusive first and last day keys of the current
// calendar month. ISO day strings compare lexically, so BETWEEN works.
func (s *BudgetStore) monthRange() (string, string) {
	now := s.now().In(s.loc)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}

// TryAcquire atomically decides whether one call costing estimatedCost may
// run against service, and commits the counter increment if so. Denials
// roll back without mutation. Lock contention is surfaced as a
// TransientError, distinct from any denial.
func (s *BudgetStore) TryAcquire(ctx context.Context, service string, limits models.BudgetLimits, estimatedCost float64, usage models.Usage) (models.Decision, error) {
	day := s.Day()
	monthStart, monthEnd := s.monthRange()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Decision{}, classify("begin acquire", err)
	}
	defer tx.Rollback()

	var calls int64
	var cost float64
	err = tx.QueryRowContext(ctx,
		`SELECT calls, cost FROM budget_usage WHERE day = ? AND service = ?`,
		day, service,
	).Scan(&calls, &cost)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Decision{}, classify("read daily counter", err)
	}

	var monthCost float64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM budget_usage WHERE service = ? AND day BETWEEN ? AND ?`,
		service, monthStart, monthEnd,
	).Scan(&monthCost)
	if err != nil {
		return models.Decision{}, classify("sum monthly cost", err)
	}

	decision := models.Decision{
		DailyCalls:  calls,
		DailyCost:   cost,
		MonthlyCost: monthCost,
	}

	// Checks ordered so the most specific reason surfaces: the daily call
	// allowance first, then the absolute ceiling, then the monthly budget.
	switch {
	case limits.DailyCallLimit > 0 && calls >= limits.DailyCallLimit:
		decision.Reason = models.DenyDailyLimit
		return decision, nil
	case limits.HardCap > 0 && monthCost+estimatedCost > limits.HardCap:
		decision.Reason = models.DenyHardCap
		return decision, nil
	case limits.MonthlyBudget > 0 && monthCost+estimatedCost > limits.MonthlyBudget:
		decision.Reason = models.DenyMonthlyBudget
		return decision, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO budget_usage (day, service, calls, cost, output_tokens, reasoning_tokens, search_requests, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(day, service) DO UPDATE SET
			calls = calls + 1,
			cost = cost + excluded.cost,
			output_tokens = output_tokens + excluded.output_tokens,
			reasoning_tokens = reasoning_tokens + excluded.reasoning_tokens,
			search_requests = search_requests + excluded.search_requests,
			updated_at = CURRENT_TIMESTAMP
	`, day, service, estimatedCost, usage.OutputTokens, usage.ReasoningTokens, usage.SearchRequests)
	if err != nil {
		return models.Decision{}, classify("increment daily counter", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Decision{}, classify("commit acquire", err)
	}

	decision.Granted = true
	decision.DailyCalls = calls + 1
	decision.DailyCost = cost + estimatedCost
	decision.MonthlyCost = monthCost + estimatedCost
	return decision, nil
}

// RecordUsage posts a post-call correction: residual cost and true token
// counts, without consuming a call. Corrections only ever add; a granted
// decision is never retroactively denied.
func (s *BudgetStore) RecordUsage(ctx context.Context, service string, cost float64, usage models.Usage) error {
	day := s.Day()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_usage (day, service, calls, cost, output_tokens, reasoning_tokens, search_requests, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(day, service) DO UPDATE SET
			cost = cost + excluded.cost,
			output_tokens = output_tokens + excluded.output_tokens,
			reasoning_tokens = reasoning_tokens + excluded.reasoning_tokens,
			search_requests = search_requests + excluded.search_requests,
			updated_at = CURRENT_TIMESTAMP
	`, day, service, cost, usage.OutputTokens, usage.ReasoningTokens, usage.SearchRequests)

	return classify("record usage", err)
}

// Summary returns today's and the month's spend for a service. Plain read;
// stale-by-one-write values are acceptable for display.
func (s *BudgetStore) Summary(ctx context.Context, service string, limits models.BudgetLimits) (*models.BudgetSummary, error) {
	day := s.Day()
	monthStart, monthEnd := s.monthRange()

	summary := &models.BudgetSummary{
		Service:        service,
		Day:            day,
		DailyCallLimit: limits.DailyCallLimit,
		MonthlyBudget:  limits.MonthlyBudget,
		GeneratedAt:    s.now().In(s.loc),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT calls, cost, output_tokens, reasoning_tokens, search_requests
		FROM budget_usage WHERE day = ? AND service = ?
	`, day, service).Scan(
		&summary.DailyCalls,
		&summary.DailyCost,
		&summary.Usage.OutputTokens,
		&summary.Usage.ReasoningTokens,
		&summary.Usage.SearchRequests,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("read daily summary", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM budget_usage WHERE service = ? AND day BETWEEN ? AND ?`,
		service, monthStart, monthEnd,
	).Scan(&summary.MonthlyCost)
	if err != nil {
		return nil, classify("read monthly summary", err)
	}

	if limits.DailyCallLimit > 0 {
		summary.CallsRemaining = limits.DailyCallLimit - summary.DailyCalls
		if summary.CallsRemaining < 0 {
			summary.CallsRemaining = 0
		}
	}
	if limits.MonthlyBudget > 0 {
		summary.BudgetRemaining = limits.MonthlyBudget - summary.MonthlyCost
		if summary.BudgetRemaining < 0 {
			summary.BudgetRemaining = 0
		}
	}

	return summary, nil
}
