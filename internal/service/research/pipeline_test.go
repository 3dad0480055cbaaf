package research

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmak99/trading-desk-public-sub000/internal/service/cascade"
	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// fakeProviders scripts selection results per capability.
type fakeProviders struct {
	mu sync.Mutex

	strategyErr  error
	sentimentErr error

	settled []settleCall
}

type settleCall struct {
	provider string
	cost     float64
	usage    models.Usage
}

func (f *fakeProviders) Select(ctx context.Context, capability models.Capability, preferred string) (*cascade.Selection, error) {
	switch capability {
	case models.CapabilityStrategy:
		if f.strategyErr != nil {
			return nil, f.strategyErr
		}
		return &cascade.Selection{Provider: "openai", Model: "gpt-5", EstimatedCost: 0.05}, nil
	case models.CapabilitySentiment:
		if f.sentimentErr != nil {
			return nil, f.sentimentErr
		}
		return &cascade.Selection{Provider: "xai", Model: "grok-4", EstimatedCost: 0.01}, nil
	}
	return nil, errors.New("unknown capability")
}

func (f *fakeProviders) Settle(ctx context.Context, sel *cascade.Selection, actualCost float64, usage models.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settleCall{provider: sel.Provider, cost: actualCost, usage: usage})
	return nil
}

// fakeExecutor returns canned outputs keyed by provider.
type fakeExecutor struct {
	err     error
	results map[string]*CallResult
}

func (f *fakeExecutor) Execute(ctx context.Context, provider, model, input string) (*CallResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[provider]; ok {
		return r, nil
	}
	return &CallResult{Output: "output from " + provider, Cost: 0.02}, nil
}

func TestPipeline_Analyze_StrategyAndSentiment(t *testing.T) {
	providers := &fakeProviders{}
	executor := &fakeExecutor{results: map[string]*CallResult{
		"openai": {Output: "sell the straddle", Cost: 0.04, Usage: models.Usage{OutputTokens: 900}},
		"xai":    {Output: "bearish", Cost: 0.008, Usage: models.Usage{SearchRequests: 1}},
	}}
	p := New(providers, executor)

	analysis, err := p.Analyze(context.Background(), Request{Ticker: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, "NVDA", analysis.Ticker)
	assert.Equal(t, "openai", analysis.Provider)
	assert.Equal(t, "sell the straddle", analysis.Output)
	assert.Equal(t, "bearish", analysis.Sentiment)
	assert.False(t, analysis.SentimentSkipped)
	assert.InDelta(t, 0.048, analysis.Cost, 1e-9)

	// Both calls settled their true usage
	require.Len(t, providers.settled, 2)
	assert.Equal(t, "openai", providers.settled[0].provider)
	assert.Equal(t, int64(900), providers.settled[0].usage.OutputTokens)
	assert.Equal(t, "xai", providers.settled[1].provider)
}

func TestPipeline_Analyze_SentimentExhaustionDegrades(t *testing.T) {
	providers := &fakeProviders{
		sentimentErr: &cascade.ExhaustedError{
			Capability: models.CapabilitySentiment,
			Attempts:   []cascade.Attempt{{Provider: "xai", Reason: cascade.SkipDailyLimit}},
		},
	}
	p := New(providers, &fakeExecutor{})

	// An exhausted sentiment cascade skips enrichment, not the analysis
	analysis, err := p.Analyze(context.Background(), Request{Ticker: "AMD"})
	require.NoError(t, err)

	assert.True(t, analysis.SentimentSkipped)
	assert.Empty(t, analysis.Sentiment)
	assert.NotEmpty(t, analysis.Output)
}

func TestPipeline_Analyze_StrategyExhaustionFails(t *testing.T) {
	providers := &fakeProviders{
		strategyErr: &cascade.ExhaustedError{Capability: models.CapabilityStrategy},
	}
	p := New(providers, &fakeExecutor{})

	_, err := p.Analyze(context.Background(), Request{Ticker: "AMD"})
	require.Error(t, err)

	var exhausted *cascade.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestPipeline_Analyze_ExecutorError(t *testing.T) {
	providers := &fakeProviders{}
	p := New(providers, &fakeExecutor{err: errors.New("upstream 500")})

	_, err := p.Analyze(context.Background(), Request{Ticker: "AMD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")

	// Nothing to settle: the estimate already spent the attempt
	assert.Empty(t, providers.settled)
}

func TestPipeline_AnalyzeBatch_PositionalAlignment(t *testing.T) {
	providers := &fakeProviders{}
	p := New(providers, &fakeExecutor{}, WithDeadline(2*time.Second))

	reqs := []Request{{Ticker: "NVDA"}, {Ticker: "AMD"}, {Ticker: "AVGO"}}
	result := p.AnalyzeBatch(context.Background(), reqs)

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, 3, result.Succeeded)
	for i, out := range result.Outcomes {
		assert.Equal(t, reqs[i].Ticker, out.ID)
		require.NotNil(t, out.Value)
		assert.Equal(t, reqs[i].Ticker, out.Value.Ticker)
	}
}

func TestPipeline_AnalyzeBatch_PartialFailureKeepsSuccesses(t *testing.T) {
	providers := &fakeProviders{
		strategyErr: &cascade.ExhaustedError{Capability: models.CapabilityStrategy},
	}
	p := New(providers, &fakeExecutor{}, WithDeadline(2*time.Second))

	result := p.AnalyzeBatch(context.Background(), []Request{{Ticker: "NVDA"}})

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 1, result.Failed)
	assert.Error(t, result.Outcomes[0].Err)
}
