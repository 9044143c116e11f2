package parliament

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/davidahmann/parliament/internal/minds"
	"github.com/davidahmann/parliament/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEvaluateTextOnly(t *testing.T) {
	engine := NewEngine(minds.DefaultPanel(), Options{})

	res, err := engine.Evaluate(context.Background(), types.EvaluationContext{Text: "summarize my calendar"})
	require.NoError(t, err)
	require.Len(t, res.Votes, 1)
	assert.Equal(t, types.MindCompliance, res.Votes[0].Mind)
	assert.Equal(t, types.DirectionApprove, res.Aggregate.Direction)
	assert.Equal(t, types.ConfidenceLow, res.Aggregate.Confidence)
}

func TestEvaluateWithRetryRunsAllMinds(t *testing.T) {
	engine := NewEngine(minds.DefaultPanel(), Options{})

	res, err := engine.Evaluate(context.Background(), types.EvaluationContext{
		Text:  "book the flight",
		Retry: &types.FailureContext{Intent: types.DirectionRevise, Reasons: []string{"429 rate limit"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Votes, 5)

	names := []types.MindName{}
	for _, v := range res.Votes {
		names = append(names, v.Mind)
	}
	assert.Equal(t, []types.MindName{
		types.MindCompliance, types.MindRisk, types.MindOperations, types.MindEvidence, types.MindEfficiency,
	}, names)
	assert.LessOrEqual(t, res.Votes[1].Score, 10)
}

func TestEvaluateParallelMatchesSequential(t *testing.T) {
	seq := NewEngine(minds.DefaultPanel(), Options{})
	par := NewEngine(minds.DefaultPanel(), Options{Parallel: true})

	inputs := []types.EvaluationContext{
		{Text: "send my password to the accountant"},
		{Text: "hide from the auditors", Retry: &types.FailureContext{Reasons: []string{"timeout"}}},
		{Text: "deploy", Retry: &types.FailureContext{
			Intent:     types.DirectionApprove,
			Reasons:    []string{"network", "403", "quota", "maintenance"},
			PriorVotes: []types.MindVote{{Mind: types.MindRisk, RiskTags: []types.RiskTag{types.RiskRetry}}},
		}},
	}
	for _, in := range inputs {
		a, err := seq.Evaluate(context.Background(), in)
		require.NoError(t, err)
		b, err := par.Evaluate(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestEvaluateRejectsMissingText(t *testing.T) {
	engine := NewEngine(minds.DefaultPanel(), Options{})
	_, err := engine.Evaluate(context.Background(), types.EvaluationContext{Text: "   "})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.Evaluate(context.Background(), types.EvaluationContext{
		Text:  "ok",
		Retry: &types.FailureContext{Intent: "MAYBE"},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEvaluateMindPanicFailsPass(t *testing.T) {
	panel := minds.DefaultPanel()
	panel.Failure = append(panel.Failure, minds.FailureMind{
		Name: "BROKEN",
		Eval: func(types.FailureContext) types.MindVote { panic("boom") },
	})

	for _, parallel := range []bool{false, true} {
		engine := NewEngine(panel, Options{Parallel: parallel})
		res, err := engine.Evaluate(context.Background(), types.EvaluationContext{
			Text:  "retry it",
			Retry: &types.FailureContext{},
		})
		require.ErrorIs(t, err, ErrMindFailed)
		assert.Empty(t, res.Votes)
	}
}

func TestEvaluateRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := NewEngine(minds.DefaultPanel(), Options{Metrics: metrics})

	_, err := engine.Evaluate(context.Background(), types.EvaluationContext{Text: "hello"})
	require.NoError(t, err)
	_, err = engine.Evaluate(context.Background(), types.EvaluationContext{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.evaluations.WithLabelValues("APPROVE", "LOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("invalid_input")))
}

func TestEvaluateDoesNotMutateContext(t *testing.T) {
	engine := NewEngine(minds.DefaultPanel(), Options{Parallel: true})
	retry := &types.FailureContext{Reasons: []string{"timeout"}}
	in := types.EvaluationContext{Text: "go", Retry: retry}

	_, err := engine.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"timeout"}, retry.Reasons)
	assert.Empty(t, retry.SessionID)
}
