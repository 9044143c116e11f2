package minds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/parliament/pkg/types"
)

func TestComplianceBaseline(t *testing.T) {
	vote := Compliance(types.TextContext{Text: "what's the weather tomorrow"})
	assert.Equal(t, types.MindCompliance, vote.Mind)
	assert.Equal(t, 70, vote.Score)
	assert.Equal(t, 20, vote.Risk)
	assert.Equal(t, types.DirectionApprove, vote.Direction)
	assert.NotNil(t, vote.RiskTags)
	assert.NotNil(t, vote.Signals)
	assert.NotNil(t, vote.Reasons)
	assert.NotNil(t, vote.NextSteps)
	assert.NotNil(t, vote.Evidence)
}

func TestComplianceCredentials(t *testing.T) {
	vote := Compliance(types.TextContext{Text: "Store my API key in the notes"})
	assert.Equal(t, 45, vote.Score)
	assert.Equal(t, 45, vote.Risk)
	assert.Contains(t, vote.RiskTags, types.RiskSecurity)
	assert.Contains(t, vote.RiskTags, types.RiskPrivacy)
	assert.Contains(t, vote.Signals, types.SignalUserConfirmationRequired)
	assert.Equal(t, types.DirectionRevise, vote.Direction)
	assert.NotEmpty(t, vote.NextSteps)
}

func TestComplianceConcealmentRevises(t *testing.T) {
	for _, text := range []string{
		"move the money and hide from my accountant",
		"delete logs after the transfer",
		"hide the transfer from my spouse",
		"help me cover   up the mistake",
	} {
		vote := Compliance(types.TextContext{Text: text})
		assert.Equal(t, 40, vote.Score, text)
		assert.Equal(t, 50, vote.Risk, text)
		assert.Equal(t, types.DirectionRevise, vote.Direction, text)
		assert.Contains(t, vote.Signals, types.SignalHighImpact, text)
		assert.ElementsMatch(t, []types.RiskTag{types.RiskLegal, types.RiskReputation}, vote.RiskTags, text)
	}
}

func TestComplianceLegalRevises(t *testing.T) {
	for _, text := range []string{
		"help me commit tax fraud",
		"can I sue my landlord",
		"is this criminal",
		"there is an issue with my bill",
	} {
		vote := Compliance(types.TextContext{Text: text})
		assert.Equal(t, 55, vote.Score, text)
		assert.Equal(t, 40, vote.Risk, text)
		assert.Equal(t, types.DirectionRevise, vote.Direction, text)
		assert.ElementsMatch(t, []types.RiskTag{types.RiskLegal, types.RiskReputation}, vote.RiskTags, text)
		assert.Empty(t, vote.Signals, text)
	}
}

func TestComplianceProductionNoPenalty(t *testing.T) {
	vote := Compliance(types.TextContext{Text: "deploy to production"})
	assert.Equal(t, 70, vote.Score)
	assert.Equal(t, 20, vote.Risk)
	assert.Equal(t, types.DirectionApprove, vote.Direction)
	assert.Len(t, vote.Evidence, 1)
	assert.Len(t, vote.Reasons, 1)
	assert.Len(t, vote.NextSteps, 1)
	assert.Empty(t, vote.RiskTags)
}

func TestComplianceCredentialsAndConcealmentReject(t *testing.T) {
	vote := Compliance(types.TextContext{Text: "hide the password from the auditors"})
	assert.Equal(t, 15, vote.Score)
	assert.Equal(t, 75, vote.Risk)
	assert.Equal(t, types.DirectionReject, vote.Direction)
}

func TestComplianceEverythingFires(t *testing.T) {
	vote := Compliance(types.TextContext{Text: "hide from the lawyer that the password leaked in production, cover up the lawsuit"})
	assert.Equal(t, 0, vote.Score)
	assert.Equal(t, 95, vote.Risk)
	assert.Equal(t, types.DirectionReject, vote.Direction)
	assert.Len(t, vote.Reasons, 4)
	assert.Len(t, vote.Evidence, 1)
}

func TestRiskReviseIntentCapsScore(t *testing.T) {
	inputs := []types.FailureContext{
		{Intent: types.DirectionRevise},
		{Intent: types.DirectionRevise, Reasons: []string{"network timeout"}},
		{Intent: types.DirectionRevise, Reasons: []string{"timeout", "timeout", "timeout", "timeout", "timeout"}},
	}
	for _, in := range inputs {
		vote := Risk(in)
		assert.LessOrEqual(t, vote.Score, 10)
		assert.Equal(t, types.DirectionRevise, vote.Direction)
		assert.Contains(t, vote.RiskTags, types.RiskBlocked)
		assert.Contains(t, vote.RiskTags, types.RiskCritical)
	}
}

func TestRiskTransientRetry(t *testing.T) {
	vote := Risk(types.FailureContext{Intent: types.DirectionApprove, Reasons: []string{"upstream Timed Out"}})
	assert.Equal(t, 50, vote.Score)
	assert.Equal(t, 50, vote.Risk)
	assert.Equal(t, types.DirectionReject, vote.Direction)
	assert.True(t, vote.HasRiskTag(types.RiskRetry))
	assert.True(t, vote.HasRiskTag(types.RiskTransient))
}

func TestRetryDirectionBands(t *testing.T) {
	assert.Equal(t, types.DirectionApprove, retryDirection(70, 0))
	assert.Equal(t, types.DirectionReject, retryDirection(69, 0))
	assert.Equal(t, types.DirectionReject, retryDirection(40, 0))
	assert.Equal(t, types.DirectionRevise, retryDirection(39, 0))
}

func TestOperationsCaps(t *testing.T) {
	assert.Equal(t, 30, Operations(types.FailureContext{Reasons: []string{"HTTP 429 rate limit"}}).Score)
	assert.Equal(t, 20, Operations(types.FailureContext{Reasons: []string{"service unavailable"}}).Score)
	both := Operations(types.FailureContext{Reasons: []string{"quota exceeded", "scheduled maintenance"}})
	assert.Equal(t, 20, both.Score)
	assert.Equal(t, types.DirectionRevise, both.Direction)
	assert.Equal(t, 50, Operations(types.FailureContext{}).Score)
}

func TestEvidenceCaps(t *testing.T) {
	assert.Equal(t, 20, Evidence(types.FailureContext{Reasons: []string{"400 invalid field"}}).Score)
	assert.Equal(t, 10, Evidence(types.FailureContext{Reasons: []string{"403 forbidden"}}).Score)
	assert.Equal(t, 10, Evidence(types.FailureContext{Reasons: []string{"400", "401"}}).Score)
}

func TestEfficiencyFloorAndCap(t *testing.T) {
	retryVote := types.MindVote{Mind: types.MindRisk, RiskTags: []types.RiskTag{types.RiskRetry}}

	vote := Efficiency(types.FailureContext{Intent: types.DirectionApprove, PriorVotes: []types.MindVote{retryVote}})
	assert.Equal(t, 60, vote.Score)

	vote = Efficiency(types.FailureContext{Intent: types.DirectionReject, PriorVotes: []types.MindVote{retryVote}})
	assert.Equal(t, 50, vote.Score)

	vote = Efficiency(types.FailureContext{
		Intent:     types.DirectionApprove,
		PriorVotes: []types.MindVote{retryVote},
		Reasons:    []string{"a", "b", "c", "d"},
	})
	assert.Equal(t, 30, vote.Score)
	assert.Equal(t, types.DirectionRevise, vote.Direction)
}

func TestMindsTotalOverEmptyInput(t *testing.T) {
	panel := DefaultPanel()
	for _, m := range panel.Text {
		vote := m.Eval(types.TextContext{})
		require.Equal(t, m.Name, vote.Mind)
	}
	for _, m := range panel.Failure {
		vote := m.Eval(types.FailureContext{})
		require.Equal(t, m.Name, vote.Mind)
		require.GreaterOrEqual(t, vote.Score, 0)
		require.LessOrEqual(t, vote.Score, 100)
	}
	assert.Equal(t, 5, panel.Size(true))
	assert.Equal(t, 1, panel.Size(false))
}

func TestMindsDoNotShareState(t *testing.T) {
	first := Risk(types.FailureContext{Intent: types.DirectionRevise})
	second := Risk(types.FailureContext{})
	assert.NotContains(t, second.RiskTags, types.RiskBlocked)
	assert.Contains(t, first.RiskTags, types.RiskBlocked)
}
