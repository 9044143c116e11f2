package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/parliament/pkg/types"
)

func TestClassifyIntentCascade(t *testing.T) {
	cases := []struct {
		text string
		want types.IntentType
	}{
		{"Should we vote on this in parliament?", types.IntentGovernance},
		{"", types.IntentUnknown},
		{"   \t\n ", types.IntentUnknown},
		{"hello there", types.IntentInfo},
		{"debug the status page", types.IntentDebug},
		{"What is the status of my order", types.IntentStatus},
		{"Should I refinance or wait?", types.IntentDecision},
		{"Draft a plan to run the migration", types.IntentPlan},
		{"Please ship the release", types.IntentExecution},
		{"What’s the best course here", types.IntentDecision},
		{"the brunch menu", types.IntentInfo},
		{"the prefix is wrong", types.IntentDebug},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyIntent(tc.text), "text=%q", tc.text)
	}
}

func TestClassifyIntentKeywordTable(t *testing.T) {
	cases := []struct {
		text string
		want types.IntentType
	}{
		{"run a multi-mind consensus", types.IntentGovernance},
		{"what does governance look like", types.IntentGovernance},
		{"fix the login page", types.IntentDebug},
		{"debugging the payment service", types.IntentDebug},
		{"the API returns a 500", types.IntentDebug},
		{"the build is broken", types.IntentDebug},
		{"is it up right now", types.IntentStatus},
		{"is the site live", types.IntentStatus},
		{"check the Render deployment", types.IntentStatus},
		{"what should we pick", types.IntentDecision},
		{"please recommend a laptop", types.IntentDecision},
		{"lay out the workflow", types.IntentPlan},
		{"list the steps in sequence", types.IntentPlan},
		{"implement the export feature", types.IntentExecution},
		{"ship it today", types.IntentExecution},
		{"please do this for me", types.IntentExecution},
		{"execute the job", types.IntentExecution},
		{"deploy the app", types.IntentInfo},
		{"send the invoice", types.IntentInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyIntent(tc.text), "text=%q", tc.text)
	}
}

func TestClassifierCustomRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intents.yaml")
	data := `
version: "test"
rules:
  - intent: EXECUTION_REQUEST
    keywords: [run]
  - intent: GOVERNANCE_REQUEST
    keywords: [vote]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	loaded, err := LoadRules(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loaded.Hash, "sha256:"))

	c, err := NewClassifier(loaded)
	require.NoError(t, err)
	assert.Equal(t, "test", c.RulesVersion())
	assert.Equal(t, types.IntentExecution, c.Classify("run the vote"))
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	bad := []string{
		`rules: []`,
		`rules: [{intent: NOPE, keywords: [x]}]`,
		`rules: [{intent: INFO_REQUEST, keywords: [x]}]`,
		`rules: [{intent: PLAN_REQUEST, keywords: []}]`,
		`rules: [{intent: PLAN_REQUEST, keywords: [a]}, {intent: PLAN_REQUEST, keywords: [b]}]`,
		`rules: [`,
	}
	for _, doc := range bad {
		_, err := ParseRules([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestDefaultRulesHashStable(t *testing.T) {
	assert.Equal(t, DefaultRules().Hash, DefaultClassifier().RulesHash())
	assert.Equal(t, DefaultRules().Bytes, DefaultClassifier().RulesSource())
}

func TestExtractSignalsQuestions(t *testing.T) {
	got := ExtractSignals("Can you book it? I need it today. Is it refundable? Can you book it?")
	assert.Equal(t, []string{"Can you book it?", "Is it refundable?"}, got.Questions)

	var b strings.Builder
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "Question number %d? ", i)
	}
	assert.Len(t, ExtractSignals(b.String()).Questions, MaxQuestions)
}

func TestExtractSignalsQuestionsNormalizeWhitespace(t *testing.T) {
	got := ExtractSignals("Can   you\n\tbook it?\n\nWhat  time?")
	assert.Equal(t, []string{"Can you book it?", "What time?"}, got.Questions)
}

func TestExtractSignalsConstraintsOverlap(t *testing.T) {
	got := ExtractSignals("You must finish with no delay")
	assert.Equal(t, []string{"must finish with no delay", "no delay"}, got.Constraints)

	got = ExtractSignals("Always include the receipt.  Never   skip it")
	assert.Equal(t, []string{"include the receipt", "Never skip it", "Always include the receipt"}, got.Constraints)
}

func TestExtractSignalsConstraintsCapped(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "It must cover case %d. ", i)
	}
	got := ExtractSignals(b.String())
	assert.Len(t, got.Constraints, 15)
	assert.Equal(t, "must cover case 0", got.Constraints[0])

	b.Reset()
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Never exceed budget %d. ", i)
	}
	assert.Len(t, ExtractSignals(b.String()).Constraints, MaxConstraints)
}

func TestExtractSignalsConstraintContextBounded(t *testing.T) {
	text := "only " + strings.Repeat("x", 300)
	got := ExtractSignals(text)
	require.Len(t, got.Constraints, 1)
	assert.Equal(t, len("only")+constraintContext, len(got.Constraints[0]))
}

func TestExtractSignalsEntities(t *testing.T) {
	got := ExtractSignals("Send the Invoice to Alice via https://pay.example.com/x?id=1. Alice agrees, ok?")
	assert.Equal(t, []string{"https://pay.example.com/x?id=1", "Send", "Invoice", "Alice"}, got.Entities)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Name%02d ", i)
	}
	assert.Len(t, ExtractSignals(b.String()).Entities, MaxEntities)
}

func TestExtractSignalsEmpty(t *testing.T) {
	got := ExtractSignals("")
	assert.NotNil(t, got.Entities)
	assert.NotNil(t, got.Constraints)
	assert.NotNil(t, got.Questions)
	assert.Empty(t, got.Entities)
}
