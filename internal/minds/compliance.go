package minds

import (
	"strings"

	"github.com/davidahmann/parliament/pkg/types"
)

const (
	complianceBaseScore = 70
	complianceBaseRisk  = 20
)

var (
	credentialTerms  = []string{"api key", "secret", "token", "password"}
	legalTerms       = []string{"lawsuit", "sue", "criminal", "fraud", "tax evasion"}
	concealmentTerms = []string{"delete logs", "hide", "cover up"}
	productionTerms  = []string{"production", "deploy", "render", "health"}
)

// Compliance screens live request text for credentials, legal exposure and
// concealment before anything acts on it. Terms match as substrings of the
// whitespace-collapsed, lowercased text.
func Compliance(in types.TextContext) types.MindVote {
	t := newTally(types.MindCompliance, complianceBaseScore, complianceBaseRisk)
	text := strings.ToLower(strings.Join(strings.Fields(in.Text), " "))

	if containsAny(text, credentialTerms...) {
		t.adjust(-25, 25)
		t.tag(types.RiskSecurity, types.RiskPrivacy)
		t.signal(types.SignalUserConfirmationRequired)
		t.reason("sensitive credential handling detected; secrets must not be logged or echoed")
		t.next("keep secrets out of responses and logs; redact before persistence")
	}
	if containsAny(text, legalTerms...) {
		t.adjust(-15, 20)
		t.tag(types.RiskLegal, types.RiskReputation)
		t.reason("legally sensitive domain; guidance stays informational")
		t.next("apply policy guardrails for legal or regulated requests and route to safe templates")
	}
	if containsAny(text, concealmentTerms...) {
		t.adjust(-30, 30)
		t.tag(types.RiskLegal, types.RiskReputation)
		t.signal(types.SignalHighImpact)
		t.reason("request implies concealment; wrongdoing is not assisted")
		t.next("refuse concealment; offer compliant alternatives such as a retention policy or redaction")
	}
	if containsAny(text, productionTerms...) {
		t.note("mentions a production or deployment context; operational compliance applies to env vars, secrets and logs")
		t.reason("operational deployment context detected; safe defaults and auditability required")
		t.next("confirm health endpoints expose nothing sensitive and rate limits are in place")
	}

	return t.vote(complianceDirection)
}

func complianceDirection(_ int, risk int) types.Direction {
	switch {
	case risk >= 70:
		return types.DirectionReject
	case risk >= 40:
		return types.DirectionRevise
	default:
		return types.DirectionApprove
	}
}
