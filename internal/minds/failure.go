package minds

import (
	"strings"

	"github.com/davidahmann/parliament/pkg/types"
)

const failureBaseScore = 50

var (
	transientTerms   = []string{"network", "timeout", "timed out", "connection reset", "connection refused", "econnreset", "dns"}
	rateLimitTerms   = []string{"rate limit", "rate-limit", "ratelimit", "quota", "429", "too many requests"}
	maintenanceTerms = []string{"maintenance", "unavailable", "503", "service down"}
	clientErrorTerms = []string{"400", "invalid", "bad request", "malformed"}
	authErrorTerms   = []string{"401", "403", "unauthorized", "unauthorised", "forbidden", "auth"}
)

// MaxReasonsBeforeFatigue is the prior failure count above which EFFICIENCY
// stops recommending further attempts.
const MaxReasonsBeforeFatigue = 3

// Risk weighs whether retrying a failing operation compounds the failure.
func Risk(in types.FailureContext) types.MindVote {
	t := newTally(types.MindRisk, failureBaseScore, 0)
	reasons := joinReasons(in.Reasons)

	if in.Intent == types.DirectionRevise {
		t.cap(10)
		t.tag(types.RiskBlocked, types.RiskCritical)
		t.reason("operation is already in revision; another attempt compounds the failure")
		t.next("stop retrying and escalate to the user")
	}
	if containsAny(reasons, transientTerms...) {
		t.floor(40)
		t.tag(types.RiskTransient, types.RiskRetry)
		t.reason("failure looks transient (network or timeout)")
		t.next("retry with backoff")
	}
	return t.retryVote()
}

// Operations checks provider capacity signals in the failure history.
func Operations(in types.FailureContext) types.MindVote {
	t := newTally(types.MindOperations, failureBaseScore, 0)
	reasons := joinReasons(in.Reasons)

	if containsAny(reasons, rateLimitTerms...) {
		t.cap(30)
		t.tag(types.RiskOperational)
		t.reason("provider rate limit or quota reached")
		t.next("wait for the rate limit window before retrying")
	}
	if containsAny(reasons, maintenanceTerms...) {
		t.cap(20)
		t.tag(types.RiskOperational)
		t.reason("provider is in maintenance or unavailable")
		t.next("defer the operation until the provider recovers")
	}
	return t.retryVote()
}

// Evidence checks whether the failure was caused by the request itself.
func Evidence(in types.FailureContext) types.MindVote {
	t := newTally(types.MindEvidence, failureBaseScore, 0)
	reasons := joinReasons(in.Reasons)

	if containsAny(reasons, clientErrorTerms...) {
		t.cap(20)
		t.signal(types.SignalMissingInfo)
		t.reason("provider rejected the request as invalid")
		t.next("correct the request payload before retrying")
	}
	if containsAny(reasons, authErrorTerms...) {
		t.cap(10)
		t.tag(types.RiskSecurity)
		t.signal(types.SignalUserConfirmationRequired)
		t.reason("provider rejected the credentials")
		t.next("ask the user to re-authorize the integration")
	}
	return t.retryVote()
}

// Efficiency weighs the cost of another attempt against prior effort.
func Efficiency(in types.FailureContext) types.MindVote {
	t := newTally(types.MindEfficiency, failureBaseScore, 0)

	if in.Intent == types.DirectionApprove && priorRetry(in.PriorVotes) {
		t.floor(60)
		t.reason("operation was approved and a prior vote marked it retryable")
	}
	if len(in.Reasons) > MaxReasonsBeforeFatigue {
		t.cap(30)
		t.signal(types.SignalTimeSensitive)
		t.reason("too many failed attempts already")
		t.next("abandon automatic retries")
	}
	return t.retryVote()
}

// retryVote derives risk as the complement of the resolved score.
func (t *tally) retryVote() types.MindVote {
	score, _ := t.resolve()
	t.risk = 100 - score
	return t.vote(retryDirection)
}

// retryDirection maps a score to a verdict. A middle-band score means "stop",
// so REJECT sits between APPROVE and REVISE.
func retryDirection(score int, _ int) types.Direction {
	switch {
	case score >= 70:
		return types.DirectionApprove
	case score >= 40:
		return types.DirectionReject
	default:
		return types.DirectionRevise
	}
}

func priorRetry(votes []types.MindVote) bool {
	for _, v := range votes {
		if v.HasRiskTag(types.RiskRetry) {
			return true
		}
	}
	return false
}

func joinReasons(reasons []string) string {
	return strings.ToLower(strings.Join(reasons, "\n"))
}
