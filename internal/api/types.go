package api

import (
	"strings"

	"github.com/davidahmann/parliament/internal/grade"
	"github.com/davidahmann/parliament/pkg/types"
)

type EvaluateRequest struct {
	RequestID string            `json:"request_id,omitempty" validate:"omitempty,max=128,printascii"`
	SessionID string            `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Text      string            `json:"text" validate:"required,max=20000"`
	Metadata  map[string]string `json:"metadata,omitempty" validate:"omitempty,max=64,dive,keys,min=1,max=64,endkeys,max=1024"`
	Retry     *RetryRequest     `json:"retry,omitempty"`
}

// RetryRequest describes a prior failed attempt; its presence puts the
// failure minds on the panel.
type RetryRequest struct {
	Intent     types.Direction  `json:"intent,omitempty" validate:"omitempty,oneof=APPROVE REVISE REJECT"`
	Reasons    []string         `json:"reasons" validate:"max=50,dive,max=2000"`
	PriorVotes []types.MindVote `json:"prior_votes,omitempty" validate:"max=16"`
}

type EvaluateResponse struct {
	RequestID string                    `json:"request_id"`
	SessionID string                    `json:"session_id,omitempty"`
	RecordID  string                    `json:"record_id"`
	Intent    types.IntentType          `json:"intent"`
	Signals   types.ExtractedSignals    `json:"signals"`
	Votes     []types.MindVote          `json:"votes"`
	Aggregate types.ParliamentAggregate `json:"aggregate"`
	Output    types.AuditOutput         `json:"output"`
	// Replayed is set when the response came from the idempotency cache.
	Replayed bool `json:"replayed,omitempty"`
}

type TextRequest struct {
	Text string `json:"text" validate:"max=20000"`
}

type ClassifyResponse struct {
	Intent       types.IntentType `json:"intent"`
	RulesVersion string           `json:"rules_version"`
	RulesHash    string           `json:"rules_hash"`
}

type RedactRequest struct {
	Reason      string   `json:"reason" validate:"required,max=500"`
	Fields      []string `json:"fields" validate:"required,min=1,dive,oneof=context.text context.metadata context.retry signals"`
	RequestedBy string   `json:"requested_by,omitempty" validate:"omitempty,max=128"`
}

// AuditEntry is a decoded record as served to readers, with any
// redactions applied to the view.
type AuditEntry struct {
	Record     types.AuditRecord       `json:"record"`
	Redactions []types.RedactionRecord `json:"redactions,omitempty"`
}

type VerifyResult struct {
	RecordID string       `json:"record_id"`
	KeyID    string       `json:"key_id"`
	Valid    bool         `json:"valid"`
	Error    string       `json:"error,omitempty"`
	Grade    grade.Result `json:"grade"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (r EvaluateRequest) evaluationContext(requestID string) types.EvaluationContext {
	in := types.EvaluationContext{
		RequestID: requestID,
		SessionID: r.SessionID,
		Text:      r.Text,
		Metadata:  redactSensitiveMetadata(r.Metadata),
	}
	if r.Retry != nil {
		reasons := r.Retry.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		in.Retry = &types.FailureContext{
			SessionID:  r.SessionID,
			Intent:     r.Retry.Intent,
			Reasons:    reasons,
			PriorVotes: r.Retry.PriorVotes,
		}
	}
	return in
}

// sensitiveKeyParts are matched as substrings of the metadata key once it is
// lowercased and stripped of '_', '-' and '.' separators.
var sensitiveKeyParts = []string{
	"password", "token", "apikey", "secret", "accesstoken", "refreshtoken", "creditcard", "ssn", "pin",
}

// redactSensitiveMetadata replaces the value of every credential-like key
// before the context is signed and persisted. The caller's map is not modified.
func redactSensitiveMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if isSensitiveKey(k) {
			v = redactedMarker
		}
		out[k] = v
	}
	return out
}

var keySeparators = strings.NewReplacer("_", "", "-", "", ".", "")

func isSensitiveKey(key string) bool {
	k := keySeparators.Replace(strings.ToLower(key))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}
