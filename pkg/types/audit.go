package types

type OutputSource string

const (
	OutputRulesBased OutputSource = "RULES_BASED"
	OutputStatic     OutputSource = "STATIC"
	OutputAggregate  OutputSource = "AGGREGATE"
)

type AuditOutput struct {
	Message string       `json:"message"`
	Source  OutputSource `json:"source"`
}

// AuditRecord is one evaluation as persisted to the ledger. RecordID is the
// digest of the canonical body and Sig signs that digest.
type AuditRecord struct {
	Schema    string              `json:"schema"`
	RecordID  string              `json:"record_id,omitempty"`
	RequestID string              `json:"request_id"`
	SessionID string              `json:"session_id,omitempty"`
	CreatedAt string              `json:"created_at"`
	Context   EvaluationContext   `json:"context"`
	Intent    IntentType          `json:"intent"`
	Signals   ExtractedSignals    `json:"signals"`
	Votes     []MindVote          `json:"votes"`
	Aggregate ParliamentAggregate `json:"aggregate"`
	Output    AuditOutput         `json:"output"`
	KeyID     string              `json:"key_id,omitempty"`
}

// RedactionRecord references an existing audit record; the original is never edited.
type RedactionRecord struct {
	Schema      string   `json:"schema"`
	RedactionID string   `json:"redaction_id,omitempty"`
	RecordID    string   `json:"record_id"`
	Reason      string   `json:"reason"`
	Fields      []string `json:"fields"`
	RequestedBy string   `json:"requested_by,omitempty"`
	CreatedAt   string   `json:"created_at"`
}
