package types

// EvaluationContext is the input to one parliament pass. The text view is
// evaluated by COMPLIANCE; the optional Retry view is evaluated by the
// failure minds. Neither view is ever handed to the other panel.
type EvaluationContext struct {
	RequestID string            `json:"request_id"`
	SessionID string            `json:"session_id,omitempty"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retry     *FailureContext   `json:"retry,omitempty"`
}

// TextContext is the live-request view.
type TextContext struct {
	SessionID string
	Text      string
	Metadata  map[string]string
}

// FailureContext describes a prior failed attempt being considered for retry.
type FailureContext struct {
	SessionID  string     `json:"session_id,omitempty"`
	Intent     Direction  `json:"intent,omitempty"`
	Reasons    []string   `json:"reasons"`
	PriorVotes []MindVote `json:"prior_votes,omitempty"`
}

func (c EvaluationContext) TextView() TextContext {
	return TextContext{SessionID: c.SessionID, Text: c.Text, Metadata: c.Metadata}
}

// FailureView returns the retry view and whether one was supplied.
func (c EvaluationContext) FailureView() (FailureContext, bool) {
	if c.Retry == nil {
		return FailureContext{}, false
	}
	view := *c.Retry
	if view.SessionID == "" {
		view.SessionID = c.SessionID
	}
	if view.Reasons == nil {
		view.Reasons = []string{}
	}
	return view, true
}

// FailureReasons returns the prior failure reasons, or nil without a retry view.
func (c EvaluationContext) FailureReasons() []string {
	if c.Retry == nil {
		return nil
	}
	return c.Retry.Reasons
}

type ExtractedSignals struct {
	Entities    []string `json:"entities"`
	Constraints []string `json:"constraints"`
	Questions   []string `json:"questions"`
}
