package grade

import (
	"sort"

	"github.com/davidahmann/parliament/pkg/types"
)

type Result struct {
	Grade   string   `json:"grade"`
	Reasons []string `json:"reasons,omitempty"`
}

type Input struct {
	Valid      bool
	Record     types.AuditRecord
	Redactions int
}

// Evaluate grades how much of a decision can be reconstructed from its audit
// record alone.
func Evaluate(in Input) Result {
	if !in.Valid {
		return Result{Grade: "F", Reasons: []string{"invalid_signature"}}
	}

	rec := in.Record
	missing := map[string]bool{}

	if len(rec.Votes) == 0 {
		missing["votes"] = true
	}
	if rec.Aggregate.Consensus.Total != len(rec.Votes) {
		missing["consensus"] = true
	}
	if rec.Aggregate.Direction == types.DirectionReject && rec.Output.Source == types.OutputAggregate {
		missing["fallback"] = true
	}
	for _, v := range rec.Votes {
		if len(v.Reasons) == 0 {
			missing["vote_reasons"] = true
			break
		}
	}
	if rec.SessionID == "" {
		missing["session"] = true
	}
	if in.Redactions > 0 {
		missing["redacted_fields"] = true
	}

	grade := "A"
	switch {
	case missing["votes"] || missing["consensus"]:
		grade = "F"
	case missing["fallback"]:
		grade = "D"
	case missing["vote_reasons"]:
		grade = "C"
	case missing["session"] || missing["redacted_fields"] || rec.Aggregate.Confidence == types.ConfidenceLow:
		grade = "B"
	}

	reasons := []string{}
	for k, v := range missing {
		if v {
			reasons = append(reasons, "missing_"+k)
		}
	}
	if rec.Aggregate.Confidence == types.ConfidenceLow && len(rec.Votes) > 0 {
		reasons = append(reasons, "low_confidence")
	}
	sort.Strings(reasons)

	return Result{Grade: grade, Reasons: reasons}
}
