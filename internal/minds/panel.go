// Package minds holds the independent scoring functions of the parliament.
// Text minds judge whether a live request is safe to act on; failure minds
// judge whether a failed attempt is worth retrying. The two take disjoint
// input types so neither can be handed the other's context.
package minds

import "github.com/davidahmann/parliament/pkg/types"

type TextMind struct {
	Name types.MindName
	Eval func(types.TextContext) types.MindVote
}

type FailureMind struct {
	Name types.MindName
	Eval func(types.FailureContext) types.MindVote
}

// Panel is an ordered set of minds. Vote order follows panel order.
type Panel struct {
	Text    []TextMind
	Failure []FailureMind
}

func DefaultPanel() Panel {
	return Panel{
		Text: []TextMind{
			{Name: types.MindCompliance, Eval: Compliance},
		},
		Failure: []FailureMind{
			{Name: types.MindRisk, Eval: Risk},
			{Name: types.MindOperations, Eval: Operations},
			{Name: types.MindEvidence, Eval: Evidence},
			{Name: types.MindEfficiency, Eval: Efficiency},
		},
	}
}

func (p Panel) Size(withFailure bool) int {
	if withFailure {
		return len(p.Text) + len(p.Failure)
	}
	return len(p.Text)
}
