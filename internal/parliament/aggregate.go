package parliament

import (
	"math"
	"sort"

	"github.com/davidahmann/parliament/pkg/types"
)

const (
	maxCollectedReasons = 40
	MaxTopReasons       = 12
	MaxNextSteps        = 20

	rejectScoreCap = 25
	reviseScoreCap = 65

	riskWeight    = 0.55
	dissentWeight = 0.35
)

// tiePrecedence orders directions for tie-breaks: caution before approval,
// revision before rejection.
var tiePrecedence = []types.Direction{types.DirectionRevise, types.DirectionReject, types.DirectionApprove}

// Aggregate folds votes into one decision. It is pure and total: the same
// votes always give the same aggregate, and zero votes is valid input.
func Aggregate(votes []types.MindVote) types.ParliamentAggregate {
	counts := map[types.Direction]int{}
	for _, v := range votes {
		counts[v.Direction]++
	}
	total := len(votes)

	buckets := []int{counts[types.DirectionApprove], counts[types.DirectionRevise], counts[types.DirectionReject]}
	sort.Sort(sort.Reverse(sort.IntSlice(buckets)))

	agreement := 0
	if total > 0 {
		agreement = roundHalfUp(100 * float64(buckets[0]) / float64(total))
	}
	margin := buckets[0] - buckets[1]

	direction := tiePrecedence[0]
	best := -1
	for _, d := range tiePrecedence {
		if counts[d] > best {
			best = counts[d]
			direction = d
		}
	}

	meanScore, meanRisk := 0.0, 0.0
	if total > 0 {
		sumScore, sumRisk := 0, 0
		for _, v := range votes {
			sumScore += v.Score
			sumRisk += v.Risk
		}
		meanScore = float64(sumScore) / float64(total)
		meanRisk = float64(sumRisk) / float64(total)
	}
	dissent := float64(100 - agreement)

	score := clamp(roundHalfUp(meanScore - riskWeight*meanRisk - dissentWeight*dissent))
	switch direction {
	case types.DirectionReject:
		score = min(score, rejectScoreCap)
	case types.DirectionRevise:
		score = min(score, reviseScoreCap)
	}
	risk := clamp(roundHalfUp(meanRisk))

	return types.ParliamentAggregate{
		Direction:  direction,
		Score:      score,
		Risk:       risk,
		Confidence: confidence(total, agreement, margin, risk),
		Consensus: types.Consensus{
			Approvals:    counts[types.DirectionApprove],
			Revises:      counts[types.DirectionRevise],
			Rejects:      counts[types.DirectionReject],
			Total:        total,
			AgreementPct: agreement,
			Margin:       margin,
		},
		TopReasons:        topReasons(votes),
		RequiredNextSteps: nextSteps(votes),
		RiskTags:          riskTags(votes),
		Signals:           signals(votes),
	}
}

func confidence(total, agreement, margin, risk int) types.Confidence {
	switch {
	case total < 3:
		return types.ConfidenceLow
	case agreement >= 80 && margin >= 2 && risk <= 35:
		return types.ConfidenceHigh
	case agreement >= 60 && margin >= 1 && risk <= 60:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

func topReasons(votes []types.MindVote) []string {
	collected := uniqueStrings{limit: maxCollectedReasons}
	for _, v := range votes {
		for _, r := range v.Reasons {
			collected.add(string(v.Mind) + ": " + r)
		}
	}
	out := collected.list()
	if len(out) > MaxTopReasons {
		out = out[:MaxTopReasons]
	}
	return out
}

func nextSteps(votes []types.MindVote) []string {
	steps := uniqueStrings{limit: MaxNextSteps}
	for _, v := range votes {
		for _, s := range v.NextSteps {
			steps.add(s)
		}
	}
	return steps.list()
}

func riskTags(votes []types.MindVote) []types.RiskTag {
	seen := map[types.RiskTag]struct{}{}
	out := []types.RiskTag{}
	for _, v := range votes {
		for _, tag := range v.RiskTags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

func signals(votes []types.MindVote) []types.Signal {
	seen := map[types.Signal]struct{}{}
	out := []types.Signal{}
	for _, v := range votes {
		for _, s := range v.Signals {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

type uniqueStrings struct {
	limit int
	seen  map[string]struct{}
	items []string
}

func (u *uniqueStrings) add(s string) {
	if u.seen == nil {
		u.seen = map[string]struct{}{}
	}
	if len(u.items) >= u.limit {
		return
	}
	if _, ok := u.seen[s]; ok {
		return
	}
	u.seen[s] = struct{}{}
	u.items = append(u.items, s)
}

func (u *uniqueStrings) list() []string {
	if u.items == nil {
		return []string{}
	}
	return u.items
}

// roundHalfUp rounds halves toward positive infinity.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
