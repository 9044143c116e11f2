package minds

import (
	"strings"

	"github.com/davidahmann/parliament/pkg/types"
)

// tally accumulates the adjustments fired by one mind. Deltas are summed,
// floors take the highest and caps the lowest, then everything is resolved
// once so the outcome depends only on which conditions fired.
type tally struct {
	mind       types.MindName
	score      int
	risk       int
	scoreFloor int
	scoreCap   int

	riskTags  []types.RiskTag
	signals   []types.Signal
	reasons   []string
	nextSteps []string
	evidence  []string
}

func newTally(mind types.MindName, score, risk int) *tally {
	return &tally{
		mind:       mind,
		score:      score,
		risk:       risk,
		scoreFloor: 0,
		scoreCap:   100,
		riskTags:   []types.RiskTag{},
		signals:    []types.Signal{},
		reasons:    []string{},
		nextSteps:  []string{},
		evidence:   []string{},
	}
}

func (t *tally) adjust(scoreDelta, riskDelta int) {
	t.score += scoreDelta
	t.risk += riskDelta
}

func (t *tally) floor(n int) {
	if n > t.scoreFloor {
		t.scoreFloor = n
	}
}

func (t *tally) cap(n int) {
	if n < t.scoreCap {
		t.scoreCap = n
	}
}

func (t *tally) tag(tags ...types.RiskTag) {
	for _, tag := range tags {
		if !containsTag(t.riskTags, tag) {
			t.riskTags = append(t.riskTags, tag)
		}
	}
}

func (t *tally) signal(signals ...types.Signal) {
	for _, s := range signals {
		if !containsSignal(t.signals, s) {
			t.signals = append(t.signals, s)
		}
	}
}

func (t *tally) reason(r string) { t.reasons = append(t.reasons, r) }
func (t *tally) next(step string) { t.nextSteps = append(t.nextSteps, step) }
func (t *tally) note(ev string) { t.evidence = append(t.evidence, ev) }

// resolve applies floors before caps, so a cap always wins over a floor.
func (t *tally) resolve() (score, risk int) {
	score = t.score
	if score < t.scoreFloor {
		score = t.scoreFloor
	}
	if score > t.scoreCap {
		score = t.scoreCap
	}
	return clamp(score), clamp(t.risk)
}

func (t *tally) vote(direction func(score, risk int) types.Direction) types.MindVote {
	score, risk := t.resolve()
	return types.MindVote{
		Mind:      t.mind,
		Direction: direction(score, risk),
		Score:     score,
		Risk:      risk,
		RiskTags:  t.riskTags,
		Signals:   t.signals,
		Reasons:   t.reasons,
		NextSteps: t.nextSteps,
		Evidence:  t.evidence,
	}
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

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func containsTag(tags []types.RiskTag, tag types.RiskTag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func containsSignal(signals []types.Signal, s types.Signal) bool {
	for _, existing := range signals {
		if existing == s {
			return true
		}
	}
	return false
}
