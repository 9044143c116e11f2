package signals

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/davidahmann/parliament/pkg/types"
)

const (
	MaxQuestions   = 10
	MaxConstraints = 25
	MaxEntities    = 25

	constraintContext = 120
)

// constraintWords is scanned in order; each word contributes its own
// matches, so overlapping spans are kept.
var constraintWords = []string{"must", "only", "exact", "no", "without", "include", "exclude", "never", "always"}

var (
	constraintRes = compileConstraintRes(constraintWords)
	questionRe    = regexp.MustCompile(`[^.?!]*\?`)
	urlRe         = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()\[\]]+`)
	capitalRe     = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_-]{2,}\b`)
)

func compileConstraintRes(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\b[^.?!]{0,%d}`, regexp.QuoteMeta(w), constraintContext)))
	}
	return out
}

// ExtractSignals pulls questions, constraints and entities out of free text.
// Whitespace is collapsed first. Overflow beyond each cap is dropped.
func ExtractSignals(text string) types.ExtractedSignals {
	text = normalizeText(text)
	return types.ExtractedSignals{
		Entities:    extractEntities(text),
		Constraints: extractConstraints(text),
		Questions:   extractQuestions(text),
	}
}

func extractQuestions(text string) []string {
	out := newCappedSet(MaxQuestions)
	for _, m := range questionRe.FindAllString(text, -1) {
		if strings.Trim(m, "? ") == "" {
			continue
		}
		out.add(strings.TrimSpace(m))
	}
	return out.items
}

func extractConstraints(text string) []string {
	out := newCappedSet(MaxConstraints)
	for _, re := range constraintRes {
		for _, m := range re.FindAllString(text, -1) {
			out.add(strings.TrimSpace(m))
		}
		if out.full() {
			break
		}
	}
	return out.items
}

func extractEntities(text string) []string {
	out := newCappedSet(MaxEntities)
	for _, m := range urlRe.FindAllString(text, -1) {
		out.add(strings.TrimRight(m, ".,;:!?"))
	}
	for _, m := range capitalRe.FindAllString(text, -1) {
		if out.full() {
			break
		}
		out.add(m)
	}
	return out.items
}

type cappedSet struct {
	limit int
	seen  map[string]struct{}
	items []string
}

func newCappedSet(limit int) *cappedSet {
	return &cappedSet{limit: limit, seen: map[string]struct{}{}, items: []string{}}
}

func (s *cappedSet) add(item string) {
	if item == "" || s.full() {
		return
	}
	if _, ok := s.seen[item]; ok {
		return
	}
	s.seen[item] = struct{}{}
	s.items = append(s.items, item)
}

func (s *cappedSet) full() bool { return len(s.items) >= s.limit }
