package signals

import (
	"strings"

	"github.com/davidahmann/parliament/pkg/types"
)

// Classifier evaluates an ordered intent cascade; the first matching rule wins.
type Classifier struct {
	rules   []compiledRule
	hash    string
	version string
	source  []byte
}

var defaultClassifier = mustClassifier(DefaultRules())

func NewClassifier(loaded LoadedRules) (*Classifier, error) {
	if err := loaded.Rules.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{hash: loaded.Hash, version: loaded.Rules.Version, source: loaded.Bytes}
	for _, rule := range loaded.Rules.Rules {
		c.rules = append(c.rules, compileRule(rule))
	}
	return c, nil
}

func mustClassifier(loaded LoadedRules) *Classifier {
	c, err := NewClassifier(loaded)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultClassifier returns the classifier built from the embedded rules.
func DefaultClassifier() *Classifier {
	return defaultClassifier
}

// ClassifyIntent classifies text with the embedded rule table.
func ClassifyIntent(text string) types.IntentType {
	return defaultClassifier.Classify(text)
}

func (c *Classifier) Classify(text string) types.IntentType {
	normalized := normalize(text)
	if normalized == "" {
		return types.IntentUnknown
	}
	for _, rule := range c.rules {
		if rule.matches(normalized) {
			return rule.intent
		}
	}
	return types.IntentInfo
}

func (c *Classifier) RulesHash() string { return c.hash }

func (c *Classifier) RulesVersion() string { return c.version }

// RulesSource returns the rule file the classifier was built from.
func (c *Classifier) RulesSource() []byte { return c.source }

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "‛", "'", "´", "'", "`", "'",
	"“", `"`, "”", `"`, "„", `"`,
)

// normalizeText folds typographic quotes and collapses whitespace runs.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(quoteReplacer.Replace(text)), " ")
}

func normalize(text string) string {
	return strings.ToLower(normalizeText(text))
}
