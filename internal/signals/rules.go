package signals

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/pkg/types"
)

//go:embed rules/intents.yaml
var defaultRulesYAML []byte

type RuleSet struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

type Rule struct {
	Intent   types.IntentType `yaml:"intent"`
	Keywords []string         `yaml:"keywords"`
}

type LoadedRules struct {
	Rules RuleSet
	Hash  string
	Bytes []byte
}

// LoadRules loads an ordered intent rule table and computes its hash from raw bytes.
func LoadRules(path string) (LoadedRules, error) {
	// #nosec G304 -- path comes from operator-configured rules path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedRules{}, err
	}
	return ParseRules(data)
}

// DefaultRules returns the rule table compiled into the binary.
func DefaultRules() LoadedRules {
	loaded, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded intent rules: %v", err))
	}
	return loaded
}

func ParseRules(data []byte) (LoadedRules, error) {
	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return LoadedRules{}, err
	}
	if err := set.Validate(); err != nil {
		return LoadedRules{}, err
	}
	return LoadedRules{
		Rules: set,
		Hash:  crypto.DigestWithPrefix(data),
		Bytes: data,
	}, nil
}

func (s RuleSet) Validate() error {
	if len(s.Rules) == 0 {
		return fmt.Errorf("rules: at least one rule is required")
	}
	seen := map[types.IntentType]bool{}
	for i, rule := range s.Rules {
		if !rule.Intent.Valid() || rule.Intent == types.IntentUnknown || rule.Intent == types.IntentInfo {
			return fmt.Errorf("rules[%d]: unsupported intent %q", i, rule.Intent)
		}
		if seen[rule.Intent] {
			return fmt.Errorf("rules[%d]: duplicate intent %s", i, rule.Intent)
		}
		seen[rule.Intent] = true
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("rules[%d]: %s has no keywords", i, rule.Intent)
		}
		for _, kw := range rule.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("rules[%d]: %s has an empty keyword", i, rule.Intent)
			}
		}
	}
	return nil
}

type compiledRule struct {
	intent   types.IntentType
	keywords []string
}

// compileRule normalizes keywords the same way input text is normalized.
// Matching is plain substring containment, so "fix" also fires on "prefix".
func compileRule(rule Rule) compiledRule {
	keywords := make([]string, 0, len(rule.Keywords))
	for _, kw := range rule.Keywords {
		keywords = append(keywords, normalize(kw))
	}
	return compiledRule{intent: rule.Intent, keywords: keywords}
}

func (r compiledRule) matches(normalized string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}
