package fallback

import (
	"fmt"
	"strings"

	"github.com/davidahmann/parliament/pkg/types"
)

var rateLimitTerms = []string{"rate limit", "rate-limit", "ratelimit", "quota", "429", "too many requests"}

type Message struct {
	Text   string             `json:"text"`
	Source types.OutputSource `json:"source"`
}

// Select returns the user-facing message for a rejected request.
func Select(intent types.IntentType, reasons []string) Message {
	joined := strings.ToLower(strings.Join(reasons, "\n"))
	for _, term := range rateLimitTerms {
		if strings.Contains(joined, term) {
			return Message{
				Text:   "This service is temporarily unavailable. Please retry shortly.",
				Source: types.OutputRulesBased,
			}
		}
	}
	return Message{
		Text:   fmt.Sprintf("Unable to process this %s request. Check the audit log for details.", describe(intent)),
		Source: types.OutputStatic,
	}
}

func describe(intent types.IntentType) string {
	if intent == "" || intent == types.IntentUnknown {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(strings.TrimSuffix(string(intent), "_REQUEST"), "_", " "))
}
