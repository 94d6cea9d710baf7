// Package estimator approximates token counts for text and structured
// payloads. It is a single conservative heuristic shared by every
// provider: an estimate, not an exact count. Exact provider-side counts
// are unknown until after the call.
package estimator

import (
	"encoding/json"
	"fmt"

	"github.com/nskaug/vekter/internal/core"
)

// charsPerToken is the usual rule of thumb for English-ish text.
const charsPerToken = 4

// messageOverheadTokens covers role markers and separators per message.
const messageOverheadTokens = 4

// Estimate returns the approximate token count of text. It is monotonic:
// longer text never yields fewer tokens. Empty text is zero tokens.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimatePayload serializes a structured payload to canonical JSON and
// estimates the result. Map keys marshal in sorted order, so identical
// payloads always estimate identically.
func EstimatePayload(payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("estimator: marshal payload: %w", err)
	}
	return Estimate(string(data)), nil
}

// EstimateMessages sums the estimate for a conversation history, adding
// a small fixed overhead per message.
func EstimateMessages(messages []core.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens + Estimate(msg.Content)
	}
	return total
}
