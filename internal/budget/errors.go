package budget

import (
	"fmt"

	"github.com/nskaug/vekter/internal/core"
)

// ContextOverflowError reports a request that would exceed the hard
// context limit of the selected model even after summarization was
// signalled. Fatal for the request: the caller must summarize more
// aggressively or route to a larger-window model. The manager never
// truncates silently.
type ContextOverflowError struct {
	ConversationID   core.ConversationID
	CumulativeTokens int
	EstimatedTokens  int
	WindowTokens     int
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("context overflow for conversation %s: %d cumulative + %d estimated exceeds window of %d tokens",
		e.ConversationID, e.CumulativeTokens, e.EstimatedTokens, e.WindowTokens)
}
