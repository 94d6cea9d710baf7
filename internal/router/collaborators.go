package router

import (
	"context"

	"github.com/nskaug/vekter/internal/core"
)

// PromptPayload is the provider-agnostic request body for one
// generation attempt.
type PromptPayload struct {
	History []core.Message
	Prompt  string

	// Instruction carries schema or repair guidance for providers that
	// take steering through the prompt rather than the API boundary.
	Instruction string

	// APIKey is the per-user credential for the chosen provider (BYOK).
	// Empty for local providers.
	APIKey string
}

// ProviderResponse is the raw outcome of one provider call, including
// the provider's own token accounting.
type ProviderResponse struct {
	RawOutput    string
	InputTokens  int
	OutputTokens int
}

// ProviderClient performs the actual network call for one provider.
// The transport/SDK behind it is out of scope here; implementations
// fail with ProviderError (unavailable, rate-limited, timeout).
type ProviderClient interface {
	// Invoke runs one generation. schema is non-nil only when the
	// descriptor declares strict enforcement, in which case the client
	// must pass it at the provider's generation boundary.
	Invoke(ctx context.Context, model string, payload PromptPayload, schema core.Schema) (ProviderResponse, error)
}

// Summarizer compresses conversation history when the budget manager
// signals that an exchange would cross the soft limit.
type Summarizer interface {
	Summarize(ctx context.Context, history []core.Message) ([]core.Message, error)
}

// CredentialStore resolves per-user provider credentials. A missing
// credential is reported by returning an empty key with a nil error.
type CredentialStore interface {
	APIKey(ctx context.Context, userID, provider string) (string, error)
}
