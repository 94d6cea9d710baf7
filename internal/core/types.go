package core

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TaskKind classifies what an exchange is for. The selector's decision
// table keys on it.
type TaskKind string

const (
	TaskOffline        TaskKind = "offline"
	TaskConversation   TaskKind = "conversation"
	TaskCriticalJSON   TaskKind = "critical-json"
	TaskMultiStepAgent TaskKind = "multi-step-agent"
	TaskUltraBudget    TaskKind = "ultra-budget"
)

// UserTier is the cost/quality class of the requesting user.
type UserTier string

const (
	TierFree    UserTier = "free"
	TierBudget  UserTier = "budget"
	TierPremium UserTier = "premium"
)

// Schema is an opaque JSON Schema handle supplied by the caller.
// The enforcer interprets it; nothing else inspects it.
type Schema map[string]any

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ExchangeRequest carries everything the router needs to serve one
// request/response round trip. Conversation history is supplied by the
// caller; the engine never persists it.
type ExchangeRequest struct {
	TaskKind             TaskKind
	UserTier             UserTier
	UserID               string
	ConversationID       ConversationID
	History              []Message
	Prompt               string
	EstimatedInputTokens int
	TargetSchema         Schema
	RequireStrictSchema  bool
	AllowFailover        bool
}

// EnforcementOutcome reports how the structured-output contract ended.
type EnforcementOutcome string

const (
	OutcomePassed   EnforcementOutcome = "passed"
	OutcomeRepaired EnforcementOutcome = "repaired"
	OutcomeDegraded EnforcementOutcome = "degraded"
	OutcomeFailed   EnforcementOutcome = "failed"
)

// ValidationIssue is one schema-conformance mismatch, addressable by
// field so callers (and repair prompts) can act on it.
type ValidationIssue struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// ExchangeResult is the terminal record of one exchange. Degraded and
// Failed enforcement are reported here, not as errors, so callers can
// inspect the best-effort payload and the issue list.
type ExchangeResult struct {
	ExchangeID             ExchangeID
	Provider               string
	Model                  string
	RawOutput              string
	Payload                map[string]any
	Outcome                EnforcementOutcome
	Issues                 []ValidationIssue
	InputTokens            int
	OutputTokens           int
	Cost                   float64
	SummarizationTriggered bool
}
