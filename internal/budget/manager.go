// Package budget tracks running token usage per conversation and
// decides when history must be summarized before another exchange may
// proceed. Checks for one conversation are serialized; independent
// conversations proceed in parallel.
package budget

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nskaug/vekter/internal/core"
)

const (
	// DefaultSoftLimitFraction of the selected window triggers a
	// summarization signal before the exchange proceeds.
	DefaultSoftLimitFraction = 0.8

	// DefaultConversationTTL evicts budget state for conversations idle
	// this long. Explicit Close removes state immediately.
	DefaultConversationTTL = 2 * time.Hour

	// defaultMaxConversations bounds tracked conversations; least
	// recently used entries beyond this fall out first.
	defaultMaxConversations = 8192
)

// Decision is the outcome of a budget check.
type Decision struct {
	// Proceed reports that the exchange fits the budget. A non-nil
	// Reservation accompanies it and must be committed or released.
	Proceed bool

	// MustSummarizeFirst asks the caller to compress history and
	// resubmit with a smaller estimate before any state is updated.
	MustSummarizeFirst bool

	// NewCumulativeTokens is the projected cumulative count should the
	// exchange proceed with its estimate.
	NewCumulativeTokens int

	// Reservation holds the admitted tokens until the exchange reaches
	// a definite outcome. Nil unless Proceed is true.
	Reservation *Reservation
}

type conversationState struct {
	mu                     sync.Mutex
	cumulativeTokens       int
	reservedTokens         int
	lastSummarizedAtTokens int
}

// Manager owns per-conversation budget state.
type Manager struct {
	softLimitFraction float64

	mu      sync.Mutex
	entries *expirable.LRU[core.ConversationID, *conversationState]
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	softLimitFraction float64
	ttl               time.Duration
	maxConversations  int
}

// WithSoftLimitFraction overrides the summarization threshold.
func WithSoftLimitFraction(fraction float64) Option {
	return func(o *options) { o.softLimitFraction = fraction }
}

// WithConversationTTL overrides the idle-eviction TTL.
func WithConversationTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithMaxConversations overrides the tracked-conversation cap.
func WithMaxConversations(max int) Option {
	return func(o *options) { o.maxConversations = max }
}

// NewManager returns a Manager with the given options applied over
// defaults.
func NewManager(opts ...Option) *Manager {
	o := options{
		softLimitFraction: DefaultSoftLimitFraction,
		ttl:               DefaultConversationTTL,
		maxConversations:  defaultMaxConversations,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Manager{
		softLimitFraction: o.softLimitFraction,
		entries:           expirable.NewLRU[core.ConversationID, *conversationState](o.maxConversations, nil, o.ttl),
	}
}

// Check decides whether an exchange with the given input estimate fits
// the selected model's window. Any projected count above the soft limit
// asks the caller to summarize and resubmit; anything above the hard
// limit is above the soft limit too, so the summarization signal always
// precedes an overflow verdict, which only the resubmission path
// (Reserve) can return. Check does not update cumulative state:
// admitted tokens are held by the returned reservation and become
// permanent only on Commit, so a cancelled exchange leaves no trace.
func (m *Manager) Check(id core.ConversationID, estimatedInputTokens, windowTokens int) (Decision, error) {
	state := m.state(id)

	state.mu.Lock()
	defer state.mu.Unlock()

	projected := state.cumulativeTokens + state.reservedTokens + estimatedInputTokens

	if float64(projected) > m.softLimitFraction*float64(windowTokens) {
		return Decision{MustSummarizeFirst: true, NewCumulativeTokens: projected}, nil
	}

	state.reservedTokens += estimatedInputTokens

	return Decision{
		Proceed:             true,
		NewCumulativeTokens: projected,
		Reservation: &Reservation{
			state:  state,
			tokens: estimatedInputTokens,
		},
	}, nil
}

// Reserve admits an exchange against the hard limit only. It is the
// resubmission path after a summarization signal: the soft limit has
// already done its job, so only overflow can stop the exchange now.
func (m *Manager) Reserve(id core.ConversationID, estimatedInputTokens, windowTokens int) (*Reservation, error) {
	state := m.state(id)

	state.mu.Lock()
	defer state.mu.Unlock()

	projected := state.cumulativeTokens + state.reservedTokens + estimatedInputTokens
	if projected > windowTokens {
		return nil, &ContextOverflowError{
			ConversationID:   id,
			CumulativeTokens: state.cumulativeTokens + state.reservedTokens,
			EstimatedTokens:  estimatedInputTokens,
			WindowTokens:     windowTokens,
		}
	}

	state.reservedTokens += estimatedInputTokens

	return &Reservation{state: state, tokens: estimatedInputTokens}, nil
}

// NoteSummarized records that the caller compressed the conversation's
// history down to newCumulativeTokens.
func (m *Manager) NoteSummarized(id core.ConversationID, newCumulativeTokens int) {
	state := m.state(id)

	state.mu.Lock()
	defer state.mu.Unlock()

	state.cumulativeTokens = newCumulativeTokens
	state.lastSummarizedAtTokens = newCumulativeTokens
}

// CumulativeTokens returns the committed token count for a conversation.
func (m *Manager) CumulativeTokens(id core.ConversationID) int {
	state := m.state(id)

	state.mu.Lock()
	defer state.mu.Unlock()

	return state.cumulativeTokens
}

// Close discards budget state for a conversation.
func (m *Manager) Close(id core.ConversationID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries.Remove(id)
}

// state returns the tracked entry for id, creating it on first use and
// refreshing its idle TTL.
func (m *Manager) state(id core.ConversationID) *conversationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries.Get(id); ok {
		m.entries.Add(id, existing) // refresh TTL
		return existing
	}

	created := &conversationState{}
	m.entries.Add(id, created)
	return created
}

// Reservation holds admitted tokens for one in-flight exchange. It pins
// the state it was minted from, so settlement stays with that state
// even if the tracked entry is evicted mid-flight; a re-created entry
// never sees another reservation's arithmetic.
type Reservation struct {
	state   *conversationState
	tokens  int
	settled bool
}

// Commit converts the reservation into committed usage. The actual
// token count (input plus output, as reported by the provider) replaces
// the pre-call estimate.
func (r *Reservation) Commit(actualTokens int) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if r.settled {
		return
	}
	r.settled = true

	r.state.reservedTokens -= r.tokens
	r.state.cumulativeTokens += actualTokens
}

// Release drops the reservation without committing any usage, for
// cancelled or failed exchanges.
func (r *Reservation) Release() {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if r.settled {
		return
	}
	r.settled = true

	r.state.reservedTokens -= r.tokens
}
