// Package accountant computes and aggregates exchange cost. It is pure
// accounting: it never blocks or throttles; throttling policy belongs
// to whoever reads its totals.
package accountant

import (
	"context"
	"sync"

	"github.com/nskaug/vekter/internal/catalog"
)

// Cost is the exchange cost in USD for actual token counts against the
// descriptor's per-MToken prices.
func Cost(desc catalog.Descriptor, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*desc.InputPricePerMTok/1e6 +
		float64(outputTokens)*desc.OutputPricePerMTok/1e6
}

type userTotals struct {
	costUSD float64
	tokens  int
}

// Accountant keeps running per-user totals in memory and, when a ledger
// is attached, appends every recorded exchange to it.
type Accountant struct {
	mu     sync.Mutex
	totals map[string]*userTotals
	ledger *Ledger
}

// New returns an Accountant. ledger may be nil for in-memory-only use.
func New(ledger *Ledger) *Accountant {
	return &Accountant{
		totals: make(map[string]*userTotals),
		ledger: ledger,
	}
}

// Record computes the cost of one exchange, adds it to the user's
// running total, and appends it to the ledger if one is attached.
func (a *Accountant) Record(ctx context.Context, userID string, desc catalog.Descriptor, inputTokens, outputTokens int) (float64, error) {
	cost := Cost(desc, inputTokens, outputTokens)

	a.mu.Lock()
	totals, ok := a.totals[userID]
	if !ok {
		totals = &userTotals{}
		a.totals[userID] = totals
	}
	totals.costUSD += cost
	totals.tokens += inputTokens + outputTokens
	a.mu.Unlock()

	if a.ledger != nil {
		if err := a.ledger.RecordExchange(ctx, userID, desc.Provider, desc.Model, inputTokens, outputTokens, cost); err != nil {
			return cost, err
		}
	}

	return cost, nil
}

// Total returns the user's running cost in USD.
func (a *Accountant) Total(userID string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if totals, ok := a.totals[userID]; ok {
		return totals.costUSD
	}
	return 0
}

// TokensUsed returns the user's running token count.
func (a *Accountant) TokensUsed(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if totals, ok := a.totals[userID]; ok {
		return totals.tokens
	}
	return 0
}

// AlertIfThreshold reports whether the user's running cost has reached
// the given threshold.
func (a *Accountant) AlertIfThreshold(userID string, threshold float64) bool {
	return a.Total(userID) >= threshold
}
