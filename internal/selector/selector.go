// Package selector maps (task kind, user tier, budget state) to a
// provider/model choice. Selection is a pure function of its inputs:
// identical inputs always produce the identical decision.
package selector

import (
	"fmt"
	"sort"

	"github.com/nskaug/vekter/internal/accountant"
	"github.com/nskaug/vekter/internal/catalog"
	"github.com/nskaug/vekter/internal/core"
)

// outputEstimateDivisor sizes the pre-call output-token estimate for
// cost projection: one tenth of the required input tokens.
const outputEstimateDivisor = 10

// Decision is the selector's choice for one request.
type Decision struct {
	Descriptor    catalog.Descriptor
	EstimatedCost float64
}

// NoEligibleProviderError reports that no registered descriptor can
// satisfy the request's constraints. It must surface to the caller;
// the selector never falls back to an undersized model.
type NoEligibleProviderError struct {
	TaskKind       core.TaskKind
	UserTier       core.UserTier
	RequiredTokens int
}

func (e *NoEligibleProviderError) Error() string {
	return fmt.Sprintf("no eligible provider for task %s (tier %s, %d required tokens)",
		e.TaskKind, e.UserTier, e.RequiredTokens)
}

// Select applies the decision table. requiredTokens is the caller's
// cumulative-plus-estimated input token count; only descriptors whose
// context window covers it are considered. requireStrict narrows every
// row to strict-enforcement descriptors.
func Select(taskKind core.TaskKind, userTier core.UserTier, requiredTokens int, requireStrict bool, candidates []catalog.Descriptor) (Decision, error) {
	eligible := make([]catalog.Descriptor, 0, len(candidates))
	for _, desc := range candidates {
		if desc.ContextWindowTokens < requiredTokens {
			continue
		}
		if requireStrict && desc.SchemaEnforcement != catalog.EnforcementStrict {
			continue
		}
		eligible = append(eligible, desc)
	}

	// Cheapest-first with the full tie-break chain; every rule below
	// starts from this ordering so results are reproducible.
	sortByPrice(eligible)

	var chosen *catalog.Descriptor
	switch taskKind {
	case core.TaskOffline:
		chosen = first(filter(eligible, func(d catalog.Descriptor) bool { return d.IsLocal }))

	case core.TaskConversation:
		if userTier == core.TierPremium {
			chosen = nextQuality(eligible)
		} else {
			chosen = first(eligible)
		}

	case core.TaskCriticalJSON:
		if userTier == core.TierPremium {
			strict := filter(eligible, func(d catalog.Descriptor) bool {
				return d.SchemaEnforcement == catalog.EnforcementStrict
			})
			chosen = maxBy(strict, func(d catalog.Descriptor) int { return d.QualityRank })
		} else {
			chosen = first(filter(eligible, func(d catalog.Descriptor) bool {
				return d.SchemaEnforcement >= catalog.EnforcementBestEffort
			}))
		}

	case core.TaskMultiStepAgent:
		strict := filter(eligible, func(d catalog.Descriptor) bool {
			return d.SchemaEnforcement == catalog.EnforcementStrict
		})
		chosen = maxBy(strict, func(d catalog.Descriptor) int { return d.ContextWindowTokens })

	case core.TaskUltraBudget:
		chosen = first(eligible)

	default:
		return Decision{}, fmt.Errorf("unknown task kind %q", taskKind)
	}

	if chosen == nil {
		return Decision{}, &NoEligibleProviderError{
			TaskKind:       taskKind,
			UserTier:       userTier,
			RequiredTokens: requiredTokens,
		}
	}

	return Decision{
		Descriptor:    *chosen,
		EstimatedCost: accountant.Cost(*chosen, requiredTokens, requiredTokens/outputEstimateDivisor),
	}, nil
}

// sortByPrice orders descriptors by input price, output price, provider
// name, then model name.
func sortByPrice(descs []catalog.Descriptor) {
	sort.Slice(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if a.InputPricePerMTok != b.InputPricePerMTok {
			return a.InputPricePerMTok < b.InputPricePerMTok
		}
		if a.OutputPricePerMTok != b.OutputPricePerMTok {
			return a.OutputPricePerMTok < b.OutputPricePerMTok
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.Model < b.Model
	})
}

func filter(descs []catalog.Descriptor, keep func(catalog.Descriptor) bool) []catalog.Descriptor {
	out := make([]catalog.Descriptor, 0, len(descs))
	for _, desc := range descs {
		if keep(desc) {
			out = append(out, desc)
		}
	}
	return out
}

func first(descs []catalog.Descriptor) *catalog.Descriptor {
	if len(descs) == 0 {
		return nil
	}
	return &descs[0]
}

// maxBy picks the descriptor maximizing rank; ties resolve to the one
// earliest in the price ordering.
func maxBy(descs []catalog.Descriptor, rank func(catalog.Descriptor) int) *catalog.Descriptor {
	var best *catalog.Descriptor
	for i := range descs {
		if best == nil || rank(descs[i]) > rank(*best) {
			best = &descs[i]
		}
	}
	return best
}

// nextQuality picks the quality tier one step above the cheapest
// eligible descriptor: the lowest quality rank strictly greater than
// the cheapest's, cheapest-first within that rank. Falls back to the
// cheapest when nothing ranks higher.
func nextQuality(eligible []catalog.Descriptor) *catalog.Descriptor {
	base := first(eligible)
	if base == nil {
		return nil
	}

	var chosen *catalog.Descriptor
	for i := range eligible {
		rank := eligible[i].QualityRank
		if rank <= base.QualityRank {
			continue
		}
		if chosen == nil || rank < chosen.QualityRank {
			chosen = &eligible[i]
		}
	}

	if chosen == nil {
		return base
	}
	return chosen
}
