package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nskaug/vekter/internal/catalog"
	"github.com/nskaug/vekter/internal/core"
)

// The two descriptors from the pricing scenarios: a cheap large-window
// model and an expensive strict-enforcement one.
var (
	cheapLarge = catalog.Descriptor{
		Provider:            "acme",
		Model:               "acme-swift",
		ContextWindowTokens: 1_000_000,
		InputPricePerMTok:   0.10,
		OutputPricePerMTok:  0.40,
		SchemaEnforcement:   catalog.EnforcementBestEffort,
		QualityRank:         1,
	}
	strictPremium = catalog.Descriptor{
		Provider:            "borealis",
		Model:               "borealis-ultra",
		ContextWindowTokens: 400_000,
		InputPricePerMTok:   1.75,
		OutputPricePerMTok:  14,
		SchemaEnforcement:   catalog.EnforcementStrict,
		QualityRank:         3,
	}
	localTiny = catalog.Descriptor{
		Provider:            "local",
		Model:               "tiny",
		ContextWindowTokens: 8_192,
		SchemaEnforcement:   catalog.EnforcementNone,
		IsLocal:             true,
	}
)

func TestBudgetConversationPicksCheapest(t *testing.T) {
	// Scenario: 50k required tokens, budget tier, so the cheap model wins
	// and costs 50000*0.10/1e6 + 5000*0.40/1e6 = 0.007.
	decision, err := Select(core.TaskConversation, core.TierBudget, 50_000, false,
		[]catalog.Descriptor{strictPremium, cheapLarge})
	require.NoError(t, err)

	assert.Equal(t, "acme/acme-swift", decision.Descriptor.Key())
	assert.InDelta(t, 0.007, decision.EstimatedCost, 1e-9)
}

func TestPremiumCriticalJSONPicksStrictRegardlessOfPrice(t *testing.T) {
	decision, err := Select(core.TaskCriticalJSON, core.TierPremium, 50_000, false,
		[]catalog.Descriptor{cheapLarge, strictPremium})
	require.NoError(t, err)

	assert.Equal(t, "borealis/borealis-ultra", decision.Descriptor.Key())
}

func TestNoEligibleProviderWhenWindowTooSmall(t *testing.T) {
	_, err := Select(core.TaskConversation, core.TierFree, 5_000_000, false,
		[]catalog.Descriptor{cheapLarge, strictPremium})

	var noEligible *NoEligibleProviderError
	require.ErrorAs(t, err, &noEligible)
	assert.Equal(t, core.TaskConversation, noEligible.TaskKind)
	assert.Equal(t, 5_000_000, noEligible.RequiredTokens)
}

func TestDeterministic(t *testing.T) {
	candidates := []catalog.Descriptor{strictPremium, cheapLarge, localTiny}

	first, err := Select(core.TaskConversation, core.TierBudget, 50_000, false, candidates)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		// Same inputs in a different presentation order.
		again, err := Select(core.TaskConversation, core.TierBudget, 50_000, false,
			[]catalog.Descriptor{localTiny, cheapLarge, strictPremium})
		require.NoError(t, err)
		assert.Equal(t, first.Descriptor, again.Descriptor)
		assert.Equal(t, first.EstimatedCost, again.EstimatedCost)
	}
}

func TestOfflinePicksLocalOnly(t *testing.T) {
	decision, err := Select(core.TaskOffline, core.TierPremium, 1_000, false,
		[]catalog.Descriptor{cheapLarge, strictPremium, localTiny})
	require.NoError(t, err)
	assert.True(t, decision.Descriptor.IsLocal)

	_, err = Select(core.TaskOffline, core.TierPremium, 1_000, false,
		[]catalog.Descriptor{cheapLarge, strictPremium})
	var noEligible *NoEligibleProviderError
	assert.ErrorAs(t, err, &noEligible)
}

func TestPremiumConversationPicksNextQualityTier(t *testing.T) {
	mid := cheapLarge
	mid.Model = "acme-mid"
	mid.InputPricePerMTok = 0.50
	mid.QualityRank = 2

	decision, err := Select(core.TaskConversation, core.TierPremium, 50_000, false,
		[]catalog.Descriptor{cheapLarge, mid, strictPremium})
	require.NoError(t, err)

	// One step above the cheapest eligible, not the top of the range.
	assert.Equal(t, "acme/acme-mid", decision.Descriptor.Key())
}

func TestPremiumConversationFallsBackToCheapest(t *testing.T) {
	solo := cheapLarge
	decision, err := Select(core.TaskConversation, core.TierPremium, 50_000, false,
		[]catalog.Descriptor{solo})
	require.NoError(t, err)
	assert.Equal(t, solo.Key(), decision.Descriptor.Key())
}

func TestNonPremiumCriticalJSONPicksCheapestBestEffort(t *testing.T) {
	decision, err := Select(core.TaskCriticalJSON, core.TierFree, 50_000, false,
		[]catalog.Descriptor{localTiny, strictPremium, cheapLarge})
	require.NoError(t, err)
	assert.Equal(t, "acme/acme-swift", decision.Descriptor.Key())
}

func TestMultiStepAgentPicksLargestStrictWindow(t *testing.T) {
	strictSmall := strictPremium
	strictBig := strictPremium
	strictBig.Model = "borealis-vast"
	strictBig.ContextWindowTokens = 2_000_000
	strictBig.InputPricePerMTok = 5

	decision, err := Select(core.TaskMultiStepAgent, core.TierFree, 50_000, false,
		[]catalog.Descriptor{cheapLarge, strictSmall, strictBig})
	require.NoError(t, err)
	assert.Equal(t, "borealis/borealis-vast", decision.Descriptor.Key())
}

func TestUltraBudgetPicksGlobalCheapest(t *testing.T) {
	decision, err := Select(core.TaskUltraBudget, core.TierPremium, 5_000, false,
		[]catalog.Descriptor{strictPremium, cheapLarge, localTiny})
	require.NoError(t, err)

	// localTiny is free, so it wins on price.
	assert.Equal(t, "local/tiny", decision.Descriptor.Key())
}

func TestRequireStrictNarrowsEveryRow(t *testing.T) {
	decision, err := Select(core.TaskConversation, core.TierBudget, 50_000, true,
		[]catalog.Descriptor{cheapLarge, strictPremium})
	require.NoError(t, err)
	assert.Equal(t, catalog.EnforcementStrict, decision.Descriptor.SchemaEnforcement)
}

func TestTieBreakByProviderName(t *testing.T) {
	a := cheapLarge
	a.Provider = "aaa"
	b := cheapLarge
	b.Provider = "bbb"

	decision, err := Select(core.TaskUltraBudget, core.TierFree, 1_000, false,
		[]catalog.Descriptor{b, a})
	require.NoError(t, err)
	assert.Equal(t, "aaa", decision.Descriptor.Provider)
}

func TestUnknownTaskKind(t *testing.T) {
	_, err := Select(core.TaskKind("interpretive-dance"), core.TierFree, 1_000, false,
		[]catalog.Descriptor{cheapLarge})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task kind")
}
