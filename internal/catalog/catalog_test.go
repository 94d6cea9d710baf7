package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor(provider, model string) Descriptor {
	return Descriptor{
		Provider:            provider,
		Model:               model,
		ContextWindowTokens: 100_000,
		InputPricePerMTok:   1.0,
		OutputPricePerMTok:  2.0,
		SchemaEnforcement:   EnforcementBestEffort,
		QualityRank:         1,
	}
}

func TestRegisterLookupRoundTrip(t *testing.T) {
	cat := New()
	want := descriptor("acme", "acme-large")
	require.NoError(t, cat.Register(want))

	got, err := cat.Lookup("acme", "acme-large")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRegisterDuplicate(t *testing.T) {
	cat := New()
	require.NoError(t, cat.Register(descriptor("acme", "acme-large")))

	err := cat.Register(descriptor("acme", "acme-large"))
	var duplicate *DuplicateModelError
	require.ErrorAs(t, err, &duplicate)
	assert.Equal(t, "acme", duplicate.Provider)
	assert.Equal(t, "acme-large", duplicate.Model)
}

func TestLookupUnknown(t *testing.T) {
	cat := New()

	_, err := cat.Lookup("nobody", "nothing")
	var unknown *UnknownModelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nobody", unknown.Provider)
}

func TestRegisterInvalidDescriptor(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{"empty provider", func(d *Descriptor) { d.Provider = "" }},
		{"empty model", func(d *Descriptor) { d.Model = "" }},
		{"zero window", func(d *Descriptor) { d.ContextWindowTokens = 0 }},
		{"negative window", func(d *Descriptor) { d.ContextWindowTokens = -1 }},
		{"negative input price", func(d *Descriptor) { d.InputPricePerMTok = -0.1 }},
		{"negative output price", func(d *Descriptor) { d.OutputPricePerMTok = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := descriptor("acme", "acme-large")
			tt.mutate(&desc)
			assert.Error(t, New().Register(desc))
		})
	}
}

func TestCandidatesStableOrder(t *testing.T) {
	cat := New()
	require.NoError(t, cat.Register(descriptor("zeta", "m1")))
	require.NoError(t, cat.Register(descriptor("acme", "m2")))
	require.NoError(t, cat.Register(descriptor("acme", "m1")))

	candidates := cat.Candidates()
	require.Len(t, candidates, 3)
	assert.Equal(t, "acme/m1", candidates[0].Key())
	assert.Equal(t, "acme/m2", candidates[1].Key())
	assert.Equal(t, "zeta/m1", candidates[2].Key())
}

func TestParseSchemaEnforcement(t *testing.T) {
	tests := []struct {
		input   string
		want    SchemaEnforcement
		wantErr bool
	}{
		{"none", EnforcementNone, false},
		{"", EnforcementNone, false},
		{"best-effort", EnforcementBestEffort, false},
		{"best_effort", EnforcementBestEffort, false},
		{"Strict", EnforcementStrict, false},
		{"bogus", EnforcementNone, true},
	}

	for _, tt := range tests {
		got, err := ParseSchemaEnforcement(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestStoreSwap(t *testing.T) {
	first := New()
	require.NoError(t, first.Register(descriptor("acme", "m1")))

	store := NewStore(first)
	assert.Equal(t, 1, store.Current().Len())

	second := New()
	require.NoError(t, second.Register(descriptor("acme", "m1")))
	require.NoError(t, second.Register(descriptor("acme", "m2")))

	store.Swap(second)
	assert.Equal(t, 2, store.Current().Len())

	// The old catalog is untouched by the swap.
	assert.Equal(t, 1, first.Len())
}
