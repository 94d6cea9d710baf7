package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogTree(t *testing.T, models map[string]map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "version.txt"), []byte("2026-08-26\n"), 0o644))

	for provider, files := range models {
		providerDir := filepath.Join(dir, "providers", provider)
		require.NoError(t, os.MkdirAll(filepath.Join(providerDir, "models"), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(providerDir, "provider.yaml"),
			[]byte("name: "+provider+"\ndisplay_name: "+provider+"\n"), 0o644))

		for file, content := range files {
			require.NoError(t, os.WriteFile(filepath.Join(providerDir, "models", file), []byte(content), 0o644))
		}
	}

	return dir
}

func TestLoad(t *testing.T) {
	dir := writeCatalogTree(t, map[string]map[string]string{
		"acme": {
			"acme-large.yaml": `
model: acme-large
context_window_tokens: 1000000
input_price_per_mtok: 0.10
output_price_per_mtok: 0.40
schema_enforcement: best-effort
quality_rank: 2
supports_multimodal: true
`,
		},
		"local": {
			"tiny.yaml": `
model: tiny
context_window_tokens: 8192
schema_enforcement: none
is_local: true
`,
		},
	})

	cat, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-26", cat.Version)
	assert.Equal(t, 2, cat.Len())

	desc, err := cat.Lookup("acme", "acme-large")
	require.NoError(t, err)
	assert.Equal(t, 1_000_000, desc.ContextWindowTokens)
	assert.Equal(t, 0.10, desc.InputPricePerMTok)
	assert.Equal(t, EnforcementBestEffort, desc.SchemaEnforcement)
	assert.True(t, desc.SupportsMultimodal)

	local, err := cat.Lookup("local", "tiny")
	require.NoError(t, err)
	assert.True(t, local.IsLocal)
	assert.Equal(t, EnforcementNone, local.SchemaEnforcement)
}

func TestLoadRejectsInvalidModel(t *testing.T) {
	dir := writeCatalogTree(t, map[string]map[string]string{
		"acme": {
			"bad.yaml": `
model: bad
context_window_tokens: 0
`,
		},
	})

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownEnforcement(t *testing.T) {
	dir := writeCatalogTree(t, map[string]map[string]string{
		"acme": {
			"bad.yaml": `
model: bad
context_window_tokens: 1000
schema_enforcement: sometimes
`,
		},
	})

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsProviderNameMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "version.txt"), []byte("1"), 0o644))
	providerDir := filepath.Join(dir, "providers", "acme")
	require.NoError(t, os.MkdirAll(filepath.Join(providerDir, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(providerDir, "provider.yaml"), []byte("name: other\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadMissingVersion(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
