package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a catalog directory tree:
//
//	<dir>/version.txt
//	<dir>/providers/<provider>/provider.yaml
//	<dir>/providers/<provider>/models/<model>.yaml
//
// Loading fails fast on any malformed or duplicate entry; a partially
// valid catalog is never returned.
func Load(basePath string) (*Catalog, error) {
	cat := New()

	versionBytes, err := os.ReadFile(filepath.Join(basePath, "version.txt"))
	if err != nil {
		return nil, fmt.Errorf("reading version.txt: %w", err)
	}
	cat.Version = strings.TrimSpace(string(versionBytes))

	providersDir := filepath.Join(basePath, "providers")
	entries, err := os.ReadDir(providersDir)
	if err != nil {
		return nil, fmt.Errorf("reading providers dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := loadProvider(cat, providersDir, entry.Name()); err != nil {
			return nil, fmt.Errorf("loading provider %s: %w", entry.Name(), err)
		}
	}

	return cat, nil
}

func loadProvider(cat *Catalog, providersDir, name string) error {
	providerDir := filepath.Join(providersDir, name)

	data, err := os.ReadFile(filepath.Join(providerDir, "provider.yaml"))
	if err != nil {
		return fmt.Errorf("reading provider.yaml: %w", err)
	}
	var provider Provider
	if err := yaml.Unmarshal(data, &provider); err != nil {
		return fmt.Errorf("parsing provider.yaml: %w", err)
	}
	if provider.Name != name {
		return fmt.Errorf("provider.yaml name %q does not match directory %q", provider.Name, name)
	}

	modelsDir := filepath.Join(providerDir, "models")
	modelFiles, err := os.ReadDir(modelsDir)
	if err != nil {
		return fmt.Errorf("reading models dir: %w", err)
	}

	for _, f := range modelFiles {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(modelsDir, f.Name()))
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name(), err)
		}

		var desc Descriptor
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return fmt.Errorf("parsing %s: %w", f.Name(), err)
		}

		// The directory is authoritative for the provider name; model
		// files only carry the model-level fields.
		desc.Provider = provider.Name

		if err := cat.Register(desc); err != nil {
			return fmt.Errorf("registering %s: %w", f.Name(), err)
		}
	}

	return nil
}
