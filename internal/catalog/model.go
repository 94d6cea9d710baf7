package catalog

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaEnforcement is how strongly a provider/model guarantees that
// output conforms to a caller-supplied schema. Values are ordered:
// None < BestEffort < Strict.
type SchemaEnforcement int

const (
	EnforcementNone SchemaEnforcement = iota
	EnforcementBestEffort
	EnforcementStrict
)

func (s SchemaEnforcement) String() string {
	switch s {
	case EnforcementStrict:
		return "strict"
	case EnforcementBestEffort:
		return "best-effort"
	default:
		return "none"
	}
}

// ParseSchemaEnforcement parses the catalog-file spelling of an
// enforcement level.
func ParseSchemaEnforcement(text string) (SchemaEnforcement, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "none", "":
		return EnforcementNone, nil
	case "best-effort", "best_effort":
		return EnforcementBestEffort, nil
	case "strict":
		return EnforcementStrict, nil
	default:
		return EnforcementNone, fmt.Errorf("unknown schema_enforcement %q", text)
	}
}

func (s *SchemaEnforcement) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseSchemaEnforcement(value.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s SchemaEnforcement) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Descriptor identifies one provider/model and the capabilities the
// selector routes on. Immutable after registration.
type Descriptor struct {
	Provider            string            `yaml:"provider"`
	Model               string            `yaml:"model"`
	ContextWindowTokens int               `yaml:"context_window_tokens"`
	InputPricePerMTok   float64           `yaml:"input_price_per_mtok"`
	OutputPricePerMTok  float64           `yaml:"output_price_per_mtok"`
	SchemaEnforcement   SchemaEnforcement `yaml:"schema_enforcement"`
	QualityRank         int               `yaml:"quality_rank"`
	SupportsMultimodal  bool              `yaml:"supports_multimodal"`
	IsLocal             bool              `yaml:"is_local"`
}

// Key is the unique registry key for a descriptor.
func (d Descriptor) Key() string {
	return d.Provider + "/" + d.Model
}

// Validate checks the field constraints a descriptor must satisfy
// before it may be registered.
func (d Descriptor) Validate() error {
	if d.Provider == "" {
		return fmt.Errorf("descriptor has empty provider")
	}
	if d.Model == "" {
		return fmt.Errorf("descriptor %s has empty model", d.Provider)
	}
	if d.ContextWindowTokens <= 0 {
		return fmt.Errorf("descriptor %s: context_window_tokens must be > 0, got %d", d.Key(), d.ContextWindowTokens)
	}
	if d.InputPricePerMTok < 0 {
		return fmt.Errorf("descriptor %s: input_price_per_mtok must be >= 0, got %v", d.Key(), d.InputPricePerMTok)
	}
	if d.OutputPricePerMTok < 0 {
		return fmt.Errorf("descriptor %s: output_price_per_mtok must be >= 0, got %v", d.Key(), d.OutputPricePerMTok)
	}
	return nil
}

// Provider metadata for a provider directory in the catalog tree.
type Provider struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
}
