package enforce

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed config/gate.yaml
var gateYAML embed.FS

// Config holds the enforcement thresholds. Values ship embedded so every
// deployment gates on the same numbers unless rebuilt.
type Config struct {
	// Minimum combined score for a chunk to be attached to a span.
	CitationConfidenceThreshold float64 `yaml:"citation_confidence_threshold"`
	// Cap on chunks attached per span, highest score first.
	MaxEvidencePerSpan int `yaml:"max_evidence_per_span"`
	// Relative tolerance when comparing numeric values for contradiction.
	NumericTolerance float64 `yaml:"numeric_tolerance"`
	// Minimum lexical score for auto-mapping a checklist item to a section.
	ComplianceMatchThreshold float64 `yaml:"compliance_match_threshold"`
}

func LoadConfig() (Config, error) {
	data, err := gateYAML.ReadFile("config/gate.yaml")
	if err != nil {
		return Config{}, fmt.Errorf("failed to read embedded gate config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse gate config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.CitationConfidenceThreshold <= 0 {
		c.CitationConfidenceThreshold = 0.3
	}
	if c.MaxEvidencePerSpan <= 0 {
		c.MaxEvidencePerSpan = 3
	}
	if c.NumericTolerance <= 0 {
		c.NumericTolerance = 0.01
	}
	if c.ComplianceMatchThreshold <= 0 {
		c.ComplianceMatchThreshold = 0.25
	}
	return c
}

// DefaultConfig returns the embedded config, falling back to hard defaults if
// the embedded file is unreadable (which only happens on a broken build).
func DefaultConfig() Config {
	cfg, err := LoadConfig()
	if err != nil {
		return Config{}.withDefaults()
	}
	return cfg
}
