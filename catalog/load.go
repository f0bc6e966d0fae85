package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk catalog shape. The morphs mapping is decoded via
// yaml.Node so that declaration order survives; a plain map would randomize
// the instant-trigger tie-break order.
type fileConfig struct {
	Enabled      bool      `yaml:"enabled"`
	DefaultMorph string    `yaml:"default_morph"`
	Settings     struct {
		Sensitivity     string `yaml:"sensitivity"`
		TransitionStyle string `yaml:"transition_style"`
	} `yaml:"settings"`
	Advanced struct {
		GradualLayer struct {
			Enabled             *bool   `yaml:"enabled"`
			ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		} `yaml:"gradual_layer"`
		Transitions struct {
			PreventMorphingLoops *bool `yaml:"prevent_morphing_loops"`
		} `yaml:"transitions"`
	} `yaml:"advanced"`
	Morphs yaml.Node `yaml:"morphs"`
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	cfg := Config{
		Enabled:             fc.Enabled,
		DefaultMorph:        fc.DefaultMorph,
		TransitionStyle:     fc.Settings.TransitionStyle,
		GradualEnabled:      true,
		ConfidenceThreshold: fc.Advanced.GradualLayer.ConfidenceThreshold,
		PreventLoops:        true,
	}
	if fc.Advanced.GradualLayer.Enabled != nil {
		cfg.GradualEnabled = *fc.Advanced.GradualLayer.Enabled
	}
	if fc.Advanced.Transitions.PreventMorphingLoops != nil {
		cfg.PreventLoops = *fc.Advanced.Transitions.PreventMorphingLoops
	}

	defs, err := decodeMorphs(&fc.Morphs)
	if err != nil {
		return nil, err
	}
	cfg.Morphs = defs

	return New(cfg)
}

func decodeMorphs(node *yaml.Node) ([]Definition, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("catalog: morphs must be a mapping")
	}
	// Mapping nodes alternate key, value in document order.
	defs := make([]Definition, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var def Definition
		if err := node.Content[i+1].Decode(&def); err != nil {
			return nil, fmt.Errorf("catalog: morph %q: %w", node.Content[i].Value, err)
		}
		def.Name = node.Content[i].Value
		defs = append(defs, def)
	}
	return defs, nil
}
