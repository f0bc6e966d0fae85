// Package catalog holds the static morph configuration: one Definition per
// named persona (trigger rules, prompt and model presets) plus the engine-wide
// settings. A catalog is loaded once and never mutated afterwards.
package catalog

import (
	"fmt"
	"strings"
)

const (
	DefaultMorphName   = "general"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7

	// Transition styles.
	StyleSeamless     = "seamless"
	StyleAcknowledged = "acknowledged"
)

// GradualTriggers is the weighted-signal rule set of one morph. Emotions are
// parsed and kept for forward compatibility but carry no score weight.
type GradualTriggers struct {
	Keywords []string `yaml:"keywords"`
	Intents  []string `yaml:"intents"`
	Emotions []string `yaml:"emotions"`
	MinScore int      `yaml:"min_score"`
}

// Definition is one morph: persona prompt, model preset and trigger rules.
type Definition struct {
	Name             string          `yaml:"-"`
	Personality      string          `yaml:"personality"`
	Model            string          `yaml:"model"`
	Temperature      float64         `yaml:"temperature"`
	Tools            []string        `yaml:"tools"`
	InstantTriggers  []string        `yaml:"instant_triggers"`
	GradualTriggers  GradualTriggers `yaml:"gradual_triggers"`
	ContinuityPhrase string          `yaml:"continuity_phrase"`
}

// HasGradual reports whether the morph participates in gradual analysis.
func (d Definition) HasGradual() bool {
	return len(d.GradualTriggers.Keywords) > 0 ||
		len(d.GradualTriggers.Intents) > 0 ||
		len(d.GradualTriggers.Emotions) > 0
}

// MorphConfig is what the host consumes for an active morph.
type MorphConfig struct {
	Name        string   `json:"name"`
	Personality string   `json:"personality"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	Tools       []string `json:"tools"`
}

// Config is the raw engine configuration a catalog is built from.
type Config struct {
	Enabled             bool
	DefaultMorph        string
	TransitionStyle     string
	GradualEnabled      bool
	ConfidenceThreshold float64
	PreventLoops        bool
	Morphs              []Definition
}

// DefaultConfig mirrors the framework defaults: morphing off, a single
// general morph, gradual layer on at threshold 0.6, loop prevention on.
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		DefaultMorph:        DefaultMorphName,
		TransitionStyle:     StyleSeamless,
		GradualEnabled:      true,
		ConfidenceThreshold: 0.6,
		PreventLoops:        true,
		Morphs: []Definition{{
			Name:        DefaultMorphName,
			Personality: "Soy un asistente útil y amigable",
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
		}},
	}
}

// Catalog is the immutable morph registry. Definition order is declaration
// order; instant-trigger ties resolve to the first configured morph.
type Catalog struct {
	cfg   Config
	defs  []Definition
	index map[string]int
}

// New builds a catalog, normalizing triggers to lowercase and filling unset
// engine settings with defaults.
func New(cfg Config) (*Catalog, error) {
	if strings.TrimSpace(cfg.DefaultMorph) == "" {
		cfg.DefaultMorph = DefaultMorphName
	}
	switch cfg.TransitionStyle {
	case "":
		cfg.TransitionStyle = StyleSeamless
	case StyleSeamless, StyleAcknowledged:
	default:
		return nil, fmt.Errorf("catalog: unknown transition style %q", cfg.TransitionStyle)
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}

	c := &Catalog{cfg: cfg, index: make(map[string]int)}
	for _, def := range cfg.Morphs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog: morph with empty name")
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("catalog: duplicate morph %q", name)
		}
		def.Name = name
		def.InstantTriggers = lowercaseAll(def.InstantTriggers)
		def.GradualTriggers.Keywords = lowercaseAll(def.GradualTriggers.Keywords)
		if def.GradualTriggers.MinScore <= 0 {
			def.GradualTriggers.MinScore = 2
		}
		c.index[name] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Enabled reports whether morphing is switched on at all.
func (c *Catalog) Enabled() bool { return c.cfg.Enabled }

// DefaultMorph returns the configured starting morph.
func (c *Catalog) DefaultMorph() string { return c.cfg.DefaultMorph }

// TransitionStyle returns "seamless" or "acknowledged".
func (c *Catalog) TransitionStyle() string { return c.cfg.TransitionStyle }

// GradualEnabled reports whether the gradual layer runs.
func (c *Catalog) GradualEnabled() bool { return c.cfg.GradualEnabled }

// ConfidenceThreshold is the gradual-layer acceptance threshold.
func (c *Catalog) ConfidenceThreshold() float64 { return c.cfg.ConfidenceThreshold }

// PreventLoops reports whether the anti-loop guard is active.
func (c *Catalog) PreventLoops() bool { return c.cfg.PreventLoops }

// Definitions returns the morphs in declaration order. Callers must not
// mutate the returned slice.
func (c *Catalog) Definitions() []Definition { return c.defs }

// Names returns the morph names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.Name
	}
	return out
}

// Get looks up a morph by name.
func (c *Catalog) Get(name string) (Definition, bool) {
	i, ok := c.index[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// MorphConfig resolves the host-facing configuration for a morph. Unknown or
// partially configured morphs fall back to a generated default rather than
// failing the request.
func (c *Catalog) MorphConfig(name string) MorphConfig {
	out := MorphConfig{
		Name:        name,
		Personality: fmt.Sprintf("Soy un asistente especializado en %s", name),
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Tools:       []string{},
	}
	def, ok := c.Get(name)
	if !ok {
		return out
	}
	if strings.TrimSpace(def.Personality) != "" {
		out.Personality = def.Personality
	}
	if strings.TrimSpace(def.Model) != "" {
		out.Model = def.Model
	}
	if def.Temperature > 0 {
		out.Temperature = def.Temperature
	}
	if len(def.Tools) > 0 {
		out.Tools = append([]string{}, def.Tools...)
	}
	return out
}

func lowercaseAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
