package morph

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/morphcore/catalog"
)

// InstantMatcher is the first, deterministic layer: a lowercase substring
// match against each morph's instant triggers. It is stateless and never
// proposes the morph that is already active. When several morphs match, the
// first configured wins (catalog declaration order).
type InstantMatcher struct {
	morphs []instantRules
}

type instantRules struct {
	name     string
	triggers []string
}

func NewInstantMatcher(cat *catalog.Catalog) *InstantMatcher {
	m := &InstantMatcher{}
	for _, def := range cat.Definitions() {
		if len(def.InstantTriggers) == 0 {
			continue
		}
		m.morphs = append(m.morphs, instantRules{
			name:     def.Name,
			triggers: def.InstantTriggers,
		})
	}
	return m
}

// Check returns a maximum-confidence decision for the first morph whose
// trigger occurs in the input, or nil when nothing matches.
func (m *InstantMatcher) Check(input, currentMorph string) *Decision {
	if input == "" {
		return nil
	}
	lower := strings.ToLower(input)
	for _, rules := range m.morphs {
		if rules.name == currentMorph {
			continue
		}
		for _, trigger := range rules.triggers {
			if strings.Contains(lower, trigger) {
				return &Decision{
					MorphName:  rules.name,
					Confidence: 1.0,
					Reason:     fmt.Sprintf("Trigger instantáneo: %q", trigger),
				}
			}
		}
	}
	return nil
}

// TriggerMorphs returns the morphs that have instant triggers configured, in
// catalog order.
func (m *InstantMatcher) TriggerMorphs() []string {
	out := make([]string, len(m.morphs))
	for i, rules := range m.morphs {
		out[i] = rules.name
	}
	return out
}
