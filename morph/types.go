// Package morph implements the per-message morphing decision pipeline: the
// instant trigger layer, the gradual signal analyzer, conversation snapshots
// across a switch, transition continuity, anti-loop protection and the
// orchestrating Engine.
package morph

import (
	"github.com/quailyquaily/morphcore/catalog"
)

// Message is one conversation turn as the host framework sees it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decision is a proposed morph switch from one of the trigger layers.
type Decision struct {
	MorphName  string
	Confidence float64
	Reason     string
}

// TriggerType labels which layer produced an accepted switch.
const (
	TriggerInstant = "instant"
	TriggerGradual = "gradual"
)

// AnalysisDetails records what the pipeline looked at for a message that did
// not result in a switch.
type AnalysisDetails struct {
	InstantChecked     bool
	GradualChecked     bool
	GradualConfidence  float64
	BlockedByAntiLoop  bool
	BlockedTargetMorph string
}

// Result is the engine's answer for one message. Exactly one of three
// terminal outcomes holds: switched (ShouldSwitch), blocked by the anti-loop
// guard (Analysis.BlockedByAntiLoop), or unchanged.
type Result struct {
	ShouldSwitch  bool
	TargetMorph   string
	CurrentMorph  string
	PreviousMorph string
	MorphConfig   catalog.MorphConfig
	Transition    *TransitionContext
	Decision      *Decision
	Analysis      AnalysisDetails
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
