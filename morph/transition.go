package morph

import (
	"github.com/quailyquaily/morphcore/catalog"
)

// continuityPhrases are the stock per-morph phrases used under the seamless
// style when the catalog does not override them.
var continuityPhrases = map[string]string{
	"sales":    "Perfecto, te ayudo a encontrar lo que buscas.",
	"support":  "Entiendo, vamos a resolver esto paso a paso.",
	"creative": "Excelente, exploremos algunas ideas creativas.",
	"general":  "Por supuesto, estoy aquí para ayudarte.",
}

// TransitionInfo describes how an accepted switch should be surfaced.
type TransitionInfo struct {
	FromMorph         string
	ToMorph           string
	Reason            string
	ShouldAcknowledge bool
	ContinuityPhrase  string
}

// TransitionContext is the restored state handed to the new morph: the full
// conversation plus everything it needs to keep continuity.
type TransitionContext struct {
	Conversation      []Message
	PreviousMorph     string
	CurrentMorph      string
	LastUserMessage   string
	Summary           string
	ContinuityPhrase  string
	ShouldAcknowledge bool
	Reason            string
}

// TransitionPolicy decides acknowledgement and continuity phrasing for morph
// switches. Under the seamless style switches stay silent but carry a
// continuity phrase; under the acknowledged style they are surfaced.
type TransitionPolicy struct {
	style string
	cat   *catalog.Catalog
}

func NewTransitionPolicy(cat *catalog.Catalog) *TransitionPolicy {
	return &TransitionPolicy{style: cat.TransitionStyle(), cat: cat}
}

// Prepare computes the transition surface for a pending switch.
func (p *TransitionPolicy) Prepare(fromMorph, toMorph, reason string) TransitionInfo {
	return TransitionInfo{
		FromMorph:         fromMorph,
		ToMorph:           toMorph,
		Reason:            reason,
		ShouldAcknowledge: p.style == catalog.StyleAcknowledged,
		ContinuityPhrase:  p.continuityPhrase(toMorph),
	}
}

// Execute combines the prepared transition with the preserved snapshot into
// the context for the new morph. The snapshot is not referenced afterwards.
func (p *TransitionPolicy) Execute(info TransitionInfo, snapshot Snapshot) *TransitionContext {
	return &TransitionContext{
		Conversation:      snapshot.History,
		PreviousMorph:     info.FromMorph,
		CurrentMorph:      info.ToMorph,
		LastUserMessage:   snapshot.LastUserMessage,
		Summary:           snapshot.Summary,
		ContinuityPhrase:  info.ContinuityPhrase,
		ShouldAcknowledge: info.ShouldAcknowledge,
		Reason:            info.Reason,
	}
}

func (p *TransitionPolicy) continuityPhrase(toMorph string) string {
	if p.style != catalog.StyleSeamless {
		return ""
	}
	if def, ok := p.cat.Get(toMorph); ok && def.ContinuityPhrase != "" {
		return def.ContinuityPhrase
	}
	return continuityPhrases[toMorph]
}
