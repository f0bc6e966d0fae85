package morph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quailyquaily/morphcore/catalog"
)

// Intent labels produced by the coarse single-label classifier.
const (
	IntentPurchase  = "purchase_inquiry"
	IntentSupport   = "support_request"
	IntentCreative  = "creative_request"
	IntentQuestion  = "question"
	IntentStatement = "statement"
)

// Rule tables for the heuristic classifier. These are deliberately literal
// keyword lists, not a trained model; changing them changes scoring behavior.
var (
	purchaseWords = []string{"comprar", "precio", "costo", "oferta", "producto"}
	supportWords  = []string{"problema", "error", "falla", "no funciona", "ayuda"}
	creativeWords = []string{"crear", "diseñar", "idea", "imaginar"}
	urgencyWords  = []string{"urgente", "rápido", "ahora", "ya"}
	pleaseWords   = []string{"por favor", "please"}
)

// themeWordPattern extracts candidate theme words (4+ characters) from
// recent user messages.
var themeWordPattern = regexp.MustCompile(`[\p{L}\p{N}_]{4,}`)

// Weights are the gradual-layer scoring constants. The defaults are the
// empirically tuned production values; they are exposed as tunables so A/B
// variants can override them.
type Weights struct {
	Keyword        int // per keyword hit
	Intent         int // intent matches the morph's configured intents
	Theme          int // morph appears in recurring conversation themes
	UrgencyBonus   int // urgency detected, support-type morph only
	CurrentPenalty int // hysteresis penalty for the already-active morph

	// SupportMorph names the morph that receives the urgency bonus.
	SupportMorph string
}

func DefaultWeights() Weights {
	return Weights{
		Keyword:        2,
		Intent:         3,
		Theme:          2,
		UrgencyBonus:   1,
		CurrentPenalty: 2,
		SupportMorph:   "support",
	}
}

// MorphScore is the per-morph outcome of one gradual evaluation.
type MorphScore struct {
	Total          int
	MinRequired    int
	MeetsThreshold bool
	Reason         string
}

// GradualResult is a proposed switch from the gradual layer, with the full
// score table for diagnostics.
type GradualResult struct {
	MorphName  string
	Confidence float64
	Reason     string
	Scores     map[string]MorphScore
}

// patterns are the linguistic features of a single utterance.
type patterns struct {
	hasQuestion    bool
	hasExclamation bool
	wordCount      int
	isShort        bool
	isLong         bool
	hasPlease      bool
	hasUrgency     bool
}

// GradualAnalyzer is the second layer: a multi-signal scorer over keywords,
// coarse intent, linguistic features and recurring conversation themes.
type GradualAnalyzer struct {
	weights Weights
	morphs  []gradualRules
}

type gradualRules struct {
	name     string
	keywords []string
	intents  []string
	minScore int
}

func NewGradualAnalyzer(cat *catalog.Catalog, weights Weights) *GradualAnalyzer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	a := &GradualAnalyzer{weights: weights}
	for _, def := range cat.Definitions() {
		if !def.HasGradual() {
			continue
		}
		a.morphs = append(a.morphs, gradualRules{
			name:     def.Name,
			keywords: def.GradualTriggers.Keywords,
			intents:  def.GradualTriggers.Intents,
			minScore: def.GradualTriggers.MinScore,
		})
	}
	return a
}

// Analyze scores every gradual-capable morph for the utterance and returns
// the best eligible candidate, or nil when no morph beats the current one.
func (a *GradualAnalyzer) Analyze(input string, conversation []Message, currentMorph string) *GradualResult {
	if len(a.morphs) == 0 {
		return nil
	}

	lower := strings.ToLower(input)
	intent := a.detectIntent(lower)
	feats := analyzePatterns(input)
	themes := a.repeatedThemes(recentUserMessages(conversation, 3))

	scores := make(map[string]MorphScore, len(a.morphs))
	for _, rules := range a.morphs {
		score := 0
		var reasons []string

		var matched []string
		for _, kw := range rules.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			score += len(matched) * a.weights.Keyword
			reasons = append(reasons, "Keywords encontradas: "+strings.Join(matched, ", "))
		}

		if containsString(rules.intents, intent) {
			score += a.weights.Intent
			reasons = append(reasons, "Intent detectado: "+intent)
		}

		if containsString(themes, rules.name) {
			score += a.weights.Theme
			reasons = append(reasons, "Tema recurrente en conversación")
		}

		if rules.name == a.weights.SupportMorph && feats.hasUrgency {
			score += a.weights.UrgencyBonus
			reasons = append(reasons, "Urgencia detectada")
		}

		if rules.name == currentMorph {
			score -= a.weights.CurrentPenalty
		}

		reason := "Sin señales claras"
		if len(reasons) > 0 {
			reason = strings.Join(reasons, " | ")
		}
		scores[rules.name] = MorphScore{
			Total:          score,
			MinRequired:    rules.minScore,
			MeetsThreshold: score >= rules.minScore,
			Reason:         reason,
		}
	}

	best := a.bestMorph(scores, currentMorph)
	if best == "" {
		return nil
	}
	return &GradualResult{
		MorphName:  best,
		Confidence: clamp01(float64(scores[best].Total) / 10.0),
		Reason:     scores[best].Reason,
		Scores:     scores,
	}
}

// bestMorph picks the eligible morph with the highest score, provided it is
// not the current morph and scored positive. Ties resolve in catalog order.
func (a *GradualAnalyzer) bestMorph(scores map[string]MorphScore, currentMorph string) string {
	best := ""
	bestScore := 0
	for _, rules := range a.morphs {
		s, ok := scores[rules.name]
		if !ok || !s.MeetsThreshold {
			continue
		}
		if best == "" || s.Total > bestScore {
			best = rules.name
			bestScore = s.Total
		}
	}
	if best == "" || best == currentMorph || bestScore <= 0 {
		return ""
	}
	return best
}

// detectIntent assigns a single coarse label; the first matching keyword
// family wins.
func (a *GradualAnalyzer) detectIntent(lower string) string {
	switch {
	case containsAny(lower, purchaseWords):
		return IntentPurchase
	case containsAny(lower, supportWords):
		return IntentSupport
	case containsAny(lower, creativeWords):
		return IntentCreative
	case strings.Contains(lower, "?"):
		return IntentQuestion
	default:
		return IntentStatement
	}
}

func analyzePatterns(input string) patterns {
	lower := strings.ToLower(input)
	words := len(strings.Fields(input))
	return patterns{
		hasQuestion:    strings.Contains(input, "?"),
		hasExclamation: strings.Contains(input, "!"),
		wordCount:      words,
		isShort:        words < 5,
		isLong:         words > 20,
		hasPlease:      containsAny(lower, pleaseWords),
		hasUrgency:     containsAny(lower, urgencyWords),
	}
}

// repeatedThemes maps words that recur across recent user messages (4+
// characters, seen at least twice) back to morphs via keyword overlap.
func (a *GradualAnalyzer) repeatedThemes(messages []string) []string {
	if len(messages) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, msg := range messages {
		for _, word := range themeWordPattern.FindAllString(strings.ToLower(msg), -1) {
			counts[word]++
		}
	}
	repeated := make(map[string]bool)
	for word, n := range counts {
		if n >= 2 {
			repeated[word] = true
		}
	}

	var themes []string
	for _, rules := range a.morphs {
		for _, kw := range rules.keywords {
			if repeated[kw] {
				themes = append(themes, rules.name)
				break
			}
		}
	}
	return themes
}

// recentUserMessages returns up to max of the latest user turns, newest
// first, lowercased for matching.
func recentUserMessages(conversation []Message, max int) []string {
	var out []string
	for i := len(conversation) - 1; i >= 0 && len(out) < max; i-- {
		if conversation[i].Role == "user" {
			out = append(out, strings.ToLower(conversation[i].Content))
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s MorphScore) String() string {
	return fmt.Sprintf("score=%d min=%d: %s", s.Total, s.MinRequired, s.Reason)
}
