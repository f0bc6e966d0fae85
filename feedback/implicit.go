package feedback

import (
	"strings"
)

// Verdict is the tri-state outcome of implicit feedback detection.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictPositive
	VerdictNegative
)

func (v Verdict) String() string {
	switch v {
	case VerdictPositive:
		return "positive"
	case VerdictNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// Phrase tables for implicit feedback. Negative signals are checked first; a
// near-duplicate repeat of the previous message also reads as negative (the
// user is rephrasing because they were not understood).
var (
	negativePhrases = []string{
		"no era eso", "no quiero", "mejor no", "olvídalo",
		"no entiendes", "me equivoqué", "cambiar de tema",
		"no es lo que busco", "otra cosa",
	}
	positivePhrases = []string{
		"perfecto", "exacto", "genial", "gracias", "eso es",
		"correcto", "sí", "adelante", "continúa", "excelente",
	}
)

const similarityThreshold = 0.7

// DetectImplicit inspects the most recent user messages (oldest first) and
// guesses whether the current morph is working out. It needs at least two
// messages to say anything.
func DetectImplicit(userMessages []string) Verdict {
	if len(userMessages) < 2 {
		return VerdictUnknown
	}
	last := strings.ToLower(userMessages[len(userMessages)-1])

	for _, phrase := range negativePhrases {
		if strings.Contains(last, phrase) {
			return VerdictNegative
		}
	}
	for _, phrase := range positivePhrases {
		if strings.Contains(last, phrase) {
			return VerdictPositive
		}
	}

	prev := strings.ToLower(userMessages[len(userMessages)-2])
	if wordSimilarity(last, prev) > similarityThreshold {
		return VerdictNegative
	}
	return VerdictUnknown
}

// wordSimilarity is the Jaccard similarity of the two word sets.
func wordSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}
