// Package feedback implements the learning ledger: success/failure counters
// per morph and per (morph, trigger) pattern, folded into confidence
// adjustments that nudge future morph decisions. Aggregates are authoritative
// in memory so the decision path never touches the network; every mutation is
// mirrored into the kvstore through a single write batch, best-effort.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quailyquaily/morphcore/kvstore"
)

const (
	statsKeyPrefix   = "morphing:stats:"
	statsIndexKey    = "morphing:stats:index"
	patternsPosKey   = "morphing:patterns:positive"
	patternsNegKey   = "morphing:patterns:negative"
	adjustmentsKey   = "morphing:confidence:adjustments"
	recentKey        = "morphing:feedback:recent"
	recentKeep       = 1000
	patternMaxRunes  = 50
	minObservations  = 5
	adjustmentFactor = 0.1
	adjustmentLimit  = 0.5
)

// Record is one feedback observation about a committed switch.
type Record struct {
	ID         string  `json:"id"`
	Morph      string  `json:"morph"`
	Trigger    string  `json:"trigger"`
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	UserID     string  `json:"user_id,omitempty"`
	Timestamp  float64 `json:"timestamp"`
}

// MorphStats are the aggregate outcomes for one morph.
type MorphStats struct {
	Total         int64   `json:"total"`
	Success       int64   `json:"success"`
	Failed        int64   `json:"failed"`
	SuccessRate   float64 `json:"success_rate"` // percent
	AvgConfidence float64 `json:"avg_confidence"`
}

// PatternCount pairs a (morph, trigger) pattern with its observation count.
type PatternCount struct {
	Pattern string
	Count   int64
}

// LearningSummary is a snapshot of everything the ledger has learned.
type LearningSummary struct {
	MorphPerformance  map[string]MorphStats `json:"morphs_performance"`
	TopFailed         []PatternCount        `json:"top_failed_patterns"`
	TopSuccessful     []PatternCount        `json:"top_successful_patterns"`
	TotalFeedback     int64                 `json:"total_feedback_processed"`
	ActiveAdjustments int                   `json:"active_adjustments"`
}

type morphCounters struct {
	total           int64
	success         int64
	totalConfidence float64
}

// Ledger tracks feedback aggregates and learned confidence adjustments.
// Safe for concurrent use.
type Ledger struct {
	mu          sync.Mutex
	stats       map[string]*morphCounters
	positive    map[string]float64
	negative    map[string]float64
	adjustments map[string]float64

	store kvstore.Store
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option {
	return func(ld *Ledger) {
		if l != nil {
			ld.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(ld *Ledger) {
		if now != nil {
			ld.now = now
		}
	}
}

// NewLedger builds a ledger. store may be nil, in which case learned state
// lives only for the lifetime of the process.
func NewLedger(store kvstore.Store, opts ...Option) *Ledger {
	ld := &Ledger{
		stats:       make(map[string]*morphCounters),
		positive:    make(map[string]float64),
		negative:    make(map[string]float64),
		adjustments: make(map[string]float64),
		store:       store,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Hydrate reloads previously persisted aggregates. Errors leave the ledger
// empty but usable.
func (ld *Ledger) Hydrate(ctx context.Context) error {
	if ld.store == nil {
		return nil
	}

	adjustments, err := ld.store.HGetAll(ctx, adjustmentsKey)
	if err != nil {
		return fmt.Errorf("feedback: hydrate adjustments: %w", err)
	}
	positive, err := ld.store.ZRangeWithScores(ctx, patternsPosKey, 0, -1)
	if err != nil {
		return fmt.Errorf("feedback: hydrate positive patterns: %w", err)
	}
	negative, err := ld.store.ZRangeWithScores(ctx, patternsNegKey, 0, -1)
	if err != nil {
		return fmt.Errorf("feedback: hydrate negative patterns: %w", err)
	}
	index, err := ld.store.HGetAll(ctx, statsIndexKey)
	if err != nil {
		return fmt.Errorf("feedback: hydrate stats index: %w", err)
	}

	stats := make(map[string]*morphCounters, len(index))
	for morph := range index {
		raw, err := ld.store.HGetAll(ctx, statsKeyPrefix+morph)
		if err != nil {
			return fmt.Errorf("feedback: hydrate stats for %q: %w", morph, err)
		}
		total, _ := strconv.ParseInt(raw["total"], 10, 64)
		success, _ := strconv.ParseInt(raw["success"], 10, 64)
		totalConf, _ := strconv.ParseFloat(raw["total_confidence"], 64)
		stats[morph] = &morphCounters{total: total, success: success, totalConfidence: totalConf}
	}

	ld.mu.Lock()
	defer ld.mu.Unlock()
	ld.stats = stats
	ld.positive = make(map[string]float64, len(positive))
	for _, z := range positive {
		ld.positive[z.Member] = z.Score
	}
	ld.negative = make(map[string]float64, len(negative))
	for _, z := range negative {
		ld.negative[z.Member] = z.Score
	}
	ld.adjustments = make(map[string]float64, len(adjustments))
	for pattern, raw := range adjustments {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			ld.adjustments[pattern] = v
		}
	}
	return nil
}

// Record folds one observation into the aggregates and mirrors the update
// into the store. Store failures are logged and swallowed: learning degrades,
// decisions never fail.
func (ld *Ledger) Record(ctx context.Context, rec Record) {
	if rec.Morph == "" {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = float64(ld.now().UnixNano()) / float64(time.Second)
	}
	pattern := patternKey(rec.Morph, rec.Trigger)

	ld.mu.Lock()
	counters := ld.stats[rec.Morph]
	if counters == nil {
		counters = &morphCounters{}
		ld.stats[rec.Morph] = counters
	}
	counters.total++
	if rec.Success {
		counters.success++
		ld.positive[pattern]++
	} else {
		ld.negative[pattern]++
	}
	counters.totalConfidence += rec.Confidence

	adjusted, newAdjustment := ld.refreshAdjustmentLocked(pattern)
	ld.mu.Unlock()

	if ld.store == nil {
		return
	}
	batch := ld.store.Batch()
	statsKey := statsKeyPrefix + rec.Morph
	batch.HIncrBy(statsKey, "total", 1)
	if rec.Success {
		batch.HIncrBy(statsKey, "success", 1)
		batch.ZIncrBy(patternsPosKey, 1, pattern)
	} else {
		batch.HIncrBy(statsKey, "failed", 1)
		batch.ZIncrBy(patternsNegKey, 1, pattern)
	}
	batch.HIncrByFloat(statsKey, "total_confidence", rec.Confidence)
	batch.HIncrBy(statsIndexKey, rec.Morph, 1)
	if adjusted {
		batch.HSet(adjustmentsKey, pattern, strconv.FormatFloat(newAdjustment, 'f', -1, 64))
	}
	if data, err := json.Marshal(rec); err == nil {
		batch.LPush(recentKey, string(data))
		batch.LTrim(recentKey, 0, recentKeep-1)
	}
	if err := batch.Exec(ctx); err != nil {
		ld.log.Warn("feedback_persist_failed", "morph", rec.Morph, "error", err)
	}
}

// refreshAdjustmentLocked re-derives the learned adjustment for a pattern
// once it has enough observations. Bands: success rate below 0.3 pushes
// -0.2, below 0.5 pushes -0.1, above 0.8 pushes +0.1; the push is scaled by
// 0.1 and the result clamped to [-0.5, 0.5].
func (ld *Ledger) refreshAdjustmentLocked(pattern string) (bool, float64) {
	pos := ld.positive[pattern]
	neg := ld.negative[pattern]
	total := pos + neg
	if total < minObservations {
		return false, 0
	}
	rate := pos / total

	var band float64
	switch {
	case rate < 0.3:
		band = -0.2
	case rate < 0.5:
		band = -0.1
	case rate > 0.8:
		band = 0.1
	}
	if band == 0 {
		return false, 0
	}
	next := clamp(ld.adjustments[pattern]+band*adjustmentFactor, -adjustmentLimit, adjustmentLimit)
	ld.adjustments[pattern] = next
	return true, next
}

// Adjustment returns the learned confidence nudge for a morph and utterance:
// the average adjustment of every stored pattern whose trigger occurs in the
// utterance, zero when none match.
func (ld *Ledger) Adjustment(morph, input string) float64 {
	lower := strings.ToLower(input)

	ld.mu.Lock()
	defer ld.mu.Unlock()
	total := 0.0
	matches := 0
	for pattern, adjustment := range ld.adjustments {
		patternMorph, trigger, ok := strings.Cut(pattern, ":")
		if !ok || patternMorph != morph {
			continue
		}
		if trigger != "" && strings.Contains(lower, trigger) {
			total += adjustment
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return total / float64(matches)
}

// Stats returns the aggregate outcomes for one morph.
func (ld *Ledger) Stats(morph string) MorphStats {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.statsLocked(morph)
}

func (ld *Ledger) statsLocked(morph string) MorphStats {
	counters := ld.stats[morph]
	if counters == nil || counters.total == 0 {
		return MorphStats{}
	}
	return MorphStats{
		Total:         counters.total,
		Success:       counters.success,
		Failed:        counters.total - counters.success,
		SuccessRate:   float64(counters.success) / float64(counters.total) * 100,
		AvgConfidence: counters.totalConfidence / float64(counters.total),
	}
}

// TopFailedPatterns returns the most-failing patterns, highest count first.
func (ld *Ledger) TopFailedPatterns(limit int) []PatternCount {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return topPatterns(ld.negative, limit)
}

// TopSuccessfulPatterns returns the most-succeeding patterns.
func (ld *Ledger) TopSuccessfulPatterns(limit int) []PatternCount {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return topPatterns(ld.positive, limit)
}

// Summary reports overall learning state.
func (ld *Ledger) Summary() LearningSummary {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	summary := LearningSummary{
		MorphPerformance:  make(map[string]MorphStats, len(ld.stats)),
		TopFailed:         topPatterns(ld.negative, 5),
		TopSuccessful:     topPatterns(ld.positive, 5),
		ActiveAdjustments: len(ld.adjustments),
	}
	for morph := range ld.stats {
		stats := ld.statsLocked(morph)
		summary.MorphPerformance[morph] = stats
		summary.TotalFeedback += stats.Total
	}
	return summary
}

func topPatterns(counts map[string]float64, limit int) []PatternCount {
	out := make([]PatternCount, 0, len(counts))
	for pattern, count := range counts {
		out = append(out, PatternCount{Pattern: pattern, Count: int64(count)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// patternKey fingerprints a trigger: lowercased and capped at 50 characters.
func patternKey(morph, trigger string) string {
	lower := strings.ToLower(trigger)
	runes := []rune(lower)
	if len(runes) > patternMaxRunes {
		lower = string(runes[:patternMaxRunes])
	}
	return morph + ":" + lower
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
