// Package metrics aggregates morphing activity: transformation counts,
// instant/gradual split, anti-loop blocks, per-morph usage, latency samples
// and a rolling 24h window of recent switches. The in-memory recorder is
// authoritative; Prometheus collectors and the kvstore history list are
// optional mirrors.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quailyquaily/morphcore/kvstore"
)

const (
	historyKey   = "morphing:metrics:history"
	historyKeep  = 1000
	timesKeep    = 100
	recentWindow = 24 * time.Hour
)

// Transformation is one recorded morph switch.
type Transformation struct {
	Timestamp   time.Time `json:"timestamp"`
	FromMorph   string    `json:"from_morph"`
	ToMorph     string    `json:"to_morph"`
	TriggerType string    `json:"trigger_type"`
	Confidence  float64   `json:"confidence"`
	Success     bool      `json:"success"`
	TimeMs      float64   `json:"time_ms"`
}

// MorphUsage pairs a morph with its switch count.
type MorphUsage struct {
	Morph string `json:"morph"`
	Count int64  `json:"count"`
}

// Summary is the aggregate view returned to the host.
type Summary struct {
	TotalTransformations int64        `json:"total_transformations"`
	SuccessRate          float64      `json:"success_rate"` // percent
	AvgTransformationMs  float64      `json:"avg_transformation_time_ms"`
	InstantTriggers      int64        `json:"instant_triggers"`
	GradualTriggers      int64        `json:"gradual_triggers"`
	AntiLoopBlocks       int64        `json:"anti_loop_blocks"`
	MostUsedMorphs       []MorphUsage `json:"most_used_morphs"`
	Transformations24h   int          `json:"transformations_24h"`
}

// MorphStats is the per-morph view.
type MorphStats struct {
	UsageCount    int64   `json:"usage_count"`
	SuccessRate   float64 `json:"success_rate"` // percent
	TotalAttempts int     `json:"total_attempts"`
}

// Recorder collects morphing metrics. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	total      int64
	successful int64
	instant    int64
	gradual    int64
	blocks     int64

	usage   map[string]int64
	history map[string][]bool
	recent  []Transformation
	times   []float64

	prom  *promCollectors
	store kvstore.Store
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Recorder)

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStore mirrors transformation records into the kvstore history list.
func WithStore(store kvstore.Store) Option {
	return func(r *Recorder) {
		r.store = store
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		usage:   make(map[string]int64),
		history: make(map[string][]bool),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordTransformation registers one accepted morph switch.
func (r *Recorder) RecordTransformation(fromMorph, toMorph, triggerType string, confidence float64, success bool, timeMs float64) {
	rec := Transformation{
		Timestamp:   r.now(),
		FromMorph:   fromMorph,
		ToMorph:     toMorph,
		TriggerType: triggerType,
		Confidence:  confidence,
		Success:     success,
		TimeMs:      timeMs,
	}

	r.mu.Lock()
	r.total++
	if success {
		r.successful++
	}
	switch triggerType {
	case "instant":
		r.instant++
	case "gradual":
		r.gradual++
	}
	r.usage[toMorph]++
	r.history[toMorph] = append(r.history[toMorph], success)

	r.recent = append(r.recent, rec)
	cutoff := rec.Timestamp.Add(-recentWindow)
	for len(r.recent) > 0 && r.recent[0].Timestamp.Before(cutoff) {
		r.recent = r.recent[1:]
	}

	r.times = append(r.times, timeMs)
	if len(r.times) > timesKeep {
		r.times = r.times[len(r.times)-timesKeep:]
	}
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.observeTransformation(rec)
	}
	if r.store != nil {
		if data, err := json.Marshal(rec); err == nil {
			batch := r.store.Batch()
			batch.LPush(historyKey, string(data))
			batch.LTrim(historyKey, 0, historyKeep-1)
			if err := batch.Exec(context.Background()); err != nil {
				r.log.Warn("metrics_persist_failed", "error", err)
			}
		}
	}
}

// RecordAntiLoopBlock registers a switch rejected by the anti-loop guard.
func (r *Recorder) RecordAntiLoopBlock(blockedMorph string) {
	r.mu.Lock()
	r.blocks++
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.observeBlock(blockedMorph)
	}
	r.log.Debug("anti_loop_block", "morph", blockedMorph)
}

// Summary returns the aggregate counters.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	avgTime := 0.0
	if len(r.times) > 0 {
		sum := 0.0
		for _, t := range r.times {
			sum += t
		}
		avgTime = sum / float64(len(r.times))
	}
	successRate := 0.0
	if r.total > 0 {
		successRate = float64(r.successful) / float64(r.total) * 100
	}

	return Summary{
		TotalTransformations: r.total,
		SuccessRate:          successRate,
		AvgTransformationMs:  avgTime,
		InstantTriggers:      r.instant,
		GradualTriggers:      r.gradual,
		AntiLoopBlocks:       r.blocks,
		MostUsedMorphs:       topUsage(r.usage, 5),
		Transformations24h:   len(r.recent),
	}
}

// MorphStats returns the per-morph counters.
func (r *Recorder) MorphStats(morph string) MorphStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.history[morph]
	rate := 0.0
	if len(records) > 0 {
		success := 0
		for _, ok := range records {
			if ok {
				success++
			}
		}
		rate = float64(success) / float64(len(records)) * 100
	}
	return MorphStats{
		UsageCount:    r.usage[morph],
		SuccessRate:   rate,
		TotalAttempts: len(records),
	}
}

// RecentActivity returns transformations within the given lookback.
func (r *Recorder) RecentActivity(lookback time.Duration) []Transformation {
	cutoff := r.now().Add(-lookback)

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transformation
	for _, rec := range r.recent {
		if rec.Timestamp.After(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// LogSummary writes the current aggregates to the logger.
func (r *Recorder) LogSummary() {
	s := r.Summary()
	r.log.Info("morphing_metrics",
		"transformations", s.TotalTransformations,
		"success_rate", s.SuccessRate,
		"avg_time_ms", s.AvgTransformationMs,
		"instant", s.InstantTriggers,
		"gradual", s.GradualTriggers,
		"anti_loop_blocks", s.AntiLoopBlocks,
	)
}

func topUsage(usage map[string]int64, limit int) []MorphUsage {
	out := make([]MorphUsage, 0, len(usage))
	for morph, count := range usage {
		out = append(out, MorphUsage{Morph: morph, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Morph < out[j].Morph
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
