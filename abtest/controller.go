// Package abtest runs configuration experiments: deterministic per-user
// variant assignment, per-variant running aggregates and a simple statistical
// comparison. Like the feedback ledger, aggregates are authoritative in
// memory and mirrored into the kvstore best-effort.
package abtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/quailyquaily/morphcore/kvstore"
)

const (
	testsKey          = "morphing:ab_tests"
	activeKey         = "morphing:ab_active"
	assignmentsPrefix = "morphing:ab_assignments:"
	resultsPrefix     = "morphing:ab_results:"

	// Winner thresholds: every variant needs minInteractions samples, the
	// leader needs winnerInteractions and a lead of more than winnerMargin
	// percentage points over the runner-up.
	minInteractions    = 30
	winnerInteractions = 50
	winnerMargin       = 5.0
)

var ErrTestNotFound = errors.New("abtest: test not found")

// TestConfig describes one experiment.
type TestConfig struct {
	TestID          string           `json:"test_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Variants        []map[string]any `json:"variants"` // config overrides
	Metrics         []string         `json:"metrics"`
	DurationDays    int              `json:"duration_days"`
	MinSamples      int              `json:"min_samples"`
	ConfidenceLevel float64          `json:"confidence_level"`
	CreatedAt       float64          `json:"created_at"`
}

// Assignment is a user's immutable variant for a test.
type Assignment struct {
	VariantID string
	Config    map[string]any
}

// VariantResult is the aggregate view of one variant.
type VariantResult struct {
	VariantID         string             `json:"variant_id"`
	Config            map[string]any     `json:"config"`
	TotalUsers        int64              `json:"total_users"`
	TotalInteractions int64              `json:"total_interactions"`
	SuccessCount      int64              `json:"success_count"`
	SuccessRate       float64            `json:"success_rate"` // percent
	AvgConfidence     float64            `json:"avg_confidence"`
	AvgTimeMs         float64            `json:"avg_time_ms"`
	Custom            map[string]float64 `json:"custom_metrics,omitempty"`
}

// Winner identifies the leading variant once the comparison is conclusive.
type Winner struct {
	VariantID   string  `json:"variant_id"`
	SuccessRate float64 `json:"success_rate"`
	Improvement float64 `json:"improvement"` // percentage points over runner-up
}

// Analysis is the statistical comparison across variants.
type Analysis struct {
	SampleSizeSufficient bool     `json:"sample_size_sufficient"`
	Winner               *Winner  `json:"winner,omitempty"`
	ConfidenceLevel      float64  `json:"confidence_level"`
	Recommendations      []string `json:"recommendations"`
}

// Results is the full report for one test.
type Results struct {
	TestID   string          `json:"test_id"`
	Status   string          `json:"status"` // running | completed
	Variants []VariantResult `json:"variants"`
	Analysis Analysis        `json:"analysis"`
}

type variantState struct {
	users        int64
	interactions int64
	success      int64
	avgConf      float64
	avgTimeMs    float64
	custom       map[string]float64
}

type testState struct {
	config      TestConfig
	endsAt      time.Time
	assignments map[string]string
	variants    []*variantState
}

// Controller manages experiments. Safe for concurrent use.
type Controller struct {
	mu    sync.Mutex
	tests map[string]*testState

	store kvstore.Store
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a controller. store may be nil.
func NewController(store kvstore.Store, opts ...Option) *Controller {
	c := &Controller{
		tests: make(map[string]*testState),
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateTest registers an experiment and zero-initializes its variants. The
// test runs until now + duration.
func (c *Controller) CreateTest(ctx context.Context, cfg TestConfig) error {
	if cfg.TestID == "" {
		return fmt.Errorf("abtest: empty test id")
	}
	if len(cfg.Variants) < 2 {
		return fmt.Errorf("abtest: test %q needs at least 2 variants", cfg.TestID)
	}
	if cfg.CreatedAt == 0 {
		cfg.CreatedAt = float64(c.now().Unix())
	}

	state := &testState{
		config:      cfg,
		endsAt:      c.now().Add(time.Duration(cfg.DurationDays) * 24 * time.Hour),
		assignments: make(map[string]string),
		variants:    make([]*variantState, len(cfg.Variants)),
	}
	for i := range state.variants {
		state.variants[i] = &variantState{custom: make(map[string]float64)}
	}

	c.mu.Lock()
	c.tests[cfg.TestID] = state
	c.mu.Unlock()

	if c.store != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("abtest: marshal test %q: %w", cfg.TestID, err)
		}
		batch := c.store.Batch()
		batch.HSet(testsKey, cfg.TestID, string(data))
		batch.ZAdd(activeKey, kvstore.Z{Member: cfg.TestID, Score: float64(state.endsAt.Unix())})
		for i := range cfg.Variants {
			key := resultsKey(cfg.TestID, variantID(i))
			batch.HSet(key, "total_users", "0")
			batch.HSet(key, "total_interactions", "0")
			batch.HSet(key, "success_count", "0")
		}
		if err := batch.Exec(ctx); err != nil {
			c.log.Warn("abtest_persist_failed", "test_id", cfg.TestID, "error", err)
		}
	}
	c.log.Info("abtest_created", "test_id", cfg.TestID, "variants", len(cfg.Variants), "ends_at", state.endsAt)
	return nil
}

// Variant returns the variant assigned to a user for an active test. The
// assignment is deterministic (a hash of user and test id), memoized, and
// never changes once made; the variant's user counter increments only on the
// first assignment.
func (c *Controller) Variant(ctx context.Context, userID, testID string) (Assignment, error) {
	c.mu.Lock()
	state, ok := c.tests[testID]
	if !ok || !c.activeLocked(state) {
		c.mu.Unlock()
		return Assignment{}, ErrTestNotFound
	}
	if id, assigned := state.assignments[userID]; assigned {
		cfg := state.config.Variants[variantIndex(id)]
		c.mu.Unlock()
		return Assignment{VariantID: id, Config: cfg}, nil
	}
	variantCount := len(state.config.Variants)
	c.mu.Unlock()

	// An assignment persisted by an earlier process wins over recomputing.
	persisted := ""
	if c.store != nil {
		if v, err := c.store.HGet(ctx, assignmentsPrefix+userID, testID); err == nil {
			if idx := variantIndex(v); idx >= 0 && idx < variantCount {
				persisted = v
			}
		}
	}

	c.mu.Lock()
	state, ok = c.tests[testID]
	if !ok {
		c.mu.Unlock()
		return Assignment{}, ErrTestNotFound
	}
	id, assigned := state.assignments[userID]
	first := false
	if !assigned {
		if persisted != "" {
			id = persisted
		} else {
			id = variantID(assignIndex(userID, testID, variantCount))
			first = true
		}
		state.assignments[userID] = id
		if first {
			state.variants[variantIndex(id)].users++
		}
	}
	cfg := state.config.Variants[variantIndex(id)]
	c.mu.Unlock()

	if first && c.store != nil {
		batch := c.store.Batch()
		batch.HSet(assignmentsPrefix+userID, testID, id)
		batch.HIncrBy(resultsKey(testID, id), "total_users", 1)
		if err := batch.Exec(ctx); err != nil {
			c.log.Warn("abtest_persist_failed", "test_id", testID, "error", err)
		}
	}
	return Assignment{VariantID: id, Config: cfg}, nil
}

// RecordInteraction folds one interaction into the user's variant. Running
// means use the incremental form new = old + (value-old)/n.
func (c *Controller) RecordInteraction(ctx context.Context, userID, testID string, success bool, confidence, timeMs float64, custom map[string]float64) {
	assignment, err := c.Variant(ctx, userID, testID)
	if err != nil {
		return
	}

	c.mu.Lock()
	state := c.tests[testID]
	variant := state.variants[variantIndex(assignment.VariantID)]
	variant.interactions++
	if success {
		variant.success++
	}
	n := float64(variant.interactions)
	variant.avgConf += (confidence - variant.avgConf) / n
	variant.avgTimeMs += (timeMs - variant.avgTimeMs) / n
	for metric, value := range custom {
		variant.custom[metric] += value
	}
	avgConf, avgTimeMs := variant.avgConf, variant.avgTimeMs
	c.mu.Unlock()

	if c.store != nil {
		key := resultsKey(testID, assignment.VariantID)
		batch := c.store.Batch()
		batch.HIncrBy(key, "total_interactions", 1)
		if success {
			batch.HIncrBy(key, "success_count", 1)
		}
		batch.HSet(key, "avg_confidence", formatFloat(avgConf))
		batch.HSet(key, "avg_time_ms", formatFloat(avgTimeMs))
		for metric, value := range custom {
			batch.HIncrByFloat(key, metric, value)
		}
		if err := batch.Exec(ctx); err != nil {
			c.log.Warn("abtest_persist_failed", "test_id", testID, "error", err)
		}
	}
}

// Results reports per-variant aggregates and the winner analysis.
func (c *Controller) Results(testID string) (Results, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.tests[testID]
	if !ok {
		return Results{}, ErrTestNotFound
	}

	out := Results{TestID: testID, Status: "completed"}
	if c.activeLocked(state) {
		out.Status = "running"
	}
	for i, variant := range state.variants {
		rate := 0.0
		if variant.interactions > 0 {
			rate = float64(variant.success) / float64(variant.interactions) * 100
		}
		result := VariantResult{
			VariantID:         variantID(i),
			Config:            state.config.Variants[i],
			TotalUsers:        variant.users,
			TotalInteractions: variant.interactions,
			SuccessCount:      variant.success,
			SuccessRate:       rate,
			AvgConfidence:     variant.avgConf,
			AvgTimeMs:         variant.avgTimeMs,
		}
		if len(variant.custom) > 0 {
			result.Custom = make(map[string]float64, len(variant.custom))
			for metric, value := range variant.custom {
				result.Custom[metric] = value
			}
		}
		out.Variants = append(out.Variants, result)
	}
	out.Analysis = analyze(out.Variants)
	return out, nil
}

// OptimalConfig returns the winning variant's config override, or nil while
// the comparison is inconclusive.
func (c *Controller) OptimalConfig(testID string) map[string]any {
	results, err := c.Results(testID)
	if err != nil || results.Analysis.Winner == nil {
		return nil
	}
	for _, variant := range results.Variants {
		if variant.VariantID == results.Analysis.Winner.VariantID {
			return variant.Config
		}
	}
	return nil
}

// CleanupExpired retires tests past their end time from the active set.
func (c *Controller) CleanupExpired(ctx context.Context) {
	now := c.now()

	c.mu.Lock()
	var expired []string
	for id, state := range c.tests {
		if !now.Before(state.endsAt) {
			expired = append(expired, id)
		}
	}
	c.mu.Unlock()

	if c.store == nil || len(expired) == 0 {
		return
	}
	batch := c.store.Batch()
	for _, id := range expired {
		batch.ZRem(activeKey, id)
	}
	if err := batch.Exec(ctx); err != nil {
		c.log.Warn("abtest_persist_failed", "error", err)
	}
}

func (c *Controller) activeLocked(state *testState) bool {
	return c.now().Before(state.endsAt)
}

// analyze applies the winner rule: every variant sampled at least 30 times,
// the best variant sampled more than 50 times, and leading the runner-up by
// more than 5 percentage points of success rate.
func analyze(variants []VariantResult) Analysis {
	analysis := Analysis{SampleSizeSufficient: true}
	if len(variants) < 2 {
		analysis.SampleSizeSufficient = false
		return analysis
	}

	for _, variant := range variants {
		if variant.TotalInteractions < minInteractions {
			analysis.SampleSizeSufficient = false
			analysis.Recommendations = append(analysis.Recommendations, fmt.Sprintf(
				"variant %s needs more data (%d/%d)",
				variant.VariantID, variant.TotalInteractions, minInteractions))
		}
	}
	if !analysis.SampleSizeSufficient {
		return analysis
	}

	ranked := append([]VariantResult(nil), variants...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SuccessRate > ranked[j].SuccessRate
	})
	best, second := ranked[0], ranked[1]
	improvement := best.SuccessRate - second.SuccessRate

	if improvement > winnerMargin && best.TotalInteractions > winnerInteractions {
		analysis.Winner = &Winner{
			VariantID:   best.VariantID,
			SuccessRate: best.SuccessRate,
			Improvement: improvement,
		}
		analysis.ConfidenceLevel = 0.85
		analysis.Recommendations = append(analysis.Recommendations, fmt.Sprintf(
			"variant %s shows a significant improvement of %.1f points",
			best.VariantID, improvement))
	} else {
		analysis.Recommendations = append(analysis.Recommendations,
			"no statistically significant difference between variants")
	}
	return analysis
}

// assignIndex hashes user and test into a variant slot. FNV-1a keeps the
// assignment stable across processes and restarts.
func assignIndex(userID, testID string, variants int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID + "_" + testID))
	return int(h.Sum32() % uint32(variants))
}

func variantID(idx int) string {
	return "variant_" + strconv.Itoa(idx)
}

func variantIndex(id string) int {
	const prefix = "variant_"
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return -1
	}
	idx, err := strconv.Atoi(id[len(prefix):])
	if err != nil {
		return -1
	}
	return idx
}

func resultsKey(testID, variantID string) string {
	return resultsPrefix + testID + ":" + variantID
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
