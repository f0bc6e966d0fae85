package morph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quailyquaily/morphcore/abtest"
	"github.com/quailyquaily/morphcore/catalog"
	"github.com/quailyquaily/morphcore/feedback"
	"github.com/quailyquaily/morphcore/metrics"
)

// instantAcceptThreshold is the feedback-adjusted confidence an instant
// trigger must keep to commit.
const instantAcceptThreshold = 0.9

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithLedger wires the feedback ledger in: learned adjustments gate both
// trigger layers and RecordFeedback becomes live.
func WithLedger(ledger *feedback.Ledger) Option {
	return func(e *Engine) {
		e.ledger = ledger
	}
}

// WithMetrics wires the metrics recorder in.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = recorder
	}
}

// WithExperiment records every accepted switch against the given test.
func WithExperiment(controller *abtest.Controller, testID string) Option {
	return func(e *Engine) {
		e.experiments = controller
		e.experimentID = testID
	}
}

func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

func WithGuardConfig(cfg GuardConfig) Option {
	return func(e *Engine) {
		e.guardCfg = cfg
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// session is the per-conversation morph state. The host serializes message
// handling per conversation, so sessions are mutated without locking.
type session struct {
	current string
	guard   *LoopGuard
}

// Engine is the morphing orchestrator: it composes the trigger layers, the
// anti-loop guard, snapshot/transition handling and the learning sinks into
// the per-message decision pipeline.
type Engine struct {
	cat     *catalog.Catalog
	instant *InstantMatcher
	gradual *GradualAnalyzer
	policy  *TransitionPolicy

	weights  Weights
	guardCfg GuardConfig

	ledger       *feedback.Ledger
	metrics      *metrics.Recorder
	experiments  *abtest.Controller
	experimentID string

	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewEngine(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		cat:      cat,
		weights:  DefaultWeights(),
		guardCfg: DefaultGuardConfig(),
		log:      slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.instant = NewInstantMatcher(cat)
	e.gradual = NewGradualAnalyzer(cat, e.weights)
	e.policy = NewTransitionPolicy(cat)

	if cat.Enabled() {
		e.log.Info("morphing_engine_ready",
			"default_morph", cat.DefaultMorph(),
			"morphs", cat.Names(),
			"gradual_enabled", cat.GradualEnabled(),
		)
	} else {
		e.log.Info("morphing_disabled")
	}
	return e
}

// ProcessMessage runs the decision pipeline for one user message. The
// returned result has exactly one terminal outcome: switched, unchanged, or
// blocked by the anti-loop guard (reported in Analysis, not as a switch).
func (e *Engine) ProcessMessage(ctx context.Context, userID, input string, conversation []Message) Result {
	if !e.cat.Enabled() {
		name := e.cat.DefaultMorph()
		return Result{
			TargetMorph:  name,
			CurrentMorph: name,
			MorphConfig:  e.cat.MorphConfig(name),
		}
	}

	start := e.now()
	sess := e.session(userID)
	var analysis AnalysisDetails

	if decision := e.instant.Check(input, sess.current); decision != nil {
		analysis.InstantChecked = true
		confidence := clamp01(decision.Confidence + e.adjustment(decision.MorphName, input))
		if confidence >= instantAcceptThreshold {
			if e.allowSwitch(sess, decision.MorphName) {
				accepted := *decision
				accepted.Confidence = confidence
				e.log.Info("instant_trigger",
					"from", sess.current, "to", accepted.MorphName, "confidence", confidence)
				return e.commit(ctx, sess, userID, accepted, conversation, TriggerInstant, start, analysis)
			}
			e.recordBlock(decision.MorphName, &analysis)
		}
	}

	if e.cat.GradualEnabled() {
		if result := e.gradual.Analyze(input, conversation, sess.current); result != nil {
			analysis.GradualChecked = true
			confidence := clamp01(result.Confidence + e.adjustment(result.MorphName, input))
			analysis.GradualConfidence = confidence
			if confidence >= e.cat.ConfidenceThreshold() {
				if e.allowSwitch(sess, result.MorphName) {
					e.log.Info("gradual_analysis",
						"from", sess.current, "to", result.MorphName, "confidence", confidence)
					decision := Decision{
						MorphName:  result.MorphName,
						Confidence: confidence,
						Reason:     result.Reason,
					}
					return e.commit(ctx, sess, userID, decision, conversation, TriggerGradual, start, analysis)
				}
				e.recordBlock(result.MorphName, &analysis)
			}
		}
	}

	e.log.Debug("morph_unchanged", "morph", sess.current)
	return Result{
		TargetMorph:  sess.current,
		CurrentMorph: sess.current,
		MorphConfig:  e.cat.MorphConfig(sess.current),
		Analysis:     analysis,
	}
}

// commit executes an accepted switch: snapshot, transition, session update,
// metrics and optional experiment recording.
func (e *Engine) commit(ctx context.Context, sess *session, userID string, decision Decision, conversation []Message, triggerType string, start time.Time, analysis AnalysisDetails) Result {
	from := sess.current
	target := decision.MorphName

	snapshot := TakeSnapshot(conversation, from)
	info := e.policy.Prepare(from, target, decision.Reason)
	transition := e.policy.Execute(info, snapshot)

	sess.current = target
	sess.guard.Track(target)

	elapsedMs := float64(e.now().Sub(start).Microseconds()) / 1000
	if e.metrics != nil {
		e.metrics.RecordTransformation(from, target, triggerType, decision.Confidence, true, elapsedMs)
	}
	if e.experiments != nil && e.experimentID != "" {
		e.experiments.RecordInteraction(ctx, userID, e.experimentID, true, decision.Confidence, elapsedMs, nil)
	}
	e.log.Info("morph_switched",
		"user_id", userID, "from", from, "to", target,
		"trigger", triggerType, "confidence", decision.Confidence, "elapsed_ms", elapsedMs)

	return Result{
		ShouldSwitch:  true,
		TargetMorph:   target,
		CurrentMorph:  target,
		PreviousMorph: from,
		MorphConfig:   e.cat.MorphConfig(target),
		Transition:    transition,
		Decision:      &decision,
		Analysis:      analysis,
	}
}

func (e *Engine) allowSwitch(sess *session, target string) bool {
	if !e.cat.PreventLoops() {
		return true
	}
	return sess.guard.Allow(target)
}

func (e *Engine) recordBlock(target string, analysis *AnalysisDetails) {
	analysis.BlockedByAntiLoop = true
	analysis.BlockedTargetMorph = target
	if e.metrics != nil {
		e.metrics.RecordAntiLoopBlock(target)
	}
	e.log.Warn("anti_loop_blocked", "morph", target)
}

func (e *Engine) adjustment(morph, input string) float64 {
	if e.ledger == nil {
		return 0
	}
	return e.ledger.Adjustment(morph, input)
}

func (e *Engine) session(userID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	if !ok {
		s = &session{
			current: e.cat.DefaultMorph(),
			guard:   NewLoopGuard(e.guardCfg),
		}
		e.sessions[userID] = s
	}
	return s
}

// CurrentMorph returns the active morph for a conversation.
func (e *Engine) CurrentMorph(userID string) string {
	return e.session(userID).current
}

// Reset returns a conversation to the default morph and clears its anti-loop
// history.
func (e *Engine) Reset(userID string) {
	sess := e.session(userID)
	sess.current = e.cat.DefaultMorph()
	sess.guard.Reset()
	e.log.Info("morph_reset", "user_id", userID, "morph", sess.current)
}

// AvailableMorphs lists the catalog's morph names in declaration order.
func (e *Engine) AvailableMorphs() []string {
	return e.cat.Names()
}

// RecordFeedback records explicit feedback about a committed switch. A no-op
// when no ledger is wired.
func (e *Engine) RecordFeedback(ctx context.Context, rec feedback.Record) {
	if e.ledger == nil {
		return
	}
	e.ledger.Record(ctx, rec)
}

// DetectImplicitFeedback inspects recent user messages for implicit signals.
func (e *Engine) DetectImplicitFeedback(userMessages []string) feedback.Verdict {
	return feedback.DetectImplicit(userMessages)
}

// MetricsSummary returns the aggregate metrics, zero-valued when no recorder
// is wired.
func (e *Engine) MetricsSummary() metrics.Summary {
	if e.metrics == nil {
		return metrics.Summary{}
	}
	return e.metrics.Summary()
}

// Experiments exposes the wired experiment controller, or nil.
func (e *Engine) Experiments() *abtest.Controller {
	return e.experiments
}
