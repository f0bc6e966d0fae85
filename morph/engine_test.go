package morph

import (
	"context"
	"testing"

	"github.com/quailyquaily/morphcore/catalog"
	"github.com/quailyquaily/morphcore/feedback"
	"github.com/quailyquaily/morphcore/metrics"
)

func TestEngineConversationFlow(t *testing.T) {
	e := NewEngine(testCatalog(t))
	ctx := context.Background()

	steps := []struct {
		input string
		morph string
	}{
		{"Hola", "general"},
		{"quiero comprar algo", "sales"},
		{"¿precio?", "sales"},
		{"no funciona nada", "support"},
	}

	var conversation []Message
	for i, step := range steps {
		res := e.ProcessMessage(ctx, "user-1", step.input, conversation)
		if res.CurrentMorph != step.morph {
			t.Fatalf("step %d (%q): expected morph %q, got %q",
				i, step.input, step.morph, res.CurrentMorph)
		}
		conversation = append(conversation, Message{Role: "user", Content: step.input})
		conversation = append(conversation, Message{Role: "assistant", Content: "ok"})
	}
	if e.CurrentMorph("user-1") != "support" {
		t.Fatalf("session did not settle on support: %q", e.CurrentMorph("user-1"))
	}
}

func TestEngineInstantSwitchDetails(t *testing.T) {
	e := NewEngine(testCatalog(t))
	res := e.ProcessMessage(context.Background(), "u", "quiero comprar un regalo", nil)

	if !res.ShouldSwitch {
		t.Fatalf("expected an instant switch")
	}
	if res.PreviousMorph != "general" || res.TargetMorph != "sales" {
		t.Fatalf("unexpected route: %q -> %q", res.PreviousMorph, res.TargetMorph)
	}
	if res.Decision == nil || res.Decision.Confidence != 1.0 {
		t.Fatalf("instant decision must carry confidence 1.0: %+v", res.Decision)
	}
	if res.Transition == nil {
		t.Fatalf("accepted switches must carry a transition context")
	}
	if res.Transition.CurrentMorph != "sales" || res.Transition.PreviousMorph != "general" {
		t.Fatalf("transition context mismatch: %+v", res.Transition)
	}
}

func TestEngineSessionsAreIndependent(t *testing.T) {
	e := NewEngine(testCatalog(t))
	ctx := context.Background()

	e.ProcessMessage(ctx, "alice", "quiero comprar algo", nil)
	if got := e.CurrentMorph("bob"); got != "general" {
		t.Fatalf("bob's session leaked alice's switch: %q", got)
	}
	if got := e.CurrentMorph("alice"); got != "sales" {
		t.Fatalf("alice's switch lost: %q", got)
	}
}

func TestEngineAntiLoopBlock(t *testing.T) {
	recorder := metrics.NewRecorder()
	e := NewEngine(testCatalog(t),
		WithMetrics(recorder),
		WithGuardConfig(GuardConfig{Window: 3, Threshold: 1, HistoryMax: 5}),
	)
	ctx := context.Background()

	e.ProcessMessage(ctx, "u", "quiero comprar algo", nil)
	e.ProcessMessage(ctx, "u", "no funciona nada", nil)

	// sales is still inside the guard window, so the third switch is refused.
	res := e.ProcessMessage(ctx, "u", "quiero comprar otra vez", nil)
	if res.ShouldSwitch {
		t.Fatalf("oscillating switch must be blocked")
	}
	if !res.Analysis.BlockedByAntiLoop || res.Analysis.BlockedTargetMorph != "sales" {
		t.Fatalf("block not reported in analysis: %+v", res.Analysis)
	}
	if res.CurrentMorph != "support" {
		t.Fatalf("blocked decision must keep the active morph: %q", res.CurrentMorph)
	}
	if got := recorder.Summary().AntiLoopBlocks; got != 1 {
		t.Fatalf("expected 1 recorded block, got %d", got)
	}
}

func TestEngineLearnedAdjustmentDemotesInstantTrigger(t *testing.T) {
	ledger := feedback.NewLedger(nil)
	ctx := context.Background()
	// Ten failures walk the (sales, "comprar") adjustment to -0.12, pushing
	// the instant confidence to 0.88, under the acceptance threshold.
	for i := 0; i < 10; i++ {
		ledger.Record(ctx, feedback.Record{Morph: "sales", Trigger: "comprar", Success: false})
	}

	e := NewEngine(testCatalog(t), WithLedger(ledger))
	res := e.ProcessMessage(ctx, "u", "quiero comprar algo", nil)
	if res.ShouldSwitch {
		t.Fatalf("demoted trigger must not commit, got switch to %q", res.TargetMorph)
	}
	if res.CurrentMorph != "general" {
		t.Fatalf("expected to stay on general, got %q", res.CurrentMorph)
	}
}

func TestEngineDisabledReturnsDefaultMorph(t *testing.T) {
	cat, err := catalog.New(catalog.Config{
		Enabled: false,
		Morphs:  []catalog.Definition{{Name: "general"}, {Name: "sales", InstantTriggers: []string{"comprar"}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e := NewEngine(cat)
	res := e.ProcessMessage(context.Background(), "u", "quiero comprar algo", nil)
	if res.ShouldSwitch {
		t.Fatalf("disabled engine must never switch")
	}
	if res.CurrentMorph != "general" {
		t.Fatalf("disabled engine must report the default morph, got %q", res.CurrentMorph)
	}
}

func TestEngineReset(t *testing.T) {
	e := NewEngine(testCatalog(t))
	ctx := context.Background()

	e.ProcessMessage(ctx, "u", "quiero comprar algo", nil)
	if e.CurrentMorph("u") != "sales" {
		t.Fatalf("setup failed: %q", e.CurrentMorph("u"))
	}
	e.Reset("u")
	if e.CurrentMorph("u") != "general" {
		t.Fatalf("reset must restore the default morph, got %q", e.CurrentMorph("u"))
	}
	// The cleared guard lets the same switch happen again right away.
	res := e.ProcessMessage(ctx, "u", "quiero comprar algo", nil)
	if !res.ShouldSwitch || res.TargetMorph != "sales" {
		t.Fatalf("switch after reset failed: %+v", res)
	}
}

func TestEngineMetricsSplitByTrigger(t *testing.T) {
	recorder := metrics.NewRecorder()
	e := NewEngine(testCatalog(t), WithMetrics(recorder))
	ctx := context.Background()

	e.ProcessMessage(ctx, "u", "quiero comprar algo", nil)            // instant
	e.ProcessMessage(ctx, "u", "tengo un problema con un error", nil) // gradual

	s := recorder.Summary()
	if s.TotalTransformations != 2 {
		t.Fatalf("expected 2 transformations, got %d", s.TotalTransformations)
	}
	if s.InstantTriggers != 1 || s.GradualTriggers != 1 {
		t.Fatalf("trigger split wrong: instant=%d gradual=%d", s.InstantTriggers, s.GradualTriggers)
	}
}

func TestEngineAvailableMorphs(t *testing.T) {
	e := NewEngine(testCatalog(t))
	names := e.AvailableMorphs()
	want := []string{"general", "sales", "support"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}
