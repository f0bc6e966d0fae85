package feedback

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/quailyquaily/morphcore/kvstore"
)

func recordN(t *testing.T, ld *Ledger, morph, trigger string, success bool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ld.Record(context.Background(), Record{
			Morph:      morph,
			Trigger:    trigger,
			Success:    success,
			Confidence: 0.8,
		})
	}
}

func TestNoAdjustmentBeforeMinimumObservations(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", false, 4)
	if got := ld.Adjustment("sales", "quiero comprar algo"); got != 0 {
		t.Fatalf("4 observations must not adjust yet, got %v", got)
	}
}

func TestRepeatedFailuresLowerConfidence(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", false, 5)
	got := ld.Adjustment("sales", "quiero comprar algo")
	if got >= 0 {
		t.Fatalf("5 failures must produce a negative adjustment, got %v", got)
	}
	if math.Abs(got-(-0.02)) > 1e-9 {
		t.Fatalf("expected -0.02 after first adjusting record, got %v", got)
	}
}

func TestRepeatedSuccessesRaiseConfidence(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", true, 5)
	got := ld.Adjustment("sales", "quiero comprar algo")
	if math.Abs(got-0.01) > 1e-9 {
		t.Fatalf("expected +0.01 for a perfect record, got %v", got)
	}
}

func TestAdjustmentClampedAtHalf(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", false, 200)
	got := ld.Adjustment("sales", "quiero comprar algo")
	if got != -0.5 {
		t.Fatalf("adjustment must clamp at -0.5, got %v", got)
	}
}

func TestAdjustmentRequiresTriggerSubstring(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", false, 10)
	if got := ld.Adjustment("sales", "hola, ¿qué tal?"); got != 0 {
		t.Fatalf("unrelated input must not match, got %v", got)
	}
	if got := ld.Adjustment("support", "quiero comprar algo"); got != 0 {
		t.Fatalf("other morphs must not match, got %v", got)
	}
}

func TestAdjustmentAveragesMatchingPatterns(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", false, 5) // -0.02
	recordN(t, ld, "sales", "precio", true, 5)   // +0.01
	got := ld.Adjustment("sales", "quiero comprar a buen precio")
	want := (-0.02 + 0.01) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected average %v, got %v", want, got)
	}
}

func TestPatternKeyTruncation(t *testing.T) {
	long := strings.Repeat("á", 60)
	key := patternKey("sales", long)
	if want := "sales:" + strings.Repeat("á", 50); key != want {
		t.Fatalf("pattern key not capped at 50 runes: %q", key)
	}
	if patternKey("sales", "Quiero COMPRAR") != "sales:quiero comprar" {
		t.Fatalf("pattern key must lowercase the trigger")
	}
}

func TestStatsAggregation(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", true, 3)
	recordN(t, ld, "sales", "comprar", false, 1)

	stats := ld.Stats("sales")
	if stats.Total != 4 || stats.Success != 3 || stats.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.SuccessRate != 75 {
		t.Fatalf("expected 75%% success rate, got %v", stats.SuccessRate)
	}
	if math.Abs(stats.AvgConfidence-0.8) > 1e-9 {
		t.Fatalf("expected avg confidence 0.8, got %v", stats.AvgConfidence)
	}
	if empty := ld.Stats("unknown"); empty.Total != 0 {
		t.Fatalf("unknown morph must report zero stats: %+v", empty)
	}
}

func TestTopPatternsOrdered(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", false, 3)
	recordN(t, ld, "support", "falla", false, 5)
	recordN(t, ld, "sales", "precio", true, 2)

	failed := ld.TopFailedPatterns(5)
	if len(failed) != 2 || failed[0].Pattern != "support:falla" || failed[0].Count != 5 {
		t.Fatalf("unexpected failed ranking: %+v", failed)
	}
	ok := ld.TopSuccessfulPatterns(5)
	if len(ok) != 1 || ok[0].Pattern != "sales:precio" {
		t.Fatalf("unexpected successful ranking: %+v", ok)
	}
}

func TestLearningSummary(t *testing.T) {
	ld := NewLedger(nil)
	recordN(t, ld, "sales", "comprar", true, 6)
	recordN(t, ld, "support", "falla", false, 2)

	s := ld.Summary()
	if s.TotalFeedback != 8 {
		t.Fatalf("expected 8 records, got %d", s.TotalFeedback)
	}
	if len(s.MorphPerformance) != 2 {
		t.Fatalf("expected 2 morphs, got %d", len(s.MorphPerformance))
	}
	if s.ActiveAdjustments != 1 {
		t.Fatalf("expected 1 active adjustment, got %d", s.ActiveAdjustments)
	}
}

func TestHydrateRestoresLearnedState(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	first := NewLedger(store)
	recordN(t, first, "sales", "comprar", false, 10)
	recordN(t, first, "sales", "comprar", true, 1)

	second := NewLedger(store)
	if err := second.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	wantAdj := first.Adjustment("sales", "quiero comprar algo")
	if got := second.Adjustment("sales", "quiero comprar algo"); math.Abs(got-wantAdj) > 1e-9 {
		t.Fatalf("adjustment lost across restart: %v vs %v", got, wantAdj)
	}
	wantStats := first.Stats("sales")
	gotStats := second.Stats("sales")
	if gotStats.Total != wantStats.Total || gotStats.Success != wantStats.Success {
		t.Fatalf("stats lost across restart: %+v vs %+v", gotStats, wantStats)
	}
	if len(second.TopFailedPatterns(5)) != 1 {
		t.Fatalf("failed patterns lost across restart")
	}
}

func TestHydrateEmptyStore(t *testing.T) {
	ld := NewLedger(kvstore.NewMemory())
	if err := ld.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate on empty store: %v", err)
	}
	if got := ld.Summary().TotalFeedback; got != 0 {
		t.Fatalf("expected empty ledger, got %d records", got)
	}
}
