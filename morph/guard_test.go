package morph

import (
	"testing"
)

func TestGuardBlocksRepeatedTarget(t *testing.T) {
	g := NewLoopGuard(DefaultGuardConfig())
	g.Track("sales")
	g.Track("general")
	g.Track("sales")
	if g.Allow("sales") {
		t.Fatalf("sales appears twice in the last three switches, must be blocked")
	}
	if !g.Allow("general") {
		t.Fatalf("general appears once, must be allowed")
	}
	if !g.Allow("support") {
		t.Fatalf("unseen morphs must be allowed")
	}
}

func TestGuardBlocksBeforeWindowFills(t *testing.T) {
	g := NewLoopGuard(DefaultGuardConfig())
	g.Track("sales")
	g.Track("sales")
	if g.Allow("sales") {
		t.Fatalf("two consecutive switches to sales must already block a third")
	}
}

func TestGuardWindowSlides(t *testing.T) {
	g := NewLoopGuard(DefaultGuardConfig())
	for _, m := range []string{"sales", "general", "sales", "support", "general"} {
		g.Track(m)
	}
	// Last three are [sales, support, general]: one sales occurrence.
	if !g.Allow("sales") {
		t.Fatalf("older occurrences must fall out of the window")
	}
}

func TestGuardHistoryBounded(t *testing.T) {
	g := NewLoopGuard(DefaultGuardConfig())
	for i := 0; i < 12; i++ {
		g.Track("general")
	}
	if got := len(g.Recent()); got != 5 {
		t.Fatalf("history must stay at 5 entries, got %d", got)
	}
}

func TestGuardReset(t *testing.T) {
	g := NewLoopGuard(DefaultGuardConfig())
	g.Track("sales")
	g.Track("sales")
	g.Reset()
	if !g.Allow("sales") {
		t.Fatalf("reset must clear the history")
	}
	if len(g.Recent()) != 0 {
		t.Fatalf("reset left history behind")
	}
}

func TestGuardCustomConfig(t *testing.T) {
	g := NewLoopGuard(GuardConfig{Window: 2, Threshold: 1, HistoryMax: 3})
	g.Track("sales")
	if g.Allow("sales") {
		t.Fatalf("threshold 1 must block after a single occurrence")
	}
	g.Track("general")
	g.Track("general")
	// Window 2 now holds [general, general].
	if !g.Allow("sales") {
		t.Fatalf("sales left the window, must be allowed again")
	}
}
