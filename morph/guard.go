package morph

// GuardConfig tunes the anti-loop guard. The defaults match the production
// values: block a target seen twice in the last three switches, remember at
// most five.
type GuardConfig struct {
	Window     int // switches inspected when gating
	Threshold  int // occurrences of the target within the window that block
	HistoryMax int // switches remembered
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{Window: 3, Threshold: 2, HistoryMax: 5}
}

// LoopGuard is a bounded-history rate limiter that blocks morph oscillation.
// It only gates the final commit; it never influences scoring. One guard
// belongs to one conversation and is not safe for concurrent use.
type LoopGuard struct {
	cfg    GuardConfig
	recent []string
}

func NewLoopGuard(cfg GuardConfig) *LoopGuard {
	def := DefaultGuardConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = def.HistoryMax
	}
	return &LoopGuard{cfg: cfg}
}

// Allow reports whether a switch to target may commit.
func (g *LoopGuard) Allow(target string) bool {
	start := len(g.recent) - g.cfg.Window
	if start < 0 {
		start = 0
	}
	count := 0
	for _, m := range g.recent[start:] {
		if m == target {
			count++
		}
	}
	return count < g.cfg.Threshold
}

// Track records an accepted switch, trimming history to the configured bound.
func (g *LoopGuard) Track(target string) {
	g.recent = append(g.recent, target)
	if len(g.recent) > g.cfg.HistoryMax {
		g.recent = g.recent[len(g.recent)-g.cfg.HistoryMax:]
	}
}

// Recent returns a copy of the tracked switch history, oldest first.
func (g *LoopGuard) Recent() []string {
	return append([]string(nil), g.recent...)
}

// Reset clears the history.
func (g *LoopGuard) Reset() {
	g.recent = nil
}
