package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// p95 budgets in milliseconds for the chat turn stages. Stages not listed
// have no budget.
var stageBudgetsMS = map[string]float64{
	"received_to_memory_loaded":   50,
	"received_to_prompt_composed": 60,
	"received_to_model_invoked":   6000,
	"received_to_persisted":       6500,
	"turn_total":                  7000,
}

// StageStats summarizes the retained samples of one stage.
type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
}

// FlagCount counts turn flags such as risk levels since the last reset.
type FlagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Flags       []FlagCount  `json:"flags,omitempty"`
}

// latencyWindow keeps the most recent samples per stage.
type latencyWindow struct {
	size int

	mu      sync.Mutex
	samples map[string][]float64
	flags   map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	w := &latencyWindow{size: size}
	w.reset()
	return w
}

func (w *latencyWindow) reset() {
	w.samples = make(map[string][]float64)
	w.flags = make(map[string]int)
}

func (w *latencyWindow) Add(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], ms)
	if len(s) > w.size {
		s = s[len(s)-w.size:]
	}
	w.samples[stage] = s
}

func (w *latencyWindow) Flag(name string) {
	if name == "" {
		return
	}
	w.mu.Lock()
	w.flags[name]++
	w.mu.Unlock()
}

func (w *latencyWindow) Reset() {
	w.mu.Lock()
	w.reset()
	w.mu.Unlock()
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.samples)),
	}
	for _, stage := range sortedKeys(w.samples) {
		if s := w.samples[stage]; len(s) > 0 {
			snap.Stages = append(snap.Stages, summarize(stage, s))
		}
	}
	for _, name := range sortedKeys(w.flags) {
		snap.Flags = append(snap.Flags, FlagCount{Name: name, Count: w.flags[name]})
	}
	return snap
}

func summarize(stage string, samples []float64) StageStats {
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	st := StageStats{
		Stage:       stage,
		Samples:     len(sorted),
		LastMS:      round2(samples[len(samples)-1]),
		AvgMS:       round2(sum / float64(len(sorted))),
		P50MS:       round2(percentile(sorted, 0.50)),
		P95MS:       round2(percentile(sorted, 0.95)),
		P99MS:       round2(percentile(sorted, 0.99)),
		BudgetP95MS: stageBudgetsMS[stage],
	}
	st.OverBudget = st.BudgetP95MS > 0 && st.P95MS > st.BudgetP95MS
	return st
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	rank := q * float64(len(sorted)-1)
	lo, frac := math.Modf(rank)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
