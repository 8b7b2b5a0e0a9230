package pipeline

import (
	"slices"
	"sync"
	"time"
)

// Outcome classifies a finished job for stats.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

type sample struct {
	at         time.Time
	durationMs int64
	outcome    Outcome
}

// StatsSnapshot aggregates the jobs finished within the window. Duration
// figures cover successful imports only.
type StatsSnapshot struct {
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Cancelled int     `json:"cancelled"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// ImportStats keeps job outcomes and durations within a rolling window.
type ImportStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
}

func NewImportStats(window time.Duration) *ImportStats {
	if window <= 0 {
		window = time.Hour
	}
	return &ImportStats{
		samples: make([]sample, 0, 256),
		window:  window,
	}
}

// Record adds one finished job.
func (s *ImportStats) Record(outcome Outcome, d time.Duration) {
	ms := max(d.Milliseconds(), 0)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, durationMs: ms, outcome: outcome})
}

func (s *ImportStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now())

	var snap StatsSnapshot
	var durations []int64
	var sum int64
	for _, sm := range s.samples {
		switch sm.outcome {
		case OutcomeSucceeded:
			snap.Succeeded++
			durations = append(durations, sm.durationMs)
			sum += sm.durationMs
		case OutcomeFailed:
			snap.Failed++
		case OutcomeCancelled:
			snap.Cancelled++
		}
	}
	if len(durations) == 0 {
		return snap
	}
	slices.Sort(durations)
	snap.MinMs = durations[0]
	snap.MaxMs = durations[len(durations)-1]
	snap.AvgMs = float64(sum) / float64(len(durations))
	snap.P50Ms = percentile(durations, 50)
	snap.P95Ms = percentile(durations, 95)
	snap.P99Ms = percentile(durations, 99)
	return snap
}

func (s *ImportStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(rank-float64(lower))
}
