package observability

import (
	"fmt"
	"sync"
	"time"
)

// LookupStats tracks in-process statistics for model parameter lookups. A
// not-found answer counts as a healthy response: the upstream replied, the
// model simply is not known to it.
type LookupStats struct {
	mu sync.Mutex

	Source string

	TotalLookups    int64
	Successes       int64
	NotFound        int64
	Failures        int64
	RejectedLookups int64

	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration

	ErrorCounts map[string]int64

	FirstLookup time.Time
	LastLookup  time.Time
	LastFailure time.Time
}

// NewLookupStats creates lookup statistics for a named source.
func NewLookupStats(source string) *LookupStats {
	return &LookupStats{
		Source:      source,
		ErrorCounts: make(map[string]int64),
	}
}

// RecordSuccess records a lookup that resolved a parameter count.
func (ls *LookupStats) RecordSuccess(duration time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.recordLookupLocked(duration)
	ls.Successes++
}

// RecordNotFound records a lookup the upstream answered with "unknown model".
func (ls *LookupStats) RecordNotFound(duration time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.recordLookupLocked(duration)
	ls.NotFound++
}

// RecordFailure records a lookup that errored.
func (ls *LookupStats) RecordFailure(err error, duration time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.recordLookupLocked(duration)
	ls.Failures++
	ls.LastFailure = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}
	ls.ErrorCounts[errorType]++
}

// RecordRejected records a lookup blocked by the open circuit.
func (ls *LookupStats) RecordRejected() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.RejectedLookups++
}

func (ls *LookupStats) recordLookupLocked(duration time.Duration) {
	ls.TotalLookups++
	now := time.Now()
	if ls.FirstLookup.IsZero() {
		ls.FirstLookup = now
	}
	ls.LastLookup = now

	ls.TotalLatency += duration
	if ls.MinLatency == 0 || duration < ls.MinLatency {
		ls.MinLatency = duration
	}
	if duration > ls.MaxLatency {
		ls.MaxLatency = duration
	}
}

// IsHealthy reports whether recent lookups are mostly succeeding. With no
// failure in the last five minutes the source is considered healthy.
func (ls *LookupStats) IsHealthy() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.LastFailure.IsZero() || time.Since(ls.LastFailure) >= 5*time.Minute {
		return true
	}
	answered := ls.Successes + ls.NotFound + ls.Failures
	if answered == 0 {
		return true
	}
	return float64(ls.Failures)/float64(answered) <= 0.5
}

// Snapshot returns the current statistics as a map for health payloads.
func (ls *LookupStats) Snapshot() map[string]interface{} {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	avg := time.Duration(0)
	answered := ls.Successes + ls.NotFound + ls.Failures
	if answered > 0 {
		avg = ls.TotalLatency / time.Duration(answered)
	}
	failureRate := float64(0)
	if answered > 0 {
		failureRate = float64(ls.Failures) / float64(answered) * 100
	}

	return map[string]interface{}{
		"source":        ls.Source,
		"total_lookups": ls.TotalLookups,
		"successes":     ls.Successes,
		"not_found":     ls.NotFound,
		"failures":      ls.Failures,
		"rejected":      ls.RejectedLookups,
		"failure_rate":  fmt.Sprintf("%.2f%%", failureRate),
		"avg_latency":   avg.String(),
		"min_latency":   ls.MinLatency.String(),
		"max_latency":   ls.MaxLatency.String(),
		"error_counts":  ls.ErrorCounts,
		"first_lookup":  ls.FirstLookup.Format(time.RFC3339),
		"last_lookup":   ls.LastLookup.Format(time.RFC3339),
		"last_failure":  ls.LastFailure.Format(time.RFC3339),
	}
}

// Reset clears all counters.
func (ls *LookupStats) Reset() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.TotalLookups = 0
	ls.Successes = 0
	ls.NotFound = 0
	ls.Failures = 0
	ls.RejectedLookups = 0
	ls.TotalLatency = 0
	ls.MinLatency = 0
	ls.MaxLatency = 0
	ls.ErrorCounts = make(map[string]int64)
	ls.FirstLookup = time.Time{}
	ls.LastLookup = time.Time{}
	ls.LastFailure = time.Time{}
}
