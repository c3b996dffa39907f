package observability

import (
	"log/slog"
	"math"
	"sync"
)

// ThroughputDriftMonitor watches the horde-wide tokens-per-second average for
// sustained deviation from a baseline. The first full sample window sets the
// baseline unless one was pinned explicitly; after that, every window whose
// mean deviates beyond the threshold logs a warning and publishes the ratio
// to the throughput_drift_ratio gauge.
type ThroughputDriftMonitor struct {
	mu        sync.Mutex
	baseline  float64
	pinned    bool
	samples   []float64
	window    int
	threshold float64
}

// NewThroughputDriftMonitor creates a monitor with the given window size and
// relative drift threshold (for example 0.5 warns on a halving or doubling).
func NewThroughputDriftMonitor(window int, threshold float64) *ThroughputDriftMonitor {
	if window <= 0 {
		window = 10
	}
	return &ThroughputDriftMonitor{
		window:    window,
		threshold: threshold,
		samples:   make([]float64, 0, window),
	}
}

// PinBaseline fixes the baseline so it is not learned from the first window.
func (m *ThroughputDriftMonitor) PinBaseline(tokensPerSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = tokensPerSec
	m.pinned = true
}

// RecordSample folds one throughput observation into the rolling window and
// returns the current drift ratio.
func (m *ThroughputDriftMonitor) RecordSample(tokensPerSec float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, tokensPerSec)
	if len(m.samples) > m.window {
		m.samples = m.samples[1:]
	}
	if len(m.samples) < m.window {
		return 0
	}

	mean := m.windowMean()
	if !m.pinned && m.baseline == 0 {
		// Learn the baseline from the first complete window.
		if mean > 0 {
			m.baseline = mean
			slog.Info("throughput baseline learned",
				slog.Float64("tokens_per_sec", m.baseline),
				slog.Int("window", m.window))
		}
		return 0
	}

	drift := m.driftLocked(mean)
	ThroughputDrift.Set(drift)
	if drift > m.threshold {
		slog.Warn("horde throughput drifting from baseline",
			slog.Float64("baseline", m.baseline),
			slog.Float64("recent_mean", mean),
			slog.Float64("drift", drift),
			slog.Float64("threshold", m.threshold))
	}
	return drift
}

// Drift returns the current drift ratio without recording a sample.
func (m *ThroughputDriftMonitor) Drift() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	return m.driftLocked(m.windowMean())
}

// Baseline returns the active baseline and whether one is set.
func (m *ThroughputDriftMonitor) Baseline() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseline, m.baseline != 0 || m.pinned
}

func (m *ThroughputDriftMonitor) windowMean() float64 {
	var sum float64
	for _, s := range m.samples {
		sum += s
	}
	return sum / float64(len(m.samples))
}

func (m *ThroughputDriftMonitor) driftLocked(mean float64) float64 {
	if m.baseline == 0 {
		return 0
	}
	return math.Abs(mean-m.baseline) / m.baseline
}
