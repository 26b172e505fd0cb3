package executor

import (
	"sync"
	"time"
)

// CapabilityStats accumulates per-capability invocation counters. Counters
// are monotonic for the lifetime of the executor.
type CapabilityStats struct {
	Invocations  int64
	Successes    int64
	TotalLatency time.Duration
}

// AverageLatency returns the mean invocation latency, zero when nothing ran.
func (s CapabilityStats) AverageLatency() time.Duration {
	if s.Invocations == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Invocations)
}

type metricsTable struct {
	mu    sync.Mutex
	stats map[string]CapabilityStats
}

func newMetricsTable() *metricsTable {
	return &metricsTable{stats: make(map[string]CapabilityStats)}
}

func (m *metricsTable) record(capability string, success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats[capability]
	s.Invocations++
	if success {
		s.Successes++
	}
	s.TotalLatency += latency
	m.stats[capability] = s
}

func (m *metricsTable) snapshot() map[string]CapabilityStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CapabilityStats, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}
