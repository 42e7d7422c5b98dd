package ratelimit

import (
	"sync/atomic"
	"time"
)

// Metrics counts limiter decisions for the current process
type Metrics struct {
	allowed   int64
	denied    int64
	fallbacks int64
	startedAt time.Time
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	Allowed   int64     `json:"allowed"`
	Denied    int64     `json:"denied"`
	Fallbacks int64     `json:"fallbacks"`
	Since     time.Time `json:"since"`
}

// NewMetrics creates zeroed counters
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now().UTC()}
}

func (m *Metrics) record(d Decision, fallback bool) {
	if d.Allowed {
		atomic.AddInt64(&m.allowed, 1)
	} else {
		atomic.AddInt64(&m.denied, 1)
	}
	if fallback {
		atomic.AddInt64(&m.fallbacks, 1)
	}
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Allowed:   atomic.LoadInt64(&m.allowed),
		Denied:    atomic.LoadInt64(&m.denied),
		Fallbacks: atomic.LoadInt64(&m.fallbacks),
		Since:     m.startedAt,
	}
}
