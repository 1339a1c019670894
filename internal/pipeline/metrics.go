package pipeline

import (
	"sync/atomic"
	"time"
)

// Metrics is the process-scoped counter set for the pipeline. It is
// created at startup and injected into each component; nothing reads it
// as ambient global state.
type Metrics struct {
	enqueued     atomic.Uint64
	dropped      atomic.Uint64
	flushed      atomic.Uint64
	deadLettered atomic.Uint64
	lastFlush    atomic.Int64 // unix nanos, 0 until the first flush
}

// NewMetrics creates an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddEnqueued(n int)     { m.enqueued.Add(uint64(n)) }
func (m *Metrics) AddDropped(n int)      { m.dropped.Add(uint64(n)) }
func (m *Metrics) AddFlushed(n int)      { m.flushed.Add(uint64(n)) }
func (m *Metrics) AddDeadLettered(n int) { m.deadLettered.Add(uint64(n)) }

// MarkFlush records the time of a successful flush.
func (m *Metrics) MarkFlush(t time.Time) {
	m.lastFlush.Store(t.UnixNano())
}

// Counters is a point-in-time copy of the metric values.
type Counters struct {
	Enqueued     uint64    `json:"enqueued"`
	Dropped      uint64    `json:"dropped"`
	Flushed      uint64    `json:"flushed"`
	DeadLettered uint64    `json:"dead_lettered"`
	LastFlush    time.Time `json:"last_flush"`
}

// Snapshot reads all counters atomically enough for monitoring purposes.
func (m *Metrics) Snapshot() Counters {
	c := Counters{
		Enqueued:     m.enqueued.Load(),
		Dropped:      m.dropped.Load(),
		Flushed:      m.flushed.Load(),
		DeadLettered: m.deadLettered.Load(),
	}
	if ns := m.lastFlush.Load(); ns != 0 {
		c.LastFlush = time.Unix(0, ns)
	}
	return c
}
