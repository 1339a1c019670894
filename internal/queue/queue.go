// Package queue provides the bounded in-process FIFO that absorbs events
// while the broker is unreachable or saturated.
package queue

import (
	"fmt"
	"sync"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

// Policy decides what happens to an incoming event when the queue is full.
type Policy int

const (
	// RejectNew refuses the incoming event.
	RejectNew Policy = iota
	// EvictOldest drops the oldest queued event to make room.
	EvictOldest
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "reject_new":
		return RejectNew, nil
	case "evict_oldest":
		return EvictOldest, nil
	default:
		return RejectNew, fmt.Errorf("queue: unknown overflow policy %q", s)
	}
}

// Queue is a fixed-capacity ring buffer of events, safe for concurrent
// producers and a single consumer.
type Queue struct {
	mu        sync.Mutex
	buf       []model.Event
	head      int
	count     int
	policy    Policy
	evictions uint64
}

// New creates a queue with the given capacity in events.
func New(capacity int, policy Policy) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue: capacity must be positive, got %d", capacity)
	}
	return &Queue{
		buf:    make([]model.Event, capacity),
		policy: policy,
	}, nil
}

// TryPush appends an event. It reports whether the event was stored: under
// RejectNew a full queue refuses it, under EvictOldest the oldest event is
// dropped (counted in Evictions) and the push always succeeds.
func (q *Queue) TryPush(ev model.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.buf) {
		if q.policy == RejectNew {
			return false
		}
		// EvictOldest: overwrite the head slot.
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.evictions++
	}

	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = ev
	q.count++
	return true
}

// PopBatch removes and returns up to max events in FIFO order. It never
// blocks; an empty queue yields nil.
func (q *Queue) PopBatch(max int) []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if n > max {
		n = max
	}
	if n <= 0 {
		return nil
	}

	out := make([]model.Event, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = model.Event{}
		q.head = (q.head + 1) % len(q.buf)
	}
	q.count -= n
	return out
}

// Len is the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap is the configured capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Evictions counts events dropped by the EvictOldest policy since creation.
func (q *Queue) Evictions() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evictions
}
