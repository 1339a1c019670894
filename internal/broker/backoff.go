package broker

import (
	"math/rand"
	"sync"
	"time"
)

// RetryBudget tracks consecutive connection failures and produces the
// delay before the next attempt: exponential growth from Base, capped at
// Max, with jitter so producers sharing one broker do not reconnect in
// lockstep.
type RetryBudget struct {
	base time.Duration
	max  time.Duration

	mu       sync.Mutex
	attempts int
}

// NewRetryBudget creates a budget. Base must be positive and Max at least Base.
func NewRetryBudget(base, max time.Duration) *RetryBudget {
	return &RetryBudget{base: base, max: max}
}

// Next records a failed attempt and returns the delay to wait before the
// following one. Delays never decrease between consecutive failures.
func (b *RetryBudget) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.base
	for i := 0; i < b.attempts; i++ {
		d *= 2
		if d >= b.max {
			d = b.max
			break
		}
	}
	b.attempts++

	if d >= b.max {
		return b.max
	}
	// Add up to 10% jitter; the next doubling always exceeds d*1.1, so the
	// sequence stays non-decreasing.
	j := time.Duration(rand.Int63n(int64(d)/10 + 1))
	if d+j > b.max {
		return b.max
	}
	return d + j
}

// Reset clears the failure count after a successful operation.
func (b *RetryBudget) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts is the number of consecutive failures recorded so far.
func (b *RetryBudget) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
