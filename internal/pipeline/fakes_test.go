package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/broker"
	"github.com/sajadsoltanist/url-shortener/internal/model"
)

var errSinkDown = errors.New("sink unavailable")

// fakeBroker implements Broker with an in-memory FIFO and scriptable
// state and push behavior.
type fakeBroker struct {
	mu         sync.Mutex
	state      broker.State
	queue      [][]byte
	pushResult broker.PushResult
	pushDelay  time.Duration
	pushCalls  int
	started    bool
	closed     bool
}

func newFakeBroker(state broker.State) *fakeBroker {
	return &fakeBroker{state: state}
}

func (f *fakeBroker) Start() {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	f.closed = true
	f.state = broker.StateDisconnected
	f.mu.Unlock()
	return nil
}

func (f *fakeBroker) setState(s broker.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeBroker) State() broker.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBroker) Push(ctx context.Context, payload []byte) broker.PushResult {
	f.mu.Lock()
	delay := f.pushDelay
	f.pushCalls++
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushResult != broker.Delivered {
		return f.pushResult
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.queue = append(f.queue, cp)
	return broker.Delivered
}

func (f *fakeBroker) PopBatch(ctx context.Context, max int) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != broker.StateConnected && f.state != broker.StateDegraded {
		return nil, nil
	}
	n := max
	if n > len(f.queue) {
		n = len(f.queue)
	}
	if n == 0 {
		return nil, nil
	}
	out := f.queue[:n]
	f.queue = f.queue[n:]
	return out, nil
}

func (f *fakeBroker) Depth(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.queue)), nil
}

func (f *fakeBroker) depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// preload enqueues already-encoded events onto the fake broker queue.
func (f *fakeBroker) preload(events ...model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range events {
		data, err := ev.EncodeJSON()
		if err != nil {
			panic(err)
		}
		f.queue = append(f.queue, data)
	}
}

// fakeSink records flushed batches and can fail the first N writes.
type fakeSink struct {
	mu       sync.Mutex
	batches  [][]model.Event
	failNext int
}

func (f *fakeSink) WriteBatch(events []model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != 0 {
		if f.failNext > 0 {
			f.failNext--
		}
		return errSinkDown
	}
	cp := make([]model.Event, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSink) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (f *fakeSink) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// fakeDeadLetter records dead-lettered batches.
type fakeDeadLetter struct {
	mu      sync.Mutex
	batches [][]model.Event
	err     error
}

func (f *fakeDeadLetter) Write(events []model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]model.Event, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeDeadLetter) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func testEvent(msg string) model.Event {
	return model.Event{
		Timestamp:     time.Unix(0, 1),
		Level:         model.LevelInfo,
		CorrelationID: "test",
		Message:       msg,
	}
}

// eventually polls cond until it returns true or the deadline passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
