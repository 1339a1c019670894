package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sajadsoltanist/url-shortener/internal/broker"
	"github.com/sajadsoltanist/url-shortener/internal/model"
	"github.com/sajadsoltanist/url-shortener/internal/queue"
)

const defaultForwardBuffer = 1024

// Broker is what the pipeline needs from the broker queue client. The
// concrete implementation is broker.Client; tests substitute fakes.
type Broker interface {
	Start()
	Close() error
	State() broker.State
	Push(ctx context.Context, payload []byte) broker.PushResult
	PopBatch(ctx context.Context, max int) ([][]byte, error)
	Depth(ctx context.Context) (int64, error)
}

// Dispatcher is the producer-side entry point. Enqueue runs on the
// caller's goroutine, does no network or disk I/O, and never returns an
// error: broker pushes happen on a forwarder goroutine, everything else is
// a memory append or a counter increment.
type Dispatcher struct {
	broker  Broker       // nil when broker logging is disabled
	local   *queue.Queue // nil only when the local fallback is disabled
	metrics *Metrics

	ch     chan model.Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once
}

// NewDispatcher wires the routing policy and starts the forwarder.
func NewDispatcher(b Broker, local *queue.Queue, m *Metrics) *Dispatcher {
	d := &Dispatcher{
		broker:  b,
		local:   local,
		metrics: m,
		ch:      make(chan model.Event, defaultForwardBuffer),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.forward()
	return d
}

// Enqueue routes one event. Healthy broker: hand off to the forwarder
// (one buffered channel send). Degraded or busy: append to the local
// queue. Local queue full: count a drop. The call never blocks on I/O
// and never surfaces a failure to the request path.
func (d *Dispatcher) Enqueue(ev model.Event) {
	if d.closed.Load() {
		d.metrics.AddDropped(1)
		return
	}
	d.metrics.AddEnqueued(1)

	if d.broker != nil && d.broker.State() == broker.StateConnected {
		select {
		case d.ch <- ev:
			return
		default:
			// Forwarder saturated; treat like a degraded broker.
		}
	}
	d.toLocal(ev)
}

// Close stops intake and waits for the forwarder to finish. Events still
// sitting in the forwarder buffer are moved to the local queue so the
// final drain can flush them.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// forward delivers events handed off by Enqueue. A push that comes back
// Rejected or TimedOut falls through to the local queue; the broker client
// has already demoted its own state.
func (d *Dispatcher) forward() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			d.drain()
			return
		case ev := <-d.ch:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev model.Event) {
	payload, err := ev.EncodeJSON()
	if err != nil {
		d.metrics.AddDropped(1)
		slog.Warn("dispatcher: event encode failed", "error", err)
		return
	}
	if d.broker.Push(context.Background(), payload) == broker.Delivered {
		return
	}
	d.toLocal(ev)
}

func (d *Dispatcher) toLocal(ev model.Event) {
	if d.local != nil && d.local.TryPush(ev) {
		return
	}
	d.metrics.AddDropped(1)
}

// drain empties the forwarder buffer into the local queue without further
// broker I/O.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.ch:
			d.toLocal(ev)
		default:
			return
		}
	}
}
