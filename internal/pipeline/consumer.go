package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/broker"
	"github.com/sajadsoltanist/url-shortener/internal/model"
	"github.com/sajadsoltanist/url-shortener/internal/queue"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultMigrateChunk = 100
)

// Sink receives flushed batches. Implemented by sink.Writer.
type Sink interface {
	WriteBatch(events []model.Event) error
}

// DeadLetterSink receives batches the sink refused after all retries.
// Implemented by sink.DeadLetter.
type DeadLetterSink interface {
	Write(events []model.Event) error
}

// ConsumerConfig bounds the batching policy.
type ConsumerConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushRetries   int
	FlushRetryWait time.Duration
	PollInterval   time.Duration // defaults to 10ms
	MigrateChunk   int           // defaults to 100
}

// Consumer is the single long-running worker: it pops events from the
// broker (falling back to the local queue), assembles batches, and flushes
// them to the sink on a size-or-time trigger.
type Consumer struct {
	broker  Broker       // nil when broker logging is disabled
	local   *queue.Queue // may be nil
	sink    Sink
	dead    DeadLetterSink // may be nil
	cfg     ConsumerConfig
	metrics *Metrics
	codec   model.Codec

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewConsumer wires the worker; call Start to run it.
func NewConsumer(b Broker, local *queue.Queue, s Sink, dead DeadLetterSink, cfg ConsumerConfig, m *Metrics) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MigrateChunk <= 0 {
		cfg.MigrateChunk = defaultMigrateChunk
	}
	return &Consumer{
		broker:  b,
		local:   local,
		sink:    s,
		dead:    dead,
		cfg:     cfg,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start launches the consume loop.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop ends the loop (flushing any partial batch), then keeps draining
// both queues until they are empty or ctx expires.
func (c *Consumer) Stop(ctx context.Context) {
	c.once.Do(func() {
		close(c.done)
		c.wg.Wait()
	})

	for ctx.Err() == nil {
		batch := c.collect(nil)
		if len(batch) == 0 {
			return
		}
		c.flush(batch)
	}
}

func (c *Consumer) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	batch := make([]model.Event, 0, c.cfg.BatchSize)
	lastFlush := time.Now()

	slog.Info("log consumer started",
		"batch_size", c.cfg.BatchSize, "flush_interval", c.cfg.FlushInterval)

	for {
		select {
		case <-c.done:
			c.flush(batch)
			return
		case <-ticker.C:
		}

		batch = c.collect(batch)

		if len(batch) >= c.cfg.BatchSize ||
			(len(batch) > 0 && time.Since(lastFlush) >= c.cfg.FlushInterval) {
			c.flush(batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		c.migrate()
	}
}

// collect tops the batch up to BatchSize: broker first, local queue only
// when the broker yielded nothing this cycle. Per-queue FIFO order is
// preserved; no ordering is promised across the two paths.
func (c *Consumer) collect(batch []model.Event) []model.Event {
	budget := c.cfg.BatchSize - len(batch)
	if budget <= 0 {
		return batch
	}

	if c.broker != nil {
		payloads, err := c.broker.PopBatch(context.Background(), budget)
		if err != nil {
			slog.Error("consumer: broker pop failed", "error", err)
		}
		if len(payloads) > 0 {
			for _, p := range payloads {
				ev, err := c.codec.DecodeBytes(p)
				if err != nil {
					c.metrics.AddDropped(1)
					slog.Warn("consumer: malformed event discarded", "error", err)
					continue
				}
				batch = append(batch, ev)
			}
			return batch
		}
	}

	if c.local != nil {
		batch = append(batch, c.local.PopBatch(budget)...)
	}
	return batch
}

// flush writes the batch to the sink, retrying with a short wait. A batch
// that exhausts its retries goes to the dead-letter store; if even that
// fails it is dropped and counted. Empty batches never touch the sink.
func (c *Consumer) flush(events []model.Event) {
	if len(events) == 0 {
		return
	}

	var err error
	for attempt := 0; attempt <= c.cfg.FlushRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.cfg.FlushRetryWait)
		}
		if err = c.sink.WriteBatch(events); err == nil {
			c.metrics.AddFlushed(len(events))
			c.metrics.MarkFlush(time.Now())
			return
		}
		slog.Warn("consumer: sink write failed", "attempt", attempt+1, "error", err)
	}

	if c.dead != nil {
		if derr := c.dead.Write(events); derr == nil {
			c.metrics.AddDeadLettered(len(events))
			slog.Error("consumer: batch dead-lettered after flush retries",
				"events", len(events), "error", err)
			return
		} else {
			slog.Error("consumer: dead-letter write failed", "error", derr)
		}
	}
	c.metrics.AddDropped(len(events))
	slog.Error("consumer: batch dropped after flush retries", "events", len(events), "error", err)
}

// migrate moves overflow-queue backlog back onto the broker once it is
// healthy again, in bounded chunks so the loop stays responsive.
func (c *Consumer) migrate() {
	if c.broker == nil || c.local == nil {
		return
	}
	if c.broker.State() != broker.StateConnected || c.local.Len() == 0 {
		return
	}

	chunk := c.local.PopBatch(c.cfg.MigrateChunk)
	for i, ev := range chunk {
		payload, err := ev.EncodeJSON()
		if err != nil {
			c.metrics.AddDropped(1)
			continue
		}
		if c.broker.Push(context.Background(), payload) != broker.Delivered {
			// Broker went away mid-migration; requeue the remainder.
			for _, rest := range chunk[i:] {
				if !c.local.TryPush(rest) {
					c.metrics.AddDropped(1)
				}
			}
			return
		}
	}
	slog.Debug("consumer: migrated overflow backlog to broker", "events", len(chunk))
}
