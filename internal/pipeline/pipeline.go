// Package pipeline wires the telemetry components together: dispatcher on
// the producer side, batch consumer on the delivery side, and the
// lifecycle that starts and drains them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/broker"
	"github.com/sajadsoltanist/url-shortener/internal/config"
	"github.com/sajadsoltanist/url-shortener/internal/queue"
	"github.com/sajadsoltanist/url-shortener/internal/sink"
)

const retentionSweepInterval = time.Hour

// Pipeline owns every background task of the telemetry subsystem.
type Pipeline struct {
	cfg     config.Config
	metrics *Metrics
	broker  Broker
	local   *queue.Queue
	disp    *Dispatcher
	cons    *Consumer
	writer  *sink.Writer
	dead    *sink.DeadLetter

	done chan struct{}
}

// New validates the configuration and builds the pipeline. Configuration
// errors are the one failure class that is fatal and surfaced.
func New(cfg config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer, err := sink.NewWriter(cfg.SinkPath(), cfg.RotateSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	dead, err := sink.OpenDeadLetter(filepath.Join(cfg.LogDir, "deadletter.wal"))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// Without a broker the local queue is the only path to the sink, so it
	// exists even when the fallback flag is off.
	var local *queue.Queue
	if cfg.FallbackLocal || !cfg.Enabled {
		policy, perr := queue.ParsePolicy(cfg.OverflowPolicy)
		if perr != nil {
			return nil, perr
		}
		local, err = queue.New(cfg.LocalCapacity, policy)
		if err != nil {
			return nil, err
		}
	}

	var b Broker
	if cfg.Enabled {
		b = broker.New(broker.Config{
			Addr:          cfg.BrokerAddr,
			Password:      cfg.BrokerPass,
			QueueKey:      cfg.QueueKey,
			OpTimeout:     cfg.OpTimeout,
			ReconnectBase: cfg.ReconnectBase,
			ReconnectMax:  cfg.ReconnectMax,
			MaxRetries:    cfg.MaxRetries,
			ProbeInterval: cfg.ProbeInterval,
		})
	}

	m := NewMetrics()
	p := &Pipeline{
		cfg:     cfg,
		metrics: m,
		broker:  b,
		local:   local,
		writer:  writer,
		dead:    dead,
		done:    make(chan struct{}),
	}
	p.disp = NewDispatcher(b, local, m)
	p.cons = NewConsumer(b, local, writer, dead, ConsumerConfig{
		BatchSize:      cfg.BatchSize,
		FlushInterval:  cfg.FlushInterval,
		FlushRetries:   cfg.FlushRetries,
		FlushRetryWait: cfg.FlushRetryWait,
	}, m)
	return p, nil
}

// Dispatcher is the enqueue surface handed to the request middleware.
func (p *Pipeline) Dispatcher() *Dispatcher {
	return p.disp
}

// Metrics exposes the injected counter set, mainly for tests.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Start launches the broker client, the batch consumer, and the retention
// sweeper.
func (p *Pipeline) Start() {
	if p.broker != nil {
		p.broker.Start()
	}
	p.cons.Start()
	go p.writer.RunRetention(p.cfg.Retention, retentionSweepInterval, p.done)
	slog.Info("telemetry pipeline started",
		"broker_enabled", p.cfg.Enabled, "sink", p.cfg.SinkPath())
}

// Stop shuts the pipeline down within the grace period: intake stops,
// both queues get a final bounded drain, and whatever could not be flushed
// in time is dropped and counted. Events still sitting on the broker
// survive there for the next run.
func (p *Pipeline) Stop(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	p.disp.Close()
	p.cons.Stop(ctx)

	if p.local != nil {
		if n := p.local.Len(); n > 0 {
			p.metrics.AddDropped(n)
			slog.Warn("telemetry shutdown: local events dropped after grace period", "events", n)
		}
	}

	close(p.done)
	var firstErr error
	if p.broker != nil {
		if err := p.broker.Close(); err != nil {
			firstErr = err
		}
	}
	if err := p.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.dead.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	slog.Info("telemetry pipeline stopped")
	return firstErr
}

// Status is the read-only snapshot served on the status surface.
type Status struct {
	BrokerState   string   `json:"broker_state"`
	BrokerDepth   int64    `json:"broker_depth"`
	LocalDepth    int      `json:"local_depth"`
	LocalCapacity int      `json:"local_capacity"`
	Counters      Counters `json:"counters"`
}

// Status assembles the current snapshot. The broker depth is a best-effort
// estimate; it reads zero while disconnected.
func (p *Pipeline) Status() Status {
	s := Status{
		BrokerState: broker.StateDisconnected.String(),
		Counters:    p.metrics.Snapshot(),
	}
	if p.broker != nil {
		s.BrokerState = p.broker.State().String()
		if depth, err := p.broker.Depth(context.Background()); err == nil {
			s.BrokerDepth = depth
		}
	}
	if p.local != nil {
		s.LocalDepth = p.local.Len()
		s.LocalCapacity = p.local.Cap()
		s.Counters.Dropped += p.local.Evictions()
	}
	return s
}
