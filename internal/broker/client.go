// Package broker owns the connection to the shared Redis list that buffers
// access-log events between producer processes and the batch consumer.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the broker connection settings.
type Config struct {
	Addr          string
	Password      string
	QueueKey      string
	OpTimeout     time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	MaxRetries    int // consecutive failed probes before DEGRADED falls back to DISCONNECTED
	ProbeInterval time.Duration
}

// conn is the slice of Redis the client needs. It exists so the state
// machine can be driven by a fake in tests.
type conn interface {
	Ping(ctx context.Context) error
	LPush(ctx context.Context, key string, value []byte) error
	RPopCount(ctx context.Context, key string, count int) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	Close() error
}

type redisConn struct {
	c *redis.Client
}

func (rc *redisConn) Ping(ctx context.Context) error {
	return rc.c.Ping(ctx).Err()
}

func (rc *redisConn) LPush(ctx context.Context, key string, value []byte) error {
	return rc.c.LPush(ctx, key, value).Err()
}

func (rc *redisConn) RPopCount(ctx context.Context, key string, count int) ([]string, error) {
	vals, err := rc.c.RPopCount(ctx, key, count).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return vals, err
}

func (rc *redisConn) LLen(ctx context.Context, key string) (int64, error) {
	return rc.c.LLen(ctx, key).Result()
}

func (rc *redisConn) Close() error {
	return rc.c.Close()
}

// Client talks to the broker queue and runs the connection health state
// machine in a background goroutine.
type Client struct {
	conn   conn
	cfg    Config
	budget *RetryBudget

	state     atomic.Int32
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a client for the Redis broker at cfg.Addr. The connection is
// not dialed until Start; the initial state is DISCONNECTED.
func New(cfg Config) *Client {
	rc := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DialTimeout: cfg.OpTimeout,
		ReadTimeout: cfg.OpTimeout,
	})
	return newWithConn(&redisConn{c: rc}, cfg)
}

func newWithConn(c conn, cfg Config) *Client {
	cl := &Client{
		conn:   c,
		cfg:    cfg,
		budget: NewRetryBudget(cfg.ReconnectBase, cfg.ReconnectMax),
		done:   make(chan struct{}),
	}
	cl.state.Store(int32(StateDisconnected))
	return cl
}

// Start launches the connect/probe loop.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.run()
}

// State reads the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Push attempts a single non-blocking append to the broker queue, bounded
// by the operation timeout. It does no I/O unless the state is CONNECTED.
func (c *Client) Push(ctx context.Context, payload []byte) PushResult {
	if c.State() != StateConnected {
		return Rejected
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	err := c.conn.LPush(opCtx, c.cfg.QueueKey, payload)
	if err == nil {
		return Delivered
	}
	c.reportFailure(err)
	if errors.Is(err, context.DeadlineExceeded) {
		return TimedOut
	}
	return Rejected
}

// PopBatch removes up to max payloads from the broker queue in FIFO order.
// When the state is DISCONNECTED or CONNECTING it returns nothing without
// touching the network. An empty queue yields (nil, nil).
func (c *Client) PopBatch(ctx context.Context, max int) ([][]byte, error) {
	s := c.State()
	if s != StateConnected && s != StateDegraded {
		return nil, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	vals, err := c.conn.RPopCount(opCtx, c.cfg.QueueKey, max)
	if err != nil {
		c.reportFailure(err)
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Depth is a best-effort estimate of the broker-side queue length. It
// returns zero when not connected.
func (c *Client) Depth(ctx context.Context) (int64, error) {
	s := c.State()
	if s != StateConnected && s != StateDegraded {
		return 0, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	return c.conn.LLen(opCtx, c.cfg.QueueKey)
}

// Close stops the state machine, forces DISCONNECTED, and closes the
// underlying connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.setState(StateDisconnected)
		err = c.conn.Close()
	})
	return err
}

// run drives the state machine: reconnect with backoff while DISCONNECTED,
// probe on a fixed interval while CONNECTED or DEGRADED.
func (c *Client) run() {
	defer c.wg.Done()

	probeFails := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		switch c.State() {
		case StateDisconnected:
			c.setState(StateConnecting)
			if err := c.ping(); err != nil {
				c.setState(StateDisconnected)
				wait := c.budget.Next()
				slog.Warn("broker handshake failed",
					"error", err, "attempts", c.budget.Attempts(), "next_retry", wait)
				if !c.sleep(wait) {
					return
				}
				continue
			}
			c.budget.Reset()
			probeFails = 0
			c.setState(StateConnected)

		case StateConnected, StateDegraded:
			if !c.sleep(c.cfg.ProbeInterval) {
				return
			}
			if err := c.ping(); err != nil {
				probeFails++
				if c.State() == StateConnected {
					c.setState(StateDegraded)
				}
				slog.Warn("broker probe failed", "error", err, "consecutive", probeFails)
				if probeFails >= c.cfg.MaxRetries {
					probeFails = 0
					c.setState(StateDisconnected)
				}
				continue
			}
			probeFails = 0
			c.budget.Reset()
			if c.State() != StateConnected {
				c.setState(StateConnected)
			}

		default: // StateConnecting is transient inside this loop
			c.setState(StateDisconnected)
		}
	}
}

// reportFailure demotes CONNECTED to DEGRADED after a failed operation.
// The probe loop decides whether to recover or drop the connection.
func (c *Client) reportFailure(err error) {
	if c.state.CompareAndSwap(int32(StateConnected), int32(StateDegraded)) {
		slog.Warn("broker operation failed, connection degraded", "error", err)
	}
}

func (c *Client) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OpTimeout)
	defer cancel()
	return c.conn.Ping(ctx)
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		slog.Debug("broker state changed", "from", old.String(), "to", s.String())
	}
}

// sleep waits for d or until Close. It reports false when closing.
func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return false
	case <-t.C:
		return true
	}
}
