package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds every knob of the telemetry pipeline. All values come from
// environment variables with defaults matching the production deployment.
type Config struct {
	// Broker (shared Redis list used as the log queue).
	Enabled       bool          // REDIS_LOGGING_ENABLED
	BrokerAddr    string        // REDIS_ADDR
	BrokerPass    string        // REDIS_PASSWORD
	QueueKey      string        // REDIS_LOGGING_QUEUE
	OpTimeout     time.Duration // REDIS_LOGGING_OP_TIMEOUT
	ReconnectBase time.Duration // REDIS_LOGGING_RECONNECT_DELAY
	ReconnectMax  time.Duration // REDIS_LOGGING_RECONNECT_MAX_DELAY
	MaxRetries    int           // REDIS_LOGGING_MAX_RETRIES
	ProbeInterval time.Duration // REDIS_LOGGING_PROBE_INTERVAL

	// Batching.
	BatchSize      int           // REDIS_LOGGING_BATCH_SIZE
	FlushInterval  time.Duration // REDIS_LOGGING_FLUSH_INTERVAL
	FlushRetries   int           // REDIS_LOGGING_FLUSH_RETRIES
	FlushRetryWait time.Duration // REDIS_LOGGING_FLUSH_RETRY_WAIT

	// Local overflow queue.
	FallbackLocal  bool   // REDIS_LOGGING_FALLBACK_LOCAL
	LocalCapacity  int    // REDIS_LOGGING_LOCAL_CAPACITY
	OverflowPolicy string // REDIS_LOGGING_OVERFLOW_POLICY: "reject_new" or "evict_oldest"

	// Durable sink.
	LogDir     string        // LOG_DIR
	SinkFile   string        // LOG_SINK_FILE
	RotateSize int64         // LOG_ROTATE_SIZE (bytes)
	Retention  time.Duration // LOG_RETENTION

	// Lifecycle and status surface.
	ShutdownGrace   time.Duration // TELEMETRY_SHUTDOWN_GRACE
	StatusAddr      string        // TELEMETRY_STATUS_ADDR ("" disables the HTTP status server)
	StatusTokenHash string        // TELEMETRY_STATUS_TOKEN_HASH (bcrypt hash; "" disables auth)
	LogLevel        string        // TELEMETRY_LOG_LEVEL
}

// Load reads configuration from the environment, applying defaults for
// anything unset. Call Validate before using the result.
func Load() Config {
	return Config{
		Enabled:       getenvBool("REDIS_LOGGING_ENABLED", true),
		BrokerAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		BrokerPass:    os.Getenv("REDIS_PASSWORD"),
		QueueKey:      getenv("REDIS_LOGGING_QUEUE", "app:logs"),
		OpTimeout:     getenvDuration("REDIS_LOGGING_OP_TIMEOUT", 100*time.Millisecond),
		ReconnectBase: getenvDuration("REDIS_LOGGING_RECONNECT_DELAY", time.Second),
		ReconnectMax:  getenvDuration("REDIS_LOGGING_RECONNECT_MAX_DELAY", 30*time.Second),
		MaxRetries:    getenvInt("REDIS_LOGGING_MAX_RETRIES", 3),
		ProbeInterval: getenvDuration("REDIS_LOGGING_PROBE_INTERVAL", 30*time.Second),

		BatchSize:      getenvInt("REDIS_LOGGING_BATCH_SIZE", 100),
		FlushInterval:  getenvDuration("REDIS_LOGGING_FLUSH_INTERVAL", 5*time.Second),
		FlushRetries:   getenvInt("REDIS_LOGGING_FLUSH_RETRIES", 3),
		FlushRetryWait: getenvDuration("REDIS_LOGGING_FLUSH_RETRY_WAIT", 200*time.Millisecond),

		FallbackLocal:  getenvBool("REDIS_LOGGING_FALLBACK_LOCAL", true),
		LocalCapacity:  getenvInt("REDIS_LOGGING_LOCAL_CAPACITY", 10000),
		OverflowPolicy: getenv("REDIS_LOGGING_OVERFLOW_POLICY", "reject_new"),

		LogDir:     getenv("LOG_DIR", "logs"),
		SinkFile:   getenv("LOG_SINK_FILE", "url_access.log"),
		RotateSize: getenvInt64("LOG_ROTATE_SIZE", 10*1024*1024),
		Retention:  getenvDuration("LOG_RETENTION", 7*24*time.Hour),

		ShutdownGrace:   getenvDuration("TELEMETRY_SHUTDOWN_GRACE", 10*time.Second),
		StatusAddr:      os.Getenv("TELEMETRY_STATUS_ADDR"),
		StatusTokenHash: os.Getenv("TELEMETRY_STATUS_TOKEN_HASH"),
		LogLevel:        getenv("TELEMETRY_LOG_LEVEL", "info"),
	}
}

// Validate rejects configurations the pipeline cannot run with. This is
// the only failure in the subsystem that is allowed to stop startup.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("config: flush interval must be positive, got %v", c.FlushInterval)
	}
	if c.FallbackLocal && c.LocalCapacity <= 0 {
		return fmt.Errorf("config: local queue capacity must be positive, got %d", c.LocalCapacity)
	}
	switch c.OverflowPolicy {
	case "reject_new", "evict_oldest":
	default:
		return fmt.Errorf("config: unknown overflow policy %q", c.OverflowPolicy)
	}
	if c.Enabled {
		if c.BrokerAddr == "" {
			return fmt.Errorf("config: broker address is required when Redis logging is enabled")
		}
		if c.ReconnectBase <= 0 || c.ReconnectMax < c.ReconnectBase {
			return fmt.Errorf("config: reconnect delays invalid (base %v, max %v)", c.ReconnectBase, c.ReconnectMax)
		}
		if c.MaxRetries <= 0 {
			return fmt.Errorf("config: max retries must be positive, got %d", c.MaxRetries)
		}
		if c.OpTimeout <= 0 {
			return fmt.Errorf("config: operation timeout must be positive, got %v", c.OpTimeout)
		}
	}
	if c.LogDir == "" || c.SinkFile == "" {
		return fmt.Errorf("config: log directory and sink file are required")
	}
	if c.RotateSize <= 0 {
		return fmt.Errorf("config: rotate size must be positive, got %d", c.RotateSize)
	}
	if c.Retention < 0 {
		return fmt.Errorf("config: retention must not be negative, got %v", c.Retention)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("config: shutdown grace must be positive, got %v", c.ShutdownGrace)
	}
	return nil
}

// SinkPath is the absolute or relative path of the active sink file.
func (c Config) SinkPath() string {
	return filepath.Join(c.LogDir, c.SinkFile)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are treated as seconds, matching the original deployment.
		if secs, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			return time.Duration(secs * float64(time.Second))
		}
		return fallback
	}
	return d
}
