package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/config"
	"github.com/sajadsoltanist/url-shortener/internal/pipeline"
	"github.com/sajadsoltanist/url-shortener/internal/server"
)

// telemetryd runs the consumer side of the access-log pipeline as a
// standalone process: it drains the shared broker queue written by the
// web service instances and persists events to the durable sink.
func main() {
	cfg := config.Load()

	// 1. Structured logging to stderr; the sink owns stdout-adjacent files.
	initLogging(cfg.LogLevel)

	// 2. Build the pipeline. Config validation failures are fatal here and
	// nowhere else.
	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Invalid telemetry configuration: %v", err)
	}

	slog.Info("telemetryd starting",
		"broker", cfg.BrokerAddr, "queue", cfg.QueueKey,
		"batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval,
		"sink", cfg.SinkPath(), "retention", cfg.Retention)

	// 3. Start background tasks: broker client, consumer, retention sweep.
	p.Start()

	// 4. Optional status surface.
	var statusSrv *server.StatusServer
	if cfg.StatusAddr != "" {
		statusSrv = server.NewStatusServer(p, cfg.StatusTokenHash)
		go func() {
			if err := statusSrv.Start(cfg.StatusAddr); err != nil {
				slog.Error("status server stopped", "error", err)
			}
		}()
	}

	// 5. Block until a shutdown signal, then drain within the grace period.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	if statusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusSrv.Shutdown(ctx); err != nil {
			slog.Error("status server shutdown error", "error", err)
		}
		cancel()
	}

	if err := p.Stop(cfg.ShutdownGrace); err != nil {
		slog.Error("pipeline shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("telemetryd exited gracefully")
}

func initLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
