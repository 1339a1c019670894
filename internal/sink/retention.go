package sink

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RunRetention periodically deletes rotated archives older than the
// retention window. A retention of zero disables the sweep. Blocks until
// done is closed.
func (w *Writer) RunRetention(retention, interval time.Duration, done <-chan struct{}) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("sink retention sweeper started", "retention", retention, "interval", interval)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.sweepExpired(retention)
		}
	}
}

// sweepExpired removes rotated files whose embedded rotation timestamp is
// past the retention threshold.
func (w *Writer) sweepExpired(retention time.Duration) {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		slog.Error("sink retention: read log dir failed", "error", err)
		return
	}

	threshold := time.Now().Add(-retention).Unix()
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == base {
			continue
		}
		stamp, ok := rotationStamp(base, entry.Name())
		if !ok {
			continue
		}
		if stamp < threshold {
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				slog.Error("sink retention: delete failed", "file", entry.Name(), "error", err)
			} else {
				slog.Info("sink retention: expired archive deleted", "file", entry.Name())
			}
		}
	}
}

// rotationStamp extracts the unix timestamp from a rotated file name.
// Rotated names look like {base}.{unixts}.zst, or {base}.{unixts} when
// compression was skipped.
func rotationStamp(base, name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, base+".")
	if !ok {
		return 0, false
	}
	rest = strings.TrimSuffix(rest, ".zst")
	ts, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
