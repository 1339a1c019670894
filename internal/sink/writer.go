// Package sink persists flushed event batches as append-only NDJSON with
// size-based rotation and age-based retention. Rotated files are
// zstd-compressed.
package sink

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

const defaultBufSize = 64 * 1024 // 64KB

// Writer appends serialized events to a log file, one JSON object per
// line, rotating to a compressed archive when the file exceeds maxSize.
type Writer struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
	w       *bufio.Writer
	written int64
	encoder *zstd.Encoder
}

// NewWriter opens (or creates) the sink file in append mode so process
// restarts never truncate history.
func NewWriter(path string, maxSize int64) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sink: create log dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("sink: zstd encoder: %w", err)
	}
	w := &Writer{
		path:    path,
		maxSize: maxSize,
		encoder: enc,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteBatch appends every event in the batch and flushes the buffer once
// at the end. Line framing means a failure mid-batch cannot corrupt
// records already on disk.
func (w *Writer) WriteBatch(events []model.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ev := range events {
		data, err := ev.EncodeJSON()
		if err != nil {
			return fmt.Errorf("sink: encode: %w", err)
		}
		data = append(data, '\n')

		if w.written > 0 && w.written+int64(len(data)) > w.maxSize {
			if err := w.rotate(); err != nil {
				return fmt.Errorf("sink: rotate: %w", err)
			}
		}

		n, err := w.w.Write(data)
		w.written += int64(n)
		if err != nil {
			return fmt.Errorf("sink: write: %w", err)
		}
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("sink: flush: %w", err)
	}
	return nil
}

// Close flushes pending output and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("sink: flush: %w", err)
	}
	return w.f.Close()
}

func (w *Writer) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("sink: stat %s: %w", w.path, err)
	}
	w.f = f
	w.w = bufio.NewWriterSize(f, defaultBufSize)
	w.written = info.Size()
	return nil
}

// rotate closes the active file and archives it as {path}.{unixts}.zst.
// If compression fails the plain file is renamed instead so no records
// are lost.
func (w *Writer) rotate() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}

	stamp := time.Now().Unix()
	for {
		if _, err := os.Stat(fmt.Sprintf("%s.%d.zst", w.path, stamp)); os.IsNotExist(err) {
			break
		}
		stamp++
	}
	plain := fmt.Sprintf("%s.%d", w.path, stamp)

	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	compressed := w.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if err := os.WriteFile(plain+".zst", compressed, 0644); err != nil {
		slog.Warn("sink: compress rotated file failed, keeping plain copy", "error", err)
		if err := os.Rename(w.path, plain); err != nil {
			return err
		}
	} else if err := os.Remove(w.path); err != nil {
		return err
	}

	w.written = 0
	return w.openFile()
}
