package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

// DeadLetter is the last-resort store for batches the sink kept refusing.
// Records are length-prefixed JSON so a torn write at the tail cannot
// corrupt earlier entries, and Replay can recover them after the fault is
// fixed.
type DeadLetter struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// OpenDeadLetter opens or creates the dead-letter file at path.
func OpenDeadLetter(path string) (*DeadLetter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("deadletter: open %s: %w", path, err)
	}
	return &DeadLetter{file: f, path: path}, nil
}

// Write appends every event in the batch. Format: [Len uint32][JSON bytes].
func (d *DeadLetter) Write(events []model.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ev := range events {
		data, err := ev.EncodeJSON()
		if err != nil {
			return fmt.Errorf("deadletter: encode: %w", err)
		}

		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
		if _, err := d.file.Write(lenBuf); err != nil {
			return fmt.Errorf("deadletter: write: %w", err)
		}
		if _, err := d.file.Write(data); err != nil {
			return fmt.Errorf("deadletter: write: %w", err)
		}
	}
	return d.file.Sync()
}

// Replay reads back every stored event.
func (d *DeadLetter) Replay() ([]model.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.file.Seek(0, 0); err != nil {
		return nil, err
	}

	var codec model.Codec
	var events []model.Event
	for {
		lenBuf := make([]byte, 4)
		_, err := io.ReadFull(d.file, lenBuf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return events, fmt.Errorf("deadletter replay (len): %w", err)
		}

		length := binary.LittleEndian.Uint32(lenBuf)
		data := make([]byte, length)
		if _, err := io.ReadFull(d.file, data); err != nil {
			return events, fmt.Errorf("deadletter replay (data): %w", err)
		}

		ev, err := codec.DecodeBytes(data)
		if err != nil {
			return events, fmt.Errorf("deadletter replay (decode): %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Reset truncates the file, typically after a successful replay.
func (d *DeadLetter) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.file.Truncate(0); err != nil {
		return err
	}
	_, err := d.file.Seek(0, 0)
	return err
}

// Close closes the underlying file.
func (d *DeadLetter) Close() error {
	return d.file.Close()
}
