package sink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

func TestDeadLetter_WriteReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletter.wal")
	d, err := OpenDeadLetter(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	batch := []model.Event{
		{Timestamp: time.Unix(0, 10), Level: model.LevelInfo, CorrelationID: "a", Message: "one"},
		{Timestamp: time.Unix(0, 20), Level: model.LevelError, CorrelationID: "b", Message: "two",
			Fields: []model.Field{{Key: "status_code", Value: 500}}},
	}
	if err := d.Write(batch); err != nil {
		t.Fatal(err)
	}

	got, err := d.Replay()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("replayed %d events, want 2", len(got))
	}
	if got[0].Message != "one" || got[1].Message != "two" {
		t.Errorf("messages = %q, %q", got[0].Message, got[1].Message)
	}
	if got[1].Level != model.LevelError {
		t.Errorf("level = %v, want ERROR", got[1].Level)
	}
	if len(got[1].Fields) != 1 || got[1].Fields[0].Value != int64(500) {
		t.Errorf("fields not preserved: %v", got[1].Fields)
	}
}

func TestDeadLetter_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletter.wal")
	d, err := OpenDeadLetter(path)
	if err != nil {
		t.Fatal(err)
	}
	d.Write([]model.Event{{Timestamp: time.Unix(0, 1), Message: "persisted"}})
	d.Close()

	d2, err := OpenDeadLetter(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()
	got, err := d2.Replay()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "persisted" {
		t.Errorf("replay after reopen = %v", got)
	}
}

func TestDeadLetter_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deadletter.wal")
	d, err := OpenDeadLetter(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	d.Write([]model.Event{{Timestamp: time.Unix(0, 1), Message: "gone"}})
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	got, err := d.Replay()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("replay after reset = %v, want empty", got)
	}
}
