package model

import (
	"testing"
	"time"
)

func TestEncodeJSON_Deterministic(t *testing.T) {
	ev := Event{
		Timestamp:     time.Unix(0, 123),
		Level:         LevelInfo,
		CorrelationID: "req-1",
		Message:       "GET /abc 200",
		Fields: []Field{
			{Key: "status_code", Value: 200},
			{Key: "path", Value: "/abc"},
		},
	}

	want := `{"timestamp":123,"level":"INFO","correlation_id":"req-1","message":"GET /abc 200","status_code":200,"path":"/abc"}`
	for i := 0; i < 3; i++ {
		data, err := ev.EncodeJSON()
		if err != nil {
			t.Fatalf("EncodeJSON failed: %v", err)
		}
		if string(data) != want {
			t.Errorf("encoding %d:\n got %s\nwant %s", i, data, want)
		}
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	ev := Event{
		Timestamp:     time.Unix(0, 456789),
		Level:         LevelWarn,
		CorrelationID: "req-2",
		Message:       "POST /urls 404",
		Fields: []Field{
			{Key: "client_ip", Value: "10.0.0.1"},
			{Key: "status_code", Value: 404},
			{Key: "process_time_ms", Value: 1.5},
			{Key: "cached", Value: true},
		},
	}

	data, err := ev.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}

	var codec Codec
	got, err := codec.DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}

	if !got.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ev.Timestamp)
	}
	if got.Level != LevelWarn {
		t.Errorf("level = %v, want WARN", got.Level)
	}
	if got.CorrelationID != "req-2" || got.Message != ev.Message {
		t.Errorf("identity fields mangled: %+v", got)
	}
	if len(got.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(got.Fields))
	}
	// Insertion order must survive the round trip.
	wantKeys := []string{"client_ip", "status_code", "process_time_ms", "cached"}
	for i, k := range wantKeys {
		if got.Fields[i].Key != k {
			t.Errorf("field %d key = %q, want %q", i, got.Fields[i].Key, k)
		}
	}
	if got.Fields[1].Value != int64(404) {
		t.Errorf("status_code = %v (%T), want 404", got.Fields[1].Value, got.Fields[1].Value)
	}
	if got.Fields[2].Value != 1.5 {
		t.Errorf("process_time_ms = %v, want 1.5", got.Fields[2].Value)
	}
	if got.Fields[3].Value != true {
		t.Errorf("cached = %v, want true", got.Fields[3].Value)
	}
}

func TestDecodeBytes_Malformed(t *testing.T) {
	var codec Codec
	if _, err := codec.DecodeBytes([]byte("{not json")); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestCoerceScalar(t *testing.T) {
	if v := CoerceScalar("s"); v != "s" {
		t.Errorf("string changed: %v", v)
	}
	if v := CoerceScalar(42); v != 42 {
		t.Errorf("int changed: %v", v)
	}
	type loc struct{ X int }
	if v := CoerceScalar(loc{X: 1}); v != "{1}" {
		t.Errorf("struct not coerced to string form: %v (%T)", v, v)
	}
	if v := CoerceScalar([]int{1, 2}); v != "[1 2]" {
		t.Errorf("slice not coerced: %v", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":    LevelDebug,
		"INFO":     LevelInfo,
		"Warning":  LevelWarn,
		"ERROR":    LevelError,
		"critical": LevelCritical,
		"bogus":    LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
