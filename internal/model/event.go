package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field is a single key/value pair attached to an Event. Fields keep their
// insertion order so serialization is deterministic.
type Field struct {
	Key   string
	Value any
}

// Event is one structured access-log record. It is built once by the
// encoder and never mutated after it enters a queue.
type Event struct {
	Timestamp     time.Time // wall clock; carries Go's monotonic reading when built from time.Now
	Level         Level
	CorrelationID string
	Message       string
	Fields        []Field
}

// NewEvent builds an event with the current time. Field values are coerced
// to scalars (see CoerceScalar); building never fails.
func NewEvent(level Level, correlationID, message string, fields ...Field) Event {
	for i := range fields {
		fields[i].Value = CoerceScalar(fields[i].Value)
	}
	return Event{
		Timestamp:     time.Now(),
		Level:         level,
		CorrelationID: correlationID,
		Message:       message,
		Fields:        fields,
	}
}

// CoerceScalar maps a value to something JSON-scalar. Strings, booleans,
// integers and floats pass through; everything else becomes its fmt.Sprint
// string form.
func CoerceScalar(v any) any {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// EncodeJSON renders the event as a single JSON object. Fixed keys come
// first, then extra fields in insertion order, so identical events always
// produce identical bytes.
func (e Event) EncodeJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	fmt.Fprintf(&buf, `"timestamp":%d`, e.Timestamp.UnixNano())
	fmt.Fprintf(&buf, `,"level":%q`, e.Level.String())
	if err := writePair(&buf, "correlation_id", e.CorrelationID); err != nil {
		return nil, err
	}
	if err := writePair(&buf, "message", e.Message); err != nil {
		return nil, err
	}
	for _, f := range e.Fields {
		if err := writePair(&buf, f.Key, f.Value); err != nil {
			return nil, fmt.Errorf("encode field %s: %w", f.Key, err)
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writePair(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.WriteByte(',')
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
