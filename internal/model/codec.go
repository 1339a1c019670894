package model

import (
	"fmt"
	"time"

	"github.com/valyala/fastjson"
)

// Codec decodes events that come back off the broker queue. Parsers are
// pooled because the consumer decodes in a tight loop.
type Codec struct {
	pool fastjson.ParserPool
}

// DecodeBytes parses one serialized event. Unknown keys become extra
// fields, in document order, so a decode/encode round trip is stable.
func (c *Codec) DecodeBytes(data []byte) (Event, error) {
	p := c.pool.Get()
	defer c.pool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	ev := Event{
		Level:         ParseLevel(string(v.GetStringBytes("level"))),
		CorrelationID: string(v.GetStringBytes("correlation_id")),
		Message:       string(v.GetStringBytes("message")),
	}

	ts := v.GetInt64("timestamp")
	if ts == 0 {
		ts = time.Now().UnixNano()
	}
	ev.Timestamp = time.Unix(0, ts)

	obj, err := v.Object()
	if err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	obj.Visit(func(key []byte, val *fastjson.Value) {
		switch string(key) {
		case "timestamp", "level", "correlation_id", "message":
			return
		}
		ev.Fields = append(ev.Fields, Field{Key: string(key), Value: scalarValue(val)})
	})

	return ev, nil
}

func scalarValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		f := v.GetFloat64()
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	default:
		// Nested structures are not part of the event model; keep the raw form.
		return v.String()
	}
}
