package accesslog

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

type captureEnqueuer struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *captureEnqueuer) Enqueue(ev model.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func fieldValue(ev model.Event, key string) (any, bool) {
	for _, f := range ev.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func TestMiddleware_RecordsOneEventPerRequest(t *testing.T) {
	rec := &captureEnqueuer{}
	handler := Middleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/abc123?src=qr", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
	if len(rec.events) != 1 {
		t.Fatalf("captured %d events, want 1", len(rec.events))
	}

	ev := rec.events[0]
	if ev.Level != model.LevelWarn {
		t.Errorf("level = %v, want WARN for a 404", ev.Level)
	}
	if ev.CorrelationID != w.Header().Get("X-Request-ID") {
		t.Error("correlation id does not match the response header")
	}
	if v, _ := fieldValue(ev, "method"); v != "GET" {
		t.Errorf("method = %v", v)
	}
	if v, _ := fieldValue(ev, "path"); v != "/abc123" {
		t.Errorf("path = %v", v)
	}
	if v, _ := fieldValue(ev, "status_code"); v != http.StatusNotFound {
		t.Errorf("status_code = %v", v)
	}
	if v, _ := fieldValue(ev, "query"); v != "src=qr" {
		t.Errorf("query = %v", v)
	}
	if v, _ := fieldValue(ev, "user_agent"); v != "curl/8.0" {
		t.Errorf("user_agent = %v", v)
	}
	if _, ok := fieldValue(ev, "process_time_ms"); !ok {
		t.Error("process_time_ms missing")
	}
}

func TestMiddleware_DefaultStatusIs200(t *testing.T) {
	rec := &captureEnqueuer{}
	handler := Middleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // implicit 200, WriteHeader never called
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

	if len(rec.events) != 1 {
		t.Fatal("no event captured")
	}
	if v, _ := fieldValue(rec.events[0], "status_code"); v != http.StatusOK {
		t.Errorf("status_code = %v, want 200", v)
	}
	if rec.events[0].Level != model.LevelInfo {
		t.Errorf("level = %v, want INFO", rec.events[0].Level)
	}
}

func TestEncodeEvent_LevelByStatus(t *testing.T) {
	cases := []struct {
		status int
		want   model.Level
	}{
		{200, model.LevelInfo},
		{301, model.LevelInfo},
		{404, model.LevelWarn},
		{500, model.LevelError},
	}
	for _, tc := range cases {
		ev := EncodeEvent(Observation{
			RequestID:  "r",
			Method:     "GET",
			Path:       "/",
			StatusCode: tc.status,
			Duration:   time.Millisecond,
		})
		if ev.Level != tc.want {
			t.Errorf("status %d: level = %v, want %v", tc.status, ev.Level, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	if got := ClientIP(r); got != "192.0.2.10" {
		t.Errorf("remote addr: got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.5" {
		t.Errorf("forwarded: got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("single forwarded: got %q", got)
	}
}
