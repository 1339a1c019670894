// Package accesslog is the request-side adapter of the telemetry pipeline:
// an http middleware that records one event per request/response cycle
// without adding latency to the handler path.
package accesslog

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

// Enqueuer accepts events fire-and-forget. Implemented by
// pipeline.Dispatcher.
type Enqueuer interface {
	Enqueue(ev model.Event)
}

// Middleware wraps a handler so every completed request produces one
// telemetry event. The enqueue happens after the response is written and
// never blocks or fails the request.
func Middleware(q Enqueuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			w.Header().Set("X-Request-ID", requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			q.Enqueue(EncodeEvent(Observation{
				RequestID:  requestID,
				ClientIP:   ClientIP(r),
				Method:     r.Method,
				Path:       r.URL.Path,
				Query:      r.URL.RawQuery,
				UserAgent:  r.UserAgent(),
				StatusCode: rec.status,
				Duration:   time.Since(start),
			}))
		})
	}
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
