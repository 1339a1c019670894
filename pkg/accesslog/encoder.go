package accesslog

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sajadsoltanist/url-shortener/internal/model"
)

// Observation is the raw request/response data captured by the middleware.
type Observation struct {
	RequestID  string
	ClientIP   string
	Method     string
	Path       string
	Query      string
	UserAgent  string
	StatusCode int
	Duration   time.Duration
}

// EncodeEvent turns an observation into a self-contained log event. Pure:
// no I/O, no failure path — unrepresentable values are coerced to strings
// by the event model.
func EncodeEvent(o Observation) model.Event {
	level := model.LevelInfo
	switch {
	case o.StatusCode >= 500:
		level = model.LevelError
	case o.StatusCode >= 400:
		level = model.LevelWarn
	}

	fields := []model.Field{
		{Key: "client_ip", Value: o.ClientIP},
		{Key: "method", Value: o.Method},
		{Key: "path", Value: o.Path},
		{Key: "status_code", Value: o.StatusCode},
		{Key: "process_time_ms", Value: float64(o.Duration.Microseconds()) / 1000},
	}
	if o.Query != "" {
		fields = append(fields, model.Field{Key: "query", Value: o.Query})
	}
	if o.UserAgent != "" {
		fields = append(fields, model.Field{Key: "user_agent", Value: o.UserAgent})
	}

	msg := fmt.Sprintf("%s %s %d", o.Method, o.Path, o.StatusCode)
	return model.NewEvent(level, o.RequestID, msg, fields...)
}

// ClientIP extracts the client address, preferring the first entry of
// X-Forwarded-For when a proxy set it.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
