package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/unity-actor/internal/metrics"
)

const correlationHeader = "X-Correlation-ID"

type correlationKey struct{}

// CorrelationID tags every request with an id, taken from the
// X-Correlation-ID header or freshly generated, and echoes it back.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

// CorrelationIDFrom returns the id CorrelationID stored on the request.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// RequestLogger logs every request through chi's LogFormatter hooks and
// reports it to collector when one is given.
func RequestLogger(logger zerolog.Logger, collector *metrics.Collector) func(next http.Handler) http.Handler {
	return chimw.RequestLogger(&formatter{logger: logger, metrics: collector})
}

type formatter struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func (f *formatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	id := CorrelationIDFrom(r.Context())
	if id == "" {
		id = r.Header.Get(correlationHeader)
	}
	e := &entry{
		logger: f.logger.With().
			Str("correlation_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger(),
		metrics: f.metrics,
		method:  r.Method,
		path:    r.URL.Path,
	}
	e.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Request started")
	return e
}

type entry struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
	method  string
	path    string
}

func (e *entry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.WithLevel(levelFor(status)).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("Request completed")
	if e.metrics != nil {
		e.metrics.APIRequest(e.method, e.path, status, elapsed)
	}
}

func (e *entry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("Request panic")
}

func levelFor(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
