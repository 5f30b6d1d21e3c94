package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/config"
	"github.com/safar/go-bookstore/internal/tracing"
)

const RequestIDHeader = "X-Request-ID"

func New(cfg config.LogConfig, service string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
}

// Middleware stores a request-scoped child logger in the request context,
// tagged with the request id and trace id, and echoes the request id.
func Middleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := r.Context()
			logCtx := base.With().Str("request_id", requestID)
			if traceID := tracing.TraceID(ctx); traceID != "" {
				logCtx = logCtx.Str("trace_id", traceID)
			}
			logger := logCtx.Logger()

			next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
		})
	}
}
