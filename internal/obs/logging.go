// Package obs holds the logging, metrics and tracing plumbing shared by the
// API, the worker and the operator tool.
package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// NewLogger builds the process logger. format is json (default) or
// console/text; an unknown level falls back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger writes one line per request.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware logs after the handler returns. Envelope failures and middleware
// rejections are logged at warn with their error code.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		res := outcome(rec)
		evt := l.Logger.Info()
		if res != "ok" || rec.Status() >= http.StatusBadRequest {
			evt = l.Logger.Warn()
		}
		evt = evt.
			Str("method", r.Method).
			Str("operation", Operation(r)).
			Str("path", r.URL.Path).
			Int("status", rec.Status()).
			Str("outcome", res).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context()))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if admin, ok := common.AdminSubject(r.Context()); ok && admin != "" {
			evt = evt.Str("admin", admin)
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
