package obs

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StatusRecorder captures the status and size of a response.
type StatusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

// NewStatusRecorder wraps w; the status defaults to 200.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *StatusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *StatusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += int64(n)
	return n, err
}

func (sr *StatusRecorder) Status() int        { return sr.status }
func (sr *StatusRecorder) BytesWritten() int64 { return sr.bytes }

// HTTPObs records request metrics.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

// Middleware observes every request once it has been served.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewStatusRecorder(w)
		o.Metrics.InFlight.Inc()
		defer o.Metrics.InFlight.Dec()
		start := time.Now()
		next.ServeHTTP(rec, r)

		op := Operation(r)
		o.Metrics.ReqTotal.WithLabelValues(r.Method, op, strconv.Itoa(rec.Status()), outcome(rec)).Inc()
		o.Metrics.ReqDur.WithLabelValues(r.Method, op).Observe(DurationMillis(time.Since(start)))
	})
}

// TracingMiddleware opens a server span per request. The span is renamed to
// the operation once it is known, and envelope failures mark it as an error.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("sponsor-api/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		rec := NewStatusRecorder(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		op := Operation(r)
		span.SetName(r.Method + " " + op)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", op),
			attribute.Int("http.status_code", rec.Status()),
		)
		if res := outcome(rec); res != "ok" {
			span.SetAttributes(attribute.String("sponsor.error_code", res))
			span.SetStatus(codes.Error, res)
		} else if rec.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.Status()))
		}
	})
}
