package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/sponsor-api/internal/common"
)

type operationKey struct{}

// operationSlot is filled in by handlers deeper in the chain; the value is
// read back after the handler returns.
type operationSlot struct{ name string }

// TrackOperation installs a slot that SetOperation writes into.
func TrackOperation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), operationKey{}, &operationSlot{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetOperation names the logical operation served by this request, for
// example the dispatcher type behind /exec.
func SetOperation(ctx context.Context, name string) {
	if slot, ok := ctx.Value(operationKey{}).(*operationSlot); ok && name != "" {
		slot.name = name
	}
}

// Operation returns the label for r: the name recorded by SetOperation, else
// the matched chi route, else "unknown". Call it after the handler ran.
func Operation(r *http.Request) string {
	ctx := r.Context()
	if slot, ok := ctx.Value(operationKey{}).(*operationSlot); ok && slot.name != "" {
		return slot.name
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

// outcome is "ok" or the error code the handler reported.
func outcome(w http.ResponseWriter) string {
	if code := w.Header().Get(common.ErrorCodeHeader); code != "" {
		return code
	}
	return "ok"
}
