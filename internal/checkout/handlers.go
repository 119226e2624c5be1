package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// Handler exposes order creation over HTTP.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Create handles POST /api/v1/orders and the createOrder dispatcher type.
// Failures are reported in the payload with HTTP 200.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.Fail(w, common.Errorf(common.ErrMissingConfig, "checkout service not configured"))
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.Fail(w, common.Errorf(common.ErrInvalidOrder, "invalid payload"))
		return
	}
	out, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		h.Logger.Warn().Err(err).Str("code", common.CodeOf(err)).Msg("create order failed")
		common.Fail(w, err)
		return
	}
	common.OK(w, out.Payload())
}
