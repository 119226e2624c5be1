package order

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// Handler exposes order lookup and the admin finalize endpoint.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Get handles GET /api/v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Svc.Status(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, map[string]any{"order": sum})
}

type finalizeBody struct {
	OrderID string         `json:"orderId"`
	Email   string         `json:"email"`
	Books   []string       `json:"books"`
	Meta    *FinalizeInput `json:"meta"`
}

// Finalize handles POST /api/v1/orders/{orderId}/finalize and the
// finalizeOrder dispatcher type, whose body is {orderId, meta:{email, books}}.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var body finalizeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.Fail(w, common.Errorf(common.ErrInvalidOrder, "invalid payload"))
		return
	}
	in := FinalizeInput{OrderID: body.OrderID, Email: body.Email, Books: body.Books}
	if body.Meta != nil {
		if in.Email == "" {
			in.Email = body.Meta.Email
		}
		if len(in.Books) == 0 {
			in.Books = body.Meta.Books
		}
	}
	if id := chi.URLParam(r, "orderId"); id != "" {
		in.OrderID = id
	}
	res, err := h.Svc.Finalize(r.Context(), in)
	if err != nil {
		h.Logger.Warn().Err(err).Str("order_id", in.OrderID).Msg("finalize failed")
		common.Fail(w, err)
		return
	}
	admin, _ := common.AdminSubject(r.Context())
	h.Logger.Info().Str("order_id", res.OrderID).Str("admin", admin).Strs("books", res.Books).Msg("order finalized")
	common.OK(w, map[string]any{"orderId": res.OrderID, "books": res.Books})
}
