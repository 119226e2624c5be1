package catalog

import (
	"net/http"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// Handler serves the catalogue JSON.
type Handler struct {
	Svc *Service
}

// Catalogue handles GET /api/v1/catalogue and the mode=json dispatcher route.
func (h *Handler) Catalogue(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Load(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	common.OK(w, map[string]any{"records": res.Records, "teamList": res.TeamList})
}
