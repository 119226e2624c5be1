package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/obs"
)

// Dispatcher serves the single-endpoint interface older front-ends post to:
// the operation is chosen by a type (or mode) parameter instead of the path.
type Dispatcher struct {
	Handlers Handlers
	Logger   zerolog.Logger
}

// Post routes by ?type=, ?mode= or the JSON body's "type" field.
func (d Dispatcher) Post(w http.ResponseWriter, r *http.Request) {
	kind := firstParam(r, "type", "mode")
	if kind == "" && r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			common.Fail(w, common.Wrap(common.ErrInvalidOrder, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		var probe struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(body, &probe) == nil {
			kind = strings.TrimSpace(probe.Type)
		}
	}

	var next http.Handler
	switch kind {
	case "createOrder":
		next = d.Handlers.CreateOrder
	case "finalizeOrder":
		next = d.Handlers.FinalizeOrder
	case "paypalWebhook":
		next = d.Handlers.PayPalWebhook
	case "payfastItn":
		next = d.Handlers.PayFastITN
	default:
		d.Logger.Warn().Str("type", kind).Msg("unknown dispatcher type")
		common.Fail(w, common.Errorf(common.ErrUnknownType, "Unknown type: %s", kind))
		return
	}
	obs.SetOperation(r.Context(), "exec:"+kind)
	next.ServeHTTP(w, r)
}

// Get routes by ?mode= or ?type= (json in any case); anything else reports
// service health.
func (d Dispatcher) Get(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.EqualFold(firstParam(r, "mode", "type"), "json"):
		obs.SetOperation(r.Context(), "exec:catalogue")
		d.Handlers.Catalogue.ServeHTTP(w, r)
	case firstParam(r, "type", "mode") == "paypalReturn":
		obs.SetOperation(r.Context(), "exec:paypalReturn")
		d.Handlers.PayPalReturn.ServeHTTP(w, r)
	default:
		d.Handlers.Service.ServeHTTP(w, r)
	}
}

func firstParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
