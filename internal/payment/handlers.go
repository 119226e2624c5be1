package payment

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
)

const maxNotificationBytes = 1 << 20

// Handler exposes the provider-facing endpoints: PayPal webhook and browser
// return, PayFast ITN. Every outcome is answered with HTTP 200.
type Handler struct {
	PayPal      *PayPal
	PayFast     *PayFast
	Replay      ReplayGuard
	Events      reconcile.Emitter
	ThankYouURL string
	Logger      zerolog.Logger
}

// PayPalWebhook handles POST /paypal/webhook.
func (h *Handler) PayPalWebhook(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.PayPal == nil {
		common.Fail(w, common.Errorf(common.ErrMissingConfig, "paypal webhook unavailable"))
		return
	}
	body, err := readBody(r)
	if err != nil {
		h.record(ProviderPayPal, "webhook", err)
		common.Fail(w, err)
		return
	}
	h.guarded(r.Context(), w, ProviderPayPal, "webhook", body, func(ctx context.Context) (map[string]any, error) {
		res, err := h.PayPal.HandleWebhook(ctx, r, body)
		if err != nil {
			return nil, err
		}
		h.emit(ctx, res.OrderID, map[string]any{
			"provider":  ProviderPayPal,
			"source":    "webhook",
			"eventId":   res.EventID,
			"eventType": res.EventType,
			"txnId":     res.TxnID,
			"ignored":   res.Ignored,
		})
		out := map[string]any{"orderId": res.OrderID}
		if res.Ignored {
			out["ignored"] = true
		}
		return out, nil
	})
}

// PayFastITN handles POST /payfast/itn.
func (h *Handler) PayFastITN(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.PayFast == nil {
		common.Fail(w, common.Errorf(common.ErrMissingConfig, "payfast notifications unavailable"))
		return
	}
	body, err := readBody(r)
	if err != nil {
		h.record(ProviderPayFast, "itn", err)
		common.Fail(w, err)
		return
	}
	h.guarded(r.Context(), w, ProviderPayFast, "itn", body, func(ctx context.Context) (map[string]any, error) {
		n, err := h.PayFast.HandleNotification(ctx, string(body))
		if err != nil {
			return nil, err
		}
		h.emit(ctx, n.OrderID, map[string]any{
			"provider": ProviderPayFast,
			"source":   "itn",
			"status":   n.Status,
			"amount":   n.Amount.StringFixed(2),
			"txnId":    n.TxnID,
		})
		return map[string]any{}, nil
	})
}

// PayPalReturn handles GET /paypal/return and answers with an HTML redirect
// to the thank-you page.
func (h *Handler) PayPalReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID := strings.TrimSpace(q.Get("orderId"))
	if orderID == "" {
		writeHTML(w, "<html><body>Missing order ID</body></html>")
		return
	}
	if h == nil || h.PayPal == nil {
		writeHTML(w, "<html><body>Error during PayPal return</body></html>")
		return
	}
	res, err := h.PayPal.HandleReturn(r.Context(), orderID, q.Get("token"), q.Get("ok") == "1")
	h.record(ProviderPayPal, "return", err)
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("paypal return failed")
		writeHTML(w, "<html><body>Error during PayPal return</body></html>")
		return
	}
	h.emit(r.Context(), orderID, map[string]any{
		"provider":      ProviderPayPal,
		"source":        "return",
		"txnId":         res.TxnID,
		"unverified":    res.Unverified,
		"captureFailed": res.CaptureFailed,
	})
	target := html.EscapeString(h.ThankYouURL)
	writeHTML(w, fmt.Sprintf(`<html><head><meta http-equiv="refresh" content="0;url=%s" /></head><body>Redirecting...</body></html>`, target))
}

// guarded runs fn once per distinct body. The claim is dropped when fn fails
// so a provider retry is processed again; a replay store outage never blocks
// processing.
func (h *Handler) guarded(ctx context.Context, w http.ResponseWriter, provider, source string, body []byte, fn func(context.Context) (map[string]any, error)) {
	key := ReplayKey(provider, body)
	fresh, err := h.Replay.Acquire(ctx, key)
	if err != nil {
		h.Logger.Warn().Err(err).Str("provider", provider).Msg("replay guard unavailable")
		fresh = true
	}
	if !fresh {
		obs.Inc(obs.PaymentNotificationTotal, provider, source, "duplicate")
		common.OK(w, map[string]any{"duplicate": true})
		return
	}
	out, err := fn(ctx)
	h.record(provider, source, err)
	if err != nil {
		if rerr := h.Replay.Release(ctx, key); rerr != nil {
			h.Logger.Warn().Err(rerr).Str("provider", provider).Msg("replay guard release failed")
		}
		h.Logger.Warn().Err(err).Str("provider", provider).Str("source", source).Str("code", common.CodeOf(err)).Msg("payment notification rejected")
		common.Fail(w, err)
		return
	}
	common.OK(w, out)
}

func (h *Handler) record(provider, source string, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(common.CodeOf(err))
	}
	obs.Inc(obs.PaymentNotificationTotal, provider, source, result)
}

func (h *Handler) emit(ctx context.Context, orderID string, payload map[string]any) {
	if h.Events == nil || orderID == "" {
		return
	}
	if _, err := h.Events.Emit(ctx, events.TopicPaymentNotification, orderID, payload); err != nil {
		h.Logger.Warn().Err(err).Str("order_id", orderID).Msg("emit payment.notification failed")
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, common.Errorf(common.ErrMalformedWebhook, "no body")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		return nil, common.Wrap(common.ErrMalformedWebhook, err)
	}
	return body, nil
}

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}
