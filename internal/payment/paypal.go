package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/plutov/paypal/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/pricing"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
)

// PayPalConfig configures the hosted checkout gateway.
type PayPalConfig struct {
	APIBase   string
	ClientID  string
	Secret    string
	WebhookID string
	BrandName string
	// PublicBaseURL is where PayPal sends the sponsor back to.
	PublicBaseURL string
	CancelURL     string
	// FallbackEnabled keeps checkout moving when PayPal is unreachable by
	// sending the sponsor straight to the return handler.
	FallbackEnabled bool
}

// PayPal creates and captures PayPal orders and reconciles their webhooks.
type PayPal struct {
	Config  PayPalConfig
	HTTP    *http.Client
	Settler Settler
	Logger  zerolog.Logger
}

// ReturnResult describes a processed browser return.
type ReturnResult struct {
	OrderID       string
	CaptureID     string
	TxnID         string
	Unverified    bool
	CaptureFailed bool
	Settlement    reconcile.Settlement
}

// WebhookResult describes a processed webhook event.
type WebhookResult struct {
	EventID    string
	EventType  string
	OrderID    string
	TxnID      string
	Ignored    bool
	Settlement reconcile.Settlement
}

func (p *PayPal) Name() string { return ProviderPayPal }

// ReturnURL is the browser return target for orderID.
func (p *PayPal) ReturnURL(orderID string) string {
	return strings.TrimRight(p.Config.PublicBaseURL, "/") + "/paypal/return?orderId=" + url.QueryEscape(orderID)
}

// FallbackURL skips PayPal and lands on the return handler flagged ok=1.
func (p *PayPal) FallbackURL(orderID string) string {
	return p.ReturnURL(orderID) + "&ok=1"
}

func (p *PayPal) client(ctx context.Context) (*paypal.Client, error) {
	if strings.TrimSpace(p.Config.ClientID) == "" || strings.TrimSpace(p.Config.Secret) == "" {
		return nil, common.Errorf(common.ErrMissingConfig, "PayPal client credentials are not configured")
	}
	base := strings.TrimRight(strings.TrimSpace(p.Config.APIBase), "/")
	if base == "" {
		base = paypal.APIBaseLive
	}
	c, err := paypal.NewClient(p.Config.ClientID, p.Config.Secret, base)
	if err != nil {
		return nil, common.Wrap(common.ErrMissingConfig, err)
	}
	if p.HTTP != nil {
		c.SetHTTPClient(p.HTTP)
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, providerError("oauth token", err)
	}
	return c, nil
}

// CreateCheckout creates a CAPTURE order and returns its approval link. When
// PayPal cannot be reached and the fallback is enabled the sponsor is sent to
// the return handler instead; that path never captures funds.
func (p *PayPal) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	out := Checkout{Provider: ProviderPayPal, Amount: pricing.Format(req.Total), Currency: req.Currency}
	approve, err := p.createOrder(ctx, req)
	if err == nil {
		out.RedirectURL = approve
		return out, nil
	}
	p.Logger.Error().Err(err).Str("order_id", req.OrderID).Str("provider", ProviderPayPal).Msg("paypal order creation failed")
	if !p.Config.FallbackEnabled {
		return Checkout{}, err
	}
	obs.Inc(obs.PaymentFallbackTotal, ProviderPayPal)
	out.RedirectURL = p.FallbackURL(req.OrderID)
	out.Fallback = true
	return out, nil
}

func (p *PayPal) createOrder(ctx context.Context, req CheckoutRequest) (string, error) {
	ctx, span := otel.Tracer("payment.PayPal").Start(ctx, "PayPal.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	c, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	qty := req.Quantity
	if qty < 1 {
		qty = 1
	}
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.OrderID,
		CustomID:    req.OrderID,
		Description: fmt.Sprintf("%s Sponsorship x %d", p.brand(), qty),
		Amount: &paypal.PurchaseUnitAmount{
			Currency: strings.ToUpper(req.Currency),
			Value:    pricing.Format(req.Total),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		BrandName:  p.brand(),
		ReturnURL:  p.ReturnURL(req.OrderID),
		CancelURL:  p.Config.CancelURL,
		UserAction: paypal.UserActionPayNow,
	}
	order, err := c.CreateOrder(ctx, "CAPTURE", units, nil, appCtx)
	if err != nil {
		return "", providerError("create order", err)
	}
	for _, link := range order.Links {
		if link.Rel == "approve" && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", common.Errorf(common.ErrProviderAPI, "PayPal order %s has no approve link", order.ID)
}

// Capture captures an approved PayPal order and returns the first capture id.
func (p *PayPal) Capture(ctx context.Context, token string) (string, error) {
	ctx, span := otel.Tracer("payment.PayPal").Start(ctx, "PayPal.Capture")
	defer span.End()

	c, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := c.CaptureOrder(ctx, token, paypal.CaptureOrderRequest{})
	if err != nil {
		return "", providerError("capture order", err)
	}
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				return capture.ID, nil
			}
		}
	}
	return "", nil
}

// HandleReturn processes the sponsor's browser return. A capture failure is
// logged and does not block: the order is marked Paid with the token as
// reference. An ok flag without token only happens on the fallback path and
// is settled as an unverified success.
func (p *PayPal) HandleReturn(ctx context.Context, orderID, token string, okFlag bool) (ReturnResult, error) {
	res := ReturnResult{OrderID: strings.TrimSpace(orderID)}
	if res.OrderID == "" {
		return res, common.Errorf(common.ErrMissingOrderID, "Missing order ID")
	}
	token = strings.TrimSpace(token)
	logger := p.Logger.With().Str("order_id", res.OrderID).Str("provider", ProviderPayPal).Logger()
	if token != "" {
		captureID, err := p.Capture(ctx, token)
		if err != nil {
			logger.Error().Err(err).Msg("paypal capture failed")
			res.CaptureFailed = true
		}
		res.CaptureID = captureID
	} else {
		res.Unverified = true
		logger.Warn().Bool("ok_flag", okFlag).Msg("paypal return without token, settling unverified")
	}
	res.TxnID = res.CaptureID
	if res.TxnID == "" {
		res.TxnID = token
	}
	settlement, err := p.Settler.Settle(ctx, res.OrderID, res.TxnID, "paypal_return")
	res.Settlement = settlement
	return res, err
}

type paypalEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  *paypalResource `json:"resource"`
}

type paypalResource struct {
	ID            string               `json:"id"`
	CustomID      string               `json:"custom_id"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalPurchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	Payments    *struct {
		Captures       []paypalRef `json:"captures"`
		Authorizations []paypalRef `json:"authorizations"`
	} `json:"payments"`
}

type paypalRef struct {
	ID string `json:"id"`
}

// reversalEvents are acknowledged without touching the order.
var reversalEvents = []string{"DENIED", "DECLINED", "REFUNDED", "REVERSED", "VOIDED"}

// HandleWebhook reconciles a PayPal webhook. Signatures are only checked when
// a webhook id is configured.
func (p *PayPal) HandleWebhook(ctx context.Context, r *http.Request, body []byte) (WebhookResult, error) {
	var res WebhookResult
	if strings.TrimSpace(p.Config.WebhookID) != "" {
		if err := p.verify(ctx, r, body); err != nil {
			return res, err
		}
	}

	var ev paypalEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return res, common.Wrap(common.ErrMalformedWebhook, err)
	}
	res.EventID, res.EventType = ev.ID, ev.EventType
	if ev.Resource == nil {
		return res, common.Errorf(common.ErrMalformedWebhook, "no resource")
	}
	res.OrderID, res.TxnID = ev.Resource.orderAndTxn()
	if res.OrderID == "" {
		return res, common.Errorf(common.ErrMissingOrderID, "missing orderId")
	}
	upper := strings.ToUpper(ev.EventType)
	for _, marker := range reversalEvents {
		if strings.Contains(upper, marker) {
			res.Ignored = true
			p.Logger.Warn().Str("order_id", res.OrderID).Str("event_type", ev.EventType).Msg("paypal reversal event ignored")
			return res, nil
		}
	}
	settlement, err := p.Settler.Settle(ctx, res.OrderID, res.TxnID, "paypal_webhook")
	res.Settlement = settlement
	return res, err
}

// orderAndTxn reads order-shaped resources first and falls back to
// capture-shaped ones, which carry custom_id on the resource itself.
func (r *paypalResource) orderAndTxn() (string, string) {
	if len(r.PurchaseUnits) > 0 {
		unit := r.PurchaseUnits[0]
		orderID := strings.TrimSpace(unit.CustomID)
		if orderID == "" {
			orderID = strings.TrimSpace(unit.ReferenceID)
		}
		txn := ""
		if unit.Payments != nil {
			if len(unit.Payments.Captures) > 0 {
				txn = unit.Payments.Captures[0].ID
			} else if len(unit.Payments.Authorizations) > 0 {
				txn = unit.Payments.Authorizations[0].ID
			}
		}
		if orderID != "" {
			return orderID, txn
		}
	}
	if id := strings.TrimSpace(r.CustomID); id != "" {
		return id, r.ID
	}
	return "", ""
}

func (p *PayPal) verify(ctx context.Context, r *http.Request, body []byte) error {
	c, err := p.client(ctx)
	if err != nil {
		return err
	}
	req := r.Clone(ctx)
	req.Body = io.NopCloser(bytes.NewReader(body))
	resp, err := c.VerifyWebhookSignature(ctx, req, p.Config.WebhookID)
	if err != nil {
		return providerError("verify webhook", err)
	}
	if !strings.EqualFold(resp.VerificationStatus, "SUCCESS") {
		return common.Errorf(common.ErrBadSignature, "bad signature")
	}
	return nil
}

func (p *PayPal) brand() string {
	if b := strings.TrimSpace(p.Config.BrandName); b != "" {
		return b
	}
	return "Quzii"
}

func providerError(op string, err error) error {
	var apiErr *paypal.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return common.Errorf(common.ErrProviderAPI, "PayPal API error: %s: %d", op, apiErr.Response.StatusCode)
	}
	return common.Wrap(common.ErrProviderAPI, fmt.Errorf("PayPal %s: %w", op, err))
}
