package payment

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/pricing"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
)

// PayFast hosts.
const (
	PayFastLiveHost    = "https://www.payfast.co.za"
	PayFastSandboxHost = "https://sandbox.payfast.co.za"

	payfastProcessPath  = "/eng/process"
	payfastValidatePath = "/eng/query/validate"
	payfastComplete     = "COMPLETE"
)

var amountTolerance = decimal.NewFromFloat(0.01)

// PayFastConfig configures the redirect gateway.
type PayFastConfig struct {
	Mode          string
	MerchantID    string
	MerchantKey   string
	Passphrase    string
	BrandName     string
	PublicBaseURL string
	ReturnURL     string
	CancelURL     string
	// Host overrides the mode-derived host.
	Host string
}

// PayFast builds signed redirects and verifies ITN callbacks.
type PayFast struct {
	Config  PayFastConfig
	HTTP    Doer
	Orders  OrderReader
	Settler Settler
	Logger  zerolog.Logger
}

// Notification describes a processed ITN.
type Notification struct {
	OrderID    string
	Status     string
	Amount     decimal.Decimal
	TxnID      string
	Completed  bool
	Settlement reconcile.Settlement
}

func (p *PayFast) Name() string { return ProviderPayFast }

func (p *PayFast) host() string {
	if h := strings.TrimRight(strings.TrimSpace(p.Config.Host), "/"); h != "" {
		return h
	}
	if strings.EqualFold(p.Config.Mode, "sandbox") {
		return PayFastSandboxHost
	}
	return PayFastLiveHost
}

// ProcessURL is the hosted payment page.
func (p *PayFast) ProcessURL() string { return p.host() + payfastProcessPath }

// ValidateURL is the server-side ITN confirmation endpoint.
func (p *PayFast) ValidateURL() string { return p.host() + payfastValidatePath }

// NotifyURL is where PayFast posts ITNs.
func (p *PayFast) NotifyURL() string {
	return strings.TrimRight(p.Config.PublicBaseURL, "/") + "/payfast/itn"
}

// SignatureBase joins the key-sorted, url-encoded pairs with '&'.
func SignatureBase(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + url.QueryEscape(params[k])
	}
	return strings.Join(parts, "&")
}

// Signature is the MD5 hex digest of the signature base, with the passphrase
// appended when one is configured.
func Signature(params map[string]string, passphrase string) string {
	base := SignatureBase(params)
	if passphrase != "" {
		base += "&passphrase=" + url.QueryEscape(passphrase)
	}
	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// RedirectParams is the parameter set signed into the redirect.
func (p *PayFast) RedirectParams(req CheckoutRequest) map[string]string {
	qty := req.Quantity
	if qty < 1 {
		qty = 1
	}
	brand := strings.TrimSpace(p.Config.BrandName)
	if brand == "" {
		brand = "Quzii"
	}
	return map[string]string{
		"merchant_id":   p.Config.MerchantID,
		"merchant_key":  p.Config.MerchantKey,
		"return_url":    p.Config.ReturnURL,
		"cancel_url":    p.Config.CancelURL,
		"notify_url":    p.NotifyURL(),
		"amount":        pricing.Format(req.Total),
		"item_name":     fmt.Sprintf("%s Sponsorship x %d", brand, qty),
		"m_payment_id":  req.OrderID,
		"email_address": req.Email,
	}
}

// BuildRedirect returns the signed hosted-page URL.
func (p *PayFast) BuildRedirect(req CheckoutRequest) (string, error) {
	if strings.TrimSpace(p.Config.MerchantID) == "" || strings.TrimSpace(p.Config.MerchantKey) == "" {
		return "", common.Errorf(common.ErrMissingConfig, "PayFast merchant credentials are not configured")
	}
	params := p.RedirectParams(req)
	return p.ProcessURL() + "?" + SignatureBase(params) + "&signature=" + Signature(params, p.Config.Passphrase), nil
}

// CreateCheckout signs a redirect. PayFast only settles in ZAR.
func (p *PayFast) CreateCheckout(_ context.Context, req CheckoutRequest) (Checkout, error) {
	redirect, err := p.BuildRedirect(req)
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{
		Provider:    ProviderPayFast,
		RedirectURL: redirect,
		Amount:      pricing.Format(req.Total),
		Currency:    "ZAR",
	}, nil
}

// HandleNotification verifies and applies an ITN. A bad signature, a failed
// validation or an amount mismatch stop before any write.
func (p *PayFast) HandleNotification(ctx context.Context, raw string) (Notification, error) {
	ctx, span := otel.Tracer("payment.PayFast").Start(ctx, "PayFast.HandleNotification")
	defer span.End()

	var n Notification
	if strings.TrimSpace(raw) == "" {
		return n, common.Errorf(common.ErrMalformedWebhook, "no body")
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return n, common.Wrap(common.ErrMalformedWebhook, err)
	}
	pairs := make(map[string]string, len(values))
	for k, v := range values {
		pairs[k] = v[0]
	}
	given := pairs["signature"]
	delete(pairs, "signature")
	want := Signature(pairs, p.Config.Passphrase)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(given)), []byte(want)) != 1 {
		return n, common.Errorf(common.ErrBadSignature, "bad signature")
	}

	n.OrderID = strings.TrimSpace(pairs["m_payment_id"])
	n.Status = strings.ToUpper(strings.TrimSpace(pairs["payment_status"]))
	n.TxnID = firstNonEmpty(pairs["pf_payment_id"], pairs["token"])
	span.SetAttributes(attribute.String("order.id", n.OrderID), attribute.String("payment.status", n.Status))
	logger := p.Logger.With().Str("order_id", n.OrderID).Str("provider", ProviderPayFast).Logger()

	if err := p.validate(ctx, raw, logger); err != nil {
		return n, err
	}
	if n.OrderID == "" {
		return n, common.Errorf(common.ErrMissingOrderID, "missing m_payment_id")
	}

	amountRaw := firstNonEmpty(pairs["amount_gross"], pairs["amount"])
	n.Amount, err = decimal.NewFromString(strings.TrimSpace(amountRaw))
	if err != nil {
		n.Amount = decimal.Zero
	}

	rows, err := p.Orders.FindByOrderID(ctx, n.OrderID)
	if err != nil {
		return n, err
	}
	if len(rows) > 0 && rows[0].HasTotal {
		expected := rows[0].Total
		if expected.Sub(n.Amount).Abs().GreaterThan(amountTolerance) {
			logger.Warn().Str("expected", pricing.Format(expected)).Str("notified", pricing.Format(n.Amount)).Msg("payfast amount mismatch")
			return n, common.Errorf(common.ErrAmountMismatch, "amount mismatch")
		}
	}

	if n.Status != payfastComplete {
		logger.Info().Str("payment_status", n.Status).Msg("payfast notification without completion")
		return n, nil
	}
	n.Completed = true
	n.Settlement, err = p.Settler.Settle(ctx, n.OrderID, n.TxnID, "payfast_itn")
	return n, err
}

// validate posts the raw body back to PayFast. Transport failures are tolerated
// since the signature has already been verified.
func (p *PayFast) validate(ctx context.Context, raw string, logger zerolog.Logger) error {
	if p.HTTP == nil {
		logger.Warn().Msg("payfast validation skipped: no http client")
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ValidateURL(), strings.NewReader(raw))
	if err != nil {
		return common.Wrap(common.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("payfast validate request failed")
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		logger.Error().Err(err).Msg("payfast validate read failed")
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(string(body)), "VALID") {
		return common.Errorf(common.ErrValidationFailed, "validate failed")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
