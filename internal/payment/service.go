package payment

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/obs"
)

// Service routes checkouts to the configured gateways.
type Service struct {
	gateways map[string]Gateway
}

// NewService registers gateways by name.
func NewService(gateways ...Gateway) *Service {
	s := &Service{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		if g != nil {
			s.gateways[g.Name()] = g
		}
	}
	return s
}

// Providers lists the registered gateway names.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.gateways))
	for name := range s.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProvider picks the gateway used when the client names none.
func DefaultProvider(currency string) string {
	if strings.EqualFold(strings.TrimSpace(currency), "ZAR") {
		return ProviderPayFast
	}
	return ProviderPayPal
}

// ResolveProvider normalizes the requested provider, applying the currency default.
func (s *Service) ResolveProvider(raw, currency string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		name = DefaultProvider(currency)
	}
	if _, ok := s.gateways[name]; !ok {
		return "", common.Errorf(common.ErrInvalidOrder, "unsupported provider: %s", name)
	}
	return name, nil
}

// Checkout opens a checkout with the named gateway.
func (s *Service) Checkout(ctx context.Context, provider string, req CheckoutRequest) (Checkout, error) {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Checkout")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", provider),
			attribute.String("order.id", req.OrderID),
			attribute.Float64("payment.checkout.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.checkout.result", result),
		)
	}()

	g, ok := s.gateways[provider]
	if !ok {
		return Checkout{}, common.Errorf(common.ErrInvalidOrder, "unsupported provider: %s", provider)
	}
	out, err := g.CreateCheckout(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Checkout{}, err
	}
	result = "ok"
	if out.Fallback {
		result = "fallback"
	}
	return out, nil
}
