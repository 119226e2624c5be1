package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/payment"
	"github.com/noah-isme/sponsor-api/internal/pricing"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
	"github.com/noah-isme/sponsor-api/internal/repo"
)

const idAttempts = 3

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]`)

// Input is the createOrder payload.
type Input struct {
	Package    string   `json:"package" validate:"omitempty,max=32"`
	Plan       string   `json:"plan" validate:"omitempty,max=32"`
	Currency   string   `json:"currency" validate:"omitempty,len=3,alpha"`
	Provider   string   `json:"provider" validate:"omitempty,max=16"`
	Books      []string `json:"books" validate:"max=100,dive,max=64"`
	Name       string   `json:"name" validate:"max=200"`
	Email      string   `json:"email" validate:"omitempty,email,max=254"`
	Referral   string   `json:"referral" validate:"max=200"`
	TeamMember string   `json:"teamMember" validate:"max=200"`
}

// Output is a created order and the next payment step.
type Output struct {
	OrderID  string
	Provider string
	Package  pricing.Package
	Plan     string
	Currency string
	Quantity int
	Total    decimal.Decimal
	Checkout payment.Checkout
}

// Payload renders the createOrder response fields.
func (o Output) Payload() map[string]any {
	out := map[string]any{"provider": o.Provider, "orderId": o.OrderID}
	if o.Checkout.RedirectURL != "" {
		out["redirectUrl"] = o.Checkout.RedirectURL
	}
	if o.Checkout.Bank != nil {
		out["bank"] = o.Checkout.Bank
		out["amount"] = o.Checkout.Amount
		out["currency"] = o.Checkout.Currency
		out["message"] = o.Checkout.Message
	}
	return out
}

// OrderStore persists order line items.
type OrderStore interface {
	EnsureHeaders(ctx context.Context) error
	Append(ctx context.Context, rows ...repo.OrderRow) error
	FindByOrderID(ctx context.Context, orderID string) ([]repo.OrderRow, error)
}

// Intake mirrors new line items into the public ledger.
type Intake interface {
	AppendIntake(ctx context.Context, entries ...repo.LedgerEntry) error
}

// Payments resolves and opens provider checkouts; *payment.Service satisfies it.
type Payments interface {
	ResolveProvider(raw, currency string) (string, error)
	Checkout(ctx context.Context, provider string, req payment.CheckoutRequest) (payment.Checkout, error)
}

// Service creates sponsorship orders.
type Service struct {
	Orders   OrderStore
	Ledger   Intake
	Titles   reconcile.TitleResolver
	Payments Payments
	Events   reconcile.Emitter
	Validate *validator.Validate
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

// NewOrderID returns "QZ-" followed by eight upper-case hex characters.
func NewOrderID() string {
	return "QZ-" + strings.ToUpper(uuid.NewString()[:8])
}

// NormalizePlan strips non-alphanumerics; empty means a one-time plan.
func NormalizePlan(raw string) string {
	plan := strings.ToLower(nonAlnum.ReplaceAllString(raw, ""))
	if plan == "" {
		return "onetime"
	}
	return plan
}

// Create validates the input, prices it, persists one Pending row per item,
// mirrors the items into the ledger and opens the provider checkout.
func (s *Service) Create(ctx context.Context, in Input) (Output, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.Create")
	defer span.End()

	if s == nil || s.Orders == nil || s.Payments == nil {
		return Output{}, common.Errorf(common.ErrMissingConfig, "checkout service not configured")
	}
	in = trimInput(in)
	if err := s.validator().Struct(in); err != nil {
		return Output{}, invalidInput(err)
	}

	out := Output{
		Package:  pricing.ParsePackage(in.Package),
		Plan:     NormalizePlan(in.Plan),
		Currency: pricing.NormalizeCurrency(in.Currency),
	}
	provider, err := s.Payments.ResolveProvider(in.Provider, out.Currency)
	if err != nil {
		obs.Inc(obs.OrderCreatedTotal, "unknown", "invalid")
		return Output{}, err
	}
	out.Provider = provider
	span.SetAttributes(attribute.String("payment.provider", provider))

	books := lineItems(out.Package, in.Books)
	if len(books) == 0 {
		obs.Inc(obs.OrderCreatedTotal, provider, "invalid")
		return Output{}, common.Errorf(common.ErrInvalidOrder, "No books selected")
	}
	if provider == payment.ProviderPayFast {
		out.Currency = "ZAR"
	}
	out.Quantity = pricing.Quantity(out.Package, len(books))
	out.Total = pricing.Total(out.Package, out.Currency, len(books))

	if out.OrderID, err = s.allocateID(ctx); err != nil {
		obs.Inc(obs.OrderCreatedTotal, provider, "error")
		return Output{}, err
	}
	span.SetAttributes(attribute.String("order.id", out.OrderID))
	logger := s.Logger.With().Str("order_id", out.OrderID).Str("provider", provider).Logger()

	now := s.now()
	if err := s.persist(ctx, out, in, books, now); err != nil {
		obs.Inc(obs.OrderCreatedTotal, provider, "error")
		return Output{}, err
	}
	s.intake(ctx, logger, in, books, now)

	out.Checkout, err = s.Payments.Checkout(ctx, provider, payment.CheckoutRequest{
		OrderID:  out.OrderID,
		Total:    out.Total,
		Currency: out.Currency,
		Quantity: out.Quantity,
		Email:    in.Email,
	})
	if err != nil {
		obs.Inc(obs.OrderCreatedTotal, provider, "error")
		span.RecordError(err)
		return Output{}, err
	}

	result := "ok"
	if out.Checkout.Fallback {
		result = "fallback"
	}
	obs.Inc(obs.OrderCreatedTotal, provider, result)
	s.emitCreated(ctx, logger, out, in, books)
	logger.Info().Str("total", pricing.Format(out.Total)).Str("currency", out.Currency).Int("items", len(books)).Msg("order created")
	return out, nil
}

func (s *Service) persist(ctx context.Context, out Output, in Input, books []string, now time.Time) error {
	if err := s.Orders.EnsureHeaders(ctx); err != nil {
		return fmt.Errorf("ensure order headers: %w", err)
	}
	rows := make([]repo.OrderRow, len(books))
	for i, book := range books {
		rows[i] = repo.OrderRow{
			Timestamp:  now,
			OrderID:    out.OrderID,
			Package:    string(out.Package),
			Plan:       out.Plan,
			Currency:   out.Currency,
			BookID:     book,
			Name:       in.Name,
			Email:      in.Email,
			Referral:   in.Referral,
			TeamMember: in.TeamMember,
			Status:     repo.StatusPending,
			Provider:   out.Provider,
			Total:      out.Total,
		}
	}
	if err := s.Orders.Append(ctx, rows...); err != nil {
		return fmt.Errorf("append order rows: %w", err)
	}
	return nil
}

// intake is best-effort: a broken ledger never blocks the sponsor.
func (s *Service) intake(ctx context.Context, logger zerolog.Logger, in Input, books []string, now time.Time) {
	if s.Ledger == nil {
		return
	}
	titles := map[string]string{}
	if s.Titles != nil {
		if t, err := s.Titles.Titles(ctx); err != nil {
			logger.Warn().Err(err).Msg("catalogue titles unavailable")
		} else {
			titles = t
		}
	}
	entries := make([]repo.LedgerEntry, len(books))
	for i, book := range books {
		title := titles[book]
		if book == repo.LegacyBookID {
			title = repo.LegacyBookID
		}
		entries[i] = repo.LedgerEntry{
			Timestamp:    now,
			SponsorName:  in.Name,
			SponsorEmail: in.Email,
			BookTitle:    title,
			Referral:     in.Referral,
			TeamMember:   in.TeamMember,
		}
	}
	if err := s.Ledger.AppendIntake(ctx, entries...); err != nil {
		logger.Error().Err(err).Msg("ledger intake failed")
	}
}

func (s *Service) emitCreated(ctx context.Context, logger zerolog.Logger, out Output, in Input, books []string) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId":  out.OrderID,
		"provider": out.Provider,
		"package":  string(out.Package),
		"plan":     out.Plan,
		"currency": out.Currency,
		"total":    pricing.Format(out.Total),
		"books":    books,
		"email":    in.Email,
		"fallback": out.Checkout.Fallback,
	}
	if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, out.OrderID, payload); err != nil {
		logger.Warn().Err(err).Msg("emit order.created failed")
	}
}

// allocateID draws ids until one is unused in the order table.
func (s *Service) allocateID(ctx context.Context) (string, error) {
	gen := s.NewID
	if gen == nil {
		gen = NewOrderID
	}
	for attempt := 0; attempt < idAttempts; attempt++ {
		id := gen()
		rows, err := s.Orders.FindByOrderID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check order id: %w", err)
		}
		if len(rows) == 0 {
			return id, nil
		}
		s.Logger.Warn().Str("order_id", id).Msg("order id collision, regenerating")
	}
	return "", common.Errorf(common.ErrInternal, "could not allocate a unique order id")
}

func (s *Service) validator() *validator.Validate {
	if s.Validate != nil {
		return s.Validate
	}
	return defaultValidator
}

var defaultValidator = validator.New()

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func lineItems(pkg pricing.Package, books []string) []string {
	if pkg == pricing.PackageLegacy {
		return []string{repo.LegacyBookID}
	}
	out := make([]string, 0, len(books))
	for _, b := range books {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func trimInput(in Input) Input {
	in.Package = strings.TrimSpace(in.Package)
	in.Plan = strings.TrimSpace(in.Plan)
	in.Currency = strings.TrimSpace(in.Currency)
	in.Provider = strings.TrimSpace(in.Provider)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Referral = strings.TrimSpace(in.Referral)
	in.TeamMember = strings.TrimSpace(in.TeamMember)
	return in
}

func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.Errorf(common.ErrInvalidOrder, "invalid %s", strings.ToLower(fe.Field()[:1])+fe.Field()[1:])
	}
	return common.Wrap(common.ErrInvalidOrder, err)
}
