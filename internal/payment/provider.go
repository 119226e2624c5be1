package payment

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sponsor-api/internal/reconcile"
	"github.com/noah-isme/sponsor-api/internal/repo"
)

// Provider names as persisted in the order table.
const (
	ProviderPayPal  = "paypal"
	ProviderPayFast = "payfast"
	ProviderEFT     = "eft"
)

// CheckoutRequest carries what a gateway needs to collect payment for an order.
type CheckoutRequest struct {
	OrderID  string
	Total    decimal.Decimal
	Currency string
	Quantity int
	Email    string
}

// BankDetails are shown to sponsors paying by manual transfer.
type BankDetails struct {
	AccountName   string `json:"accountName"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	BranchCode    string `json:"branchCode"`
	Swift         string `json:"swift"`
	Reference     string `json:"reference"`
}

// Checkout is the next step handed back to the client: a redirect or bank instructions.
type Checkout struct {
	Provider    string
	RedirectURL string
	Bank        *BankDetails
	Amount      string
	Currency    string
	Message     string
	// Fallback marks a redirect that skips the provider entirely.
	Fallback bool
}

// Gateway opens a checkout with a payment provider.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
}

// Settler applies a confirmed payment to the order and the public ledger.
type Settler interface {
	Settle(ctx context.Context, orderID, txnID, source string) (reconcile.Settlement, error)
}

// OrderReader loads the persisted line items of an order.
type OrderReader interface {
	FindByOrderID(ctx context.Context, orderID string) ([]repo.OrderRow, error)
}

// Doer performs outbound HTTP calls; resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}
