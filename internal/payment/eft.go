package payment

import (
	"context"

	"github.com/noah-isme/sponsor-api/internal/pricing"
)

// EFT answers with bank transfer instructions; the order id is the payment
// reference. Settlement happens through an admin finalize.
type EFT struct {
	AccountName   string
	BankName      string
	AccountNumber string
	BranchCode    string
	Swift         string
}

func (e *EFT) Name() string { return ProviderEFT }

func (e *EFT) CreateCheckout(_ context.Context, req CheckoutRequest) (Checkout, error) {
	return Checkout{
		Provider: ProviderEFT,
		Bank: &BankDetails{
			AccountName:   e.AccountName,
			BankName:      e.BankName,
			AccountNumber: e.AccountNumber,
			BranchCode:    e.BranchCode,
			Swift:         e.Swift,
			Reference:     req.OrderID,
		},
		Amount:   pricing.Format(req.Total),
		Currency: req.Currency,
		Message:  "Please pay via EFT using the reference below.",
	}, nil
}
