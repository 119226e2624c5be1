package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/payment"
)

func TestResolveProvider(t *testing.T) {
	svc := payment.NewService(&payment.PayPal{}, &payment.PayFast{}, &payment.EFT{})
	require.Equal(t, []string{"eft", "payfast", "paypal"}, svc.Providers())

	name, err := svc.ResolveProvider("", "zar")
	require.NoError(t, err)
	require.Equal(t, "payfast", name)

	name, err = svc.ResolveProvider("", "GBP")
	require.NoError(t, err)
	require.Equal(t, "paypal", name)

	name, err = svc.ResolveProvider(" EFT ", "USD")
	require.NoError(t, err)
	require.Equal(t, "eft", name)

	_, err = svc.ResolveProvider("stripe", "USD")
	require.True(t, errors.Is(err, common.ErrInvalidOrder))
}

func TestEFTCheckout(t *testing.T) {
	svc := payment.NewService(&payment.EFT{AccountName: "Quzii", BankName: "Bank", AccountNumber: "123", BranchCode: "250655", Swift: "ABSAZAJJ"})
	out, err := svc.Checkout(context.Background(), "eft", payment.CheckoutRequest{OrderID: "QZ-1", Total: decimal.RequireFromString("350"), Currency: "USD"})
	require.NoError(t, err)
	require.Empty(t, out.RedirectURL)
	require.Equal(t, "350.00", out.Amount)
	require.Equal(t, "QZ-1", out.Bank.Reference)
	require.Equal(t, "Please pay via EFT using the reference below.", out.Message)

	_, err = svc.Checkout(context.Background(), "paypal", payment.CheckoutRequest{})
	require.True(t, errors.Is(err, common.ErrInvalidOrder))
}
