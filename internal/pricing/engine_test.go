package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/pricing"
)

func TestUnitPriceTable(t *testing.T) {
	cases := []struct {
		pkg      pricing.Package
		currency string
		want     int64
	}{
		{pricing.PackageSingle, "USD", 350},
		{pricing.PackageSeries, "USD", 1750},
		{pricing.PackageLegacy, "USD", 2750},
		{pricing.PackageSingle, "GBP", 275},
		{pricing.PackageSeries, "GBP", 1390},
		{pricing.PackageLegacy, "GBP", 2190},
		{pricing.PackageSingle, "ZAR", 6400},
		{pricing.PackageSeries, "ZAR", 31000},
		{pricing.PackageLegacy, "ZAR", 49000},
		{pricing.PackageSeries, "EUR", 1750},
		{pricing.Package("platinum"), "GBP", 275},
	}
	for _, tc := range cases {
		got := pricing.UnitPrice(tc.pkg, tc.currency)
		require.Truef(t, got.Equal(decimal.NewFromInt(tc.want)), "%s/%s = %s", tc.pkg, tc.currency, got)
	}
}

func TestTotal(t *testing.T) {
	require.Equal(t, "700.00", pricing.Format(pricing.Total(pricing.PackageSingle, "USD", 2)))
	require.Equal(t, "2750.00", pricing.Format(pricing.Total(pricing.PackageLegacy, "USD", 5)))
	require.Equal(t, "93000.00", pricing.Format(pricing.Total(pricing.PackageSeries, "ZAR", 3)))
}

func TestRound2HalfUp(t *testing.T) {
	require.Equal(t, "1.01", pricing.Format(pricing.Round2(decimal.RequireFromString("1.005"))))
	require.Equal(t, "2.34", pricing.Format(pricing.Round2(decimal.RequireFromString("2.344"))))
}

func TestParsePackage(t *testing.T) {
	require.Equal(t, pricing.PackageSeries, pricing.ParsePackage(" Series "))
	require.Equal(t, pricing.PackageSingle, pricing.ParsePackage(""))
	require.Equal(t, pricing.PackageSingle, pricing.ParsePackage("gold"))
	require.Equal(t, "USD", pricing.NormalizeCurrency(""))
	require.Equal(t, "ZAR", pricing.NormalizeCurrency("zar"))
}
