package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Package identifies a sponsorship bundle.
type Package string

const (
	PackageSingle Package = "single"
	PackageSeries Package = "series"
	PackageLegacy Package = "legacy"
)

// DefaultCurrency prices any currency missing from the table.
const DefaultCurrency = "USD"

var table = map[string]map[Package]decimal.Decimal{
	"USD": {PackageSingle: decimal.NewFromInt(350), PackageSeries: decimal.NewFromInt(1750), PackageLegacy: decimal.NewFromInt(2750)},
	"GBP": {PackageSingle: decimal.NewFromInt(275), PackageSeries: decimal.NewFromInt(1390), PackageLegacy: decimal.NewFromInt(2190)},
	"ZAR": {PackageSingle: decimal.NewFromInt(6400), PackageSeries: decimal.NewFromInt(31000), PackageLegacy: decimal.NewFromInt(49000)},
}

// ParsePackage normalizes a package name. Unknown values fall back to single.
func ParsePackage(raw string) Package {
	switch p := Package(strings.ToLower(strings.TrimSpace(raw))); p {
	case PackageSingle, PackageSeries, PackageLegacy:
		return p
	default:
		return PackageSingle
	}
}

// NormalizeCurrency upper-cases the code. It does not substitute unknown codes:
// the order keeps the currency the sponsor asked for.
func NormalizeCurrency(raw string) string {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// UnitPrice returns the per-item price of pkg in currency.
func UnitPrice(pkg Package, currency string) decimal.Decimal {
	prices, ok := table[strings.ToUpper(currency)]
	if !ok {
		prices = table[DefaultCurrency]
	}
	price, ok := prices[pkg]
	if !ok {
		price = prices[PackageSingle]
	}
	return price
}

// Quantity applies package rules to the number of selected items.
func Quantity(pkg Package, items int) int {
	if pkg == PackageLegacy {
		return 1
	}
	return items
}

// Total is quantity times unit price rounded half-up to two decimals.
func Total(pkg Package, currency string, quantity int) decimal.Decimal {
	return Round2(UnitPrice(pkg, currency).Mul(decimal.NewFromInt(int64(Quantity(pkg, quantity)))))
}

// Round2 rounds half away from zero to two decimals.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
