// Package money holds the rounding rules shared by cart totals and invoice lines.
package money

import "github.com/shopspring/decimal"

// VATRate is the Saudi standard VAT rate applied on subtotal plus shipping.
var VATRate = decimal.RequireFromString("0.15")

// Round2 rounds half-up to two decimal places. decimal rounds half away from
// zero, which is half-up for the non-negative amounts handled here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Fixed2 renders d with exactly two decimals, the way the gateways expect amounts.
func Fixed2(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// VAT returns round2(base * VATRate).
func VAT(base decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(VATRate))
}
