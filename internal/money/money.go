// Package money implements fixed-precision decimal arithmetic for the
// billing ledger. All monetary quantities flow through shopspring/decimal
// rather than binary floating point, per the reserve/commit protocol's
// requirement that cost computation be bit-identical for identical inputs.
package money

import "github.com/shopspring/decimal"

// quantizeExp is the number of fractional digits a final cost is rounded
// to, half-up.
const quantizeExp = 5

// Amount is a non-negative-by-convention monetary value in base currency.
// Negative amounts are used internally for signed adjustments and refund
// deltas; balances themselves are validated non-negative by the caller.
type Amount = decimal.Decimal

// Zero returns the additive identity.
func Zero() Amount {
	return decimal.Zero
}

// FromString parses a decimal literal (e.g. from an RPC field or a Redis
// hash value) into an Amount.
func FromString(s string) (Amount, error) {
	return decimal.NewFromString(s)
}

// FromFloat constructs an Amount from a float64. Reserved for boundary
// conversions (e.g. a legacy RPC field); internal math never uses float64.
func FromFloat(f float64) Amount {
	return decimal.NewFromFloat(f)
}

// PerMillion computes tokens * pricePerMillion / 1_000_000 without
// intermediate rounding.
func PerMillion(tokens int64, pricePerMillion Amount) Amount {
	return decimal.NewFromInt(tokens).Mul(pricePerMillion).Div(decimal.NewFromInt(1_000_000))
}

// QuantizeHalfUp rounds to five fractional digits using half-up rounding,
// the only rounding mode compute_cost may use (spec §4.1/§4.3, P6).
//
// shopspring/decimal's Round already rounds half-away-from-zero, which is
// equivalent to half-up for the non-negative costs this function receives;
// callers passing negative deltas (Commit refunds) still get the
// symmetric behavior the spec implies by never naming a different rule
// for negative amounts.
func QuantizeHalfUp(a Amount) Amount {
	return a.Round(quantizeExp)
}

// String renders an Amount in plain decimal notation with trailing
// fractional zeros dropped (shopspring's Decimal.String): a cost quantized
// to 0.01250 renders as "0.0125".
func String(a Amount) string {
	return a.String()
}
