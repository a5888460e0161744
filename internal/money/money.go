// Package money provides shared amount parsing and formatting utilities.
//
// Amounts are francs with 2 decimal places, stored as big.Int in
// centimes (1 FC = 100 units). Rates are expressed in basis points
// (1 bps = 0.01%) so no float ever touches a balance.
package money

import (
	"math/big"
	"strings"
)

const Decimals = 2

// Parse converts a decimal string (e.g. "1250.50") to its smallest-unit
// big.Int representation (125050). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "-") {
		return nil, false
	}
	return ParseSigned(s)
}

// ParseSigned is Parse without the sign restriction, for signed ledger
// entries ("-60.00" is a debit of 60 francs).
func ParseSigned(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim to 2 decimals
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, false
	}
	if neg {
		result.Neg(result)
	}
	return result, true
}

// Format converts a smallest-unit big.Int to a decimal string with
// exactly 2 decimal places (e.g. "1250.50"). Negative amounts keep
// their sign.
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// MulQty multiplies an amount by an integer quantity.
func MulQty(amount *big.Int, qty int) *big.Int {
	return new(big.Int).Mul(amount, big.NewInt(int64(qty)))
}

// ApplyBps applies a basis-point rate to an amount, truncating toward
// zero. 20 bps = 0.2%, 2000 bps = 20%.
func ApplyBps(amount *big.Int, bps int64) *big.Int {
	result := new(big.Int).Mul(amount, big.NewInt(bps))
	return result.Quo(result, big.NewInt(10000))
}

// Add returns a+b as a new big.Int.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a-b as a new big.Int.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Zero reports whether the amount is exactly zero.
func Zero(amount *big.Int) bool {
	return amount == nil || amount.Sign() == 0
}
