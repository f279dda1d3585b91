package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Currencies whose minor unit is not a hundredth of the major unit. Amounts are
// always converted at two decimal places, so these cannot be charged correctly.
var nonCentesimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
	"bhd": {}, "jod": {}, "kwd": {}, "omr": {}, "tnd": {},
}

// CheckCurrency reports whether code is a three-letter currency with two
// decimal places.
func CheckCurrency(code string) error {
	code = strings.ToLower(code)
	if len(code) != 3 || strings.Trim(code, "abcdefghijklmnopqrstuvwxyz") != "" {
		return fmt.Errorf("currency %q is not an ISO 4217 code", code)
	}
	if _, ok := nonCentesimalCurrencies[code]; ok {
		return fmt.Errorf("currency %q does not use two decimal places", code)
	}
	return nil
}

// ToMinorUnits converts a major-unit amount to minor units, rounding half up.
func ToMinorUnits(major decimal.Decimal) int64 {
	return major.Mul(hundred).Round(0).IntPart()
}

// ToMajorUnits converts minor units back to a two-place decimal.
func ToMajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatMinor renders minor units as a fixed two-place major-unit string.
func FormatMinor(minor int64) string {
	return ToMajorUnits(minor).StringFixed(2)
}
