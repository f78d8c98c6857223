package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROUNDING MODES
// =============================================================================

// RoundingMode names follow the banking convention used in product
// parameters ("ROUND_HALF_UP" etc).
type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "ROUND_HALF_UP"   // ties away from zero
	RoundHalfDown RoundingMode = "ROUND_HALF_DOWN" // ties towards zero
	RoundHalfEven RoundingMode = "ROUND_HALF_EVEN" // ties to even (banker's)
	RoundFloor    RoundingMode = "ROUND_FLOOR"     // towards -inf
	RoundCeiling  RoundingMode = "ROUND_CEILING"   // towards +inf
	RoundDown     RoundingMode = "ROUND_DOWN"      // towards zero
	RoundUp       RoundingMode = "ROUND_UP"        // away from zero
)

// ParseRoundingMode validates a parameter value.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch m := RoundingMode(s); m {
	case RoundHalfUp, RoundHalfDown, RoundHalfEven, RoundFloor, RoundCeiling, RoundDown, RoundUp:
		return m, nil
	}
	return "", fmt.Errorf("unknown rounding mode %q", s)
}

// Round rounds d to places decimal places under mode.
//
//	Round(15.455555, 5, ROUND_HALF_UP) = 15.45556
//	Round(15.456, 2, ROUND_FLOOR)      = 15.45
func Round(d decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundHalfUp:
		return d.Round(places)
	case RoundHalfDown:
		return roundHalfDown(d, places)
	case RoundHalfEven:
		return d.RoundBank(places)
	case RoundFloor:
		return d.RoundFloor(places)
	case RoundCeiling:
		return d.RoundCeil(places)
	case RoundDown:
		return d.RoundDown(places)
	case RoundUp:
		return d.RoundUp(places)
	default:
		return d.Round(places)
	}
}

// roundHalfDown has no decimal equivalent: compare the discarded part with
// exactly half a unit in the last kept place.
func roundHalfDown(d decimal.Decimal, places int32) decimal.Decimal {
	truncated := d.RoundDown(places)
	discarded := d.Sub(truncated).Abs()
	half := decimal.New(5, -(places + 1))
	if discarded.GreaterThan(half) {
		return d.RoundUp(places)
	}
	return truncated
}

// RoundMoney rounds to the usual two fulfilment places, half up.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
