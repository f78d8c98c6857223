package lending

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// ErrNonPositiveTerm guards the annuity formula. Final periods must be
// routed through the final-period branch before the EMI is recalculated.
var ErrNonPositiveTerm = errors.New("emi: remaining term must be positive")

var one = decimal.NewFromInt(1)

// EMIInput holds everything the EMI calculation depends on.
type EMIInput struct {
	Principal decimal.Decimal // basis chosen by EMIPrincipalBasis
	Rate      decimal.Decimal // periodic (monthly) rate
	Term      int             // instalments left, including the current one
	Lump      decimal.Decimal // balloon payment left at the end
	Method    AmortisationMethod
	Precision int32
	Rounding  generic.RoundingMode
}

// CalculateEMI returns the equated instalment.
//
// Declining principal:
//
//	r > 0, L = 0:  P*r*(1+r)^n / ((1+r)^n - 1)
//	r > 0, L > 0:  (P - L/(1+r)^n)*r*(1+r)^n / ((1+r)^n - 1)
//	r = 0:         (P - L) / n
//
// Interest only: P*r, with the principal repaid in the final period.
func CalculateEMI(in EMIInput) (decimal.Decimal, error) {
	if in.Term <= 0 {
		return decimal.Zero, ErrNonPositiveTerm
	}
	if !in.Principal.IsPositive() {
		return decimal.Zero, nil
	}

	var emi decimal.Decimal
	switch {
	case in.Method == InterestOnly:
		emi = in.Principal.Mul(in.Rate)

	case in.Rate.IsZero():
		emi = in.Principal.Sub(in.Lump).Div(decimal.NewFromInt(int64(in.Term)))

	default:
		factor := one.Add(in.Rate).Pow(decimal.NewFromInt(int64(in.Term)))
		basis := in.Principal
		if in.Lump.IsPositive() {
			basis = basis.Sub(in.Lump.Div(factor))
		}
		emi = basis.Mul(in.Rate).Mul(factor).Div(factor.Sub(one))
	}

	emi = generic.Round(emi, in.Precision, in.Rounding)
	if emi.IsNegative() {
		return decimal.Zero, nil
	}
	return emi, nil
}
