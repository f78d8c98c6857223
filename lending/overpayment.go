package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// EMI BASIS
// =============================================================================

// EMIPrincipalBasis selects the principal an EMI recalculation amortises.
// With reduce-EMI and an existing overpayment the basis leaves out interest
// capitalised during repayment holidays; otherwise it is the actual
// outstanding principal including capitalised interest.
func EMIPrincipalBasis(pos Position, overpayments OverpaymentLedger) decimal.Decimal {
	if overpayments.Impact == ReduceEMI && overpayments.Overpaid() {
		return pos.PrincipalExcludingCapitalised()
	}
	return pos.ActualPrincipal()
}

// =============================================================================
// ALLOWANCE, FEES AND CHARGES
// =============================================================================

// Percentages are fractions: 0.1 is ten percent.
type AllowanceTerms struct {
	OriginalPrincipal    decimal.Decimal
	AllowancePercentage  decimal.Decimal
	FeePercentage        decimal.Decimal
	EarlyRepaymentFeePct decimal.Decimal
	Precision            int32
	Rounding             generic.RoundingMode
}

// Allowance is how much may be overpaid per allowance period without a fee.
func (a AllowanceTerms) Allowance() decimal.Decimal {
	return a.OriginalPrincipal.Mul(a.AllowancePercentage)
}

// OverpaidSince is the overpayment made between two tracker readings.
// The tracker is negative, so a larger overpayment is a smaller number.
func OverpaidSince(previousTracker, currentTracker decimal.Decimal) decimal.Decimal {
	d := previousTracker.Sub(currentTracker)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// OverpaymentFee charges FeePercentage on what was overpaid beyond the
// allowance.
func (a AllowanceTerms) OverpaymentFee(overpaid decimal.Decimal) decimal.Decimal {
	excess := overpaid.Sub(a.Allowance())
	if !excess.IsPositive() {
		return decimal.Zero
	}
	return generic.Round(excess.Mul(a.FeePercentage), a.Precision, a.Rounding)
}

// RemainingAllowance is what can still be overpaid free of charge this
// allowance period.
func (a AllowanceTerms) RemainingAllowance(overpaid decimal.Decimal) decimal.Decimal {
	r := a.Allowance().Sub(overpaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// EarlyRepaymentCharge applies the early repayment fee to the part of the
// outstanding debt that exceeds the remaining allowance.
func (a AllowanceTerms) EarlyRepaymentCharge(outstandingDebt, overpaid decimal.Decimal) decimal.Decimal {
	excess := outstandingDebt.Sub(a.RemainingAllowance(overpaid))
	if !excess.IsPositive() {
		return decimal.Zero
	}
	return generic.Round(excess.Mul(a.EarlyRepaymentFeePct), a.Precision, a.Rounding)
}
