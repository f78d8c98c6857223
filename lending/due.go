package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// DUE AMOUNT - tagged result
// =============================================================================

// DueSplit is the common view of every due-amount variant, expressed as
// balance movements: PrincipalDue leaves PRINCIPAL for PRINCIPAL_DUE, then
// OverpaymentApplied settles part of it from OVERPAYMENT.
type DueSplit struct {
	EMI                decimal.Decimal
	PrincipalDue       decimal.Decimal
	InterestDue        decimal.Decimal
	PrincipalExcess    decimal.Decimal
	OverpaymentApplied decimal.Decimal
}

// NetPrincipalDue is the principal the customer still has to pay.
func (s DueSplit) NetPrincipalDue() decimal.Decimal {
	return s.PrincipalDue.Sub(s.OverpaymentApplied)
}

// DueAmount is one of FinalPeriod, FixedEMIOverride, ZeroRate or
// Recalculated.
type DueAmount interface {
	Split() DueSplit
	isDueAmount()
}

// FinalPeriod makes everything outstanding due.
type FinalPeriod struct {
	PrincipalDue       decimal.Decimal
	InterestDue        decimal.Decimal
	OverpaymentApplied decimal.Decimal
}

// FixedEMIOverride splits a predefined EMI. AccruedInterest is the gross
// figure, never capped; CarriedInterest is what the instalment did not
// cover and stays accrued for the next period.
type FixedEMIOverride struct {
	EMI                decimal.Decimal
	PrincipalDue       decimal.Decimal
	InterestDue        decimal.Decimal
	AccruedInterest    decimal.Decimal
	CarriedInterest    decimal.Decimal
	OverpaymentApplied decimal.Decimal
}

// ZeroRate repays principal in equal parts.
type ZeroRate struct {
	EMI                decimal.Decimal
	OverpaymentApplied decimal.Decimal
}

// Recalculated is the general case. Recalculated is false when the stored
// EMI was reused.
type Recalculated struct {
	EMI                decimal.Decimal
	PreviousEMI        decimal.Decimal
	PrincipalDue       decimal.Decimal
	InterestDue        decimal.Decimal
	PrincipalExcess    decimal.Decimal
	OverpaymentApplied decimal.Decimal
	Recalculated       bool
	Reason             RecalculationReason
}

func (FinalPeriod) isDueAmount()      {}
func (FixedEMIOverride) isDueAmount() {}
func (ZeroRate) isDueAmount()         {}
func (Recalculated) isDueAmount()     {}

// The final-period, fixed and zero-rate variants report the principal the
// customer pays; the movement out of PRINCIPAL also carries the applied
// overpayment.

func (f FinalPeriod) Split() DueSplit {
	return DueSplit{EMI: f.PrincipalDue, PrincipalDue: f.PrincipalDue.Add(f.OverpaymentApplied), InterestDue: f.InterestDue,
		PrincipalExcess: decimal.Zero, OverpaymentApplied: f.OverpaymentApplied}
}

func (f FixedEMIOverride) Split() DueSplit {
	return DueSplit{EMI: f.EMI, PrincipalDue: f.PrincipalDue.Add(f.OverpaymentApplied), InterestDue: f.InterestDue,
		PrincipalExcess: decimal.Zero, OverpaymentApplied: f.OverpaymentApplied}
}

func (z ZeroRate) Split() DueSplit {
	return DueSplit{EMI: z.EMI, PrincipalDue: z.EMI.Add(z.OverpaymentApplied), InterestDue: decimal.Zero,
		PrincipalExcess: decimal.Zero, OverpaymentApplied: z.OverpaymentApplied}
}

func (r Recalculated) Split() DueSplit {
	return DueSplit{EMI: r.EMI, PrincipalDue: r.PrincipalDue, InterestDue: r.InterestDue,
		PrincipalExcess: r.PrincipalExcess, OverpaymentApplied: r.OverpaymentApplied}
}

// =============================================================================
// DUE AMOUNT CALCULATION
// =============================================================================

// DueInput is the state at a due event, read before anything is made due.
type DueInput struct {
	Position      Position
	Terms         LoanTerms
	State         AmortizationState
	Overpayments  OverpaymentLedger
	Recalculation RecalculationConditionInput
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// CalculateDue selects the branch in priority order: final period, fixed
// EMI, zero rate, general. Interest-only loans take the general branch but
// make no principal due before the final period.
//
// Principal excess is always zero: the principal made due is clamped to
// the outstanding principal and nothing carries over.
func CalculateDue(in DueInput) (DueAmount, error) {
	pos, terms, state := in.Position, in.Terms, in.State
	round := func(d decimal.Decimal) decimal.Decimal { return generic.Round(d, terms.Precision, terms.Rounding) }

	// Unapplied overpayment is negative; available is its magnitude.
	available := pos.Overpayment.Neg()
	if available.IsNegative() {
		available = decimal.Zero
	}
	actual := maxDecimal(pos.ActualPrincipal(), decimal.Zero)
	interest := round(state.AccruedInterestExclOverpayment)

	// 1. Final period: no recalculation, nothing left for later.
	if terms.RemainingTerm <= 1 {
		return FinalPeriod{
			PrincipalDue:       actual,
			InterestDue:        round(state.AccruedInterest),
			OverpaymentApplied: minDecimal(available, maxDecimal(pos.Principal, decimal.Zero)),
		}, nil
	}

	// 2. Fixed EMI
	if state.PredefinedEMI {
		interestDue := minDecimal(state.EMI, interest)
		principalDue := minDecimal(maxDecimal(state.EMI.Sub(interestDue), decimal.Zero), actual)
		return FixedEMIOverride{
			EMI:                state.EMI,
			PrincipalDue:       principalDue,
			InterestDue:        interestDue,
			AccruedInterest:    round(state.AccruedInterest),
			CarriedInterest:    interest.Sub(interestDue),
			OverpaymentApplied: available,
		}, nil
	}

	// 3. Zero rate
	if terms.MonthlyRate().IsZero() {
		emi, err := terms.EMI(actual, terms.RemainingTerm)
		if err != nil {
			return nil, err
		}
		return ZeroRate{EMI: minDecimal(emi, actual), OverpaymentApplied: available}, nil
	}

	// 4. General
	result := Recalculated{EMI: state.EMI, PreviousEMI: state.EMI, InterestDue: interest}
	if recalc, reason := ShouldRecalculate(in.Recalculation); recalc {
		emi, err := terms.EMI(EMIPrincipalBasis(pos, in.Overpayments), terms.RemainingTerm)
		if err != nil {
			return nil, err
		}
		result.EMI, result.Recalculated, result.Reason = emi, true, reason
	}
	if terms.Method == InterestOnly {
		return result, nil
	}

	// The overpayment delta is the signed unapplied balance, so subtracting
	// it adds the overpayment to the principal made due; it is then settled
	// from OVERPAYMENT.
	raw := maxDecimal(result.EMI.Sub(interest).Sub(pos.Overpayment), decimal.Zero)
	result.PrincipalDue = minDecimal(raw, maxDecimal(pos.Principal, decimal.Zero))
	result.OverpaymentApplied = minDecimal(available, result.PrincipalDue)
	return result, nil
}
