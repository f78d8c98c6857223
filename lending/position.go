package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// POSITION - a loan's balances by address
// =============================================================================

// Position is the committed net balance of every loan address in one
// denomination.
type Position struct {
	Principal                      decimal.Decimal
	Overpayment                    decimal.Decimal
	OverpaymentTracker             decimal.Decimal
	CapitalisedInterest            decimal.Decimal
	AccruedInterest                decimal.Decimal
	AccruedInterestExclOverpayment decimal.Decimal
	EMI                            decimal.Decimal
	PrincipalDue                   decimal.Decimal
	InterestDue                    decimal.Decimal
	PrincipalOverdue               decimal.Decimal
	InterestOverdue                decimal.Decimal
	Penalties                      decimal.Decimal
	Fees                           decimal.Decimal
	Default                        decimal.Decimal
	TermsElapsed                   int
	TermsDeferred                  int
}

// ReadPosition extracts a Position from a balance set.
func ReadPosition(set generic.BalanceSet, denomination string) Position {
	net := func(address string) decimal.Decimal {
		return set.Net(generic.NewCoordinate(address, denomination))
	}
	return Position{
		Principal:                      net(AddressPrincipal),
		Overpayment:                    net(AddressOverpayment),
		OverpaymentTracker:             net(AddressOverpaymentTracker),
		CapitalisedInterest:            net(AddressCapitalisedInterest),
		AccruedInterest:                net(AddressAccruedInterest),
		AccruedInterestExclOverpayment: net(AddressAccruedInterestExclOverpayment),
		EMI:                            net(AddressEMI),
		PrincipalDue:                   net(AddressPrincipalDue),
		InterestDue:                    net(AddressInterestDue),
		PrincipalOverdue:               net(AddressPrincipalOverdue),
		InterestOverdue:                net(AddressInterestOverdue),
		Penalties:                      net(AddressPenalties),
		Fees:                           net(AddressFees),
		Default:                        net(generic.DefaultAddress),
		TermsElapsed:                   int(net(AddressTermsElapsed).IntPart()),
		TermsDeferred:                  int(net(AddressTermsDeferred).IntPart()),
	}
}

// ActualPrincipal is the principal still to be made due, net of unapplied
// overpayments. It includes capitalised interest.
func (p Position) ActualPrincipal() decimal.Decimal {
	return p.Principal.Add(p.Overpayment)
}

// PrincipalExcludingCapitalised removes interest capitalised during
// repayment holidays from ActualPrincipal.
func (p Position) PrincipalExcludingCapitalised() decimal.Decimal {
	return p.ActualPrincipal().Sub(p.CapitalisedInterest)
}

func (p Position) TotalDue() decimal.Decimal {
	return p.PrincipalDue.Add(p.InterestDue)
}

func (p Position) TotalOverdue() decimal.Decimal {
	return p.PrincipalOverdue.Add(p.InterestOverdue)
}

// AmountOwed is what a repayment may settle today: outstanding principal,
// due and overdue amounts, penalties and fees. Interest accrued but not
// yet due is excluded.
func (p Position) AmountOwed() decimal.Decimal {
	return p.ActualPrincipal().
		Add(p.TotalDue()).
		Add(p.TotalOverdue()).
		Add(p.Penalties).
		Add(p.Fees)
}

// TotalOutstandingDebt adds the accrued interest that would be charged
// today, rounded to the fulfilment precision.
func (p Position) TotalOutstandingDebt(precision int32, mode generic.RoundingMode) decimal.Decimal {
	return p.AmountOwed().Add(generic.Round(p.AccruedInterestExclOverpayment, precision, mode))
}

// RemainingTerm is the number of instalments still to be made due:
// total + deferred - elapsed.
func (p Position) RemainingTerm(totalTerm int) int {
	remaining := totalTerm + p.TermsDeferred - p.TermsElapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Amortization is the due-calculator state. A positive predefined EMI
// replaces the stored one.
func (p Position) Amortization(predefinedEMI decimal.Decimal) AmortizationState {
	state := AmortizationState{
		EMI:                            p.EMI,
		AccruedInterest:                p.AccruedInterest,
		AccruedInterestExclOverpayment: p.AccruedInterestExclOverpayment,
		PrincipalExcess:                decimal.Zero,
	}
	if predefinedEMI.IsPositive() {
		state.EMI, state.PredefinedEMI = predefinedEMI, true
	}
	return state
}

func (p Position) Overpayments(feePercentage decimal.Decimal, impact OverpaymentImpact) OverpaymentLedger {
	return OverpaymentLedger{
		Cumulative:    p.OverpaymentTracker,
		FeePercentage: feePercentage,
		Impact:        impact,
	}
}

func (p Position) Overdue(graceDays int, delinquent bool) OverdueState {
	return OverdueState{
		PrincipalOverdue: p.PrincipalOverdue,
		InterestOverdue:  p.InterestOverdue,
		Penalties:        p.Penalties,
		GracePeriodDays:  graceDays,
		Delinquent:       delinquent,
	}
}
