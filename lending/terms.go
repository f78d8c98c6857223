/*
Package lending is the amortization and repayment-progression engine shared
by the mortgage and line-of-credit products.

PURPOSE:
  Given the balances, parameters and flags the host resolved for one hook,
  compute the instalment (EMI), decide when it must be recalculated, split
  each due amount into principal and interest, promote unpaid amounts to
  overdue, accrue interest and penalties, and apply repayments and
  overpayments. Everything here is pure: results become posting, schedule
  and flag directives returned to the host.

KEY CONCEPTS:
  - Position: the loan's balances read by address (position.go)
  - EMI: the equated instalment (emi.go)
  - DueAmount: tagged result of the due-amount calculation (due.go)
  - Recalculation: whether the EMI must change this period (recalculation.go)
  - Overpayment: principal repaid ahead of schedule (overpayment.go)
  - Overdue/delinquency: unpaid due amounts (overdue.go)

ADDRESSES (asset side, net = debit - credit):
  PRINCIPAL            principal not yet due, including capitalised interest,
                       before unapplied overpayments
  OVERPAYMENT          unapplied overpayment credit (<= 0)
  OVERPAYMENT_TRACKER  cumulative overpayment since opening (<= 0)
  CAPITALISED_INTEREST interest capitalised during repayment holidays
  ACCRUED_INTEREST     gross accrued interest, accrued on PRINCIPAL
  ACCRUED_INTEREST_EXCL_OVERPAYMENT
                       accrued on PRINCIPAL + OVERPAYMENT; never above gross
  EMI                  current instalment
  *_DUE, *_OVERDUE     amounts owed now
  PENALTIES, FEES      charges owed now
  TERMS_ELAPSED, TERMS_DEFERRED
                       counters incremented by one per due event

SEE ALSO:
  - mortgage/, lineofcredit/: products built on this package
*/
package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// ADDRESSES
// =============================================================================

const (
	AddressPrincipal                      = "PRINCIPAL"
	AddressOverpayment                    = "OVERPAYMENT"
	AddressOverpaymentTracker             = "OVERPAYMENT_TRACKER"
	AddressCapitalisedInterest            = "CAPITALISED_INTEREST"
	AddressAccruedInterest                = "ACCRUED_INTEREST"
	AddressAccruedInterestExclOverpayment = "ACCRUED_INTEREST_EXCL_OVERPAYMENT"
	AddressEMI                            = "EMI"
	AddressPrincipalDue                   = "PRINCIPAL_DUE"
	AddressInterestDue                    = "INTEREST_DUE"
	AddressPrincipalOverdue               = "PRINCIPAL_OVERDUE"
	AddressInterestOverdue                = "INTEREST_OVERDUE"
	AddressPenalties                      = "PENALTIES"
	AddressFees                           = "FEES"
	AddressTermsElapsed                   = "TERMS_ELAPSED"
	AddressTermsDeferred                  = "TERMS_DEFERRED"
	AddressInternalContra                 = "INTERNAL_CONTRA"
)

// =============================================================================
// PREFERENCES
// =============================================================================

// OverpaymentImpact chooses what an overpayment shortens.
type OverpaymentImpact string

const (
	ReduceTerm OverpaymentImpact = "reduce_term"
	ReduceEMI  OverpaymentImpact = "reduce_emi"
)

// HolidayImpact chooses how a repayment holiday is absorbed.
type HolidayImpact string

const (
	IncreaseTerm HolidayImpact = "increase_term"
	IncreaseEMI  HolidayImpact = "increase_emi"
)

type AmortisationMethod string

const (
	DecliningPrincipal AmortisationMethod = "declining_principal"
	InterestOnly       AmortisationMethod = "interest_only"
)

func ParseOverpaymentImpact(s string) (OverpaymentImpact, error) {
	switch v := OverpaymentImpact(s); v {
	case ReduceTerm, ReduceEMI:
		return v, nil
	}
	return "", fmt.Errorf("unknown overpayment impact preference %q", s)
}

func ParseHolidayImpact(s string) (HolidayImpact, error) {
	switch v := HolidayImpact(s); v {
	case IncreaseTerm, IncreaseEMI:
		return v, nil
	}
	return "", fmt.Errorf("unknown holiday impact preference %q", s)
}

func ParseAmortisationMethod(s string) (AmortisationMethod, error) {
	switch v := AmortisationMethod(s); v {
	case DecliningPrincipal, InterestOnly:
		return v, nil
	}
	return "", fmt.Errorf("unknown amortisation method %q", s)
}

// =============================================================================
// STATE BUNDLES
// =============================================================================

// LoanTerms are fixed within a rate period and replaced wholesale when the
// rate or term changes. RemainingTerm counts the instalments still to be
// made due, including the current one.
type LoanTerms struct {
	Principal     decimal.Decimal
	AnnualRate    decimal.Decimal
	TotalTerm     int
	RemainingTerm int
	FixedRate     bool
	Method        AmortisationMethod
	Balloon       decimal.Decimal
	Precision     int32
	Rounding      generic.RoundingMode
	DaysInYear    generic.DaysInYear
}

// MonthlyRate is the periodic rate used by the EMI calculator.
func (t LoanTerms) MonthlyRate() decimal.Decimal {
	return generic.YearlyToMonthlyRate(t.AnnualRate)
}

// EMI amortises principal over term instalments under these terms.
func (t LoanTerms) EMI(principal decimal.Decimal, term int) (decimal.Decimal, error) {
	return CalculateEMI(EMIInput{
		Principal: principal,
		Rate:      t.MonthlyRate(),
		Term:      term,
		Lump:      t.Balloon,
		Method:    t.Method,
		Precision: t.Precision,
		Rounding:  t.Rounding,
	})
}

// AmortizationState is what the due-amount calculator owns. EMI is the
// predefined instalment when PredefinedEMI is set.
type AmortizationState struct {
	EMI                            decimal.Decimal
	AccruedInterest                decimal.Decimal
	AccruedInterestExclOverpayment decimal.Decimal
	PrincipalExcess                decimal.Decimal
	PredefinedEMI                  bool
}

// OverpaymentLedger summarises overpayments. Cumulative is negative when
// the customer has overpaid.
type OverpaymentLedger struct {
	Cumulative    decimal.Decimal
	FeePercentage decimal.Decimal
	Impact        OverpaymentImpact
}

// Overpaid reports whether anything was overpaid since opening.
func (o OverpaymentLedger) Overpaid() bool {
	return o.Cumulative.IsNegative()
}

type OverdueState struct {
	PrincipalOverdue decimal.Decimal
	InterestOverdue  decimal.Decimal
	Penalties        decimal.Decimal
	GracePeriodDays  int
	Delinquent       bool
}

// Total is the overdue principal plus interest penalties accrue on.
func (o OverdueState) Total() decimal.Decimal {
	return o.PrincipalOverdue.Add(o.InterestOverdue)
}

// RateRegime reports the annual rate in force at a time and whether it is
// the fixed rate.
type RateRegime struct {
	AnnualRate decimal.Decimal
	Fixed      bool
}

// RateAt applies the fixed rate for the first fixedTermMonths after
// opening and the variable rate plus adjustment afterwards.
func RateAt(openedAt, at time.Time, fixedRate decimal.Decimal, fixedTermMonths int,
	variableRate, adjustment decimal.Decimal) RateRegime {
	if fixedTermMonths > 0 && at.Before(generic.AddMonthsClipped(openedAt, fixedTermMonths)) {
		return RateRegime{AnnualRate: fixedRate, Fixed: true}
	}
	return RateRegime{AnnualRate: variableRate.Add(adjustment), Fixed: false}
}
