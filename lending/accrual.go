package lending

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// INTEREST ACCRUAL
// =============================================================================

// Accrual is one day of interest at the accrual precision.
type Accrual struct {
	// Gross accrues on PRINCIPAL.
	Gross decimal.Decimal
	// ExclOverpayment accrues on PRINCIPAL + OVERPAYMENT.
	ExclOverpayment decimal.Decimal
	DailyRate       decimal.Decimal
}

// DailyInterest computes one day of interest using the day count of the
// accrual date. Both figures are floored at zero, which keeps
// ExclOverpayment <= Gross.
func DailyInterest(pos Position, annualRate decimal.Decimal, days generic.DaysInYear, at time.Time,
	precision int32, mode generic.RoundingMode) Accrual {
	rate := generic.YearlyToDailyRate(annualRate, days, at)
	accrue := func(base decimal.Decimal) decimal.Decimal {
		if !base.IsPositive() || !rate.IsPositive() {
			return decimal.Zero
		}
		return generic.Round(base.Mul(rate), precision, mode)
	}
	return Accrual{
		Gross:           accrue(pos.Principal),
		ExclOverpayment: accrue(pos.ActualPrincipal()),
		DailyRate:       rate,
	}
}

// PenaltyInterest is one day of penalty interest on the overdue total,
// rounded to the fulfilment precision.
func PenaltyInterest(overdue OverdueState, penaltyRate, baseRate decimal.Decimal, includeBase bool,
	days generic.DaysInYear, at time.Time, precision int32, mode generic.RoundingMode) decimal.Decimal {
	total := overdue.Total()
	if !total.IsPositive() {
		return decimal.Zero
	}
	annual := penaltyRate
	if includeBase {
		annual = annual.Add(baseRate)
	}
	if !annual.IsPositive() {
		return decimal.Zero
	}
	return generic.Round(total.Mul(generic.YearlyToDailyRate(annual, days, at)), precision, mode)
}

// Postings for one day of accrual. Both trackers are offset against
// INTERNAL_CONTRA on the loan account itself.
func (a Accrual) Instructions(account generic.AccountID, denomination string) []generic.PostingInstruction {
	return []generic.PostingInstruction{
		tracker(account, denomination, AddressAccruedInterest, a.Gross, "daily interest accrual"),
		tracker(account, denomination, AddressAccruedInterestExclOverpayment, a.ExclOverpayment, "daily interest accrual excluding overpayment"),
	}
}

// tracker moves amount onto an internal address of the loan account. A
// negative amount reverses it.
func tracker(account generic.AccountID, denomination, address string, amount decimal.Decimal, description string) generic.PostingInstruction {
	return generic.PostingInstruction{
		Amount:        amount,
		Denomination:  denomination,
		DebitAccount:  account,
		DebitAddress:  address,
		CreditAccount: account,
		CreditAddress: AddressInternalContra,
		Metadata:      map[string]string{"description": description},
	}
}

// transfer debits one address and credits another.
func transfer(amount decimal.Decimal, denomination string, debit generic.AccountID, debitAddr string,
	credit generic.AccountID, creditAddr string, description string) generic.PostingInstruction {
	return generic.PostingInstruction{
		Amount:        amount,
		Denomination:  denomination,
		DebitAccount:  debit,
		DebitAddress:  debitAddr,
		CreditAccount: credit,
		CreditAddress: creditAddr,
		Metadata:      map[string]string{"description": description},
	}
}
