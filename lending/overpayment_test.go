package lending_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/lending"
)

func allowanceTerms() lending.AllowanceTerms {
	return lending.AllowanceTerms{
		OriginalPrincipal:    dec("100000"),
		AllowancePercentage:  dec("0.1"),
		FeePercentage:        dec("0.05"),
		EarlyRepaymentFeePct: dec("0.02"),
		Precision:            2,
		Rounding:             generic.RoundHalfUp,
	}
}

func TestOverpaidSince(t *testing.T) {
	assertDecimal(t, "12000", lending.OverpaidSince(dec("-5000"), dec("-17000")))
	assertDecimal(t, "0", lending.OverpaidSince(dec("-5000"), dec("-5000")))
	// A reversal since the last reading never counts as negative overpayment
	assertDecimal(t, "0", lending.OverpaidSince(dec("-5000"), dec("-3000")))
}

func TestOverpaymentFee(t *testing.T) {
	terms := allowanceTerms()
	assertDecimal(t, "10000", terms.Allowance())

	// GIVEN 12000 overpaid against a 10000 allowance
	// THEN 5% is charged on the 2000 excess
	assertDecimal(t, "100.00", terms.OverpaymentFee(dec("12000")))
	assertDecimal(t, "0", terms.OverpaymentFee(dec("8000")))
	assertDecimal(t, "0", terms.OverpaymentFee(dec("10000")))
}

func TestEarlyRepaymentCharge(t *testing.T) {
	terms := allowanceTerms()

	// GIVEN 4000 of the 10000 allowance used and 50000 outstanding
	// THEN the fee applies to 50000 - 6000
	assertDecimal(t, "6000", terms.RemainingAllowance(dec("4000")))
	assertDecimal(t, "880.00", terms.EarlyRepaymentCharge(dec("50000"), dec("4000")))

	// Debt within the remaining allowance is free to repay
	assertDecimal(t, "0", terms.EarlyRepaymentCharge(dec("5000"), dec("4000")))

	// Allowance exhausted
	assertDecimal(t, "0", terms.RemainingAllowance(dec("15000")))
	assertDecimal(t, "1000.00", terms.EarlyRepaymentCharge(dec("50000"), dec("15000")))
}

func TestEMIPrincipalBasis(t *testing.T) {
	pos := lending.Position{
		Principal:           dec("1000"),
		Overpayment:         dec("-100"),
		OverpaymentTracker:  dec("-100"),
		CapitalisedInterest: dec("50"),
	}

	assertDecimal(t, "850", lending.EMIPrincipalBasis(pos, pos.Overpayments(decimal.Zero, lending.ReduceEMI)))
	assertDecimal(t, "900", lending.EMIPrincipalBasis(pos, pos.Overpayments(decimal.Zero, lending.ReduceTerm)))

	// Without any overpayment the capitalised interest stays in the basis
	pos.Overpayment, pos.OverpaymentTracker = dec("0"), dec("0")
	assertDecimal(t, "1000", lending.EMIPrincipalBasis(pos, pos.Overpayments(decimal.Zero, lending.ReduceEMI)))
}

func TestPosition_Figures(t *testing.T) {
	pos := lending.Position{
		Principal:                      dec("1000"),
		Overpayment:                    dec("-100"),
		AccruedInterestExclOverpayment: dec("1.23456"),
		PrincipalDue:                   dec("40"),
		InterestDue:                    dec("5"),
		PrincipalOverdue:               dec("20"),
		InterestOverdue:                dec("2"),
		Penalties:                      dec("0.5"),
		Fees:                           dec("10"),
		TermsElapsed:                   4,
		TermsDeferred:                  1,
	}

	assertDecimal(t, "900", pos.ActualPrincipal())
	assertDecimal(t, "977.5", pos.AmountOwed())
	assertDecimal(t, "978.73", pos.TotalOutstandingDebt(2, generic.RoundHalfUp))
	assert.Equal(t, 9, pos.RemainingTerm(12))
	assert.Equal(t, 0, pos.RemainingTerm(2))
}
