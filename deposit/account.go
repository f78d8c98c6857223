/*
Package deposit holds the liability-side rule sets: an easy access savings
account and a fixed term deposit.

PURPOSE:
  Deposit products hold customer money, so they sit on the liability side
  of the bank's balance sheet: a customer deposit is a credit on DEFAULT
  and balances are credit-positive. Interest accrues daily into
  ACCRUED_INTEREST_PAYABLE and is paid from the bank's interest_paid_account
  when it is applied.

KEY CONCEPTS:
  DEFAULT                   customer balance
  ACCRUED_INTEREST_PAYABLE  interest accrued and not yet paid, offset
                            against INTERNAL_CONTRA on the same account
  Terms                     parameters shared by every deposit product

SEE ALSO:
  - savings.go: Tiered rate savings account
  - timedeposit.go: Fixed term deposit
  - presets.go: Ready-made definitions
*/
package deposit

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// ADDRESSES, EVENTS AND PARAMETERS
// =============================================================================

const (
	AddressAccruedInterestPayable = "ACCRUED_INTEREST_PAYABLE"
	AddressInternalContra         = "INTERNAL_CONTRA"
)

const (
	EventAccrueInterest generic.EventType = "ACCRUE_INTEREST"
	EventApplyInterest  generic.EventType = "APPLY_INTEREST"
	EventMaturity       generic.EventType = "MATURITY"
)

// Parameters every deposit product reads.
const (
	ParamDenomination             = "denomination"
	ParamDaysInYear               = "days_in_year"
	ParamInterestAccrualPrecision = "interest_accrual_precision"
	ParamFulfillmentPrecision     = "fulfillment_precision"
	ParamRoundingMode             = "rounding_mode"
	ParamInterestPaidAccount      = "interest_paid_account"
)

var termsParameterNames = []string{
	ParamDenomination, ParamDaysInYear, ParamInterestAccrualPrecision,
	ParamFulfillmentPrecision, ParamRoundingMode, ParamInterestPaidAccount,
}

// Derived value names shared by the deposit products.
const (
	DerivedBalance         = "balance"
	DerivedAccruedInterest = "accrued_interest"
	DerivedInterestRate    = "interest_rate"
)

// =============================================================================
// POSITION
// =============================================================================

// Position is the committed net of the deposit addresses.
type Position struct {
	Balance         decimal.Decimal
	AccruedInterest decimal.Decimal
}

func ReadPosition(set generic.BalanceSet, denomination string) Position {
	return Position{
		Balance:         set.Net(generic.NewCoordinate(generic.DefaultAddress, denomination)),
		AccruedInterest: set.Net(generic.NewCoordinate(AddressAccruedInterestPayable, denomination)),
	}
}

// =============================================================================
// TERMS
// =============================================================================

// Terms are the parameters shared by every deposit product.
type Terms struct {
	Denomination        string
	DaysInYear          generic.DaysInYear
	AccrualPrecision    int32
	FulfilmentPrecision int32
	Rounding            generic.RoundingMode
	InterestPaidAccount generic.AccountID
}

func loadTerms(l *paramLoader, defaultDays generic.DaysInYear) (Terms, error) {
	t := Terms{
		Denomination:        l.text(ParamDenomination, "", true),
		AccrualPrecision:    int32(l.int(ParamInterestAccrualPrecision, 5, false)),
		FulfilmentPrecision: int32(l.int(ParamFulfillmentPrecision, 2, false)),
		InterestPaidAccount: generic.AccountID(l.text(ParamInterestPaidAccount, "", true)),
	}
	days := l.text(ParamDaysInYear, string(defaultDays), false)
	rounding := l.text(ParamRoundingMode, string(generic.RoundHalfUp), false)
	if l.err != nil {
		return Terms{}, l.err
	}

	var err error
	if t.DaysInYear, err = generic.ParseDaysInYear(days); err != nil {
		return Terms{}, generic.ConfigError(ParamDaysInYear, "%v", err)
	}
	if t.Rounding, err = generic.ParseRoundingMode(rounding); err != nil {
		return Terms{}, generic.ConfigError(ParamRoundingMode, "%v", err)
	}
	switch {
	case t.Denomination == "":
		return Terms{}, generic.ConfigError(ParamDenomination, "must not be empty")
	case t.InterestPaidAccount == "":
		return Terms{}, generic.ConfigError(ParamInterestPaidAccount, "must not be empty")
	case t.AccrualPrecision < 0 || t.FulfilmentPrecision < 0:
		return Terms{}, generic.ConfigError(ParamInterestAccrualPrecision, "precisions must not be negative")
	}
	return t, nil
}

// paramLoader reads parameters until the first error. Optional parameters
// fall back to their default when not set.
type paramLoader struct {
	p   generic.ParameterReader
	err error
}

func optional(err error) error {
	if errors.Is(err, generic.ErrParameterNotSet) {
		return nil
	}
	return err
}

func (l *paramLoader) fail(err error, required bool) {
	if required {
		l.err = err
		return
	}
	l.err = optional(err)
}

func (l *paramLoader) text(name, def string, required bool) string {
	if l.err != nil {
		return def
	}
	v, err := l.p.Text(name)
	if err != nil {
		l.fail(err, required)
		return def
	}
	return v
}

func (l *paramLoader) int(name string, def int, required bool) int {
	if l.err != nil {
		return def
	}
	v, err := l.p.Int(name)
	if err != nil {
		l.fail(err, required)
		return def
	}
	return v
}

func (l *paramLoader) decimal(name string, def decimal.Decimal, required bool) decimal.Decimal {
	if l.err != nil {
		return def
	}
	v, err := l.p.Decimal(name)
	if err != nil {
		l.fail(err, required)
		return def
	}
	return v
}

// limit reads an optional upper or lower bound. Unset means unbounded.
func (l *paramLoader) limit(name string) Limit {
	if l.err != nil {
		return Limit{}
	}
	v, err := l.p.Decimal(name)
	if err != nil {
		l.fail(err, false)
		return Limit{}
	}
	if v.IsNegative() {
		l.err = generic.ConfigError(name, "must not be negative")
		return Limit{}
	}
	return Limit{Value: v, Set: true}
}

// Limit is an optional amount bound.
type Limit struct {
	Value decimal.Decimal
	Set   bool
}

// Exceeded reports whether amount is above a set limit.
func (l Limit) Exceeded(amount decimal.Decimal) bool {
	return l.Set && amount.GreaterThan(l.Value)
}

// =============================================================================
// SHARED HOOK LOGIC
// =============================================================================

// account is one hook invocation on a deposit account.
type account struct {
	in    generic.HookInput
	terms Terms
}

func (a *account) position(observation string) (Position, error) {
	set, err := a.in.Balances.Observation(observation)
	if err != nil {
		return Position{}, err
	}
	return ReadPosition(set, a.terms.Denomination), nil
}

func (a *account) money(v decimal.Decimal) string {
	return v.StringFixed(a.terms.FulfilmentPrecision)
}

// wrongDenomination rejects a batch touching the account in any other
// denomination.
func (a *account) wrongDenomination(batch generic.PostingBatch, d *generic.Directives) bool {
	for _, p := range batch.Postings {
		if p.AccountID == a.in.AccountID && p.Denomination != a.terms.Denomination {
			d.Reject(generic.RejectWrongDenomination,
				fmt.Sprintf("cannot make transactions in %s, only %s is accepted", p.Denomination, a.terms.Denomination))
			return true
		}
	}
	return false
}

// dailyInterest is one day of interest on a positive balance at the
// accrual precision.
func (a *account) dailyInterest(balance, annualRate decimal.Decimal, at time.Time) decimal.Decimal {
	if !balance.IsPositive() || !annualRate.IsPositive() {
		return decimal.Zero
	}
	rate := generic.YearlyToDailyRate(annualRate, a.terms.DaysInYear, at)
	return generic.Round(balance.Mul(rate), a.terms.AccrualPrecision, a.terms.Rounding)
}

// accrue moves amount onto ACCRUED_INTEREST_PAYABLE. A negative amount
// reverses an accrual.
func (a *account) accrue(d *generic.Directives, amount decimal.Decimal, description string) {
	d.Emit(generic.PostingInstruction{
		Amount:        amount,
		Denomination:  a.terms.Denomination,
		DebitAccount:  a.in.AccountID,
		DebitAddress:  AddressInternalContra,
		CreditAccount: a.in.AccountID,
		CreditAddress: AddressAccruedInterestPayable,
		Metadata:      map[string]string{"description": description},
	})
}

// payInterest pays amount from the bank's interest account to the
// customer balance.
func (a *account) payInterest(d *generic.Directives, amount decimal.Decimal, description string) {
	if !amount.IsPositive() {
		return
	}
	d.Emit(generic.PostingInstruction{
		Amount:        amount,
		Denomination:  a.terms.Denomination,
		DebitAccount:  a.terms.InterestPaidAccount,
		DebitAddress:  generic.DefaultAddress,
		CreditAccount: a.in.AccountID,
		CreditAddress: generic.DefaultAddress,
		Metadata:      map[string]string{"description": description},
	})
}

// applyAccrued pays the accrued interest rounded to the fulfilment
// precision and clears the payable address. The rounding remainder is
// released with it.
func (a *account) applyAccrued(d *generic.Directives, pos Position) decimal.Decimal {
	paid := generic.Round(pos.AccruedInterest, a.terms.FulfilmentPrecision, a.terms.Rounding)
	a.payInterest(d, paid, "interest application")
	a.accrue(d, pos.AccruedInterest.Neg(), "clear accrued interest")
	return paid
}

func intPtr(i int) *int { return &i }

// monthlyOn fires every month on day (clipped to month end) at the given
// time of day.
func monthlyOn(day, hour, minute, second int) generic.ScheduleDescriptor {
	return generic.ScheduleDescriptor{Day: intPtr(day), Hour: intPtr(hour), Minute: intPtr(minute), Second: intPtr(second)}
}

func accrualSchedule() generic.ScheduleDescriptor { return generic.Daily(0, 0, 0) }
