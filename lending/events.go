package lending

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// LOAN - shared hook handlers
// =============================================================================

// NotificationDelinquent is sent when an account becomes delinquent.
const NotificationDelinquent = "LOAN_DELINQUENT"

// Loan binds one hook invocation to its loaded parameters. Products build
// one per call and delegate the hooks they share.
type Loan struct {
	In     generic.HookInput
	Params LoanParameters
}

// NewLoan loads the loan parameters for a hook invocation.
func NewLoan(in generic.HookInput) (*Loan, error) {
	lp, err := LoadLoanParameters(in.Parameters)
	if err != nil {
		return nil, err
	}
	return &Loan{In: in, Params: lp}, nil
}

// Position reads an observation as a Position in the loan denomination.
func (l *Loan) Position(observation string) (Position, error) {
	set, err := l.In.Balances.Observation(observation)
	if err != nil {
		return Position{}, err
	}
	return ReadPosition(set, l.Params.Denomination), nil
}

func (l *Loan) round(d decimal.Decimal) decimal.Decimal {
	return generic.Round(d, l.Params.FulfilmentPrecision, l.Params.Rounding)
}

func (l *Loan) counter(address, description string) generic.PostingInstruction {
	return tracker(l.In.AccountID, l.Params.Denomination, address, one, description)
}

// repaymentsBlocked is true during a repayment holiday or while
// repayments are blocked outright.
func (l *Loan) repaymentsBlocked() (bool, error) {
	holiday, err := l.In.Flags.Flag(FlagRepaymentHoliday)
	if err != nil || holiday {
		return holiday, err
	}
	return l.In.Flags.Flag(FlagBlockRepayments)
}

// =============================================================================
// ACTIVATION
// =============================================================================

// Activate sets the opening EMI and the event schedules. With disburse the
// principal is paid out to the deposit account.
func (l *Loan) Activate(disburse bool) (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	account := l.In.AccountID

	if disburse && lp.Principal.IsPositive() {
		d.Emit(transfer(lp.Principal, lp.Denomination, account, AddressPrincipal,
			lp.DepositAccount, generic.DefaultAddress, "principal disbursement"))
	}

	emi, err := l.initialEMI(lp.Principal, l.In.OpenedAt)
	if err != nil {
		return nil, err
	}
	d.Emit(tracker(account, lp.Denomination, AddressEMI, emi, "initial emi"))

	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventAccrueInterest, Descriptor: accrualSchedule()})
	d.UpdateSchedule(generic.ScheduleUpdate{
		Event:      EventDueAmountCalculation,
		Descriptor: dueSchedule(FirstDueDate(lp.DueDay, l.In.OpenedAt)),
	})
	d.UpdateSchedule(generic.ScheduleUpdate{
		Event:      EventCheckOverpaymentAllowance,
		Descriptor: allowanceSchedule(l.In.OpenedAt),
	})
	return d, nil
}

// initialEMI amortises principal over the full term at the rate in force
// at the given time, unless the EMI is predefined.
func (l *Loan) initialEMI(principal decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	lp := l.Params
	if lp.PredefinedEMI.IsPositive() {
		return lp.PredefinedEMI, nil
	}
	pos := Position{Principal: principal}
	return lp.Terms(l.In.OpenedAt, at, pos).EMI(principal, lp.TotalTerm)
}

// =============================================================================
// SCHEDULED EVENTS
// =============================================================================

// Scheduled dispatches the loan events.
func (l *Loan) Scheduled(event generic.EventType) (*generic.Directives, error) {
	switch event {
	case EventAccrueInterest:
		return l.AccrueInterest()
	case EventDueAmountCalculation:
		return l.DueAmountCalculation()
	case EventCheckOverdue:
		return l.CheckOverdue()
	case EventCheckDelinquency:
		return l.CheckDelinquency()
	case EventCheckOverpaymentAllowance:
		return l.CheckOverpaymentAllowance()
	}
	return nil, fmt.Errorf("lending: unknown event %s", event)
}

// AccrueInterest accrues a day of interest and, while repayments are not
// blocked, a day of penalty interest on overdue amounts.
func (l *Loan) AccrueInterest() (*generic.Directives, error) {
	lp, d, at := l.Params, generic.NewDirectives(), l.In.EffectiveAt
	pos, err := l.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	blocked, err := l.repaymentsBlocked()
	if err != nil {
		return nil, err
	}

	regime := lp.Rate(l.In.OpenedAt, at)
	accrual := DailyInterest(pos, regime.AnnualRate, lp.DaysInYear, at, lp.AccrualPrecision, lp.Rounding)
	d.Emit(accrual.Instructions(l.In.AccountID, lp.Denomination)...)

	if !blocked {
		penalty := PenaltyInterest(pos.Overdue(lp.GracePeriodDays, false), lp.PenaltyRate, regime.AnnualRate,
			lp.PenaltyIncludesBase, lp.DaysInYear, at, lp.FulfilmentPrecision, lp.Rounding)
		d.Emit(transfer(penalty, lp.Denomination, l.In.AccountID, AddressPenalties,
			lp.PenaltyIncomeAccount, generic.DefaultAddress, "penalty interest"))
	}
	return d, nil
}

// DueAmountCalculation makes the instalment due and schedules the next due
// event and the overdue check. During a repayment holiday the accrued
// interest is capitalised instead.
func (l *Loan) DueAmountCalculation() (*generic.Directives, error) {
	lp, d, at := l.Params, generic.NewDirectives(), l.In.EffectiveAt
	account := l.In.AccountID

	pos, err := l.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	holiday, err := l.In.Flags.Flag(FlagRepaymentHoliday)
	if err != nil {
		return nil, err
	}

	d.UpdateSchedule(generic.ScheduleUpdate{
		Event:      EventDueAmountCalculation,
		Descriptor: dueSchedule(NextDueDate(lp.DueDay, at)),
	})

	if holiday {
		capitalised := l.round(pos.AccruedInterestExclOverpayment)
		d.Emit(
			transfer(capitalised, lp.Denomination, account, AddressPrincipal,
				lp.InterestReceivedAccount, generic.DefaultAddress, "interest capitalised during repayment holiday"),
			tracker(account, lp.Denomination, AddressCapitalisedInterest, capitalised, "capitalised interest"),
			tracker(account, lp.Denomination, AddressAccruedInterest, pos.AccruedInterest.Neg(), "clear accrued interest"),
			tracker(account, lp.Denomination, AddressAccruedInterestExclOverpayment,
				pos.AccruedInterestExclOverpayment.Neg(), "clear accrued interest excluding overpayment"),
			l.counter(AddressTermsElapsed, "term elapsed"),
		)
		if lp.HolidayImpact == IncreaseTerm {
			d.Emit(l.counter(AddressTermsDeferred, "term deferred"))
		}
		return d, nil
	}

	recalc, err := l.recalculationInput(pos)
	if err != nil {
		return nil, err
	}
	due, err := CalculateDue(DueInput{
		Position:      pos,
		Terms:         lp.Terms(l.In.OpenedAt, at, pos),
		State:         pos.Amortization(lp.PredefinedEMI),
		Overpayments:  pos.Overpayments(lp.OverpaymentFeePct, lp.OverpaymentImpact),
		Recalculation: recalc,
	})
	if err != nil {
		return nil, err
	}
	split := due.Split()

	if _, final := due.(FinalPeriod); !final {
		d.Emit(tracker(account, lp.Denomination, AddressEMI, split.EMI.Sub(pos.EMI), "emi update"))
	}
	d.Emit(
		transfer(split.PrincipalDue, lp.Denomination, account, AddressPrincipalDue, account, AddressPrincipal, "principal due"),
		transfer(split.OverpaymentApplied, lp.Denomination, account, AddressOverpayment, account, AddressPrincipalDue, "overpayment applied"),
		transfer(split.InterestDue, lp.Denomination, account, AddressInterestDue,
			lp.InterestReceivedAccount, generic.DefaultAddress, "interest due"),
	)

	// A fixed EMI may leave interest uncovered; it stays accrued.
	if fixed, ok := due.(FixedEMIOverride); ok {
		d.Emit(
			tracker(account, lp.Denomination, AddressAccruedInterest, fixed.InterestDue.Neg(), "interest made due"),
			tracker(account, lp.Denomination, AddressAccruedInterestExclOverpayment, fixed.InterestDue.Neg(), "interest made due"),
		)
	} else {
		d.Emit(
			tracker(account, lp.Denomination, AddressAccruedInterest, pos.AccruedInterest.Neg(), "clear accrued interest"),
			tracker(account, lp.Denomination, AddressAccruedInterestExclOverpayment,
				pos.AccruedInterestExclOverpayment.Neg(), "clear accrued interest excluding overpayment"),
		)
	}
	d.Emit(l.counter(AddressTermsElapsed, "term elapsed"))

	if split.NetPrincipalDue().Add(split.InterestDue).IsPositive() {
		check := generic.StartOfDay(at).AddDate(0, 0, lp.RepaymentPeriodDays)
		d.UpdateSchedule(generic.ScheduleUpdate{Event: EventCheckOverdue, Descriptor: overdueSchedule(check)})
	}
	return d, nil
}

// recalculationInput compares the position with the one at the previous
// due event.
func (l *Loan) recalculationInput(pos Position) (RecalculationConditionInput, error) {
	lp := l.Params
	current := lp.Rate(l.In.OpenedAt, l.In.EffectiveAt)
	in := RecalculationConditionInput{
		CurrentEMI:         pos.EMI,
		PredefinedEMI:      lp.PredefinedEMI.IsPositive(),
		HolidayImpact:      lp.HolidayImpact,
		OverpaymentImpact:  lp.OverpaymentImpact,
		CurrentOverpayment: pos.OverpaymentTracker,
		CurrentRateFixed:   current.Fixed,
		LastRateChange:     lp.LastRateChange,
	}

	previous, err := l.Position(ObservationPreviousDue)
	if err != nil {
		return in, err
	}
	in.PreviousOverpayment = previous.OverpaymentTracker

	lastDue, ok := l.In.Schedules.LastExecution(EventDueAmountCalculation)
	if !ok {
		in.PreviousRateFixed = current.Fixed
		return in, nil
	}
	blocked, err := l.In.Flags.FlagAt(FlagRepaymentHoliday, lastDue)
	if err != nil {
		return in, err
	}
	in.PreviousDueBlocked = blocked
	in.PreviousRateFixed = lp.Rate(l.In.OpenedAt, lastDue).Fixed
	in.PreviousScheduleDate = lastDue
	return in, nil
}

// CheckOverdue promotes unpaid due amounts and schedules the delinquency
// check at the end of the grace period.
func (l *Loan) CheckOverdue() (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	pos, err := l.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	t := CheckOverdue(pos, lp.LateRepaymentFee)
	if !t.Any() {
		return d, nil
	}
	d.Emit(t.Instructions(l.In.AccountID, lp.Denomination, lp.FeeIncomeAccount)...)
	check := generic.StartOfDay(l.In.EffectiveAt).AddDate(0, 0, lp.GracePeriodDays)
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventCheckDelinquency, Descriptor: delinquencySchedule(check)})
	return d, nil
}

// CheckDelinquency flags the account when overdue amounts survived the
// grace period.
func (l *Loan) CheckDelinquency() (*generic.Directives, error) {
	d := generic.NewDirectives()
	pos, err := l.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	blocked, err := l.repaymentsBlocked()
	if err != nil {
		return nil, err
	}
	already, err := l.In.Flags.Flag(FlagAccountDelinquent)
	if err != nil {
		return nil, err
	}
	if !IsDelinquent(pos, blocked) || already {
		return d, nil
	}
	d.SetFlag(FlagAccountDelinquent, true)
	d.Notify(NotificationDelinquent, map[string]string{
		"account_id": string(l.In.AccountID),
		"overdue":    pos.TotalOverdue().StringFixed(l.Params.FulfilmentPrecision),
	})
	return d, nil
}

// CheckOverpaymentAllowance charges the overpayment fee on what was
// overpaid beyond the allowance since the previous check.
func (l *Loan) CheckOverpaymentAllowance() (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	pos, err := l.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	previous, err := l.Position(ObservationLastAllowanceCheck)
	if err != nil {
		return nil, err
	}
	fee := lp.Allowance().OverpaymentFee(OverpaidSince(previous.OverpaymentTracker, pos.OverpaymentTracker))
	d.Emit(transfer(fee, lp.Denomination, l.In.AccountID, AddressFees,
		lp.FeeIncomeAccount, generic.DefaultAddress, "overpayment fee"))
	return d, nil
}

// =============================================================================
// POSTINGS
// =============================================================================

// DebitCheck decides whether a customer debit of amount may go ahead. It
// returns nil to accept.
type DebitCheck func(amount decimal.Decimal, pos Position) *generic.Rejection

// ValidatePosting checks a proposed batch against live balances. Debits
// are refused unless allowDebit accepts them or the batch overrides.
func (l *Loan) ValidatePosting(batch generic.PostingBatch, allowDebit DebitCheck) (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	for _, p := range batch.Postings {
		if p.AccountID == l.In.AccountID && p.Denomination != lp.Denomination {
			d.Reject(generic.RejectWrongDenomination,
				fmt.Sprintf("cannot make transactions in %s, only %s is accepted", p.Denomination, lp.Denomination))
			return d, nil
		}
	}

	pos, err := l.Position(generic.ObservationLive)
	if err != nil {
		return nil, err
	}
	net := batch.NetForAccount(l.In.AccountID, lp.Denomination)
	override := batch.HasOverride()

	switch {
	case net.IsPositive():
		blocked, err := l.In.Flags.Flag(FlagBlockRepayments)
		if err != nil {
			return nil, err
		}
		if blocked {
			d.Reject(generic.RejectAgainstTerms, "repayments are blocked for this account")
			return d, nil
		}
		if owed := pos.AmountOwed(); net.GreaterThan(owed) && !override {
			d.Reject(generic.RejectAgainstTerms,
				fmt.Sprintf("cannot repay %s, more than the %s owed", net.String(), owed.StringFixed(lp.FulfilmentPrecision)))
		}
	case net.IsNegative():
		if override {
			return d, nil
		}
		if allowDebit == nil {
			d.Reject(generic.RejectAgainstTerms, "debits are not allowed")
			return d, nil
		}
		if r := allowDebit(net.Neg(), pos); r != nil {
			d.Reject(r.Reason, r.Message)
		}
	}
	return d, nil
}

// ApplyRepayment distributes a committed repayment and clears the
// delinquency flag once nothing is due or overdue.
func (l *Loan) ApplyRepayment(batch generic.PostingBatch) (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	net := batch.NetForAccount(l.In.AccountID, lp.Denomination)
	if !net.IsPositive() {
		return d, nil
	}
	pos, err := l.Position(generic.ObservationLive)
	if err != nil {
		return nil, err
	}
	alloc := AllocateRepayment(pos, net)
	d.Emit(alloc.Instructions(l.In.AccountID, lp.Denomination)...)

	delinquent, err := l.In.Flags.Flag(FlagAccountDelinquent)
	if err != nil {
		return nil, err
	}
	if delinquent && alloc.ClearsArrears(pos) {
		d.SetFlag(FlagAccountDelinquent, false)
	}
	return d, nil
}

// =============================================================================
// PARAMETER CHANGES
// =============================================================================

// ValidateParameterChange refuses changes to fixed parameters and grace or
// repayment periods longer than a repayment cycle, and moves the due
// schedule when the repayment day changes.
func (l *Loan) ValidateParameterChange(proposed map[string]string, fixed ...string) (*generic.Directives, error) {
	d := generic.NewDirectives()
	for _, name := range fixed {
		if _, ok := proposed[name]; ok {
			d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("%s cannot be changed after activation", name))
			return d, nil
		}
	}

	for _, name := range []string{ParamGracePeriod, ParamRepaymentPeriod} {
		raw, ok := proposed[name]
		if !ok {
			continue
		}
		if days, err := strconv.Atoi(raw); err != nil || days < 0 || days >= MinRepaymentCycleDays {
			d.Reject(generic.RejectAgainstTerms,
				fmt.Sprintf("%s must be between 0 and %d days, got %q", name, MinRepaymentCycleDays-1, raw))
			return d, nil
		}
	}

	raw, ok := proposed[ParamDueAmountCalculationDay]
	if !ok {
		return d, nil
	}
	day, err := strconv.Atoi(raw)
	if err != nil || day < 1 || day > 31 {
		d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("invalid repayment day %q", raw))
		return d, nil
	}
	lastDue, _ := l.In.Schedules.LastExecution(EventDueAmountCalculation)
	next := ChangeRepaymentDay(day, l.In.EffectiveAt, lastDue, l.In.OpenedAt)
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventDueAmountCalculation, Descriptor: dueSchedule(next)})
	return d, nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

const (
	DerivedStatus               = "status"
	DerivedEMI                  = "emi"
	DerivedRemainingTerm        = "remaining_term"
	DerivedNextDueDate          = "next_due_date"
	DerivedTotalOutstandingDebt = "total_outstanding_debt"
	DerivedOutstandingPrincipal = "outstanding_principal"
	DerivedTotalOverpayment     = "total_overpayment"
	DerivedEarlyRepaymentCharge = "early_repayment_charge"
	DerivedPayoffAmount         = "payoff_amount"
)

// Derived reports the loan's figures at the effective time.
func (l *Loan) Derived() (*generic.Directives, error) {
	lp, d := l.Params, generic.NewDirectives()
	pos, err := l.Position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	lastCheck, err := l.Position(ObservationLastAllowanceCheck)
	if err != nil {
		return nil, err
	}
	delinquent, err := l.In.Flags.Flag(FlagAccountDelinquent)
	if err != nil {
		return nil, err
	}

	money := func(v decimal.Decimal) string { return v.StringFixed(lp.FulfilmentPrecision) }
	debt := pos.TotalOutstandingDebt(lp.FulfilmentPrecision, lp.Rounding)
	overpaid := OverpaidSince(lastCheck.OverpaymentTracker, pos.OverpaymentTracker)
	erc := lp.Allowance().EarlyRepaymentCharge(debt, overpaid)

	next := FirstDueDate(lp.DueDay, l.In.OpenedAt)
	if lastDue, ok := l.In.Schedules.LastExecution(EventDueAmountCalculation); ok {
		next = NextDueDate(lp.DueDay, lastDue)
	}

	d.SetDerived(DerivedStatus, string(DeriveStatus(pos, delinquent)))
	d.SetDerived(DerivedEMI, money(pos.EMI))
	d.SetDerived(DerivedRemainingTerm, strconv.Itoa(pos.RemainingTerm(lp.TotalTerm)))
	d.SetDerived(DerivedNextDueDate, next.Format("2006-01-02"))
	d.SetDerived(DerivedTotalOutstandingDebt, money(debt))
	d.SetDerived(DerivedOutstandingPrincipal, money(pos.ActualPrincipal()))
	d.SetDerived(DerivedTotalOverpayment, money(pos.OverpaymentTracker.Neg()))
	d.SetDerived(DerivedEarlyRepaymentCharge, money(erc))
	d.SetDerived(DerivedPayoffAmount, money(debt.Add(erc)))
	return d, nil
}
