package deposit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// TIME DEPOSIT
// =============================================================================

const TimeDepositProductID generic.ProductID = "time_deposit"

const (
	ParamInterestRate       = "interest_rate"
	ParamTerm               = "term"
	ParamDepositPeriod      = "deposit_period"
	ParamDayCountConvention = "day_count_convention"
)

const (
	DerivedMaturityDate       = "maturity_date"
	DerivedInterestAtMaturity = "interest_at_maturity"
	DerivedStatus             = "status"
)

// Time deposit lifecycle as reported by the status derived value.
const (
	StatusDepositWindow = "DEPOSIT_WINDOW"
	StatusFixed         = "FIXED"
	StatusMatured       = "MATURED"
)

// NotificationDepositMatured is sent when the maturity event pays out.
const NotificationDepositMatured = "DEPOSIT_MATURED"

var timeDepositParameterNames = append([]string{
	ParamInterestRate, ParamTerm, ParamDepositPeriod, ParamDayCountConvention,
}, termsParameterNames...)

// Parameters that shape the contract and cannot change once opened.
var timeDepositFixedParameters = []string{ParamDenomination, ParamInterestRate, ParamTerm, ParamDayCountConvention}

type TimeDepositParameters struct {
	Terms
	Rate              decimal.Decimal
	TermMonths        int
	DepositPeriodDays int
	Convention        generic.DayCountConvention
}

func LoadTimeDepositParameters(p generic.ParameterReader) (TimeDepositParameters, error) {
	l := &paramLoader{p: p}
	terms, err := loadTerms(l, generic.DaysInYear365)
	if err != nil {
		return TimeDepositParameters{}, err
	}
	tp := TimeDepositParameters{
		Terms:             terms,
		Rate:              l.decimal(ParamInterestRate, decimal.Zero, true),
		TermMonths:        l.int(ParamTerm, 0, true),
		DepositPeriodDays: l.int(ParamDepositPeriod, 7, false),
	}
	convention := l.text(ParamDayCountConvention, string(generic.DayCountAct365), false)
	if l.err != nil {
		return TimeDepositParameters{}, l.err
	}
	if tp.Convention, err = generic.ParseDayCountConvention(convention); err != nil {
		return TimeDepositParameters{}, generic.ConfigError(ParamDayCountConvention, "%v", err)
	}
	switch {
	case tp.Rate.IsNegative():
		return TimeDepositParameters{}, generic.ConfigError(ParamInterestRate, "must not be negative")
	case tp.TermMonths <= 0:
		return TimeDepositParameters{}, generic.ConfigError(ParamTerm, "must be positive, got %d", tp.TermMonths)
	case tp.DepositPeriodDays < 0:
		return TimeDepositParameters{}, generic.ConfigError(ParamDepositPeriod, "must not be negative")
	}
	return tp, nil
}

// MaturityDate is the calendar day term months after opening.
func (tp TimeDepositParameters) MaturityDate(openedAt time.Time) time.Time {
	return generic.AddMonthsClipped(generic.StartOfDay(openedAt), tp.TermMonths)
}

// InterestAtMaturity is the whole-term interest on balance, rounded to the
// fulfilment precision.
func (tp TimeDepositParameters) InterestAtMaturity(balance decimal.Decimal, openedAt time.Time) (decimal.Decimal, error) {
	if !balance.IsPositive() {
		return decimal.Zero, nil
	}
	fraction, err := generic.YearFraction(generic.StartOfDay(openedAt), tp.MaturityDate(openedAt), tp.Convention)
	if err != nil {
		return decimal.Zero, generic.ConfigError(ParamDayCountConvention, "%v", err)
	}
	return generic.Round(balance.Mul(tp.Rate).Mul(fraction), tp.FulfilmentPrecision, tp.Rounding), nil
}

// TimeDeposit takes deposits for a short window after opening and locks
// them until maturity.
type TimeDeposit struct {
	manifest generic.Manifest
}

func NewTimeDeposit() *TimeDeposit {
	params := func() []string { return append([]string(nil), timeDepositParameterNames...) }
	effective := []generic.BalanceRequirement{generic.Effective()}
	return &TimeDeposit{manifest: generic.Manifest{
		Events: []generic.EventType{EventAccrueInterest, EventMaturity},
		Hooks: map[generic.HookKey]generic.DataRequirements{
			generic.Hook(generic.HookActivation): {
				Parameters: params(),
			},
			generic.Hook(generic.HookPrePosting): {
				Balances:   []generic.BalanceRequirement{generic.Live()},
				Parameters: params(),
			},
			generic.Hook(generic.HookPostPosting): {
				Parameters: params(),
			},
			generic.Hook(generic.HookParameterChange): {
				Parameters: params(),
			},
			generic.Hook(generic.HookDerived): {
				Balances:   effective,
				Parameters: params(),
			},
			generic.ScheduledHook(EventAccrueInterest): {
				Balances:   effective,
				Parameters: params(),
			},
			generic.ScheduledHook(EventMaturity): {
				Balances:   effective,
				Parameters: params(),
			},
		},
	}}
}

func init() {
	generic.MustRegister(NewTimeDeposit())
}

var (
	_ generic.Product            = (*TimeDeposit)(nil)
	_ generic.ParameterValidator = (*TimeDeposit)(nil)
)

func (t *TimeDeposit) ID() generic.ProductID      { return TimeDepositProductID }
func (t *TimeDeposit) Tside() generic.Tside       { return generic.TsideLiability }
func (t *TimeDeposit) Manifest() generic.Manifest { return t.manifest }

type timeDepositAccount struct {
	account
	params   TimeDepositParameters
	maturity time.Time
}

func loadTimeDeposit(in generic.HookInput) (*timeDepositAccount, error) {
	tp, err := LoadTimeDepositParameters(in.Parameters)
	if err != nil {
		return nil, err
	}
	return &timeDepositAccount{
		account:  account{in: in, terms: tp.Terms},
		params:   tp,
		maturity: tp.MaturityDate(in.OpenedAt),
	}, nil
}

func (ta *timeDepositAccount) matured(at time.Time) bool {
	return !generic.StartOfDay(at).Before(ta.maturity)
}

func (ta *timeDepositAccount) depositWindowOpen(at time.Time) bool {
	return generic.DaysBetween(ta.in.OpenedAt, at) <= ta.params.DepositPeriodDays
}

// Activate starts daily accrual and schedules maturity just after the
// last accrual.
func (t *TimeDeposit) Activate(in generic.HookInput) (*generic.Directives, error) {
	ta, err := loadTimeDeposit(in)
	if err != nil {
		return nil, err
	}
	d := generic.NewDirectives()
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventAccrueInterest, Descriptor: accrualSchedule()})
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventMaturity, Descriptor: generic.At(ta.maturity, 0, 1, 0)})
	return d, nil
}

// PrePosting accepts deposits only during the deposit window and
// withdrawals only after maturity. An override lifts both restrictions,
// never the balance check.
func (t *TimeDeposit) PrePosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	ta, err := loadTimeDeposit(in)
	if err != nil {
		return nil, err
	}
	d := generic.NewDirectives()
	if ta.wrongDenomination(batch, d) {
		return d, nil
	}
	pos, err := ta.position(generic.ObservationLive)
	if err != nil {
		return nil, err
	}

	net := batch.NetForAccount(in.AccountID, ta.terms.Denomination)
	override := batch.HasOverride()
	switch {
	case net.IsPositive() && !override && !ta.depositWindowOpen(in.EffectiveAt):
		d.Reject(generic.RejectAgainstTerms,
			fmt.Sprintf("deposits are only accepted within %d days of opening", ta.params.DepositPeriodDays))
	case net.IsNegative() && !override && !ta.matured(in.EffectiveAt):
		d.Reject(generic.RejectAgainstTerms,
			fmt.Sprintf("withdrawals are not allowed before maturity on %s", ta.maturity.Format("2006-01-02")))
	case net.IsNegative() && pos.Balance.Add(net).IsNegative():
		d.Reject(generic.RejectInsufficientFunds,
			fmt.Sprintf("withdrawal of %s exceeds the balance of %s", net.Neg().String(), ta.money(pos.Balance)))
	}
	return d, nil
}

func (t *TimeDeposit) PostPosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	return generic.NewDirectives(), nil
}

func (t *TimeDeposit) ScheduledEvent(in generic.HookInput, event generic.EventType) (*generic.Directives, error) {
	ta, err := loadTimeDeposit(in)
	if err != nil {
		return nil, err
	}
	switch event {
	case EventAccrueInterest:
		return ta.accrueInterest()
	case EventMaturity:
		return ta.mature()
	}
	return nil, fmt.Errorf("time deposit: unknown event %s", event)
}

// accrueInterest accrues one day up to and including the maturity day.
func (ta *timeDepositAccount) accrueInterest() (*generic.Directives, error) {
	d := generic.NewDirectives()
	if generic.StartOfDay(ta.in.EffectiveAt).After(ta.maturity) {
		return d, nil
	}
	pos, err := ta.position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	ta.accrue(d, ta.dailyInterest(pos.Balance, ta.params.Rate, ta.in.EffectiveAt), "daily interest accrual")
	return d, nil
}

// mature pays the whole-term interest, releases the daily accruals and
// stops accrual.
func (ta *timeDepositAccount) mature() (*generic.Directives, error) {
	pos, err := ta.position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	interest, err := ta.params.InterestAtMaturity(pos.Balance, ta.in.OpenedAt)
	if err != nil {
		return nil, err
	}

	d := generic.NewDirectives()
	ta.payInterest(d, interest, "interest at maturity")
	ta.accrue(d, pos.AccruedInterest.Neg(), "release accrued interest")
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventAccrueInterest, Remove: true})
	d.Notify(NotificationDepositMatured, map[string]string{
		"account_id":    string(ta.in.AccountID),
		"maturity_date": ta.maturity.Format("2006-01-02"),
		"principal":     ta.money(pos.Balance),
		"interest":      ta.money(interest),
	})
	return d, nil
}

func (t *TimeDeposit) ParameterChange(in generic.HookInput, proposed map[string]string) (*generic.Directives, error) {
	d := generic.NewDirectives()
	for _, name := range timeDepositFixedParameters {
		if _, ok := proposed[name]; ok {
			d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("%s cannot be changed after activation", name))
			return d, nil
		}
	}
	return d, nil
}

func (t *TimeDeposit) DerivedValues(in generic.HookInput) (*generic.Directives, error) {
	ta, err := loadTimeDeposit(in)
	if err != nil {
		return nil, err
	}
	pos, err := ta.position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}

	status := StatusFixed
	switch {
	case ta.matured(in.EffectiveAt):
		status = StatusMatured
	case ta.depositWindowOpen(in.EffectiveAt):
		status = StatusDepositWindow
	}

	d := generic.NewDirectives()
	d.SetDerived(DerivedBalance, ta.money(pos.Balance))
	d.SetDerived(DerivedAccruedInterest, pos.AccruedInterest.StringFixed(ta.terms.AccrualPrecision))
	d.SetDerived(DerivedInterestRate, ta.params.Rate.String())
	d.SetDerived(DerivedMaturityDate, ta.maturity.Format("2006-01-02"))
	d.SetDerived(DerivedStatus, status)
	if status != StatusMatured {
		interest, err := ta.params.InterestAtMaturity(pos.Balance, in.OpenedAt)
		if err != nil {
			return nil, err
		}
		d.SetDerived(DerivedInterestAtMaturity, ta.money(interest))
	}
	return d, nil
}

func (t *TimeDeposit) ValidateParameters(params map[string]string) error {
	_, err := LoadTimeDepositParameters(generic.ParameterSnapshot(t.manifest, generic.TsideLiability, params))
	return err
}
