package deposit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// =============================================================================
// SAVINGS ACCOUNT
// =============================================================================

const SavingsProductID generic.ProductID = "savings"

const (
	ParamTieredInterestRates    = "tiered_interest_rates"
	ParamAccountTier            = "account_tier"
	ParamMaximumDeposit         = "maximum_deposit"
	ParamMaximumBalance         = "maximum_balance"
	ParamMinimumBalance         = "minimum_balance"
	ParamInterestApplicationDay = "interest_application_day"
)

const (
	DerivedAvailableBalance            = "available_balance"
	DerivedNextInterestApplicationDate = "next_interest_application_date"
)

var savingsParameterNames = append([]string{
	ParamTieredInterestRates, ParamAccountTier, ParamMaximumDeposit,
	ParamMaximumBalance, ParamMinimumBalance, ParamInterestApplicationDay,
}, termsParameterNames...)

// SavingsParameters is the full savings parameter set. Rate is the
// tiered rate for the account's tier.
type SavingsParameters struct {
	Terms
	Tier           string
	Rate           decimal.Decimal
	MaximumDeposit Limit
	MaximumBalance Limit
	MinimumBalance decimal.Decimal
	ApplicationDay int
}

// LoadSavingsParameters reads the savings parameters. A tier missing from
// tiered_interest_rates is a configuration error.
func LoadSavingsParameters(p generic.ParameterReader) (SavingsParameters, error) {
	l := &paramLoader{p: p}
	terms, err := loadTerms(l, generic.DaysInYearActual)
	if err != nil {
		return SavingsParameters{}, err
	}
	sp := SavingsParameters{
		Terms:          terms,
		Tier:           l.text(ParamAccountTier, "", true),
		MaximumDeposit: l.limit(ParamMaximumDeposit),
		MaximumBalance: l.limit(ParamMaximumBalance),
		MinimumBalance: l.decimal(ParamMinimumBalance, decimal.Zero, false),
		ApplicationDay: l.int(ParamInterestApplicationDay, 1, false),
	}
	if l.err != nil {
		return SavingsParameters{}, l.err
	}
	if sp.Rate, err = p.Tier(ParamTieredInterestRates, sp.Tier); err != nil {
		return SavingsParameters{}, err
	}
	switch {
	case sp.ApplicationDay < 1 || sp.ApplicationDay > 31:
		return SavingsParameters{}, generic.ConfigError(ParamInterestApplicationDay, "must be between 1 and 31, got %d", sp.ApplicationDay)
	case sp.MinimumBalance.IsNegative():
		return SavingsParameters{}, generic.ConfigError(ParamMinimumBalance, "must not be negative")
	case sp.MaximumBalance.Exceeded(sp.MinimumBalance):
		return SavingsParameters{}, generic.ConfigError(ParamMinimumBalance, "must not exceed %s", ParamMaximumBalance)
	}
	return sp, nil
}

// Savings is the easy access savings account.
type Savings struct {
	manifest generic.Manifest
}

func NewSavings() *Savings {
	params := func() []string { return append([]string(nil), savingsParameterNames...) }
	effective := []generic.BalanceRequirement{generic.Effective()}
	return &Savings{manifest: generic.Manifest{
		Events: []generic.EventType{EventAccrueInterest, EventApplyInterest},
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
			generic.ScheduledHook(EventApplyInterest): {
				Balances:   effective,
				Parameters: params(),
			},
		},
	}}
}

func init() {
	generic.MustRegister(NewSavings())
}

var (
	_ generic.Product            = (*Savings)(nil)
	_ generic.ParameterValidator = (*Savings)(nil)
)

func (s *Savings) ID() generic.ProductID      { return SavingsProductID }
func (s *Savings) Tside() generic.Tside       { return generic.TsideLiability }
func (s *Savings) Manifest() generic.Manifest { return s.manifest }

type savingsAccount struct {
	account
	params SavingsParameters
}

func loadSavings(in generic.HookInput) (*savingsAccount, error) {
	sp, err := LoadSavingsParameters(in.Parameters)
	if err != nil {
		return nil, err
	}
	return &savingsAccount{account: account{in: in, terms: sp.Terms}, params: sp}, nil
}

func applicationSchedule(day int) generic.ScheduleDescriptor { return monthlyOn(day, 0, 1, 0) }

// Activate starts daily accrual and monthly interest application.
func (s *Savings) Activate(in generic.HookInput) (*generic.Directives, error) {
	sa, err := loadSavings(in)
	if err != nil {
		return nil, err
	}
	d := generic.NewDirectives()
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventAccrueInterest, Descriptor: accrualSchedule()})
	d.UpdateSchedule(generic.ScheduleUpdate{Event: EventApplyInterest, Descriptor: applicationSchedule(sa.params.ApplicationDay)})
	return d, nil
}

// PrePosting enforces the deposit and balance limits against the live
// balance. An override skips the limits but not the denomination check.
func (s *Savings) PrePosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	sa, err := loadSavings(in)
	if err != nil {
		return nil, err
	}
	d := generic.NewDirectives()
	if sa.wrongDenomination(batch, d) || batch.HasOverride() {
		return d, nil
	}
	pos, err := sa.position(generic.ObservationLive)
	if err != nil {
		return nil, err
	}

	sp := sa.params
	net := batch.NetForAccount(in.AccountID, sp.Denomination)
	after := pos.Balance.Add(net)
	switch {
	case net.IsPositive() && sp.MaximumDeposit.Exceeded(net):
		d.Reject(generic.RejectAgainstTerms,
			fmt.Sprintf("deposit of %s exceeds the maximum deposit of %s", net.String(), sa.money(sp.MaximumDeposit.Value)))
	case net.IsPositive() && sp.MaximumBalance.Exceeded(after):
		d.Reject(generic.RejectAgainstTerms,
			fmt.Sprintf("deposit would take the balance to %s, above the maximum of %s", after.String(), sa.money(sp.MaximumBalance.Value)))
	case net.IsNegative() && after.LessThan(sp.MinimumBalance):
		d.Reject(generic.RejectInsufficientFunds,
			fmt.Sprintf("withdrawal of %s would leave %s, below the minimum balance of %s", net.Neg().String(), after.String(), sa.money(sp.MinimumBalance)))
	}
	return d, nil
}

func (s *Savings) PostPosting(in generic.HookInput, batch generic.PostingBatch) (*generic.Directives, error) {
	return generic.NewDirectives(), nil
}

func (s *Savings) ScheduledEvent(in generic.HookInput, event generic.EventType) (*generic.Directives, error) {
	sa, err := loadSavings(in)
	if err != nil {
		return nil, err
	}
	pos, err := sa.position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	d := generic.NewDirectives()
	switch event {
	case EventAccrueInterest:
		sa.accrue(d, sa.dailyInterest(pos.Balance, sa.params.Rate, in.EffectiveAt), "daily interest accrual")
	case EventApplyInterest:
		sa.applyAccrued(d, pos)
	default:
		return nil, fmt.Errorf("savings: unknown event %s", event)
	}
	return d, nil
}

// ParameterChange keeps the account tier resolvable and moves the
// application schedule when the day changes.
func (s *Savings) ParameterChange(in generic.HookInput, proposed map[string]string) (*generic.Directives, error) {
	sa, err := loadSavings(in)
	if err != nil {
		return nil, err
	}
	d := generic.NewDirectives()
	if _, ok := proposed[ParamDenomination]; ok {
		d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("%s cannot be changed after activation", ParamDenomination))
		return d, nil
	}

	_, tierChanged := proposed[ParamAccountTier]
	rawRates, ratesChanged := proposed[ParamTieredInterestRates]
	if tierChanged || ratesChanged {
		if !ratesChanged {
			if rawRates, err = in.Parameters.Text(ParamTieredInterestRates); err != nil {
				return nil, err
			}
		}
		tier := sa.params.Tier
		if tierChanged {
			tier = strings.TrimSpace(proposed[ParamAccountTier])
		}
		tiers, err := generic.ParseTiers(ParamTieredInterestRates, rawRates)
		if err != nil {
			d.Reject(generic.RejectAgainstTerms, err.Error())
			return d, nil
		}
		if _, ok := tiers[tier]; !ok {
			d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("no interest rate for tier %q", tier))
			return d, nil
		}
	}

	for _, name := range []string{ParamMaximumDeposit, ParamMaximumBalance, ParamMinimumBalance} {
		raw, ok := proposed[name]
		if !ok {
			continue
		}
		if v, err := decimal.NewFromString(strings.TrimSpace(raw)); err != nil || v.IsNegative() {
			d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("invalid %s %q", name, raw))
			return d, nil
		}
	}

	if raw, ok := proposed[ParamInterestApplicationDay]; ok {
		day, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || day < 1 || day > 31 {
			d.Reject(generic.RejectAgainstTerms, fmt.Sprintf("invalid interest application day %q", raw))
			return d, nil
		}
		d.UpdateSchedule(generic.ScheduleUpdate{Event: EventApplyInterest, Descriptor: applicationSchedule(day)})
	}
	return d, nil
}

func (s *Savings) DerivedValues(in generic.HookInput) (*generic.Directives, error) {
	sa, err := loadSavings(in)
	if err != nil {
		return nil, err
	}
	pos, err := sa.position(generic.ObservationEffective)
	if err != nil {
		return nil, err
	}
	available := pos.Balance.Sub(sa.params.MinimumBalance)
	if available.IsNegative() {
		available = decimal.Zero
	}

	d := generic.NewDirectives()
	d.SetDerived(DerivedBalance, sa.money(pos.Balance))
	d.SetDerived(DerivedAccruedInterest, pos.AccruedInterest.StringFixed(sa.params.AccrualPrecision))
	d.SetDerived(DerivedInterestRate, sa.params.Rate.String())
	d.SetDerived(DerivedAvailableBalance, sa.money(available))
	if next, ok := applicationSchedule(sa.params.ApplicationDay).Next(in.EffectiveAt); ok {
		d.SetDerived(DerivedNextInterestApplicationDate, next.Format("2006-01-02"))
	}
	return d, nil
}

// ValidateParameters checks a definition, including that the account tier
// has a rate.
func (s *Savings) ValidateParameters(params map[string]string) error {
	_, err := LoadSavingsParameters(generic.ParameterSnapshot(s.manifest, generic.TsideLiability, params))
	return err
}
