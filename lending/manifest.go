package lending

import "github.com/warp/product-engine/generic"

// Events is every event the shared handlers schedule.
var Events = []generic.EventType{
	EventAccrueInterest,
	EventDueAmountCalculation,
	EventCheckOverdue,
	EventCheckDelinquency,
	EventCheckOverpaymentAllowance,
}

// LoanManifest declares what the shared handlers read. Every hook loads the
// full parameter set plus extraParams.
func LoanManifest(extraParams ...string) generic.Manifest {
	params := func() []string {
		out := make([]string, 0, len(LoanParameterNames)+len(extraParams))
		out = append(out, LoanParameterNames...)
		return append(out, extraParams...)
	}
	previousDue := generic.LastExecution(ObservationPreviousDue, EventDueAmountCalculation)
	lastCheck := generic.LastExecution(ObservationLastAllowanceCheck, EventCheckOverpaymentAllowance)

	return generic.Manifest{
		Events: Events,
		Hooks: map[generic.HookKey]generic.DataRequirements{
			generic.Hook(generic.HookActivation): {
				Parameters: params(),
			},
			generic.Hook(generic.HookPrePosting): {
				Balances:   []generic.BalanceRequirement{generic.Live()},
				Parameters: params(),
				Flags:      []string{FlagBlockRepayments},
			},
			generic.Hook(generic.HookPostPosting): {
				Balances:   []generic.BalanceRequirement{generic.Live()},
				Parameters: params(),
				Flags:      []string{FlagAccountDelinquent},
			},
			generic.Hook(generic.HookParameterChange): {
				Balances:   []generic.BalanceRequirement{generic.Live()},
				Parameters: params(),
			},
			generic.Hook(generic.HookDerived): {
				Balances:   []generic.BalanceRequirement{generic.Effective(), lastCheck},
				Parameters: params(),
				Flags:      []string{FlagAccountDelinquent},
			},
			generic.ScheduledHook(EventAccrueInterest): {
				Balances:   []generic.BalanceRequirement{generic.Effective()},
				Parameters: params(),
				Flags:      []string{FlagRepaymentHoliday, FlagBlockRepayments},
			},
			generic.ScheduledHook(EventDueAmountCalculation): {
				Balances:   []generic.BalanceRequirement{generic.Effective(), previousDue},
				Parameters: params(),
				Flags:      []string{FlagRepaymentHoliday},
			},
			generic.ScheduledHook(EventCheckOverdue): {
				Balances:   []generic.BalanceRequirement{generic.Effective()},
				Parameters: params(),
			},
			generic.ScheduledHook(EventCheckDelinquency): {
				Balances:   []generic.BalanceRequirement{generic.Effective()},
				Parameters: params(),
				Flags:      []string{FlagRepaymentHoliday, FlagBlockRepayments, FlagAccountDelinquent},
			},
			generic.ScheduledHook(EventCheckOverpaymentAllowance): {
				Balances:   []generic.BalanceRequirement{generic.Effective(), lastCheck},
				Parameters: params(),
			},
		},
	}
}
