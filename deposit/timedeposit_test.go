package deposit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/deposit"
	"github.com/warp/product-engine/generic"
)

const termAccount generic.AccountID = "td-1"

// maturity is twelve months after opening.
var maturity = time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

func termParameters(t *testing.T, rate string) map[string]string {
	t.Helper()
	return presetParameters(t, deposit.FixedTermDepositJSON("fixed-12", "One year fixed", 12, rate))
}

func TestTimeDeposit_ValidateParameters(t *testing.T) {
	td := deposit.NewTimeDeposit()
	assert.NoError(t, td.ValidateParameters(termParameters(t, "0.05")))

	params := termParameters(t, "0.05")
	params[deposit.ParamTerm] = "0"
	err := td.ValidateParameters(params)
	assert.True(t, generic.IsConfigurationError(err))

	params = termParameters(t, "0.05")
	params[deposit.ParamDayCountConvention] = "ACT/999"
	err = td.ValidateParameters(params)
	assert.True(t, generic.IsConfigurationError(err))
}

func TestTimeDeposit_ActivateSchedulesMaturity(t *testing.T) {
	td := deposit.NewTimeDeposit()
	snap := snapshotFor(t, td, generic.Hook(generic.HookActivation), opened, termParameters(t, "0.05"))

	d, err := td.Activate(snap.Input(termAccount, opened))
	require.NoError(t, err)

	require.Len(t, d.Schedules, 2)
	assert.Equal(t, deposit.EventMaturity, d.Schedules[1].Event)
	assert.True(t, d.Schedules[1].Descriptor.IsOneOff())
	next, ok := d.Schedules[1].Descriptor.Next(opened)
	require.True(t, ok)
	assert.Equal(t, maturity.Add(time.Minute), next)
}

func TestTimeDeposit_PrePosting(t *testing.T) {
	// GIVEN: 10000 deposited, a seven day deposit window
	td := deposit.NewTimeDeposit()
	live := deposits(termAccount, map[string]string{generic.DefaultAddress: "10000"})
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 12, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		at       time.Time
		amount   string
		override bool
		reason   generic.RejectionReason
	}{
		{"deposit inside the window", day(2025, time.January, 15), "500", false, ""},
		{"deposit on the last day of the window", day(2025, time.January, 17), "500", false, ""},
		{"deposit after the window", day(2025, time.January, 18), "500", false, generic.RejectAgainstTerms},
		{"late deposit with override", day(2025, time.January, 18), "500", true, ""},
		{"early withdrawal", day(2025, time.June, 1), "-100", false, generic.RejectAgainstTerms},
		{"early withdrawal with override", day(2025, time.June, 1), "-100", true, ""},
		{"withdrawal at maturity", day(2026, time.January, 10), "-10000", false, ""},
		{"withdrawal beyond the balance", day(2026, time.January, 10), "-10000.01", false, generic.RejectInsufficientFunds},
		{"override never lifts the balance check", day(2025, time.June, 1), "-20000", true, generic.RejectInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotFor(t, td, generic.Hook(generic.HookPrePosting), tt.at, termParameters(t, "0.05"))
			snap.SetObservation(generic.ObservationLive, live)
			batch := movement(termAccount, tt.amount, gbp)
			if tt.override {
				batch.Metadata = map[string]string{generic.OverrideKey: "true"}
			}

			d, err := td.PrePosting(snap.Input(termAccount, opened), batch)
			require.NoError(t, err)

			if tt.reason == "" {
				assert.False(t, d.Rejected())
				return
			}
			require.True(t, d.Rejected())
			assert.Equal(t, tt.reason, d.Rejection.Reason)
		})
	}
}

func TestTimeDeposit_AccruesUntilMaturity(t *testing.T) {
	td := deposit.NewTimeDeposit()
	balance := deposits(termAccount, map[string]string{generic.DefaultAddress: "10000"})

	tests := []struct {
		name  string
		at    time.Time
		count int
	}{
		{"during the term", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), 1},
		{"on the maturity day", maturity, 1},
		{"after maturity", maturity.AddDate(0, 0, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotFor(t, td, generic.ScheduledHook(deposit.EventAccrueInterest), tt.at, termParameters(t, "0.0365"))
			snap.SetObservation(generic.ObservationEffective, balance)

			d, err := td.ScheduledEvent(snap.Input(termAccount, opened), deposit.EventAccrueInterest)
			require.NoError(t, err)

			require.Len(t, d.Instructions, tt.count)
			if tt.count > 0 {
				assert.True(t, dec("1").Equal(d.Instructions[0].Amount), d.Instructions[0].Amount.String())
			}
		})
	}
}

func TestTimeDeposit_Maturity(t *testing.T) {
	// GIVEN: 10000 at 5% for exactly one ACT/365 year, with daily accruals
	// already on the payable address
	td := deposit.NewTimeDeposit()
	at := maturity.Add(time.Minute)
	snap := snapshotFor(t, td, generic.ScheduledHook(deposit.EventMaturity), at, termParameters(t, "0.05"))
	snap.SetObservation(generic.ObservationEffective, deposits(termAccount, map[string]string{
		generic.DefaultAddress:                "10000",
		deposit.AddressAccruedInterestPayable: "498.63014",
		deposit.AddressInternalContra:         "-498.63014",
	}))

	// WHEN
	d, err := td.ScheduledEvent(snap.Input(termAccount, opened), deposit.EventMaturity)
	require.NoError(t, err)

	// THEN: the whole-term interest is paid and the accruals released
	require.Len(t, d.Instructions, 2)
	assert.True(t, dec("500").Equal(d.Instructions[0].Amount), d.Instructions[0].Amount.String())
	assert.Equal(t, termAccount, d.Instructions[0].CreditAccount)
	assert.True(t, dec("498.63014").Equal(d.Instructions[1].Amount))
	assert.Equal(t, deposit.AddressAccruedInterestPayable, d.Instructions[1].DebitAddress)

	// AND: accrual stops
	require.Len(t, d.Schedules, 1)
	assert.Equal(t, deposit.EventAccrueInterest, d.Schedules[0].Event)
	assert.True(t, d.Schedules[0].Remove)

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, deposit.NotificationDepositMatured, d.Notifications[0].Type)
	assert.Equal(t, "500.00", d.Notifications[0].Fields["interest"])
}

func TestTimeDeposit_ContractTermsAreFixed(t *testing.T) {
	td := deposit.NewTimeDeposit()

	tests := []struct {
		name     string
		proposed map[string]string
		rejected bool
	}{
		{"rate", map[string]string{deposit.ParamInterestRate: "0.06"}, true},
		{"term", map[string]string{deposit.ParamTerm: "24"}, true},
		{"deposit window", map[string]string{deposit.ParamDepositPeriod: "14"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotFor(t, td, generic.Hook(generic.HookParameterChange), opened, termParameters(t, "0.05"))

			d, err := td.ParameterChange(snap.Input(termAccount, opened), tt.proposed)
			require.NoError(t, err)
			assert.Equal(t, tt.rejected, d.Rejected())
		})
	}
}

func TestTimeDeposit_DerivedValues(t *testing.T) {
	td := deposit.NewTimeDeposit()
	balance := deposits(termAccount, map[string]string{generic.DefaultAddress: "10000"})

	tests := []struct {
		name     string
		at       time.Time
		status   string
		interest string
	}{
		{"deposit window", time.Date(2025, time.January, 12, 0, 0, 0, 0, time.UTC), deposit.StatusDepositWindow, "500.00"},
		{"fixed", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), deposit.StatusFixed, "500.00"},
		{"matured", maturity.AddDate(0, 0, 3), deposit.StatusMatured, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotFor(t, td, generic.Hook(generic.HookDerived), tt.at, termParameters(t, "0.05"))
			snap.SetObservation(generic.ObservationEffective, balance)

			d, err := td.DerivedValues(snap.Input(termAccount, opened))
			require.NoError(t, err)

			assert.Equal(t, tt.status, d.Derived[deposit.DerivedStatus])
			assert.Equal(t, "2026-01-10", d.Derived[deposit.DerivedMaturityDate])
			assert.Equal(t, tt.interest, d.Derived[deposit.DerivedInterestAtMaturity])
		})
	}
}
