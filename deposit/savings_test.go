package deposit_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/deposit"
	"github.com/warp/product-engine/generic"
)

const (
	savingsAccount generic.AccountID = "savings-1"
	gbp                              = "GBP"
)

var opened = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func presetParameters(t *testing.T, preset string) map[string]string {
	t.Helper()
	var def struct {
		Parameters map[string]string `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal([]byte(preset), &def))
	return def.Parameters
}

func savingsParameters(t *testing.T) map[string]string {
	t.Helper()
	params := presetParameters(t, deposit.EasyAccessSavingsJSON("easy", "Easy saver",
		map[string]string{"STANDARD": "0.0365", "PREMIUM": "0.05"}, "STANDARD"))
	params[deposit.ParamDaysInYear] = "365"
	params[deposit.ParamMinimumBalance] = "100"
	return params
}

func snapshotFor(t *testing.T, p generic.Product, key generic.HookKey, at time.Time, params map[string]string) *generic.Snapshot {
	t.Helper()
	req, ok := p.Manifest().Requirements(key)
	require.True(t, ok, key.String())
	snap := generic.NewSnapshot(req, p.Tside(), at)
	for name, value := range params {
		snap.AddParameter(name, value, opened)
	}
	return snap
}

// deposits builds a liability balance set from address nets.
func deposits(account generic.AccountID, nets map[string]string) generic.BalanceSet {
	set := generic.NewBalanceSet(generic.TsideLiability)
	for address, v := range nets {
		amount := dec(v)
		set.Apply(generic.Posting{
			AccountID:    account,
			Address:      address,
			Denomination: gbp,
			Amount:       amount.Abs(),
			Credit:       amount.IsPositive(),
		})
	}
	return set
}

// movement is a customer deposit (positive) or withdrawal (negative).
func movement(account generic.AccountID, amount, currency string) generic.PostingBatch {
	v := dec(amount)
	return generic.PostingBatch{Postings: []generic.Posting{{
		AccountID:    account,
		Address:      generic.DefaultAddress,
		Denomination: currency,
		Amount:       v.Abs(),
		Credit:       v.IsPositive(),
	}}}
}

func TestSavings_IsRegistered(t *testing.T) {
	p, err := generic.LookupProduct(deposit.SavingsProductID)
	require.NoError(t, err)
	assert.Equal(t, generic.TsideLiability, p.Tside())
}

func TestSavings_ValidateParameters(t *testing.T) {
	s := deposit.NewSavings()
	assert.NoError(t, s.ValidateParameters(savingsParameters(t)))

	// GIVEN: a tier with no rate
	params := savingsParameters(t)
	params[deposit.ParamAccountTier] = "GOLD"

	err := s.ValidateParameters(params)

	require.Error(t, err)
	assert.True(t, generic.IsConfigurationError(err))
}

func TestSavings_Activate(t *testing.T) {
	s := deposit.NewSavings()
	snap := snapshotFor(t, s, generic.Hook(generic.HookActivation), opened, savingsParameters(t))

	d, err := s.Activate(snap.Input(savingsAccount, opened))
	require.NoError(t, err)

	assert.Empty(t, d.Instructions)
	require.Len(t, d.Schedules, 2)
	assert.Equal(t, deposit.EventApplyInterest, d.Schedules[1].Event)
	next, ok := d.Schedules[1].Descriptor.Next(opened)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 1, 0, 0, time.UTC), next)
}

func TestSavings_DepositLimits(t *testing.T) {
	// GIVEN: 80000 held, maximum deposit 20000, maximum balance 85000,
	// minimum balance 100
	s := deposit.NewSavings()
	live := deposits(savingsAccount, map[string]string{generic.DefaultAddress: "80000"})

	tests := []struct {
		name     string
		batch    generic.PostingBatch
		override bool
		reason   generic.RejectionReason
	}{
		{"deposit within limits", movement(savingsAccount, "1000", gbp), false, ""},
		{"deposit above maximum deposit", movement(savingsAccount, "25000", gbp), false, generic.RejectAgainstTerms},
		{"deposit above maximum balance", movement(savingsAccount, "6000", gbp), false, generic.RejectAgainstTerms},
		{"override lifts the balance limit", movement(savingsAccount, "6000", gbp), true, ""},
		{"withdrawal down to minimum balance", movement(savingsAccount, "-79900", gbp), false, ""},
		{"withdrawal below minimum balance", movement(savingsAccount, "-79950", gbp), false, generic.RejectInsufficientFunds},
		{"wrong denomination", movement(savingsAccount, "10", "EUR"), true, generic.RejectWrongDenomination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotFor(t, s, generic.Hook(generic.HookPrePosting), opened, savingsParameters(t))
			snap.SetObservation(generic.ObservationLive, live)
			batch := tt.batch
			if tt.override {
				batch.Metadata = map[string]string{generic.OverrideKey: "true"}
			}

			d, err := s.PrePosting(snap.Input(savingsAccount, opened), batch)
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

func TestSavings_DailyAccrual(t *testing.T) {
	// GIVEN: 10000 at 3.65% over a 365 day year
	s := deposit.NewSavings()
	at := time.Date(2025, time.January, 11, 0, 0, 0, 0, time.UTC)
	snap := snapshotFor(t, s, generic.ScheduledHook(deposit.EventAccrueInterest), at, savingsParameters(t))
	snap.SetObservation(generic.ObservationEffective, deposits(savingsAccount, map[string]string{generic.DefaultAddress: "10000"}))

	// WHEN
	d, err := s.ScheduledEvent(snap.Input(savingsAccount, opened), deposit.EventAccrueInterest)
	require.NoError(t, err)

	// THEN: one unit of interest is owed to the customer
	require.Len(t, d.Instructions, 1)
	pi := d.Instructions[0]
	assert.True(t, dec("1").Equal(pi.Amount), pi.Amount.String())
	assert.Equal(t, deposit.AddressInternalContra, pi.DebitAddress)
	assert.Equal(t, deposit.AddressAccruedInterestPayable, pi.CreditAddress)
}

func TestSavings_AccrualNeedsATierRate(t *testing.T) {
	s := deposit.NewSavings()
	params := savingsParameters(t)
	params[deposit.ParamTieredInterestRates] = `{"PREMIUM": "0.05"}`
	snap := snapshotFor(t, s, generic.ScheduledHook(deposit.EventAccrueInterest), opened, params)

	_, err := s.ScheduledEvent(snap.Input(savingsAccount, opened), deposit.EventAccrueInterest)

	require.Error(t, err)
	assert.True(t, generic.IsConfigurationError(err))
}

func TestSavings_ApplyInterest(t *testing.T) {
	// GIVEN: 30.12345 accrued over the month
	s := deposit.NewSavings()
	at := time.Date(2025, time.February, 1, 0, 1, 0, 0, time.UTC)
	snap := snapshotFor(t, s, generic.ScheduledHook(deposit.EventApplyInterest), at, savingsParameters(t))
	snap.SetObservation(generic.ObservationEffective, deposits(savingsAccount, map[string]string{
		generic.DefaultAddress:                "10000",
		deposit.AddressAccruedInterestPayable: "30.12345",
		deposit.AddressInternalContra:         "-30.12345",
	}))

	// WHEN
	d, err := s.ScheduledEvent(snap.Input(savingsAccount, opened), deposit.EventApplyInterest)
	require.NoError(t, err)

	// THEN: the rounded interest is paid and the payable address cleared
	require.Len(t, d.Instructions, 2)
	paid := d.Instructions[0]
	assert.True(t, dec("30.12").Equal(paid.Amount), paid.Amount.String())
	assert.Equal(t, generic.AccountID("bank-interest-paid"), paid.DebitAccount)
	assert.Equal(t, savingsAccount, paid.CreditAccount)
	assert.Equal(t, generic.DefaultAddress, paid.CreditAddress)

	cleared := d.Instructions[1]
	assert.True(t, dec("30.12345").Equal(cleared.Amount), cleared.Amount.String())
	assert.Equal(t, deposit.AddressAccruedInterestPayable, cleared.DebitAddress)
	assert.Equal(t, deposit.AddressInternalContra, cleared.CreditAddress)
}

func TestSavings_ParameterChange(t *testing.T) {
	s := deposit.NewSavings()

	tests := []struct {
		name      string
		proposed  map[string]string
		rejected  bool
		schedules int
	}{
		{"known tier", map[string]string{deposit.ParamAccountTier: "PREMIUM"}, false, 0},
		{"unknown tier", map[string]string{deposit.ParamAccountTier: "GOLD"}, true, 0},
		{"rates dropping the current tier", map[string]string{deposit.ParamTieredInterestRates: `{"PREMIUM": "0.05"}`}, true, 0},
		{"rates that are not JSON", map[string]string{deposit.ParamTieredInterestRates: "3%"}, true, 0},
		{"negative limit", map[string]string{deposit.ParamMaximumBalance: "-1"}, true, 0},
		{"denomination", map[string]string{deposit.ParamDenomination: "EUR"}, true, 0},
		{"application day", map[string]string{deposit.ParamInterestApplicationDay: "15"}, false, 1},
		{"application day out of range", map[string]string{deposit.ParamInterestApplicationDay: "32"}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotFor(t, s, generic.Hook(generic.HookParameterChange), opened, savingsParameters(t))

			d, err := s.ParameterChange(snap.Input(savingsAccount, opened), tt.proposed)
			require.NoError(t, err)

			assert.Equal(t, tt.rejected, d.Rejected())
			assert.Len(t, d.Schedules, tt.schedules)
		})
	}
}

func TestSavings_DerivedValues(t *testing.T) {
	s := deposit.NewSavings()
	at := time.Date(2025, time.January, 20, 12, 0, 0, 0, time.UTC)
	snap := snapshotFor(t, s, generic.Hook(generic.HookDerived), at, savingsParameters(t))
	snap.SetObservation(generic.ObservationEffective, deposits(savingsAccount, map[string]string{
		generic.DefaultAddress:                "1234.5",
		deposit.AddressAccruedInterestPayable: "1.5",
	}))

	d, err := s.DerivedValues(snap.Input(savingsAccount, opened))
	require.NoError(t, err)

	assert.Equal(t, "1234.50", d.Derived[deposit.DerivedBalance])
	assert.Equal(t, "1134.50", d.Derived[deposit.DerivedAvailableBalance])
	assert.Equal(t, "1.50000", d.Derived[deposit.DerivedAccruedInterest])
	assert.Equal(t, "0.0365", d.Derived[deposit.DerivedInterestRate])
	assert.Equal(t, "2025-02-01", d.Derived[deposit.DerivedNextInterestApplicationDate])
}
