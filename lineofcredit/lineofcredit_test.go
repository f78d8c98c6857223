package lineofcredit_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/lending"
	"github.com/warp/product-engine/lineofcredit"
)

const account generic.AccountID = "loc-1"

var opened = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func params(t *testing.T) map[string]string {
	t.Helper()
	var def struct {
		Parameters map[string]string `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal([]byte(lineofcredit.RevolvingJSON("loc", "Flexible credit", "5000", 24, "0.12")), &def))
	return def.Parameters
}

func snapshot(t *testing.T, key generic.HookKey, at time.Time, p map[string]string) *generic.Snapshot {
	t.Helper()
	req, ok := lineofcredit.New().Manifest().Requirements(key)
	require.True(t, ok)
	snap := generic.NewSnapshot(req, generic.TsideAsset, at)
	for name, value := range p {
		snap.AddParameter(name, value, opened)
	}
	return snap
}

// balances builds a loan balance set from address nets.
func balances(nets map[string]string) generic.BalanceSet {
	set := generic.NewBalanceSet(generic.TsideAsset)
	for address, v := range nets {
		amount := dec(v)
		set.Apply(generic.Posting{
			AccountID:    account,
			Address:      address,
			Denomination: "GBP",
			Amount:       amount.Abs(),
			Credit:       amount.IsNegative(),
		})
	}
	return set
}

func drawdown(amount string) generic.PostingBatch {
	return generic.PostingBatch{Postings: []generic.Posting{{
		AccountID:    account,
		Address:      generic.DefaultAddress,
		Denomination: "GBP",
		Amount:       dec(amount),
		Credit:       false,
	}}}
}

func TestLineOfCredit_PresetIsValid(t *testing.T) {
	p := lineofcredit.New()
	assert.NoError(t, p.ValidateParameters(params(t)))

	withFix := params(t)
	withFix[lending.ParamFixedInterestTerm] = "12"
	err := p.ValidateParameters(withFix)
	assert.True(t, generic.IsConfigurationError(err))

	noLimit := params(t)
	delete(noLimit, lineofcredit.ParamCreditLimit)
	assert.Error(t, p.ValidateParameters(noLimit))
}

func TestLineOfCredit_ActivationDisbursesNothing(t *testing.T) {
	p := lineofcredit.New()
	snap := snapshot(t, generic.Hook(generic.HookActivation), opened, params(t))

	d, err := p.Activate(snap.Input(account, opened))
	require.NoError(t, err)

	assert.Empty(t, d.Instructions)
	assert.Len(t, d.Schedules, 3)
}

func TestLineOfCredit_DrawdownLimit(t *testing.T) {
	// GIVEN: 3000 of a 5000 limit already drawn
	p := lineofcredit.New()
	live := balances(map[string]string{lending.AddressPrincipal: "2800", lending.AddressPrincipalDue: "200"})

	tests := []struct {
		name     string
		amount   string
		rejected bool
	}{
		{"within available credit", "1500", false},
		{"exactly the available credit", "2000", false},
		{"beyond available credit", "2000.01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshot(t, generic.Hook(generic.HookPrePosting), opened, params(t))
			snap.SetObservation(generic.ObservationLive, live)

			d, err := p.PrePosting(snap.Input(account, opened), drawdown(tt.amount))
			require.NoError(t, err)

			assert.Equal(t, tt.rejected, d.Rejected())
			if tt.rejected {
				assert.Equal(t, generic.RejectInsufficientFunds, d.Rejection.Reason)
			}
		})
	}
}

func TestLineOfCredit_DrawdownResetsAmortisation(t *testing.T) {
	// GIVEN: a committed drawdown of 1000 on a facility three instalments in
	p := lineofcredit.New()
	live := balances(map[string]string{
		generic.DefaultAddress:       "1000",
		lending.AddressPrincipal:     "2000",
		lending.AddressEMI:           "94.15",
		lending.AddressTermsElapsed:  "3",
		lending.AddressTermsDeferred: "1",
	})
	snap := snapshot(t, generic.Hook(generic.HookPostPosting), opened, params(t))
	snap.SetObservation(generic.ObservationLive, live)

	// WHEN
	d, err := p.PostPosting(snap.Input(account, opened), drawdown("1000"))
	require.NoError(t, err)

	// THEN
	after := live.Clone()
	for _, pi := range d.Instructions {
		for _, posting := range pi.Postings(opened) {
			after.Apply(posting)
		}
	}
	pos := lending.ReadPosition(after, "GBP")
	assert.True(t, dec("3000").Equal(pos.Principal))
	assert.True(t, pos.Default.IsZero())
	assert.True(t, pos.EMI.IsZero())
	assert.Equal(t, 0, pos.TermsElapsed)
	assert.Equal(t, 0, pos.TermsDeferred)
	assert.Equal(t, 24, pos.RemainingTerm(24))
}

func TestLineOfCredit_CreditLimitChange(t *testing.T) {
	p := lineofcredit.New()
	live := balances(map[string]string{lending.AddressPrincipal: "3000", lending.AddressPrincipalOverdue: "250"})

	tests := []struct {
		name     string
		limit    string
		rejected bool
	}{
		{"raise", "8000", false},
		{"lower to utilisation", "3250", false},
		{"below utilisation", "3000", true},
		{"not a number", "lots", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshot(t, generic.Hook(generic.HookParameterChange), opened, params(t))
			snap.SetObservation(generic.ObservationLive, live)

			d, err := p.ParameterChange(snap.Input(account, opened), map[string]string{lineofcredit.ParamCreditLimit: tt.limit})
			require.NoError(t, err)
			assert.Equal(t, tt.rejected, d.Rejected())
		})
	}
}

func TestLineOfCredit_RepaymentDayReanchors(t *testing.T) {
	p := lineofcredit.New()
	now := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)
	snap := snapshot(t, generic.Hook(generic.HookParameterChange), now, params(t))
	snap.SetLastExecution(lending.EventDueAmountCalculation, time.Date(2025, time.March, 28, 0, 1, 0, 0, time.UTC))

	d, err := p.ParameterChange(snap.Input(account, now), map[string]string{lending.ParamDueAmountCalculationDay: "15"})
	require.NoError(t, err)

	require.Len(t, d.Schedules, 1)
	next, ok := d.Schedules[0].Descriptor.Next(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.April, 15, 0, 1, 0, 0, time.UTC), next)
}

func TestLineOfCredit_AvailableCredit(t *testing.T) {
	p := lineofcredit.New()
	snap := snapshot(t, generic.Hook(generic.HookDerived), opened, params(t))
	snap.SetObservation(generic.ObservationEffective, balances(map[string]string{
		lending.AddressPrincipal:    "1200",
		lending.AddressPrincipalDue: "100",
	}))

	d, err := p.DerivedValues(snap.Input(account, opened))
	require.NoError(t, err)

	assert.Equal(t, "3700.00", d.Derived[lineofcredit.DerivedAvailableCredit])
	assert.Equal(t, "DUE", d.Derived[lending.DerivedStatus])
}
