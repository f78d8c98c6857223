package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/generic"
)

func TestSnapshot_UndeclaredReadsFail(t *testing.T) {
	// GIVEN: a hook that declared only "denomination" and one flag
	req := generic.DataRequirements{
		Balances:   []generic.BalanceRequirement{generic.Effective()},
		Parameters: []string{"denomination"},
		Flags:      []string{"REPAYMENT_HOLIDAY"},
	}
	snap := generic.NewSnapshot(req, generic.TsideAsset, date(2025, time.March, 1))
	snap.SetParameters(map[string]string{"denomination": "GBP", "principal": "1000"})

	// WHEN/THEN: declared reads work
	denom, err := snap.Text("denomination")
	require.NoError(t, err)
	assert.Equal(t, "GBP", denom)

	// WHEN/THEN: undeclared reads are configuration errors, even when the value exists
	_, err = snap.Decimal("principal")
	assert.True(t, generic.IsConfigurationError(err))
	assert.True(t, errors.Is(err, generic.ErrUndeclaredRequirement))

	_, err = snap.Flag("BLOCK_REPAYMENTS")
	assert.True(t, errors.Is(err, generic.ErrUndeclaredRequirement))

	_, err = snap.Observation(generic.ObservationLive)
	assert.True(t, errors.Is(err, generic.ErrUndeclaredRequirement))

	// A declared but unresolved observation is empty rather than an error
	set, err := snap.Observation(generic.ObservationEffective)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestSnapshot_ParameterVersions(t *testing.T) {
	req := generic.DataRequirements{Parameters: []string{"variable_interest_rate"}}
	snap := generic.NewSnapshot(req, generic.TsideAsset, date(2025, time.June, 1))
	snap.AddParameter("variable_interest_rate", "0.05", date(2025, time.April, 1))
	snap.AddParameter("variable_interest_rate", "0.04", date(2025, time.January, 1))
	snap.AddParameter("variable_interest_rate", "0.06", date(2025, time.July, 1))

	// Current value ignores the version that is not yet effective
	rate, err := snap.Decimal("variable_interest_rate")
	require.NoError(t, err)
	assertDecimal(t, "0.05", rate)

	changed, err := snap.LastChanged("variable_interest_rate")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.April, 1), changed)

	old, err := snap.DecimalAt("variable_interest_rate", date(2025, time.February, 1))
	require.NoError(t, err)
	assertDecimal(t, "0.04", old)

	_, err = snap.DecimalAt("variable_interest_rate", date(2024, time.December, 1))
	assert.True(t, errors.Is(err, generic.ErrParameterNotSet))
}

func TestSnapshot_TypedParameters(t *testing.T) {
	req := generic.DataRequirements{Parameters: []string{"count", "flag", "day", "bad"}}
	snap := generic.NewSnapshot(req, generic.TsideAsset, date(2025, time.June, 1))
	snap.SetParameters(map[string]string{"count": "12", "flag": "true", "day": "2025-02-03", "bad": "twelve"})

	n, err := snap.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	b, err := snap.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	d, err := snap.Date("day")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 3), d)

	_, err = snap.Int("bad")
	assert.True(t, generic.IsConfigurationError(err))
}

func TestSnapshot_TierMissingKeyIsConfigurationError(t *testing.T) {
	req := generic.DataRequirements{Parameters: []string{"tiered_interest_rates"}}
	snap := generic.NewSnapshot(req, generic.TsideLiability, date(2025, time.June, 1))
	snap.SetParameters(map[string]string{"tiered_interest_rates": `{"STANDARD": "0.01", "PREMIUM": 0.02}`})

	rate, err := snap.Tier("tiered_interest_rates", "PREMIUM")
	require.NoError(t, err)
	assertDecimal(t, "0.02", rate)

	_, err = snap.Tier("tiered_interest_rates", "GOLD")
	var cfg *generic.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "tiered_interest_rates", cfg.Parameter)
}

func TestSnapshot_FlagTimeline(t *testing.T) {
	req := generic.DataRequirements{Flags: []string{"REPAYMENT_HOLIDAY"}}
	snap := generic.NewSnapshot(req, generic.TsideAsset, date(2025, time.June, 1))
	snap.AddFlagChange("REPAYMENT_HOLIDAY", true, date(2025, time.March, 1))
	snap.AddFlagChange("REPAYMENT_HOLIDAY", false, date(2025, time.May, 1))

	on, err := snap.FlagAt("REPAYMENT_HOLIDAY", date(2025, time.April, 1))
	require.NoError(t, err)
	assert.True(t, on)

	now, err := snap.Flag("REPAYMENT_HOLIDAY")
	require.NoError(t, err)
	assert.False(t, now)

	before, err := snap.FlagAt("REPAYMENT_HOLIDAY", date(2025, time.January, 1))
	require.NoError(t, err)
	assert.False(t, before)
}

func TestDirectives_EmitNormalisesAmounts(t *testing.T) {
	d := generic.NewDirectives()
	d.Emit(
		generic.PostingInstruction{Amount: dec("0"), DebitAddress: "A", CreditAddress: "B"},
		generic.PostingInstruction{Amount: dec("-5"), DebitAccount: "x", DebitAddress: "A", CreditAccount: "y", CreditAddress: "B"},
	)

	require.Len(t, d.Instructions, 1)
	pi := d.Instructions[0]
	assertDecimal(t, "5", pi.Amount)
	assert.Equal(t, "B", pi.DebitAddress)
	assert.Equal(t, generic.AccountID("y"), pi.DebitAccount)
	assert.Equal(t, "A", pi.CreditAddress)

	d.Reject(generic.RejectAgainstTerms, "first")
	d.Reject(generic.RejectWrongDenomination, "second")
	assert.Equal(t, generic.RejectAgainstTerms, d.Rejection.Reason)
}
