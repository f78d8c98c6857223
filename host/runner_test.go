package host_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/deposit"
	"github.com/warp/product-engine/factory"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/host"
	"github.com/warp/product-engine/lending"
	"github.com/warp/product-engine/mortgage"
	"github.com/warp/product-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var opened = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

func newRunner(t *testing.T) (*host.Runner, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return host.NewRunner(store, host.WithClock(func() time.Time { return opened })), store
}

func saveDefinition(t *testing.T, store generic.DefinitionStore, preset string) string {
	t.Helper()
	def, err := factory.NewDefinitionFactory().ParseJSON([]byte(preset))
	require.NoError(t, err)
	require.NoError(t, store.SaveDefinition(context.Background(), *def))
	return def.ID
}

func openSavings(t *testing.T, r *host.Runner, store *sqlite.Store) generic.AccountID {
	t.Helper()
	defID := saveDefinition(t, store, deposit.EasyAccessSavingsJSON("easy", "Easy saver",
		map[string]string{"STANDARD": "0.0365", "PREMIUM": "0.05"}, "STANDARD"))
	acct, err := r.OpenAccount(context.Background(), host.OpenAccountRequest{
		AccountID:    "saver-1",
		DefinitionID: defID,
		OpenedAt:     opened,
	})
	require.NoError(t, err)
	return acct.ID
}

func movement(amount string, valueAt time.Time) generic.PostingBatch {
	v := decimal.RequireFromString(amount)
	return generic.PostingBatch{
		ValueAt: valueAt,
		Postings: []generic.Posting{{
			Denomination: "GBP",
			Amount:       v.Abs(),
			Credit:       v.IsPositive(),
		}},
	}
}

func net(t *testing.T, set generic.BalanceSet, address string) string {
	t.Helper()
	return set.Net(generic.NewCoordinate(address, "GBP")).String()
}

// =============================================================================
// OPEN ACCOUNT
// =============================================================================

func TestRunner_OpenAccountSeedsSchedules(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()

	id := openSavings(t, r, store)

	schedules, err := store.Schedules(ctx, id)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	byEvent := map[generic.EventType]generic.ScheduleRecord{}
	for _, rec := range schedules {
		byEvent[rec.Event] = rec
	}
	assert.Equal(t, time.Date(2025, time.January, 11, 0, 0, 0, 0, time.UTC), byEvent[deposit.EventAccrueInterest].NextRunAt)
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 1, 0, 0, time.UTC), byEvent[deposit.EventApplyInterest].NextRunAt)
	assert.True(t, byEvent[deposit.EventApplyInterest].Active)

	versions, err := store.Parameters(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, versions)

	entries, err := store.AuditEntries(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.AuditAccountOpened, entries[0].Action)
}

func TestRunner_OpenAccountRejectsBadParameters(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	defID := saveDefinition(t, store, deposit.EasyAccessSavingsJSON("easy", "Easy saver", map[string]string{"STANDARD": "0.01"}, "STANDARD"))

	tests := []struct {
		name    string
		req     host.OpenAccountRequest
		isError func(error) bool
	}{
		{"unknown parameter", host.OpenAccountRequest{DefinitionID: defID, Parameters: map[string]string{"colour": "blue"}}, generic.IsConfigurationError},
		{"tier without a rate", host.OpenAccountRequest{DefinitionID: defID, Parameters: map[string]string{deposit.ParamAccountTier: "GOLD"}}, generic.IsConfigurationError},
		{"unknown definition", host.OpenAccountRequest{DefinitionID: "nope"}, generic.IsNotFound},
		{"unknown product", host.OpenAccountRequest{ProductID: "bond"}, generic.IsNotFound},
		{"definition for another product", host.OpenAccountRequest{DefinitionID: defID, ProductID: mortgage.ProductID}, generic.IsConfigurationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.OpenAccount(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, tt.isError(err), err.Error())
		})
	}

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRunner_OpenAccountTwice(t *testing.T) {
	r, store := newRunner(t)
	openSavings(t, r, store)

	_, err := r.OpenAccount(context.Background(), host.OpenAccountRequest{AccountID: "saver-1", DefinitionID: "easy"})

	assert.True(t, errors.Is(err, generic.ErrAccountExists))
}

// =============================================================================
// POSTINGS
// =============================================================================

func TestRunner_SubmitBatchSettlesAgainstSettlementAccount(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)

	// WHEN: a deposit of 10000
	batch, err := r.SubmitBatch(ctx, id, movement("10000", opened.Add(time.Hour)))
	require.NoError(t, err)

	// THEN: the account leg is balanced by a settlement leg
	require.Len(t, batch.Postings, 2)
	assert.Equal(t, host.DefaultSettlementAccount, batch.Postings[1].AccountID)
	assert.False(t, batch.Postings[1].Credit)

	balances, err := r.Balances(ctx, id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "10000", net(t, balances, generic.DefaultAddress))
}

func TestRunner_SubmitBatchRejection(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)

	// WHEN: a deposit above the 20000 maximum deposit
	_, err := r.SubmitBatch(ctx, id, movement("25000", opened))

	// THEN: rejected, nothing committed, the rejection audited
	require.Error(t, err)
	var re *generic.RejectionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, generic.RejectAgainstTerms, re.Rejection.Reason)

	postings, err := store.Postings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, postings)

	entries, err := store.AuditEntries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.AuditBatchRejected, entries[len(entries)-1].Action)
}

func TestRunner_SubmitBatchClientRetry(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)

	batch := movement("100", opened)
	batch.ClientBatchID = "deposit-42"
	_, err := r.SubmitBatch(ctx, id, batch)
	require.NoError(t, err)

	_, err = r.SubmitBatch(ctx, id, batch)

	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))
	assert.True(t, generic.IsClientError(err))
}

func TestRunner_ClosedAccount(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)

	require.NoError(t, r.CloseAccount(ctx, id))

	_, err := r.SubmitBatch(ctx, id, movement("100", opened))
	assert.True(t, errors.Is(err, generic.ErrAccountClosed))

	due, err := store.DueSchedules(ctx, opened.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, due)
}

// =============================================================================
// SCHEDULED EVENTS
// =============================================================================

func TestRunner_RunDueSchedulesCatchesUp(t *testing.T) {
	// GIVEN: 10000 at 3.65% in a 365 day year
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)
	_, err := r.SubmitBatch(ctx, id, movement("10000", opened.Add(time.Hour)))
	require.NoError(t, err)

	// WHEN: the scheduler wakes up two days later
	now := time.Date(2025, time.January, 12, 0, 30, 0, 0, time.UTC)
	ran, err := r.RunDueSchedules(ctx, now)
	require.NoError(t, err)

	// THEN: both missed accruals ran
	assert.Equal(t, 2, ran)
	balances, err := r.Balances(ctx, id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2", net(t, balances, deposit.AddressAccruedInterestPayable))

	schedules, err := store.Schedules(ctx, id)
	require.NoError(t, err)
	for _, rec := range schedules {
		if rec.Event == deposit.EventAccrueInterest {
			assert.Equal(t, time.Date(2025, time.January, 12, 0, 0, 0, 0, time.UTC), rec.LastRunAt)
			assert.Equal(t, time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC), rec.NextRunAt)
		}
	}

	// AND: nothing is due again
	ran, err = r.RunDueSchedules(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, ran)
}

func TestRunner_RunEventTwiceAtSameTime(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)
	_, err := r.SubmitBatch(ctx, id, movement("10000", opened))
	require.NoError(t, err)
	at := time.Date(2025, time.January, 11, 0, 0, 0, 0, time.UTC)

	_, err = r.RunEvent(ctx, id, deposit.EventAccrueInterest, at)
	require.NoError(t, err)
	_, err = r.RunEvent(ctx, id, deposit.EventAccrueInterest, at)

	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))
	balances, err := r.Balances(ctx, id, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "1", net(t, balances, deposit.AddressAccruedInterestPayable))
}

func TestRunner_RunEventUnknownEvent(t *testing.T) {
	r, store := newRunner(t)
	id := openSavings(t, r, store)

	_, err := r.RunEvent(context.Background(), id, lending.EventDueAmountCalculation, opened)

	assert.True(t, generic.IsConfigurationError(err))
}

func TestRunner_TimeDepositMaturity(t *testing.T) {
	// GIVEN: 10000 fixed for a year at 5%
	r, store := newRunner(t)
	ctx := context.Background()
	defID := saveDefinition(t, store, deposit.FixedTermDepositJSON("fixed-12", "One year fixed", 12, "0.05"))
	acct, err := r.OpenAccount(ctx, host.OpenAccountRequest{AccountID: "td-1", DefinitionID: defID, OpenedAt: opened})
	require.NoError(t, err)
	_, err = r.SubmitBatch(ctx, acct.ID, movement("10000", opened))
	require.NoError(t, err)

	// AND: an early withdrawal is refused
	_, err = r.SubmitBatch(ctx, acct.ID, movement("-100", opened.AddDate(0, 3, 0)))
	require.True(t, generic.IsRejection(err))

	// WHEN: the maturity event runs
	at := time.Date(2026, time.January, 10, 0, 1, 0, 0, time.UTC)
	d, err := r.RunEvent(ctx, acct.ID, deposit.EventMaturity, at)
	require.NoError(t, err)

	// THEN: the interest is paid, accrual stops, the customer is told
	require.Len(t, d.Notifications, 1)
	balances, err := r.Balances(ctx, acct.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "10500", net(t, balances, generic.DefaultAddress))

	schedules, err := store.Schedules(ctx, acct.ID)
	require.NoError(t, err)
	for _, rec := range schedules {
		assert.False(t, rec.Active, rec.Event)
	}

	entries, err := store.AuditEntries(ctx, acct.ID)
	require.NoError(t, err)
	actions := map[generic.AuditAction]bool{}
	for _, e := range entries {
		actions[e.Action] = true
	}
	assert.True(t, actions[generic.AuditNotification])
	assert.True(t, actions[generic.AuditEventExecuted])
}

// =============================================================================
// LOANS
// =============================================================================

func TestRunner_MortgageDisbursementAndOverride(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	defID := saveDefinition(t, store, mortgage.FixedRateJSON("m-fix", "2 year fix", "250000", 300, "0.0425", 24, "0.0525"))
	acct, err := r.OpenAccount(ctx, host.OpenAccountRequest{AccountID: "loan-1", DefinitionID: defID, OpenedAt: opened})
	require.NoError(t, err)

	// THEN: principal is paid out to the customer's deposit account
	balances, err := r.Balances(ctx, acct.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "250000", net(t, balances, lending.AddressPrincipal))
	schedules, err := store.Schedules(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, schedules, 3)

	// WHEN: a repayment arrives before anything is due
	repayment := movement("100", opened.Add(time.Hour))
	_, err = r.SubmitBatch(ctx, acct.ID, repayment)
	require.True(t, generic.IsRejection(err))

	// AND: it is forced through
	repayment.Metadata = map[string]string{generic.OverrideKey: "true"}
	_, err = r.SubmitBatch(ctx, acct.ID, repayment)
	require.NoError(t, err)

	// THEN: it becomes an overpayment
	balances, err = r.Balances(ctx, acct.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "-100", net(t, balances, lending.AddressOverpayment))
	assert.Equal(t, "0", net(t, balances, generic.DefaultAddress))

	derived, err := r.DerivedValues(ctx, acct.ID, opened.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "CURRENT", derived[lending.DerivedStatus])
	assert.Equal(t, "249900.00", derived[lending.DerivedOutstandingPrincipal])
}

func TestRunner_MortgageArrearsLifecycle(t *testing.T) {
	// GIVEN: a mortgage opened on 10 January, due on the 1st, checked for
	// overdue 10 days later and for delinquency 15 days after that
	r, store := newRunner(t)
	ctx := context.Background()
	defID := saveDefinition(t, store, mortgage.FixedRateJSON("m-fix", "2 year fix", "250000", 300, "0.0425", 24, "0.0525"))
	acct, err := r.OpenAccount(ctx, host.OpenAccountRequest{AccountID: "loan-3", DefinitionID: defID, OpenedAt: opened})
	require.NoError(t, err)

	statusAt := func(now time.Time) string {
		t.Helper()
		_, err := r.RunDueSchedules(ctx, now)
		require.NoError(t, err)
		derived, err := r.DerivedValues(ctx, acct.ID, now)
		require.NoError(t, err)
		return derived[lending.DerivedStatus]
	}

	// WHEN: the schedules run with no repayment
	steps := []struct {
		at   time.Time
		want lending.Status
	}{
		{time.Date(2025, time.February, 28, 12, 0, 0, 0, time.UTC), lending.StatusCurrent},
		{time.Date(2025, time.March, 1, 0, 5, 0, 0, time.UTC), lending.StatusDue},
		{time.Date(2025, time.March, 11, 0, 1, 0, 0, time.UTC), lending.StatusDue},
		{time.Date(2025, time.March, 11, 0, 5, 0, 0, time.UTC), lending.StatusOverdue},
		{time.Date(2025, time.March, 26, 0, 2, 0, 0, time.UTC), lending.StatusOverdue},
		{time.Date(2025, time.March, 26, 0, 5, 0, 0, time.UTC), lending.StatusDelinquent},
	}

	// THEN: the status only moves forward, in calendar order
	for _, step := range steps {
		assert.Equal(t, string(step.want), statusAt(step.at), step.at.Format(time.RFC3339))
	}

	balances, err := r.Balances(ctx, acct.ID, time.Time{})
	require.NoError(t, err)
	coordinate := func(address string) decimal.Decimal {
		return balances.Net(generic.NewCoordinate(address, "GBP"))
	}
	assert.Equal(t, "0", net(t, balances, lending.AddressPrincipalDue))
	assert.True(t, coordinate(lending.AddressPrincipalOverdue).IsPositive())
	assert.True(t, coordinate(lending.AddressPenalties).IsPositive())
	assert.Equal(t, "25", net(t, balances, lending.AddressFees))

	// WHEN: the customer repays every arrear
	arrears := coordinate(lending.AddressPrincipalOverdue).
		Add(coordinate(lending.AddressInterestOverdue)).
		Add(coordinate(lending.AddressPenalties)).
		Add(coordinate(lending.AddressFees))
	repaidAt := time.Date(2025, time.March, 26, 10, 0, 0, 0, time.UTC)
	_, err = r.SubmitBatch(ctx, acct.ID, movement(arrears.String(), repaidAt))
	require.NoError(t, err)

	// THEN: the account is current again
	derived, err := r.DerivedValues(ctx, acct.ID, repaidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, string(lending.StatusCurrent), derived[lending.DerivedStatus])

	balances, err = r.Balances(ctx, acct.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "0", net(t, balances, lending.AddressPrincipalOverdue))
	assert.Equal(t, "0", net(t, balances, lending.AddressInterestOverdue))
	assert.Equal(t, "0", net(t, balances, lending.AddressPenalties))
	assert.Equal(t, "0", net(t, balances, generic.DefaultAddress))
}

// =============================================================================
// PARAMETERS AND FLAGS
// =============================================================================

func TestRunner_ChangeParameters(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	id := openSavings(t, r, store)
	at := opened.AddDate(0, 0, 5)

	_, err := r.ChangeParameters(ctx, id, map[string]string{deposit.ParamAccountTier: "GOLD"}, at)
	require.True(t, generic.IsRejection(err))

	_, err = r.ChangeParameters(ctx, id, map[string]string{deposit.ParamAccountTier: "PREMIUM"}, at)
	require.NoError(t, err)

	derived, err := r.DerivedValues(ctx, id, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.05", derived[deposit.DerivedInterestRate])

	// the old rate still applies before the change
	derived, err = r.DerivedValues(ctx, id, opened.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.0365", derived[deposit.DerivedInterestRate])
}

func TestRunner_SetFlag(t *testing.T) {
	r, store := newRunner(t)
	ctx := context.Background()
	defID := saveDefinition(t, store, mortgage.TrackerJSON("m-track", "Tracker", "180000", 240, "0.045", "0.0075"))
	acct, err := r.OpenAccount(ctx, host.OpenAccountRequest{AccountID: "loan-2", DefinitionID: defID, OpenedAt: opened})
	require.NoError(t, err)

	require.NoError(t, r.SetFlag(ctx, acct.ID, lending.FlagBlockRepayments, true, opened))

	changes, err := store.FlagChanges(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	err = r.SetFlag(ctx, acct.ID, "VIP", true, opened)
	assert.True(t, generic.IsConfigurationError(err))
}

func TestRunner_Metrics(t *testing.T) {
	r, store := newRunner(t)
	openSavings(t, r, store)

	families, err := r.Metrics().Registry.Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	assert.True(t, found["product_engine_hook_invocations_total"])
	assert.True(t, found["product_engine_hook_duration_seconds"])
}
