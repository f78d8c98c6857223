package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/product-engine/generic"
	"github.com/warp/product-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger() *generic.PostingLedger {
	return generic.NewPostingLedger(store.NewMemory())
}

func transfer(account generic.AccountID, amount, from, to string, valueAt time.Time, key string) generic.PostingBatch {
	pi := generic.PostingInstruction{
		Amount:        dec(amount),
		Denomination:  "GBP",
		DebitAccount:  account,
		DebitAddress:  from,
		CreditAccount: account,
		CreditAddress: to,
	}
	postings := pi.Postings(valueAt)
	postings[0].IdempotencyKey = key + ":d"
	postings[1].IdempotencyKey = key + ":c"
	return generic.PostingBatch{ID: key, ValueAt: valueAt, Postings: postings}
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestPostingLedger_BackdatedPostingVisibleLiveButNotBefore(t *testing.T) {
	// GIVEN: a loan disbursed in January
	ledger := newTestLedger()
	ctx := context.Background()
	require.NoError(t, ledger.AppendBatch(ctx, transfer("loan", "1000", "PRINCIPAL", "DEFAULT", date(2025, time.January, 1), "disburse")))

	// WHEN: a repayment is backdated to March
	require.NoError(t, ledger.AppendBatch(ctx, transfer("loan", "100", "DEFAULT", "PRINCIPAL", date(2025, time.March, 1), "repay")))

	// THEN: February balances ignore it, live balances include it
	principal := generic.NewCoordinate("PRINCIPAL", "GBP")

	feb, err := ledger.BalancesAt(ctx, "loan", generic.TsideAsset, date(2025, time.February, 1))
	require.NoError(t, err)
	assertDecimal(t, "1000", feb.Net(principal))

	live, err := ledger.LiveBalances(ctx, "loan", generic.TsideAsset)
	require.NoError(t, err)
	assertDecimal(t, "900", live.Net(principal))
	assertDecimal(t, "-900", live.Net(generic.NewCoordinate("DEFAULT", "GBP")))
}

func TestPostingLedger_LiabilitySideNet(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	require.NoError(t, ledger.AppendBatch(ctx, transfer("savings", "250", "INTERNAL_CONTRA", "DEFAULT", date(2025, time.January, 1), "deposit")))

	live, err := ledger.LiveBalances(ctx, "savings", generic.TsideLiability)
	require.NoError(t, err)
	bal := live.Get(generic.NewCoordinate("DEFAULT", "GBP"))
	assertDecimal(t, "250", bal.Net)
	assertDecimal(t, "250", bal.Credit)
	assertDecimal(t, "0", bal.Debit)
}

func TestPostingLedger_DuplicateIdempotencyKey(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	batch := transfer("loan", "10", "A", "B", date(2025, time.January, 1), "same")

	require.NoError(t, ledger.AppendBatch(ctx, batch))
	err := ledger.AppendBatch(ctx, batch)
	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))

	postings, err := ledger.Postings(ctx, "loan")
	require.NoError(t, err)
	assert.Len(t, postings, 2, "the retried batch must not be written twice")
}

func TestPostingLedger_UnbalancedBatchRejected(t *testing.T) {
	ledger := newTestLedger()
	batch := transfer("loan", "10", "A", "B", date(2025, time.January, 1), "oops")
	batch.Postings[1].Amount = dec("9.99")

	err := ledger.AppendBatch(context.Background(), batch)
	assert.True(t, errors.Is(err, generic.ErrUnbalancedBatch))
	assert.True(t, generic.IsClientError(err))
}

func TestMemoryStore_WithTxRollsBack(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(s generic.Store) error {
		require.NoError(t, s.CreateAccount(ctx, generic.Account{ID: "acc-1", ProductID: "mortgage"}))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = mem.GetAccount(ctx, "acc-1")
	assert.True(t, generic.IsNotFound(err))
}

func TestBalanceCoordinate_Ordering(t *testing.T) {
	a := generic.NewCoordinate("ACCRUED_INTEREST", "GBP")
	b := generic.NewCoordinate("PRINCIPAL", "GBP")
	c := generic.BalanceCoordinate{Address: "PRINCIPAL", Asset: generic.DefaultAsset, Denomination: "GBP", Phase: generic.PhasePendingIn}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.Equal(t, "PRINCIPAL/COMMERCIAL_BANK_MONEY/GBP/committed", b.String())

	set := generic.NewBalanceSet(generic.TsideAsset)
	set.Apply(generic.Posting{Address: "PRINCIPAL", Denomination: "GBP", Amount: dec("1")})
	set.Apply(generic.Posting{Address: "ACCRUED_INTEREST", Denomination: "GBP", Amount: dec("1")})
	assert.Equal(t, []generic.BalanceCoordinate{a, b}, set.Coordinates())
}
