/*
ledger.go - Append-only posting log and balance replay

PURPOSE:
  The posting ledger is the immutable source of truth for all balances.
  Balances are always computed by replaying postings; there is no separate
  balance field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. BALANCED: the legs of a batch net to zero per denomination
  3. IDEMPOTENT: Same idempotency key = same posting (no duplicates)

OBSERVATIONS:
  BalancesAt(at)   replays postings with value date <= at. This is what
                   scheduled events see, so backdated postings are honored.
  LiveBalances()   replays every committed posting regardless of value date.
                   Pre-posting validation uses it, so a backdated repayment
                   is checked against what is owed now.

SEE ALSO:
  - store.go: Low-level persistence interface
  - types.go: BalanceSet and how Net is derived per Tside
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POSTING LEDGER
// =============================================================================

type PostingLedger struct {
	Store PostingStore
}

func NewPostingLedger(store PostingStore) *PostingLedger {
	return &PostingLedger{Store: store}
}

// AppendBatch validates and persists a batch.
func (l *PostingLedger) AppendBatch(ctx context.Context, batch PostingBatch) error {
	if err := CheckBalanced(batch.Postings); err != nil {
		return err
	}
	seen := make(map[string]bool, len(batch.Postings))
	for _, p := range batch.Postings {
		if p.IdempotencyKey == "" {
			continue
		}
		if seen[p.IdempotencyKey] {
			return fmt.Errorf("%w: %s repeated in batch", ErrDuplicateIdempotencyKey, p.IdempotencyKey)
		}
		seen[p.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, p.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, p.IdempotencyKey)
		}
	}
	return l.Store.AppendBatch(ctx, batch)
}

func (l *PostingLedger) Postings(ctx context.Context, account AccountID) ([]Posting, error) {
	return l.Store.Postings(ctx, account)
}

// BalancesAt replays postings whose value date is not after at.
func (l *PostingLedger) BalancesAt(ctx context.Context, account AccountID, side Tside, at time.Time) (BalanceSet, error) {
	postings, err := l.Store.Postings(ctx, account)
	if err != nil {
		return BalanceSet{}, err
	}
	return BalancesFromPostings(side, postings, func(p Posting) bool { return !p.ValueAt.After(at) }), nil
}

// LiveBalances replays every committed posting.
func (l *PostingLedger) LiveBalances(ctx context.Context, account AccountID, side Tside) (BalanceSet, error) {
	postings, err := l.Store.Postings(ctx, account)
	if err != nil {
		return BalanceSet{}, err
	}
	return BalancesFromPostings(side, postings, nil), nil
}

// BalancesFromPostings builds a balance set from the postings accepted by
// keep (all when keep is nil).
func BalancesFromPostings(side Tside, postings []Posting, keep func(Posting) bool) BalanceSet {
	set := NewBalanceSet(side)
	for _, p := range postings {
		if keep == nil || keep(p) {
			set.Apply(p)
		}
	}
	return set
}

// CheckBalanced verifies debits equal credits per denomination and that
// no leg is negative.
func CheckBalanced(postings []Posting) error {
	net := make(map[string]decimal.Decimal)
	for _, p := range postings {
		if p.Amount.IsNegative() {
			return fmt.Errorf("%w: negative amount %s", ErrUnbalancedBatch, p.Amount)
		}
		if p.Credit {
			net[p.Denomination] = net[p.Denomination].Add(p.Amount)
		} else {
			net[p.Denomination] = net[p.Denomination].Sub(p.Amount)
		}
	}
	for denom, n := range net {
		if !n.IsZero() {
			return fmt.Errorf("%w: %s off by %s", ErrUnbalancedBatch, denom, n)
		}
	}
	return nil
}
