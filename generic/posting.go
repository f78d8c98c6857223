package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POSTING - one committed leg on one account
// =============================================================================

// Posting is an immutable ledger leg. Amount is always positive; Credit
// decides direction.
type Posting struct {
	ID             PostingID
	BatchID        string
	AccountID      AccountID
	Address        string
	Asset          string
	Denomination   string
	Phase          Phase
	Amount         decimal.Decimal
	Credit         bool
	ValueAt        time.Time
	InsertedAt     time.Time
	IdempotencyKey string
	Metadata       map[string]string
}

func (p Posting) Coordinate() BalanceCoordinate {
	asset := p.Asset
	if asset == "" {
		asset = DefaultAsset
	}
	phase := p.Phase
	if phase == "" {
		phase = PhaseCommitted
	}
	return BalanceCoordinate{Address: p.Address, Asset: asset, Denomination: p.Denomination, Phase: phase}
}

// =============================================================================
// POSTING BATCH - what a client proposes
// =============================================================================

// OverrideKey in batch metadata lets a batch bypass "repays more than owed"
// and similar term checks.
const OverrideKey = "force_override"

type PostingBatch struct {
	ID            string
	ClientBatchID string
	ValueAt       time.Time
	Postings      []Posting
	Metadata      map[string]string
}

// HasOverride reports whether the batch carries an explicit override.
func (b PostingBatch) HasOverride() bool {
	return b.Metadata[OverrideKey] == "true"
}

// IsBackdated reports whether the value date predates the given time.
func (b PostingBatch) IsBackdated(now time.Time) bool {
	return b.ValueAt.Before(now)
}

// NetForAccount sums the DEFAULT-address movements of an account in the
// batch as seen from the customer: credits positive, debits negative.
func (b PostingBatch) NetForAccount(account AccountID, denomination string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.Postings {
		if p.AccountID != account || p.Address != DefaultAddress || p.Denomination != denomination {
			continue
		}
		if p.Credit {
			total = total.Add(p.Amount)
		} else {
			total = total.Sub(p.Amount)
		}
	}
	return total
}

// =============================================================================
// POSTING INSTRUCTION - a paired transfer emitted by a hook
// =============================================================================

// PostingInstruction moves Amount from the debit side to the credit side.
// Both legs may be on the same account (internal address transfer).
type PostingInstruction struct {
	Amount        decimal.Decimal
	Denomination  string
	Asset         string
	DebitAccount  AccountID
	DebitAddress  string
	CreditAccount AccountID
	CreditAddress string
	Metadata      map[string]string
}

// Postings expands the instruction into its two legs.
func (pi PostingInstruction) Postings(valueAt time.Time) []Posting {
	asset := pi.Asset
	if asset == "" {
		asset = DefaultAsset
	}
	return []Posting{
		{
			AccountID:    pi.DebitAccount,
			Address:      pi.DebitAddress,
			Asset:        asset,
			Denomination: pi.Denomination,
			Phase:        PhaseCommitted,
			Amount:       pi.Amount,
			Credit:       false,
			ValueAt:      valueAt,
			Metadata:     pi.Metadata,
		},
		{
			AccountID:    pi.CreditAccount,
			Address:      pi.CreditAddress,
			Asset:        asset,
			Denomination: pi.Denomination,
			Phase:        PhaseCommitted,
			Amount:       pi.Amount,
			Credit:       true,
			ValueAt:      valueAt,
			Metadata:     pi.Metadata,
		},
	}
}

func (pi PostingInstruction) String() string {
	return fmt.Sprintf("%s %s: %s/%s -> %s/%s", pi.Amount, pi.Denomination,
		pi.DebitAccount, pi.DebitAddress, pi.CreditAccount, pi.CreditAddress)
}

// =============================================================================
// REJECTION
// =============================================================================

type RejectionReason string

const (
	RejectWrongDenomination RejectionReason = "WRONG_DENOMINATION"
	RejectAgainstTerms      RejectionReason = "AGAINST_TERMS"
	RejectInsufficientFunds RejectionReason = "INSUFFICIENT_FUNDS"
	RejectClientCustom      RejectionReason = "CLIENT_CUSTOM_REASON"
)

// Rejection refuses a proposed batch or parameter change as a whole.
type Rejection struct {
	Message string
	Reason  RejectionReason
}

func (r *Rejection) Error() string { return fmt.Sprintf("%s: %s", r.Reason, r.Message) }
