/*
Package generic provides the host boundary shared by every product rule set.

PURPOSE:
  This package contains product-agnostic types for talking to a banking
  ledger host. Whether the product is a mortgage, a line of credit or a
  savings account, the same types describe balances, postings, schedules
  and the directives a hook hands back to the host.

KEY CONCEPTS IN THIS FILE (types.go):
  - BalanceCoordinate: (address, asset, denomination, phase) value type
  - Balance: net/credit/debit triple at one coordinate
  - BalanceSet: all balances of one account at one observation
  - Tside: which side of the balance sheet an account sits on
  - Account/Product IDs: type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64
  2. Value types: coordinates are comparable and usable as map keys
  3. Type Safety: Strong typing for IDs prevents mixing account/product IDs
  4. Purity: nothing here performs I/O or reads a clock

USAGE:
  coord := generic.NewCoordinate("PRINCIPAL", "GBP")
  balances := generic.NewBalanceSet(generic.TsideAsset)
  balances.Apply(posting)
  principal := balances.Net(coord)

SEE ALSO:
  - posting.go: Postings, instructions and rejections
  - capabilities.go: Narrow reader/emitter interfaces passed to hooks
  - manifest.go: Declarative data requirements per hook
*/
package generic

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type ProductID string
type PostingID string

// DefaultAsset is the asset used for all monetary balances.
const DefaultAsset = "COMMERCIAL_BANK_MONEY"

// DefaultAddress is where customer funds land before a product moves them.
const DefaultAddress = "DEFAULT"

// =============================================================================
// PHASE
// =============================================================================

type Phase string

const (
	PhaseCommitted  Phase = "committed"
	PhasePendingIn  Phase = "pending_in"
	PhasePendingOut Phase = "pending_out"
)

// =============================================================================
// TSIDE - balance sheet side of an account
// =============================================================================

// Tside decides how Net is derived from credits and debits.
// Loans are assets of the bank (debit positive), deposits are liabilities
// (credit positive).
type Tside string

const (
	TsideAsset     Tside = "asset"
	TsideLiability Tside = "liability"
)

// =============================================================================
// BALANCE COORDINATE
// =============================================================================

// BalanceCoordinate identifies one balance of an account.
// It is comparable, so it can be used directly as a map key.
type BalanceCoordinate struct {
	Address      string
	Asset        string
	Denomination string
	Phase        Phase
}

// NewCoordinate returns the committed coordinate for an address in the
// default asset.
func NewCoordinate(address, denomination string) BalanceCoordinate {
	return BalanceCoordinate{
		Address:      address,
		Asset:        DefaultAsset,
		Denomination: denomination,
		Phase:        PhaseCommitted,
	}
}

func (c BalanceCoordinate) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Address, c.Asset, c.Denomination, c.Phase)
}

// Less orders coordinates by address, asset, denomination and phase.
func (c BalanceCoordinate) Less(other BalanceCoordinate) bool {
	if c.Address != other.Address {
		return c.Address < other.Address
	}
	if c.Asset != other.Asset {
		return c.Asset < other.Asset
	}
	if c.Denomination != other.Denomination {
		return c.Denomination < other.Denomination
	}
	return c.Phase < other.Phase
}

// =============================================================================
// BALANCE
// =============================================================================

type Balance struct {
	Net    decimal.Decimal
	Credit decimal.Decimal
	Debit  decimal.Decimal
}

func (b Balance) IsZero() bool { return b.Credit.IsZero() && b.Debit.IsZero() }

// BalanceSet holds the balances of a single account at one observation.
type BalanceSet struct {
	Side     Tside
	balances map[BalanceCoordinate]Balance
}

func NewBalanceSet(side Tside) BalanceSet {
	return BalanceSet{Side: side, balances: make(map[BalanceCoordinate]Balance)}
}

// Get returns the balance at a coordinate, zero when never posted to.
func (s BalanceSet) Get(c BalanceCoordinate) Balance {
	if b, ok := s.balances[c]; ok {
		return b
	}
	return Balance{Net: decimal.Zero, Credit: decimal.Zero, Debit: decimal.Zero}
}

// Net is a shortcut for Get(c).Net.
func (s BalanceSet) Net(c BalanceCoordinate) decimal.Decimal { return s.Get(c).Net }

// Apply adds one posting leg to the set. The set must have been created
// with NewBalanceSet.
func (s BalanceSet) Apply(p Posting) {
	c := p.Coordinate()
	b := s.Get(c)
	if p.Credit {
		b.Credit = b.Credit.Add(p.Amount)
	} else {
		b.Debit = b.Debit.Add(p.Amount)
	}
	if s.Side == TsideLiability {
		b.Net = b.Credit.Sub(b.Debit)
	} else {
		b.Net = b.Debit.Sub(b.Credit)
	}
	s.balances[c] = b
}

// Coordinates returns every coordinate in the set in canonical order.
func (s BalanceSet) Coordinates() []BalanceCoordinate {
	coords := make([]BalanceCoordinate, 0, len(s.balances))
	for c := range s.balances {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords
}

func (s BalanceSet) Len() int { return len(s.balances) }

// Clone returns an independent copy, used by tests and the host to
// simulate applying directives.
func (s BalanceSet) Clone() BalanceSet {
	out := NewBalanceSet(s.Side)
	for c, b := range s.balances {
		out.balances[c] = b
	}
	return out
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountStatus string

const (
	AccountOpen   AccountStatus = "open"
	AccountClosed AccountStatus = "closed"
)

// Account is the host's record of an opened product instance.
type Account struct {
	ID           AccountID
	ProductID    ProductID
	DefinitionID string
	OpenedAt     time.Time
	Status       AccountStatus
	CreatedAt    time.Time
}
