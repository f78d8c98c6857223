/*
capabilities.go - Narrow interfaces handed to product hooks

PURPOSE:
  A hook never receives the host itself. It receives a HookInput holding
  one reader per kind of data (balances, parameters, flags, schedule
  history) and returns Directives, which double as the posting emitter,
  schedule updater and flag updater. Calculation functions take only the
  interface they need, so tests pass a Snapshot or a tiny fake.

CAPABILITIES:
  BalanceReader    named balance observations declared in the manifest
  ParameterReader  typed parameter values, as-of lookups, last change time
  FlagReader       flag state at the effective time or another datetime
  ScheduleReader   last execution time of a scheduled event
  PostingEmitter   collects posting instructions
  ScheduleUpdater  collects schedule updates
  FlagUpdater      collects flag updates

SEE ALSO:
  - snapshot.go: Host-resolved implementation of the readers
  - manifest.go: What each hook is allowed to read
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READERS
// =============================================================================

type BalanceReader interface {
	// Observation returns the balances resolved for a declared observation.
	Observation(name string) (BalanceSet, error)
}

type ParameterReader interface {
	Decimal(name string) (decimal.Decimal, error)
	Int(name string) (int, error)
	Text(name string) (string, error)
	Bool(name string) (bool, error)
	Date(name string) (time.Time, error)

	// Tier reads one key of a tiered (JSON object) parameter.
	Tier(name, key string) (decimal.Decimal, error)

	// DecimalAt reads the value that was effective at a given time.
	DecimalAt(name string, at time.Time) (decimal.Decimal, error)

	// LastChanged returns when the current value became effective.
	LastChanged(name string) (time.Time, error)
}

type FlagReader interface {
	// Flag returns the flag state at the invocation's effective time.
	Flag(name string) (bool, error)
	FlagAt(name string, at time.Time) (bool, error)
}

type ScheduleReader interface {
	// LastExecution returns when the event last ran for this account.
	LastExecution(event EventType) (time.Time, bool)
}

// =============================================================================
// EMITTERS
// =============================================================================

type PostingEmitter interface {
	Emit(instructions ...PostingInstruction)
}

type ScheduleUpdater interface {
	UpdateSchedule(update ScheduleUpdate)
}

type FlagUpdater interface {
	SetFlag(name string, value bool)
}

// =============================================================================
// HOOK INPUT
// =============================================================================

// HookInput is everything a hook may look at. The host builds it from the
// hook's manifest entry before calling the hook.
type HookInput struct {
	AccountID   AccountID
	OpenedAt    time.Time
	EffectiveAt time.Time
	Balances    BalanceReader
	Parameters  ParameterReader
	Flags       FlagReader
	Schedules   ScheduleReader
}

// =============================================================================
// DIRECTIVES - hook output
// =============================================================================

type FlagUpdate struct {
	Name  string
	Value bool
}

// Notification is an informational event for the host (e.g. delinquency).
type Notification struct {
	Type   string
	Fields map[string]string
}

// Directives is the complete output of one hook invocation.
type Directives struct {
	Instructions  []PostingInstruction
	Rejection     *Rejection
	Schedules     []ScheduleUpdate
	Flags         []FlagUpdate
	Notifications []Notification
	Derived       map[string]string
}

func NewDirectives() *Directives { return &Directives{} }

// Emit appends instructions. Zero amounts are dropped and negative amounts
// are turned around so every stored instruction is positive.
func (d *Directives) Emit(instructions ...PostingInstruction) {
	for _, pi := range instructions {
		switch pi.Amount.Sign() {
		case 0:
			continue
		case -1:
			pi.Amount = pi.Amount.Neg()
			pi.DebitAccount, pi.CreditAccount = pi.CreditAccount, pi.DebitAccount
			pi.DebitAddress, pi.CreditAddress = pi.CreditAddress, pi.DebitAddress
		}
		d.Instructions = append(d.Instructions, pi)
	}
}

func (d *Directives) UpdateSchedule(update ScheduleUpdate) {
	d.Schedules = append(d.Schedules, update)
}

func (d *Directives) SetFlag(name string, value bool) {
	d.Flags = append(d.Flags, FlagUpdate{Name: name, Value: value})
}

func (d *Directives) Notify(kind string, fields map[string]string) {
	d.Notifications = append(d.Notifications, Notification{Type: kind, Fields: fields})
}

// Reject records a rejection; the first rejection wins.
func (d *Directives) Reject(reason RejectionReason, message string) {
	if d.Rejection == nil {
		d.Rejection = &Rejection{Reason: reason, Message: message}
	}
}

func (d *Directives) Rejected() bool { return d.Rejection != nil }

func (d *Directives) SetDerived(name, value string) {
	if d.Derived == nil {
		d.Derived = make(map[string]string)
	}
	d.Derived[name] = value
}

// Compile-time checks
var (
	_ PostingEmitter  = (*Directives)(nil)
	_ ScheduleUpdater = (*Directives)(nil)
	_ FlagUpdater     = (*Directives)(nil)
)
