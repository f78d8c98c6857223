/*
store.go - Persistence interfaces for the reference host

PURPOSE:
  Defines the interface between the host adapter and the database.
  Postings keep append-only semantics; parameters and flags are stored as
  versions so as-of reads stay answerable. Different implementations can
  use SQLite or in-memory storage.

KEY INTERFACES:
  PostingStore:    Append-only posting legs (append, load, exists)
  AccountStore:    Opened product instances
  DefinitionStore: Named parameter presets for a product
  ParameterStore:  Versioned per-account parameter values
  FlagStore:       Per-account flag transitions
  ScheduleStore:   Next run time and last execution per account event
  AuditLog:        Who did what when, including hook notifications

APPEND-ONLY CONTRACT:
  - AppendBatch(): Atomic multi-posting write
  - NO Update() or Delete() for postings, parameter versions or flag changes
  Corrections are made with opposite postings.

IDEMPOTENCY:
  Every posting written by the host carries an idempotency key. If any key
  of a batch already exists, the whole batch is rejected. This makes
  re-running a scheduled event after a crash safe.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using PostingStore
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// POSTINGS - append-only
// =============================================================================

type PostingStore interface {
	// AppendBatch persists every posting of the batch atomically.
	// Returns ErrDuplicateIdempotencyKey if any key already exists.
	AppendBatch(ctx context.Context, batch PostingBatch) error

	// Postings returns all postings of an account ordered by value date,
	// then insertion.
	Postings(ctx context.Context, account AccountID) ([]Posting, error)

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// ACCOUNTS AND DEFINITIONS
// =============================================================================

type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetAccountStatus(ctx context.Context, id AccountID, status AccountStatus) error
}

// ProductDefinition is a named set of parameter defaults for a product,
// e.g. "5-year fixed mortgage".
type ProductDefinition struct {
	ID          string
	ProductID   ProductID
	Name        string
	Description string
	Parameters  map[string]string
	CreatedAt   time.Time
}

type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def ProductDefinition) error
	GetDefinition(ctx context.Context, id string) (*ProductDefinition, error)
	ListDefinitions(ctx context.Context) ([]ProductDefinition, error)
}

// =============================================================================
// PARAMETERS AND FLAGS - versioned
// =============================================================================

type ParameterStore interface {
	AppendParameters(ctx context.Context, account AccountID, versions []ParameterVersion) error
	// Parameters returns every version of every parameter of an account.
	Parameters(ctx context.Context, account AccountID) ([]ParameterVersion, error)
}

type FlagStore interface {
	AppendFlagChange(ctx context.Context, account AccountID, change FlagChange) error
	FlagChanges(ctx context.Context, account AccountID) ([]FlagChange, error)
}

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleRecord is the host's view of one scheduled event of one account.
// Only the descriptor and the next/last run times are kept; no future
// timeline is materialised.
type ScheduleRecord struct {
	AccountID  AccountID
	Event      EventType
	Descriptor ScheduleDescriptor
	NextRunAt  time.Time
	LastRunAt  time.Time // zero when never executed
	Active     bool
}

type ScheduleStore interface {
	// SaveSchedule inserts or replaces the record for (account, event).
	SaveSchedule(ctx context.Context, rec ScheduleRecord) error
	Schedules(ctx context.Context, account AccountID) ([]ScheduleRecord, error)
	// DueSchedules returns active records with NextRunAt <= now, oldest first.
	DueSchedules(ctx context.Context, now time.Time) ([]ScheduleRecord, error)
}

// =============================================================================
// AUDIT LOG - Separate from the ledger, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	AccountID AccountID
	Action    AuditAction
	Payload   map[string]string
}

type AuditAction string

const (
	AuditAccountOpened     AuditAction = "account_opened"
	AuditBatchCommitted    AuditAction = "batch_committed"
	AuditBatchRejected     AuditAction = "batch_rejected"
	AuditParametersChanged AuditAction = "parameters_changed"
	AuditFlagChanged       AuditAction = "flag_changed"
	AuditEventExecuted     AuditAction = "event_executed"
	AuditNotification      AuditAction = "notification"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	AuditEntries(ctx context.Context, account AccountID) ([]AuditEntry, error)
}

// =============================================================================
// STORE - everything the reference host persists
// =============================================================================

type Store interface {
	PostingStore
	AccountStore
	DefinitionStore
	ParameterStore
	FlagStore
	ScheduleStore
	AuditLog
}

// TxStore wraps Store with transaction support.
// If fn returns an error, every write made through the Store passed to fn
// is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
