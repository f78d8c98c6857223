/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics:
  - No UPDATE statements on postings, parameter_versions or flag_changes
  - No DELETE statements anywhere
  - Corrections via opposite postings only
  Accounts (status) and schedules (next/last run) are the only rows that
  are ever rewritten.

KEY TABLES:
  postings:           Immutable ledger of posting legs
  accounts:           Opened product instances
  definitions:        Product definitions with their parameter JSON
  parameter_versions: Per-account parameter values with effective times
  flag_changes:       Per-account flag transitions
  schedules:          One row per (account, event): descriptor, next and last run
  audit:              Who did what when

INDEXES:
  - idx_postings_account_value: Balance replay (hot path)
  - postings.idempotency_key UNIQUE: Duplicate batch detection
  - idx_schedules_due: Scheduler polling

TIME AND MONEY:
  Times are stored in UTC with a fixed-width layout so text comparison
  orders them. Amounts are stored as decimal text, never REAL.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so an
  in-memory database is shared by every caller. In production with
  PostgreSQL, database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/engine.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewPostingLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/ledger.go: Higher-level ledger using PostingStore
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/product-engine/generic"
)

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Posting legs (append-only ledger)
	CREATE TABLE IF NOT EXISTS postings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		batch_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		address TEXT NOT NULL,
		asset TEXT NOT NULL,
		denomination TEXT NOT NULL,
		phase TEXT NOT NULL,
		amount TEXT NOT NULL,
		credit INTEGER NOT NULL,
		value_at TEXT NOT NULL,
		inserted_at TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_postings_account_value
		ON postings(account_id, value_at, seq);
	CREATE INDEX IF NOT EXISTS idx_postings_batch
		ON postings(batch_id);

	-- Opened product instances
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		definition_id TEXT,
		opened_at TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Product definitions
	CREATE TABLE IF NOT EXISTS definitions (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		parameters_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Versioned parameters (append-only)
	CREATE TABLE IF NOT EXISTS parameter_versions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		effective_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_parameter_versions_account
		ON parameter_versions(account_id, seq);

	-- Flag transitions (append-only)
	CREATE TABLE IF NOT EXISTS flag_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		name TEXT NOT NULL,
		value INTEGER NOT NULL,
		effective_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flag_changes_account
		ON flag_changes(account_id, seq);

	-- Scheduled events
	CREATE TABLE IF NOT EXISTS schedules (
		account_id TEXT NOT NULL REFERENCES accounts(id),
		event TEXT NOT NULL,
		descriptor_json TEXT NOT NULL,
		next_run_at TEXT NOT NULL,
		last_run_at TEXT,
		active INTEGER NOT NULL,
		PRIMARY KEY (account_id, event)
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_due
		ON schedules(active, next_run_at);

	-- Audit log
	CREATE TABLE IF NOT EXISTS audit (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		account_id TEXT NOT NULL,
		action TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_account
		ON audit(account_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIER - shared by Store and txStore
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ops holds every statement. Store wraps it with the mutex, txStore runs
// it on the open transaction.
type ops struct {
	q querier
}

// =============================================================================
// POSTINGS
// =============================================================================

func (o ops) appendBatch(ctx context.Context, batch generic.PostingBatch) error {
	seen := make(map[string]bool, len(batch.Postings))
	for _, p := range batch.Postings {
		if p.IdempotencyKey == "" {
			continue
		}
		if seen[p.IdempotencyKey] {
			return fmt.Errorf("%w: %s", generic.ErrDuplicateIdempotencyKey, p.IdempotencyKey)
		}
		seen[p.IdempotencyKey] = true
	}
	for _, p := range batch.Postings {
		if err := o.insertPosting(ctx, batch.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (o ops) insertPosting(ctx context.Context, batchID string, p generic.Posting) error {
	var metadataJSON []byte
	if len(p.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if p.ID == "" {
		p.ID = generic.PostingID(uuid.NewString())
	}
	if p.BatchID == "" {
		p.BatchID = batchID
	}
	inserted := p.InsertedAt
	if inserted.IsZero() {
		inserted = time.Now()
	}

	query := `
		INSERT INTO postings (
			id, batch_id, account_id, address, asset, denomination, phase,
			amount, credit, value_at, inserted_at, idempotency_key, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := o.q.ExecContext(ctx, query,
		string(p.ID), p.BatchID, string(p.AccountID), p.Address, p.Asset, p.Denomination, string(p.Phase),
		p.Amount.String(), p.Credit, formatTime(p.ValueAt), formatTime(inserted),
		nullString(p.IdempotencyKey), nullString(string(metadataJSON)),
	)
	if isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key") {
		return fmt.Errorf("%w: %s", generic.ErrDuplicateIdempotencyKey, p.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert posting: %w", err)
	}
	return nil
}

func (o ops) postings(ctx context.Context, account generic.AccountID) ([]generic.Posting, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, batch_id, account_id, address, asset, denomination, phase,
			amount, credit, value_at, inserted_at, idempotency_key, metadata_json
		FROM postings
		WHERE account_id = ?
		ORDER BY value_at, seq
	`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPosting(rows *sql.Rows) (generic.Posting, error) {
	var (
		p              generic.Posting
		id, account    string
		phase, amount  string
		valueAt        string
		insertedAt     string
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
	)
	err := rows.Scan(
		&id, &p.BatchID, &account, &p.Address, &p.Asset, &p.Denomination, &phase,
		&amount, &p.Credit, &valueAt, &insertedAt, &idempotencyKey, &metadataJSON,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan posting: %w", err)
	}
	p.ID = generic.PostingID(id)
	p.AccountID = generic.AccountID(account)
	p.Phase = generic.Phase(phase)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return p, fmt.Errorf("posting %s: bad amount %q: %w", id, amount, err)
	}
	p.ValueAt = parseTime(valueAt)
	p.InsertedAt = parseTime(insertedAt)
	p.IdempotencyKey = idempotencyKey.String
	if err := unmarshalJSON(metadataJSON, &p.Metadata); err != nil {
		return p, fmt.Errorf("posting %s: %w", id, err)
	}
	return p, nil
}

func (o ops) exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := o.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM postings WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (o ops) createAccount(ctx context.Context, a generic.Account) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO accounts (id, product_id, definition_id, opened_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(a.ID), string(a.ProductID), nullString(a.DefinitionID), formatTime(a.OpenedAt), string(a.Status), formatTime(created))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", generic.ErrAccountExists, a.ID)
	}
	return err
}

const accountColumns = "id, product_id, definition_id, opened_at, status, created_at"

func scanAccount(row interface{ Scan(...interface{}) error }) (generic.Account, error) {
	var (
		a                   generic.Account
		id, product, status string
		definitionID        sql.NullString
		openedAt, createdAt string
	)
	if err := row.Scan(&id, &product, &definitionID, &openedAt, &status, &createdAt); err != nil {
		return a, err
	}
	a.ID = generic.AccountID(id)
	a.ProductID = generic.ProductID(product)
	a.DefinitionID = definitionID.String
	a.OpenedAt = parseTime(openedAt)
	a.Status = generic.AccountStatus(status)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (o ops) getAccount(ctx context.Context, id generic.AccountID) (*generic.Account, error) {
	row := o.q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", string(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (o ops) listAccounts(ctx context.Context) ([]generic.Account, error) {
	rows, err := o.q.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []generic.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (o ops) setAccountStatus(ctx context.Context, id generic.AccountID, status generic.AccountStatus) error {
	res, err := o.q.ExecContext(ctx, "UPDATE accounts SET status = ? WHERE id = ?", string(status), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	return nil
}

// =============================================================================
// DEFINITIONS
// =============================================================================

func (o ops) saveDefinition(ctx context.Context, def generic.ProductDefinition) error {
	params, err := json.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	created := def.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO definitions (id, product_id, name, description, parameters_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			name = excluded.name,
			description = excluded.description,
			parameters_json = excluded.parameters_json
	`, def.ID, string(def.ProductID), def.Name, nullString(def.Description), string(params), formatTime(created))
	return err
}

const definitionColumns = "id, product_id, name, description, parameters_json, created_at"

func scanDefinition(row interface{ Scan(...interface{}) error }) (generic.ProductDefinition, error) {
	var (
		d                   generic.ProductDefinition
		product, createdAt  string
		description, params sql.NullString
	)
	if err := row.Scan(&d.ID, &product, &d.Name, &description, &params, &createdAt); err != nil {
		return d, err
	}
	d.ProductID = generic.ProductID(product)
	d.Description = description.String
	d.CreatedAt = parseTime(createdAt)
	if err := unmarshalJSON(params, &d.Parameters); err != nil {
		return d, fmt.Errorf("definition %s: %w", d.ID, err)
	}
	return d, nil
}

func (o ops) getDefinition(ctx context.Context, id string) (*generic.ProductDefinition, error) {
	row := o.q.QueryRowContext(ctx, "SELECT "+definitionColumns+" FROM definitions WHERE id = ?", id)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrDefinitionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (o ops) listDefinitions(ctx context.Context) ([]generic.ProductDefinition, error) {
	rows, err := o.q.QueryContext(ctx, "SELECT "+definitionColumns+" FROM definitions ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []generic.ProductDefinition{}
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// =============================================================================
// PARAMETERS AND FLAGS
// =============================================================================

func (o ops) appendParameters(ctx context.Context, account generic.AccountID, versions []generic.ParameterVersion) error {
	for _, v := range versions {
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO parameter_versions (account_id, name, value, effective_at)
			VALUES (?, ?, ?, ?)
		`, string(account), v.Name, v.Value, formatTime(v.EffectiveAt))
		if err != nil {
			return fmt.Errorf("failed to insert parameter %s: %w", v.Name, err)
		}
	}
	return nil
}

func (o ops) parameters(ctx context.Context, account generic.AccountID) ([]generic.ParameterVersion, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT name, value, effective_at FROM parameter_versions
		WHERE account_id = ? ORDER BY seq
	`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.ParameterVersion
	for rows.Next() {
		var v generic.ParameterVersion
		var effectiveAt string
		if err := rows.Scan(&v.Name, &v.Value, &effectiveAt); err != nil {
			return nil, err
		}
		v.EffectiveAt = parseTime(effectiveAt)
		result = append(result, v)
	}
	return result, rows.Err()
}

func (o ops) appendFlagChange(ctx context.Context, account generic.AccountID, change generic.FlagChange) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO flag_changes (account_id, name, value, effective_at)
		VALUES (?, ?, ?, ?)
	`, string(account), change.Name, change.Value, formatTime(change.EffectiveAt))
	return err
}

func (o ops) flagChanges(ctx context.Context, account generic.AccountID) ([]generic.FlagChange, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT name, value, effective_at FROM flag_changes
		WHERE account_id = ? ORDER BY seq
	`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.FlagChange
	for rows.Next() {
		var c generic.FlagChange
		var effectiveAt string
		if err := rows.Scan(&c.Name, &c.Value, &effectiveAt); err != nil {
			return nil, err
		}
		c.EffectiveAt = parseTime(effectiveAt)
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (o ops) saveSchedule(ctx context.Context, rec generic.ScheduleRecord) error {
	descriptor, err := json.Marshal(rec.Descriptor)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	var lastRun sql.NullString
	if !rec.LastRunAt.IsZero() {
		lastRun = nullString(formatTime(rec.LastRunAt))
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO schedules (account_id, event, descriptor_json, next_run_at, last_run_at, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, event) DO UPDATE SET
			descriptor_json = excluded.descriptor_json,
			next_run_at = excluded.next_run_at,
			last_run_at = excluded.last_run_at,
			active = excluded.active
	`, string(rec.AccountID), string(rec.Event), string(descriptor), formatTime(rec.NextRunAt), lastRun, rec.Active)
	return err
}

const scheduleColumns = "account_id, event, descriptor_json, next_run_at, last_run_at, active"

func (o ops) querySchedules(ctx context.Context, query string, args ...interface{}) ([]generic.ScheduleRecord, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.ScheduleRecord
	for rows.Next() {
		var (
			rec                     generic.ScheduleRecord
			account, event, nextRun string
			descriptor              sql.NullString
			lastRun                 sql.NullString
		)
		if err := rows.Scan(&account, &event, &descriptor, &nextRun, &lastRun, &rec.Active); err != nil {
			return nil, err
		}
		rec.AccountID = generic.AccountID(account)
		rec.Event = generic.EventType(event)
		rec.NextRunAt = parseTime(nextRun)
		if lastRun.Valid {
			rec.LastRunAt = parseTime(lastRun.String)
		}
		if err := unmarshalJSON(descriptor, &rec.Descriptor); err != nil {
			return nil, fmt.Errorf("schedule %s/%s: %w", account, event, err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (o ops) schedules(ctx context.Context, account generic.AccountID) ([]generic.ScheduleRecord, error) {
	return o.querySchedules(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE account_id = ? ORDER BY event",
		string(account))
}

func (o ops) dueSchedules(ctx context.Context, now time.Time) ([]generic.ScheduleRecord, error) {
	return o.querySchedules(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE active = 1 AND next_run_at <= ? ORDER BY next_run_at, account_id, event",
		formatTime(now))
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (o ops) appendAudit(ctx context.Context, entry generic.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO audit (id, timestamp, account_id, action, payload_json)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, formatTime(entry.Timestamp), string(entry.AccountID), string(entry.Action), string(payload))
	return err
}

func (o ops) auditEntries(ctx context.Context, account generic.AccountID) ([]generic.AuditEntry, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, timestamp, account_id, action, payload_json FROM audit
		WHERE account_id = ? ORDER BY seq
	`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []generic.AuditEntry
	for rows.Next() {
		var (
			e                generic.AuditEntry
			ts, acct, action string
			payload          sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &acct, &action, &payload); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.AccountID = generic.AccountID(acct)
		e.Action = generic.AuditAction(action)
		if err := unmarshalJSON(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("audit %s: %w", e.ID, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// STORE (generic.Store interface)
// =============================================================================

func (s *Store) ops() ops { return ops{q: s.db} }

// AppendBatch persists every posting of the batch in one transaction.
func (s *Store) AppendBatch(ctx context.Context, batch generic.PostingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := (ops{q: tx}).appendBatch(ctx, batch); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Postings(ctx context.Context, account generic.AccountID) ([]generic.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().postings(ctx, account)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().exists(ctx, idempotencyKey)
}

func (s *Store) CreateAccount(ctx context.Context, account generic.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().createAccount(ctx, account)
}

func (s *Store) GetAccount(ctx context.Context, id generic.AccountID) (*generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().getAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().listAccounts(ctx)
}

func (s *Store) SetAccountStatus(ctx context.Context, id generic.AccountID, status generic.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().setAccountStatus(ctx, id, status)
}

func (s *Store) SaveDefinition(ctx context.Context, def generic.ProductDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().saveDefinition(ctx, def)
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*generic.ProductDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().getDefinition(ctx, id)
}

func (s *Store) ListDefinitions(ctx context.Context) ([]generic.ProductDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().listDefinitions(ctx)
}

func (s *Store) AppendParameters(ctx context.Context, account generic.AccountID, versions []generic.ParameterVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().appendParameters(ctx, account, versions)
}

func (s *Store) Parameters(ctx context.Context, account generic.AccountID) ([]generic.ParameterVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().parameters(ctx, account)
}

func (s *Store) AppendFlagChange(ctx context.Context, account generic.AccountID, change generic.FlagChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().appendFlagChange(ctx, account, change)
}

func (s *Store) FlagChanges(ctx context.Context, account generic.AccountID) ([]generic.FlagChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().flagChanges(ctx, account)
}

func (s *Store) SaveSchedule(ctx context.Context, rec generic.ScheduleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().saveSchedule(ctx, rec)
}

func (s *Store) Schedules(ctx context.Context, account generic.AccountID) ([]generic.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().schedules(ctx, account)
}

func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]generic.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().dueSchedules(ctx, now)
}

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops().appendAudit(ctx, entry)
}

func (s *Store) AuditEntries(ctx context.Context, account generic.AccountID) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops().auditEntries(ctx, account)
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Every read
// and write made through the Store passed to fn uses the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{ops: ops{q: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs without the mutex; WithTx holds it for the whole call.
type txStore struct {
	ops ops
}

func (ts *txStore) AppendBatch(ctx context.Context, batch generic.PostingBatch) error {
	return ts.ops.appendBatch(ctx, batch)
}

func (ts *txStore) Postings(ctx context.Context, account generic.AccountID) ([]generic.Posting, error) {
	return ts.ops.postings(ctx, account)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return ts.ops.exists(ctx, idempotencyKey)
}

func (ts *txStore) CreateAccount(ctx context.Context, account generic.Account) error {
	return ts.ops.createAccount(ctx, account)
}

func (ts *txStore) GetAccount(ctx context.Context, id generic.AccountID) (*generic.Account, error) {
	return ts.ops.getAccount(ctx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]generic.Account, error) {
	return ts.ops.listAccounts(ctx)
}

func (ts *txStore) SetAccountStatus(ctx context.Context, id generic.AccountID, status generic.AccountStatus) error {
	return ts.ops.setAccountStatus(ctx, id, status)
}

func (ts *txStore) SaveDefinition(ctx context.Context, def generic.ProductDefinition) error {
	return ts.ops.saveDefinition(ctx, def)
}

func (ts *txStore) GetDefinition(ctx context.Context, id string) (*generic.ProductDefinition, error) {
	return ts.ops.getDefinition(ctx, id)
}

func (ts *txStore) ListDefinitions(ctx context.Context) ([]generic.ProductDefinition, error) {
	return ts.ops.listDefinitions(ctx)
}

func (ts *txStore) AppendParameters(ctx context.Context, account generic.AccountID, versions []generic.ParameterVersion) error {
	return ts.ops.appendParameters(ctx, account, versions)
}

func (ts *txStore) Parameters(ctx context.Context, account generic.AccountID) ([]generic.ParameterVersion, error) {
	return ts.ops.parameters(ctx, account)
}

func (ts *txStore) AppendFlagChange(ctx context.Context, account generic.AccountID, change generic.FlagChange) error {
	return ts.ops.appendFlagChange(ctx, account, change)
}

func (ts *txStore) FlagChanges(ctx context.Context, account generic.AccountID) ([]generic.FlagChange, error) {
	return ts.ops.flagChanges(ctx, account)
}

func (ts *txStore) SaveSchedule(ctx context.Context, rec generic.ScheduleRecord) error {
	return ts.ops.saveSchedule(ctx, rec)
}

func (ts *txStore) Schedules(ctx context.Context, account generic.AccountID) ([]generic.ScheduleRecord, error) {
	return ts.ops.schedules(ctx, account)
}

func (ts *txStore) DueSchedules(ctx context.Context, now time.Time) ([]generic.ScheduleRecord, error) {
	return ts.ops.dueSchedules(ctx, now)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return ts.ops.appendAudit(ctx, entry)
}

func (ts *txStore) AuditEntries(ctx context.Context, account generic.AccountID) ([]generic.AuditEntry, error) {
	return ts.ops.auditEntries(ctx, account)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func unmarshalJSON(s sql.NullString, v interface{}) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time checks
var (
	_ generic.TxStore = (*Store)(nil)
	_ generic.Store   = (*txStore)(nil)
)
