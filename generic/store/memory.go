// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/product-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   *sync.RWMutex
	st   *state
	inTx bool
}

type scheduleKey struct {
	AccountID generic.AccountID
	Event     generic.EventType
}

type state struct {
	postings    map[generic.AccountID][]generic.Posting
	idempotency map[string]bool
	accounts    map[generic.AccountID]generic.Account
	definitions map[string]generic.ProductDefinition
	parameters  map[generic.AccountID][]generic.ParameterVersion
	flags       map[generic.AccountID][]generic.FlagChange
	schedules   map[scheduleKey]generic.ScheduleRecord
	audit       map[generic.AccountID][]generic.AuditEntry
}

func newState() *state {
	return &state{
		postings:    make(map[generic.AccountID][]generic.Posting),
		idempotency: make(map[string]bool),
		accounts:    make(map[generic.AccountID]generic.Account),
		definitions: make(map[string]generic.ProductDefinition),
		parameters:  make(map[generic.AccountID][]generic.ParameterVersion),
		flags:       make(map[generic.AccountID][]generic.FlagChange),
		schedules:   make(map[scheduleKey]generic.ScheduleRecord),
		audit:       make(map[generic.AccountID][]generic.AuditEntry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.postings {
		c.postings[k] = append([]generic.Posting{}, v...)
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.definitions {
		c.definitions[k] = v
	}
	for k, v := range s.parameters {
		c.parameters[k] = append([]generic.ParameterVersion{}, v...)
	}
	for k, v := range s.flags {
		c.flags[k] = append([]generic.FlagChange{}, v...)
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k, v := range s.audit {
		c.audit[k] = append([]generic.AuditEntry{}, v...)
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{mu: &sync.RWMutex{}, st: newState()}
}

// write and read return the matching unlock. Inside WithTx the lock is
// already held.
func (m *Memory) write() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) read() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

// =============================================================================
// POSTINGS
// =============================================================================

// AppendBatch adds every posting atomically.
func (m *Memory) AppendBatch(_ context.Context, batch generic.PostingBatch) error {
	defer m.write()()

	// Check all idempotency keys first (atomic check)
	for _, p := range batch.Postings {
		if p.IdempotencyKey != "" && m.st.idempotency[p.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	for _, p := range batch.Postings {
		m.insertLocked(p)
	}
	return nil
}

func (m *Memory) insertLocked(p generic.Posting) {
	postings := m.st.postings[p.AccountID]

	// Binary search keeps value-date order; equal dates stay in insertion order.
	i := sort.Search(len(postings), func(i int) bool {
		return postings[i].ValueAt.After(p.ValueAt)
	})
	postings = append(postings, generic.Posting{})
	copy(postings[i+1:], postings[i:])
	postings[i] = p
	m.st.postings[p.AccountID] = postings

	if p.IdempotencyKey != "" {
		m.st.idempotency[p.IdempotencyKey] = true
	}
}

func (m *Memory) Postings(_ context.Context, account generic.AccountID) ([]generic.Posting, error) {
	defer m.read()()
	return append([]generic.Posting{}, m.st.postings[account]...), nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	defer m.read()()
	return m.st.idempotency[idempotencyKey], nil
}

// =============================================================================
// ACCOUNTS AND DEFINITIONS
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, account generic.Account) error {
	defer m.write()()
	if _, exists := m.st.accounts[account.ID]; exists {
		return fmt.Errorf("%w: %s", generic.ErrAccountExists, account.ID)
	}
	m.st.accounts[account.ID] = account
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id generic.AccountID) (*generic.Account, error) {
	defer m.read()()
	a, ok := m.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	return &a, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]generic.Account, error) {
	defer m.read()()
	result := make([]generic.Account, 0, len(m.st.accounts))
	for _, a := range m.st.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SetAccountStatus(_ context.Context, id generic.AccountID, status generic.AccountStatus) error {
	defer m.write()()
	a, ok := m.st.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrAccountNotFound, id)
	}
	a.Status = status
	m.st.accounts[id] = a
	return nil
}

func (m *Memory) SaveDefinition(_ context.Context, def generic.ProductDefinition) error {
	defer m.write()()
	m.st.definitions[def.ID] = def
	return nil
}

func (m *Memory) GetDefinition(_ context.Context, id string) (*generic.ProductDefinition, error) {
	defer m.read()()
	d, ok := m.st.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrDefinitionNotFound, id)
	}
	return &d, nil
}

func (m *Memory) ListDefinitions(_ context.Context) ([]generic.ProductDefinition, error) {
	defer m.read()()
	result := make([]generic.ProductDefinition, 0, len(m.st.definitions))
	for _, d := range m.st.definitions {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// PARAMETERS AND FLAGS
// =============================================================================

func (m *Memory) AppendParameters(_ context.Context, account generic.AccountID, versions []generic.ParameterVersion) error {
	defer m.write()()
	m.st.parameters[account] = append(m.st.parameters[account], versions...)
	return nil
}

func (m *Memory) Parameters(_ context.Context, account generic.AccountID) ([]generic.ParameterVersion, error) {
	defer m.read()()
	return append([]generic.ParameterVersion{}, m.st.parameters[account]...), nil
}

func (m *Memory) AppendFlagChange(_ context.Context, account generic.AccountID, change generic.FlagChange) error {
	defer m.write()()
	m.st.flags[account] = append(m.st.flags[account], change)
	return nil
}

func (m *Memory) FlagChanges(_ context.Context, account generic.AccountID) ([]generic.FlagChange, error) {
	defer m.read()()
	return append([]generic.FlagChange{}, m.st.flags[account]...), nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) SaveSchedule(_ context.Context, rec generic.ScheduleRecord) error {
	defer m.write()()
	m.st.schedules[scheduleKey{AccountID: rec.AccountID, Event: rec.Event}] = rec
	return nil
}

func (m *Memory) Schedules(_ context.Context, account generic.AccountID) ([]generic.ScheduleRecord, error) {
	defer m.read()()
	var result []generic.ScheduleRecord
	for k, rec := range m.st.schedules {
		if k.AccountID == account {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Event < result[j].Event })
	return result, nil
}

func (m *Memory) DueSchedules(_ context.Context, now time.Time) ([]generic.ScheduleRecord, error) {
	defer m.read()()
	var result []generic.ScheduleRecord
	for _, rec := range m.st.schedules {
		if rec.Active && !rec.NextRunAt.After(now) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextRunAt.Equal(result[j].NextRunAt) {
			return result[i].NextRunAt.Before(result[j].NextRunAt)
		}
		if result[i].AccountID != result[j].AccountID {
			return result[i].AccountID < result[j].AccountID
		}
		return result[i].Event < result[j].Event
	})
	return result, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	defer m.write()()
	m.st.audit[entry.AccountID] = append(m.st.audit[entry.AccountID], entry)
	return nil
}

func (m *Memory) AuditEntries(_ context.Context, account generic.AccountID) ([]generic.AuditEntry, error) {
	defer m.read()()
	return append([]generic.AuditEntry{}, m.st.audit[account]...), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	backup := m.st.clone()
	view := &Memory{mu: m.mu, st: m.st, inTx: true}
	if err := fn(view); err != nil {
		m.st = backup
		return err
	}
	return nil
}

// Compile-time check
var _ generic.TxStore = (*Memory)(nil)
