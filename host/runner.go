/*
Package host is a reference host for the product rule sets.

PURPOSE:
  The product packages are pure: they read a snapshot and return
  directives. Something has to own the ledger, the parameter history and
  the clock. This package does that on top of a generic.TxStore, so the
  rule sets can be exercised end to end.

RESPONSIBILITIES:
  1. Snapshot resolution: load exactly what a hook's manifest entry declares
     (live, effective or last-execution balances, parameter versions, flag
     timelines, last run times)
  2. Hook invocation: call the product, log the outcome, record metrics
  3. Directive application: commit postings with deterministic idempotency
     keys, move schedules, record flags and notifications

FLOWS:
  OpenAccount       parameters -> activation hook -> opening postings, schedules
  SubmitBatch       pre-posting on live balances -> commit with a settlement
                    leg -> post-posting in the same transaction
  RunEvent          scheduled hook at the event's time -> advance the schedule
  RunDueSchedules   every due event, oldest first, catching up missed runs
  ChangeParameters  parameter-change hook -> new parameter versions
  SetFlag           flag transition
  DerivedValues     derived hook at a point in time

CONCURRENCY:
  Every operation on an account holds that account's mutex, so hooks for
  one account never interleave. Different accounts run in parallel.

IDEMPOTENCY:
  Postings from a hook carry keys "account:tag:effective:index:side". Running
  the same event for the same time twice fails with
  ErrDuplicateIdempotencyKey instead of double posting.

SEE ALSO:
  - generic/store.go: Persistence interfaces
  - generic/snapshot.go: What hooks read
  - api/: HTTP surface over the runner
*/
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/product-engine/generic"
)

// DefaultSettlementAccount balances customer movements submitted through
// SubmitBatch.
const DefaultSettlementAccount generic.AccountID = "settlement"

// maxCatchUp bounds the number of events one RunDueSchedules call runs.
const maxCatchUp = 100000

// Runner executes product hooks against a store.
type Runner struct {
	store      generic.TxStore
	logger     *zap.Logger
	metrics    *Metrics
	settlement generic.AccountID
	now        func() time.Time
	locks      accountLocks
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSettlementAccount sets the account that takes the other side of
// submitted customer movements.
func WithSettlementAccount(id generic.AccountID) Option {
	return func(r *Runner) { r.settlement = id }
}

// WithClock replaces time.Now for defaults and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store generic.TxStore, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		logger:     zap.NewNop(),
		settlement: DefaultSettlementAccount,
		now:        time.Now,
		locks:      accountLocks{locks: make(map[generic.AccountID]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics()
	}
	return r
}

func (r *Runner) Store() generic.TxStore { return r.store }

func (r *Runner) Metrics() *Metrics { return r.metrics }

// =============================================================================
// ACCOUNT LOCKS
// =============================================================================

type accountLocks struct {
	mu    sync.Mutex
	locks map[generic.AccountID]*sync.Mutex
}

func (l *accountLocks) lock(id generic.AccountID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (r *Runner) load(ctx context.Context, st generic.Store, id generic.AccountID) (generic.Account, generic.Product, error) {
	acct, err := st.GetAccount(ctx, id)
	if err != nil {
		return generic.Account{}, nil, err
	}
	p, err := generic.LookupProduct(acct.ProductID)
	if err != nil {
		return generic.Account{}, nil, err
	}
	return *acct, p, nil
}

func (r *Runner) loadOpen(ctx context.Context, id generic.AccountID) (generic.Account, generic.Product, error) {
	acct, p, err := r.load(ctx, r.store, id)
	if err != nil {
		return acct, nil, err
	}
	if acct.Status == generic.AccountClosed {
		return acct, nil, fmt.Errorf("%w: %s", generic.ErrAccountClosed, id)
	}
	return acct, p, nil
}

func checkDeclared(p generic.Product, params map[string]string) error {
	declared := names(p.Manifest().ParameterNames())
	for name := range params {
		if !declared[name] {
			return generic.ConfigError(name, "not a parameter of product %s", p.ID())
		}
	}
	return nil
}

func declaredFlags(p generic.Product) map[string]bool {
	flags := make(map[string]bool)
	for _, req := range p.Manifest().Hooks {
		for _, f := range req.Flags {
			flags[f] = true
		}
	}
	return flags
}

func rejected(account generic.AccountID, d *generic.Directives) error {
	return &generic.RejectionError{AccountID: account, Rejection: *d.Rejection}
}

// =============================================================================
// OPEN ACCOUNT
// =============================================================================

type OpenAccountRequest struct {
	AccountID    generic.AccountID
	ProductID    generic.ProductID
	DefinitionID string
	// Parameters override the definition's values.
	Parameters map[string]string
	OpenedAt   time.Time
}

// OpenAccount creates the account, stores its parameters and runs the
// activation hook. Nothing is stored if activation fails or rejects.
func (r *Runner) OpenAccount(ctx context.Context, req OpenAccountRequest) (*generic.Account, error) {
	params := make(map[string]string)
	productID := req.ProductID
	if req.DefinitionID != "" {
		def, err := r.store.GetDefinition(ctx, req.DefinitionID)
		if err != nil {
			return nil, err
		}
		if productID != "" && productID != def.ProductID {
			return nil, generic.ConfigError("product_id", "definition %s is for product %s, not %s", def.ID, def.ProductID, productID)
		}
		productID = def.ProductID
		for k, v := range def.Parameters {
			params[k] = v
		}
	}
	for k, v := range req.Parameters {
		params[k] = v
	}

	p, err := generic.LookupProduct(productID)
	if err != nil {
		return nil, err
	}
	if err := checkDeclared(p, params); err != nil {
		return nil, err
	}
	if v, ok := p.(generic.ParameterValidator); ok {
		if err := v.ValidateParameters(params); err != nil {
			return nil, err
		}
	}

	acct := generic.Account{
		ID:           req.AccountID,
		ProductID:    p.ID(),
		DefinitionID: req.DefinitionID,
		OpenedAt:     req.OpenedAt,
		Status:       generic.AccountOpen,
		CreatedAt:    r.now(),
	}
	if acct.ID == "" {
		acct.ID = generic.AccountID(uuid.NewString())
	}
	if acct.OpenedAt.IsZero() {
		acct.OpenedAt = acct.CreatedAt
	}

	defer r.locks.lock(acct.ID)()

	err = r.store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.CreateAccount(ctx, acct); err != nil {
			return err
		}
		versions := make([]generic.ParameterVersion, 0, len(params))
		for name, value := range params {
			versions = append(versions, generic.ParameterVersion{Name: name, Value: value, EffectiveAt: acct.OpenedAt})
		}
		if err := tx.AppendParameters(ctx, acct.ID, versions); err != nil {
			return err
		}

		key := generic.Hook(generic.HookActivation)
		snap, err := resolve(ctx, tx, p, acct, key, acct.OpenedAt)
		if err != nil {
			return err
		}
		inv := newInvocation(p, acct, key, acct.OpenedAt, string(generic.HookActivation))
		d, err := r.call(inv, func() (*generic.Directives, error) {
			return p.Activate(snap.Input(acct.ID, acct.OpenedAt))
		})
		if err != nil {
			return err
		}
		if d.Rejected() {
			return rejected(acct.ID, d)
		}
		if err := r.apply(ctx, tx, inv, d); err != nil {
			return err
		}
		return r.audit(ctx, tx, acct.ID, generic.AuditAccountOpened, map[string]string{
			"product_id":    string(acct.ProductID),
			"definition_id": acct.DefinitionID,
			"opened_at":     acct.OpenedAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("account opened",
		zap.String("account_id", string(acct.ID)),
		zap.String("product", string(acct.ProductID)),
		zap.Time("opened_at", acct.OpenedAt))
	return &acct, nil
}

// CloseAccount marks the account closed and stops its schedules.
func (r *Runner) CloseAccount(ctx context.Context, id generic.AccountID) error {
	defer r.locks.lock(id)()

	return r.store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.SetAccountStatus(ctx, id, generic.AccountClosed); err != nil {
			return err
		}
		schedules, err := tx.Schedules(ctx, id)
		if err != nil {
			return err
		}
		for _, rec := range schedules {
			rec.Active = false
			if err := tx.SaveSchedule(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// POSTING BATCHES
// =============================================================================

// SubmitBatch validates and commits customer movements on an account. Each
// leg gets an opposite leg on the settlement account. The post-posting hook
// runs in the same transaction as the commit.
//
// Idempotency keys derive from ClientBatchID when set, so a client retry of
// the same batch fails with ErrDuplicateIdempotencyKey.
func (r *Runner) SubmitBatch(ctx context.Context, id generic.AccountID, batch generic.PostingBatch) (*generic.PostingBatch, error) {
	defer r.locks.lock(id)()

	acct, p, err := r.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(batch.Postings) == 0 {
		return nil, fmt.Errorf("%w: batch has no postings", generic.ErrUnbalancedBatch)
	}

	now := r.now()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.ValueAt.IsZero() {
		batch.ValueAt = now
	}
	keyBase := batch.ID
	if batch.ClientBatchID != "" {
		keyBase = "client:" + batch.ClientBatchID
	}

	legs := make([]generic.Posting, 0, 2*len(batch.Postings))
	for i, leg := range batch.Postings {
		if leg.AccountID == "" {
			leg.AccountID = id
		}
		if leg.AccountID != id {
			return nil, fmt.Errorf("%w: leg %d is for account %s", generic.ErrUnbalancedBatch, i, leg.AccountID)
		}
		if leg.Address == "" {
			leg.Address = generic.DefaultAddress
		}
		if leg.Asset == "" {
			leg.Asset = generic.DefaultAsset
		}
		if leg.Phase == "" {
			leg.Phase = generic.PhaseCommitted
		}
		if leg.ValueAt.IsZero() {
			leg.ValueAt = batch.ValueAt
		}
		leg.ID = generic.PostingID(uuid.NewString())
		leg.BatchID = batch.ID
		leg.InsertedAt = now
		leg.IdempotencyKey = fmt.Sprintf("%s:%s:%d", id, keyBase, i)

		settle := leg
		settle.ID = generic.PostingID(uuid.NewString())
		settle.AccountID = r.settlement
		settle.Address = generic.DefaultAddress
		settle.Credit = !leg.Credit
		settle.IdempotencyKey = leg.IdempotencyKey + ":settlement"

		legs = append(legs, leg, settle)
	}
	batch.Postings = legs
	if err := generic.CheckBalanced(batch.Postings); err != nil {
		return nil, err
	}

	pre := generic.Hook(generic.HookPrePosting)
	snap, err := resolve(ctx, r.store, p, acct, pre, batch.ValueAt)
	if err != nil {
		return nil, err
	}
	d, err := r.call(newInvocation(p, acct, pre, batch.ValueAt, "pre"), func() (*generic.Directives, error) {
		return p.PrePosting(snap.Input(acct.ID, acct.OpenedAt), batch)
	})
	if err != nil {
		return nil, err
	}
	if d.Rejected() {
		if aerr := r.audit(ctx, r.store, acct.ID, generic.AuditBatchRejected, map[string]string{
			"batch_id": batch.ID,
			"reason":   string(d.Rejection.Reason),
			"message":  d.Rejection.Message,
		}); aerr != nil {
			r.logger.Warn("audit failed", zap.Error(aerr))
		}
		return nil, rejected(acct.ID, d)
	}

	err = r.store.WithTx(ctx, func(tx generic.Store) error {
		if err := generic.NewPostingLedger(tx).AppendBatch(ctx, batch); err != nil {
			return err
		}
		if err := r.audit(ctx, tx, acct.ID, generic.AuditBatchCommitted, map[string]string{
			"batch_id":        batch.ID,
			"client_batch_id": batch.ClientBatchID,
			"value_at":        batch.ValueAt.UTC().Format(time.RFC3339),
			"net":             batch.NetForAccount(acct.ID, batch.Postings[0].Denomination).String(),
		}); err != nil {
			return err
		}

		post := generic.Hook(generic.HookPostPosting)
		snap, err := resolve(ctx, tx, p, acct, post, batch.ValueAt)
		if err != nil {
			return err
		}
		inv := newInvocation(p, acct, post, batch.ValueAt, "post:"+keyBase)
		d, err := r.call(inv, func() (*generic.Directives, error) {
			return p.PostPosting(snap.Input(acct.ID, acct.OpenedAt), batch)
		})
		if err != nil {
			return err
		}
		return r.apply(ctx, tx, inv, d)
	})
	if err != nil {
		return nil, err
	}
	r.metrics.addPostings(p.ID(), len(batch.Postings))
	return &batch, nil
}

// =============================================================================
// SCHEDULED EVENTS
// =============================================================================

// RunEvent runs a scheduled event at the given effective time and moves
// the event's schedule past it.
func (r *Runner) RunEvent(ctx context.Context, id generic.AccountID, event generic.EventType, at time.Time) (*generic.Directives, error) {
	defer r.locks.lock(id)()

	acct, p, err := r.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	known := false
	for _, e := range p.Manifest().Events {
		known = known || e == event
	}
	if !known {
		return nil, generic.ConfigError("event", "product %s has no event %s", p.ID(), event)
	}

	var result *generic.Directives
	err = r.store.WithTx(ctx, func(tx generic.Store) error {
		key := generic.ScheduledHook(event)
		snap, err := resolve(ctx, tx, p, acct, key, at)
		if err != nil {
			return err
		}
		inv := newInvocation(p, acct, key, at, string(event))
		d, err := r.call(inv, func() (*generic.Directives, error) {
			return p.ScheduledEvent(snap.Input(acct.ID, acct.OpenedAt), event)
		})
		if err != nil {
			return err
		}

		schedules, err := tx.Schedules(ctx, acct.ID)
		if err != nil {
			return err
		}
		for _, rec := range schedules {
			if rec.Event != event {
				continue
			}
			rec.LastRunAt = at
			next, ok := rec.Descriptor.Next(at)
			if ok {
				rec.NextRunAt = next
			}
			rec.Active = rec.Active && ok
			if err := tx.SaveSchedule(ctx, rec); err != nil {
				return err
			}
		}

		if err := r.apply(ctx, tx, inv, d); err != nil {
			return err
		}
		result = d
		return r.audit(ctx, tx, acct.ID, generic.AuditEventExecuted, map[string]string{
			"event":        string(event),
			"effective_at": at.UTC().Format(time.RFC3339),
			"instructions": fmt.Sprint(len(d.Instructions)),
		})
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.observeEvent(p.ID(), event, outcome)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunDueSchedules runs every event due at now, one at a time and oldest
// first, so an account that missed several days catches up in order. An
// account whose event fails is skipped for the rest of the call. Returns
// the number of events run.
func (r *Runner) RunDueSchedules(ctx context.Context, now time.Time) (int, error) {
	failed := make(map[generic.AccountID]bool)
	var errs []error
	ran := 0

	for ran < maxCatchUp {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		due, err := r.store.DueSchedules(ctx, now)
		if err != nil {
			return ran, err
		}
		var next *generic.ScheduleRecord
		for i := range due {
			if !failed[due[i].AccountID] {
				next = &due[i]
				break
			}
		}
		if next == nil {
			break
		}

		if _, err := r.RunEvent(ctx, next.AccountID, next.Event, next.NextRunAt); err != nil {
			failed[next.AccountID] = true
			errs = append(errs, fmt.Errorf("%s %s at %s: %w", next.AccountID, next.Event, next.NextRunAt.Format(time.RFC3339), err))
			r.logger.Error("scheduled event failed",
				zap.String("account_id", string(next.AccountID)),
				zap.String("event", string(next.Event)),
				zap.Time("next_run_at", next.NextRunAt),
				zap.Error(err))
			continue
		}
		ran++
	}
	return ran, errors.Join(errs...)
}

// =============================================================================
// PARAMETERS AND FLAGS
// =============================================================================

// ChangeParameters asks the product to accept new parameter values from
// effectiveAt. Accepted values are stored as new versions.
func (r *Runner) ChangeParameters(ctx context.Context, id generic.AccountID, proposed map[string]string, effectiveAt time.Time) (*generic.Directives, error) {
	defer r.locks.lock(id)()

	acct, p, err := r.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(proposed) == 0 {
		return generic.NewDirectives(), nil
	}
	if err := checkDeclared(p, proposed); err != nil {
		return nil, err
	}
	if effectiveAt.IsZero() {
		effectiveAt = r.now()
	}

	key := generic.Hook(generic.HookParameterChange)
	snap, err := resolve(ctx, r.store, p, acct, key, effectiveAt)
	if err != nil {
		return nil, err
	}
	inv := newInvocation(p, acct, key, effectiveAt, string(generic.HookParameterChange))
	d, err := r.call(inv, func() (*generic.Directives, error) {
		return p.ParameterChange(snap.Input(acct.ID, acct.OpenedAt), proposed)
	})
	if err != nil {
		return nil, err
	}
	if d.Rejected() {
		return nil, rejected(acct.ID, d)
	}

	err = r.store.WithTx(ctx, func(tx generic.Store) error {
		versions := make([]generic.ParameterVersion, 0, len(proposed))
		payload := make(map[string]string, len(proposed)+1)
		for name, value := range proposed {
			versions = append(versions, generic.ParameterVersion{Name: name, Value: value, EffectiveAt: effectiveAt})
			payload[name] = value
		}
		if err := tx.AppendParameters(ctx, acct.ID, versions); err != nil {
			return err
		}
		if err := r.apply(ctx, tx, inv, d); err != nil {
			return err
		}
		payload["effective_at"] = effectiveAt.UTC().Format(time.RFC3339)
		return r.audit(ctx, tx, acct.ID, generic.AuditParametersChanged, payload)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetFlag records a flag transition from effectiveAt.
func (r *Runner) SetFlag(ctx context.Context, id generic.AccountID, name string, value bool, effectiveAt time.Time) error {
	defer r.locks.lock(id)()

	_, p, err := r.load(ctx, r.store, id)
	if err != nil {
		return err
	}
	if !declaredFlags(p)[name] {
		return generic.ConfigError(name, "not a flag of product %s", p.ID())
	}
	if effectiveAt.IsZero() {
		effectiveAt = r.now()
	}

	return r.store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.AppendFlagChange(ctx, id, generic.FlagChange{Name: name, Value: value, EffectiveAt: effectiveAt}); err != nil {
			return err
		}
		return r.audit(ctx, tx, id, generic.AuditFlagChanged, map[string]string{
			"flag":         name,
			"value":        fmt.Sprint(value),
			"effective_at": effectiveAt.UTC().Format(time.RFC3339),
		})
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// DerivedValues runs the derived hook at the given time.
func (r *Runner) DerivedValues(ctx context.Context, id generic.AccountID, at time.Time) (map[string]string, error) {
	defer r.locks.lock(id)()

	acct, p, err := r.load(ctx, r.store, id)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = r.now()
	}
	key := generic.Hook(generic.HookDerived)
	snap, err := resolve(ctx, r.store, p, acct, key, at)
	if err != nil {
		return nil, err
	}
	d, err := r.call(newInvocation(p, acct, key, at, string(generic.HookDerived)), func() (*generic.Directives, error) {
		return p.DerivedValues(snap.Input(acct.ID, acct.OpenedAt))
	})
	if err != nil {
		return nil, err
	}
	if d.Derived == nil {
		return map[string]string{}, nil
	}
	return d.Derived, nil
}

// Balances replays the account's postings: up to at, or all of them when
// at is zero.
func (r *Runner) Balances(ctx context.Context, id generic.AccountID, at time.Time) (generic.BalanceSet, error) {
	acct, p, err := r.load(ctx, r.store, id)
	if err != nil {
		return generic.BalanceSet{}, err
	}
	ledger := generic.NewPostingLedger(r.store)
	if at.IsZero() {
		return ledger.LiveBalances(ctx, acct.ID, p.Tside())
	}
	return ledger.BalancesAt(ctx, acct.ID, p.Tside(), at)
}
