package host

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/product-engine/generic"
)

// =============================================================================
// DIRECTIVE APPLICATION
// =============================================================================

// invocation is one hook call whose directives are being applied.
type invocation struct {
	product generic.Product
	account generic.Account
	key     generic.HookKey
	at      time.Time
	// prefix makes posting idempotency keys deterministic: the same hook at
	// the same effective time always produces the same keys.
	prefix string
}

func newInvocation(p generic.Product, acct generic.Account, key generic.HookKey, at time.Time, tag string) invocation {
	return invocation{
		product: p,
		account: acct,
		key:     key,
		at:      at,
		prefix:  fmt.Sprintf("%s:%s:%s", acct.ID, tag, at.UTC().Format(time.RFC3339Nano)),
	}
}

func (inv invocation) fields() []zap.Field {
	return []zap.Field{
		zap.String("account_id", string(inv.account.ID)),
		zap.String("product", string(inv.product.ID())),
		zap.String("hook", inv.key.String()),
		zap.Time("effective_at", inv.at),
	}
}

// call runs a hook, recording metrics and logging the outcome. A nil
// result is treated as empty directives.
func (r *Runner) call(inv invocation, hook func() (*generic.Directives, error)) (*generic.Directives, error) {
	start := time.Now()
	d, err := hook()
	r.metrics.observeHook(inv.product.ID(), inv.key, time.Since(start), d, err)

	switch {
	case err != nil:
		r.logger.Error("hook failed", append(inv.fields(), zap.Error(err))...)
		return nil, err
	case d == nil:
		d = generic.NewDirectives()
	case d.Rejected():
		r.logger.Info("hook rejected",
			append(inv.fields(),
				zap.String("reason", string(d.Rejection.Reason)),
				zap.String("message", d.Rejection.Message))...)
	default:
		r.logger.Debug("hook returned",
			append(inv.fields(),
				zap.Int("instructions", len(d.Instructions)),
				zap.Int("schedules", len(d.Schedules)),
				zap.Int("flags", len(d.Flags)))...)
	}
	return d, nil
}

// apply persists the directives of a successful hook through st.
// Rejections are the caller's concern.
func (r *Runner) apply(ctx context.Context, st generic.Store, inv invocation, d *generic.Directives) error {
	if err := r.applyInstructions(ctx, st, inv, d.Instructions); err != nil {
		return err
	}
	if err := r.applySchedules(ctx, st, inv, d.Schedules); err != nil {
		return err
	}
	for _, f := range d.Flags {
		change := generic.FlagChange{Name: f.Name, Value: f.Value, EffectiveAt: inv.at}
		if err := st.AppendFlagChange(ctx, inv.account.ID, change); err != nil {
			return fmt.Errorf("set flag %s: %w", f.Name, err)
		}
		if err := r.audit(ctx, st, inv.account.ID, generic.AuditFlagChanged, map[string]string{
			"flag":         f.Name,
			"value":        fmt.Sprint(f.Value),
			"effective_at": inv.at.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	for _, n := range d.Notifications {
		payload := map[string]string{"type": n.Type}
		for k, v := range n.Fields {
			payload[k] = v
		}
		if err := r.audit(ctx, st, inv.account.ID, generic.AuditNotification, payload); err != nil {
			return err
		}
		r.logger.Info("notification", append(inv.fields(), zap.String("type", n.Type), zap.Any("fields", n.Fields))...)
	}
	return nil
}

func (r *Runner) applyInstructions(ctx context.Context, st generic.Store, inv invocation, instructions []generic.PostingInstruction) error {
	if len(instructions) == 0 {
		return nil
	}
	batch := generic.PostingBatch{
		ID:       uuid.NewString(),
		ValueAt:  inv.at,
		Metadata: map[string]string{"hook": inv.key.String()},
	}
	inserted := r.now()
	for i, pi := range instructions {
		legs := pi.Postings(inv.at)
		for j := range legs {
			side := "debit"
			if legs[j].Credit {
				side = "credit"
			}
			legs[j].ID = generic.PostingID(uuid.NewString())
			legs[j].BatchID = batch.ID
			legs[j].InsertedAt = inserted
			legs[j].IdempotencyKey = fmt.Sprintf("%s:%d:%s", inv.prefix, i, side)
		}
		batch.Postings = append(batch.Postings, legs...)
	}
	if err := generic.NewPostingLedger(st).AppendBatch(ctx, batch); err != nil {
		return fmt.Errorf("commit %s postings: %w", inv.key, err)
	}
	r.metrics.addPostings(inv.product.ID(), len(batch.Postings))
	r.logger.Debug("postings committed", append(inv.fields(), zap.String("batch_id", batch.ID), zap.Int("legs", len(batch.Postings)))...)
	return nil
}

func (r *Runner) applySchedules(ctx context.Context, st generic.Store, inv invocation, updates []generic.ScheduleUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	existing, err := st.Schedules(ctx, inv.account.ID)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	records := make(map[generic.EventType]generic.ScheduleRecord, len(existing))
	for _, rec := range existing {
		records[rec.Event] = rec
	}

	for _, u := range updates {
		rec, ok := records[u.Event]
		if !ok {
			rec = generic.ScheduleRecord{AccountID: inv.account.ID, Event: u.Event}
		}
		if u.Remove {
			rec.Active = false
		} else {
			rec.Descriptor = u.Descriptor
			rec.NextRunAt, rec.Active = u.Descriptor.Next(inv.at)
		}
		if rec.NextRunAt.IsZero() {
			// a one-off that has already passed
			rec.NextRunAt = inv.at
		}
		if err := st.SaveSchedule(ctx, rec); err != nil {
			return fmt.Errorf("save schedule %s: %w", u.Event, err)
		}
		records[u.Event] = rec
		r.logger.Debug("schedule updated",
			append(inv.fields(),
				zap.String("event", string(u.Event)),
				zap.Bool("active", rec.Active),
				zap.Time("next_run_at", rec.NextRunAt))...)
	}
	return nil
}

func (r *Runner) audit(ctx context.Context, st generic.Store, account generic.AccountID, action generic.AuditAction, payload map[string]string) error {
	entry := generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: r.now(),
		AccountID: account,
		Action:    action,
		Payload:   payload,
	}
	if err := st.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}
