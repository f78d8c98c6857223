package host

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/product-engine/generic"
)

// =============================================================================
// SNAPSHOT RESOLUTION
// =============================================================================

// resolve builds the snapshot a hook declared in its manifest entry. Only
// declared observations, parameters and flags are loaded; anything else the
// hook reads fails with a configuration error.
func resolve(ctx context.Context, st generic.Store, p generic.Product, acct generic.Account, key generic.HookKey, at time.Time) (*generic.Snapshot, error) {
	req, ok := p.Manifest().Requirements(key)
	if !ok {
		return nil, &generic.ConfigurationError{
			Problem: fmt.Sprintf("product %s declares no requirements for %s", p.ID(), key),
			Err:     generic.ErrUndeclaredRequirement,
		}
	}
	snap := generic.NewSnapshot(req, p.Tside(), at)

	schedules, err := st.Schedules(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	lastRun := make(map[generic.EventType]time.Time, len(schedules))
	for _, rec := range schedules {
		if !rec.LastRunAt.IsZero() {
			lastRun[rec.Event] = rec.LastRunAt
			snap.SetLastExecution(rec.Event, rec.LastRunAt)
		}
	}

	if len(req.Balances) > 0 {
		postings, err := st.Postings(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("load postings: %w", err)
		}
		for _, br := range req.Balances {
			var cutoff time.Time
			switch br.Fetch {
			case generic.FetchLive:
				snap.SetObservation(br.Name, generic.BalancesFromPostings(p.Tside(), postings, nil))
				continue
			case generic.FetchEffective:
				cutoff = at
			case generic.FetchLastExecution:
				cutoff = acct.OpenedAt
				if t, ok := lastRun[br.Event]; ok {
					cutoff = t
				}
			default:
				return nil, generic.ConfigError(br.Name, "unknown fetch kind %q", br.Fetch)
			}
			snap.SetObservation(br.Name, generic.BalancesFromPostings(p.Tside(), postings, func(posting generic.Posting) bool {
				return !posting.ValueAt.After(cutoff)
			}))
		}
	}

	if len(req.Parameters) > 0 {
		versions, err := st.Parameters(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("load parameters: %w", err)
		}
		declared := names(req.Parameters)
		for _, v := range versions {
			if declared[v.Name] {
				snap.AddParameter(v.Name, v.Value, v.EffectiveAt)
			}
		}
	}

	if len(req.Flags) > 0 {
		changes, err := st.FlagChanges(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
		declared := names(req.Flags)
		for _, c := range changes {
			if declared[c.Name] {
				snap.AddFlagChange(c.Name, c.Value, c.EffectiveAt)
			}
		}
	}

	return snap, nil
}

func names(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, n := range list {
		m[n] = true
	}
	return m
}
