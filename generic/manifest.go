/*
manifest.go - Declarative data requirements per hook

PURPOSE:
  Every hook states up front which balance observations, parameters and
  flags it reads. The host resolves exactly that data in one pass before
  the hook runs; a hook reading anything it did not declare fails with a
  configuration error. Manifests are validated when a product registers.

OBSERVATIONS:
  live            all committed postings, whatever their value date
  effective       postings with value date <= the effective time
  last_execution  postings with value date <= the last run of an event
                  (empty set when the event never ran)

EXAMPLE:
  generic.Manifest{Hooks: map[generic.HookKey]generic.DataRequirements{
      generic.ScheduledHook(EventDue): {
          Balances:   []generic.BalanceRequirement{generic.Effective(), generic.LastExecution("previous_due", EventDue)},
          Parameters: []string{"denomination"},
          Flags:      []string{"REPAYMENT_HOLIDAY"},
      },
  }}
*/
package generic

import (
	"fmt"
	"sort"
)

// =============================================================================
// HOOK KEYS
// =============================================================================

type HookType string

const (
	HookActivation      HookType = "activation"
	HookPrePosting      HookType = "pre_posting"
	HookPostPosting     HookType = "post_posting"
	HookScheduled       HookType = "scheduled"
	HookParameterChange HookType = "parameter_change"
	HookDerived         HookType = "derived"
)

// HookKey identifies one invocation point. Event is set only for
// scheduled hooks.
type HookKey struct {
	Hook  HookType
	Event EventType
}

func (k HookKey) String() string {
	if k.Event != "" {
		return string(k.Hook) + ":" + string(k.Event)
	}
	return string(k.Hook)
}

func Hook(h HookType) HookKey { return HookKey{Hook: h} }

func ScheduledHook(event EventType) HookKey { return HookKey{Hook: HookScheduled, Event: event} }

// =============================================================================
// REQUIREMENTS
// =============================================================================

type FetchKind string

const (
	FetchLive          FetchKind = "live"
	FetchEffective     FetchKind = "effective"
	FetchLastExecution FetchKind = "last_execution"
)

// Observation names used by every product.
const (
	ObservationLive      = "live"
	ObservationEffective = "effective"
)

type BalanceRequirement struct {
	Name  string
	Fetch FetchKind
	Event EventType // for FetchLastExecution
}

func Live() BalanceRequirement { return BalanceRequirement{Name: ObservationLive, Fetch: FetchLive} }
func Effective() BalanceRequirement { return BalanceRequirement{Name: ObservationEffective, Fetch: FetchEffective} }
func LastExecution(name string, event EventType) BalanceRequirement {
	return BalanceRequirement{Name: name, Fetch: FetchLastExecution, Event: event}
}

type DataRequirements struct {
	Balances   []BalanceRequirement
	Parameters []string
	Flags      []string
}

// Manifest lists requirements per hook and the events a product schedules.
type Manifest struct {
	Events []EventType
	Hooks  map[HookKey]DataRequirements
}

// Requirements returns the declared requirements for a hook.
func (m Manifest) Requirements(key HookKey) (DataRequirements, bool) {
	r, ok := m.Hooks[key]
	return r, ok
}

// ParameterNames returns every parameter any hook declares, sorted.
func (m Manifest) ParameterNames() []string {
	seen := make(map[string]bool)
	for _, r := range m.Hooks {
		for _, p := range r.Parameters {
			seen[p] = true
		}
	}
	names := make([]string, 0, len(seen))
	for p := range seen {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Validate checks the manifest is internally consistent:
//   - every mandatory hook has an entry
//   - every scheduled hook's event is declared, and every event has a hook
//   - observation names are unique per hook and fetch kinds are known
//   - last_execution observations name a declared event
//   - parameter and flag names are non-empty and unique per hook
func (m Manifest) Validate() error {
	for _, h := range []HookType{HookActivation, HookPrePosting, HookPostPosting, HookParameterChange, HookDerived} {
		if _, ok := m.Hooks[Hook(h)]; !ok {
			return &ManifestError{Hook: Hook(h), Problem: "missing requirements"}
		}
	}

	events := make(map[EventType]bool, len(m.Events))
	for _, e := range m.Events {
		if e == "" {
			return &ManifestError{Problem: "empty event type"}
		}
		if events[e] {
			return &ManifestError{Problem: fmt.Sprintf("duplicate event %s", e)}
		}
		events[e] = true
		if _, ok := m.Hooks[ScheduledHook(e)]; !ok {
			return &ManifestError{Hook: ScheduledHook(e), Problem: "event declared without requirements"}
		}
	}

	for key, req := range m.Hooks {
		if key.Hook == HookScheduled && !events[key.Event] {
			return &ManifestError{Hook: key, Problem: "scheduled hook for undeclared event"}
		}
		if key.Hook != HookScheduled && key.Event != "" {
			return &ManifestError{Hook: key, Problem: "event set on non-scheduled hook"}
		}

		names := make(map[string]bool)
		for _, b := range req.Balances {
			if b.Name == "" {
				return &ManifestError{Hook: key, Problem: "unnamed balance observation"}
			}
			if names[b.Name] {
				return &ManifestError{Hook: key, Problem: fmt.Sprintf("duplicate observation %q", b.Name)}
			}
			names[b.Name] = true
			switch b.Fetch {
			case FetchLive, FetchEffective:
			case FetchLastExecution:
				if !events[b.Event] {
					return &ManifestError{Hook: key, Problem: fmt.Sprintf("observation %q refers to undeclared event %q", b.Name, b.Event)}
				}
			default:
				return &ManifestError{Hook: key, Problem: fmt.Sprintf("unknown fetch kind %q", b.Fetch)}
			}
		}
		if err := uniqueNames(key, "parameter", req.Parameters); err != nil {
			return err
		}
		if err := uniqueNames(key, "flag", req.Flags); err != nil {
			return err
		}
	}
	return nil
}

func uniqueNames(key HookKey, kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return &ManifestError{Hook: key, Problem: "empty " + kind + " name"}
		}
		if seen[n] {
			return &ManifestError{Hook: key, Problem: fmt.Sprintf("duplicate %s %q", kind, n)}
		}
		seen[n] = true
	}
	return nil
}
