/*
snapshot.go - Host-resolved data handed to a single hook invocation

PURPOSE:
  A Snapshot is everything the host fetched for one hook before calling it:
  named balance observations, versioned parameters, flag timelines and the
  last execution time of each scheduled event. It implements the reader
  capabilities, and refuses reads of anything the hook's manifest entry did
  not declare.

KEY CONCEPTS:
  ParameterVersion: one value of a parameter, effective from a time
  FlagChange:       one transition of a flag, effective from a time

  Reads at "the effective time" pick the latest version whose EffectiveAt
  is not after the snapshot time. As-of reads use the same rule with a
  caller-supplied time.

EXAMPLE:
  snap := generic.NewSnapshot(req, generic.TsideAsset, now)
  snap.SetObservation("effective", balances)
  snap.AddParameter("denomination", "GBP", openedAt)
  rate, err := snap.Decimal("variable_interest_rate")

SEE ALSO:
  - capabilities.go: The reader interfaces implemented here
  - manifest.go: The declarations enforced here
*/
package generic

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VERSIONED VALUES
// =============================================================================

// ParameterVersion is one value of a parameter.
type ParameterVersion struct {
	Name        string
	Value       string
	EffectiveAt time.Time
}

// FlagChange switches a flag on or off from EffectiveAt.
type FlagChange struct {
	Name        string
	Value       bool
	EffectiveAt time.Time
}

// =============================================================================
// SNAPSHOT
// =============================================================================

type Snapshot struct {
	at       time.Time
	side     Tside
	req      DataRequirements
	balances map[string]BalanceSet
	params   map[string][]ParameterVersion
	flags    map[string][]FlagChange
	lastRun  map[EventType]time.Time
}

// NewSnapshot creates an empty snapshot enforcing req.
func NewSnapshot(req DataRequirements, side Tside, at time.Time) *Snapshot {
	return &Snapshot{
		at:       at,
		side:     side,
		req:      req,
		balances: make(map[string]BalanceSet),
		params:   make(map[string][]ParameterVersion),
		flags:    make(map[string][]FlagChange),
		lastRun:  make(map[EventType]time.Time),
	}
}

func (s *Snapshot) EffectiveAt() time.Time { return s.at }

// Requirements returns what the snapshot was built for.
func (s *Snapshot) Requirements() DataRequirements { return s.req }

// SetObservation stores the balances resolved for a named observation.
func (s *Snapshot) SetObservation(name string, balances BalanceSet) {
	s.balances[name] = balances
}

// AddParameter appends a version. Versions may be added in any order.
func (s *Snapshot) AddParameter(name, value string, effectiveAt time.Time) {
	versions := append(s.params[name], ParameterVersion{Name: name, Value: value, EffectiveAt: effectiveAt})
	sort.SliceStable(versions, func(i, j int) bool { return versions[i].EffectiveAt.Before(versions[j].EffectiveAt) })
	s.params[name] = versions
}

// SetParameters adds every value as a version effective since the zero time.
func (s *Snapshot) SetParameters(values map[string]string) {
	for name, value := range values {
		s.AddParameter(name, value, time.Time{})
	}
}

// AddFlagChange appends a flag transition.
func (s *Snapshot) AddFlagChange(name string, value bool, effectiveAt time.Time) {
	changes := append(s.flags[name], FlagChange{Name: name, Value: value, EffectiveAt: effectiveAt})
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].EffectiveAt.Before(changes[j].EffectiveAt) })
	s.flags[name] = changes
}

// SetLastExecution records when an event last ran.
func (s *Snapshot) SetLastExecution(event EventType, at time.Time) {
	s.lastRun[event] = at
}

func undeclared(kind, name string) error {
	return &ConfigurationError{
		Parameter: name,
		Problem:   fmt.Sprintf("%s %q not declared in manifest", kind, name),
		Err:       ErrUndeclaredRequirement,
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// =============================================================================
// BALANCE READER
// =============================================================================

func (s *Snapshot) Observation(name string) (BalanceSet, error) {
	declared := false
	for _, b := range s.req.Balances {
		if b.Name == name {
			declared = true
			break
		}
	}
	if !declared {
		return BalanceSet{}, undeclared("balance observation", name)
	}
	if set, ok := s.balances[name]; ok {
		return set, nil
	}
	return NewBalanceSet(s.side), nil
}

// =============================================================================
// PARAMETER READER
// =============================================================================

func (s *Snapshot) versionAt(name string, at time.Time) (ParameterVersion, error) {
	if !contains(s.req.Parameters, name) {
		return ParameterVersion{}, undeclared("parameter", name)
	}
	versions := s.params[name]
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].EffectiveAt.After(at) {
			return versions[i], nil
		}
	}
	return ParameterVersion{}, &ConfigurationError{Parameter: name, Problem: "no value", Err: ErrParameterNotSet}
}

func (s *Snapshot) raw(name string) (string, error) {
	v, err := s.versionAt(name, s.at)
	if err != nil {
		return "", err
	}
	return v.Value, nil
}

func (s *Snapshot) Text(name string) (string, error) { return s.raw(name) }

func (s *Snapshot) Decimal(name string) (decimal.Decimal, error) {
	return s.DecimalAt(name, s.at)
}

func (s *Snapshot) DecimalAt(name string, at time.Time) (decimal.Decimal, error) {
	v, err := s.versionAt(name, at)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v.Value))
	if err != nil {
		return decimal.Zero, ConfigError(name, "not a decimal: %q", v.Value)
	}
	return d, nil
}

func (s *Snapshot) Int(name string) (int, error) {
	v, err := s.raw(name)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, ConfigError(name, "not an integer: %q", v)
	}
	return i, nil
}

func (s *Snapshot) Bool(name string) (bool, error) {
	v, err := s.raw(name)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, ConfigError(name, "not a boolean: %q", v)
	}
	return b, nil
}

func (s *Snapshot) Date(name string) (time.Time, error) {
	v, err := s.raw(name)
	if err != nil {
		return time.Time{}, err
	}
	return ParseDate(name, v)
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, ConfigError(name, "not a date: %q", value)
}

// Tier reads key from a JSON object parameter such as
// {"STANDARD": "0.01", "PREMIUM": "0.02"}. A missing key is a
// configuration error.
func (s *Snapshot) Tier(name, key string) (decimal.Decimal, error) {
	v, err := s.raw(name)
	if err != nil {
		return decimal.Zero, err
	}
	tiers, err := ParseTiers(name, v)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := tiers[key]
	if !ok {
		return decimal.Zero, ConfigError(name, "no value for tier %q", key)
	}
	return rate, nil
}

// ParseTiers decodes a tiered parameter. Values may be JSON strings or
// numbers.
func ParseTiers(name, value string) (map[string]decimal.Decimal, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, ConfigError(name, "not a JSON object: %v", err)
	}
	tiers := make(map[string]decimal.Decimal, len(raw))
	for k, msg := range raw {
		text := strings.Trim(string(msg), `"`)
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, ConfigError(name, "tier %q: not a decimal: %s", k, msg)
		}
		tiers[k] = d
	}
	return tiers, nil
}

func (s *Snapshot) LastChanged(name string) (time.Time, error) {
	v, err := s.versionAt(name, s.at)
	if err != nil {
		return time.Time{}, err
	}
	return v.EffectiveAt, nil
}

// =============================================================================
// FLAG READER
// =============================================================================

func (s *Snapshot) Flag(name string) (bool, error) { return s.FlagAt(name, s.at) }

func (s *Snapshot) FlagAt(name string, at time.Time) (bool, error) {
	if !contains(s.req.Flags, name) {
		return false, undeclared("flag", name)
	}
	changes := s.flags[name]
	for i := len(changes) - 1; i >= 0; i-- {
		if !changes[i].EffectiveAt.After(at) {
			return changes[i].Value, nil
		}
	}
	return false, nil
}

// =============================================================================
// SCHEDULE READER
// =============================================================================

func (s *Snapshot) LastExecution(event EventType) (time.Time, bool) {
	t, ok := s.lastRun[event]
	return t, ok
}

// Compile-time checks
var (
	_ BalanceReader   = (*Snapshot)(nil)
	_ ParameterReader = (*Snapshot)(nil)
	_ FlagReader      = (*Snapshot)(nil)
	_ ScheduleReader  = (*Snapshot)(nil)
)

// Input wraps the snapshot in a HookInput.
func (s *Snapshot) Input(account AccountID, openedAt time.Time) HookInput {
	return HookInput{
		AccountID:   account,
		OpenedAt:    openedAt,
		EffectiveAt: s.at,
		Balances:    s,
		Parameters:  s,
		Flags:       s,
		Schedules:   s,
	}
}
