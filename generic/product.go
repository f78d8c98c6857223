/*
product.go - Product rule sets and their registration

PURPOSE:
  A product is a set of hooks the host invokes at defined points. Product
  packages register themselves on init(); the host and the factory look
  them up by ID. Registration validates the product's manifest so an
  inconsistent rule set never reaches an account.

HOW IT WORKS:
  1. Product packages implement Product
  2. They call generic.MustRegister(New()) from init()
  3. The host imports them for side effects and calls LookupProduct

USAGE:
  // In mortgage/product.go
  func init() {
      generic.MustRegister(New())
  }

  // In host
  product, err := generic.LookupProduct("mortgage")

SEE ALSO:
  - manifest.go: What each hook declares
  - capabilities.go: What each hook receives and returns
*/
package generic

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// PRODUCT
// =============================================================================

// Product is one rule set. Every hook is pure: the same input yields the
// same directives.
type Product interface {
	ID() ProductID
	Tside() Tside
	Manifest() Manifest

	// Activate seeds schedules and opening postings.
	Activate(in HookInput) (*Directives, error)

	// PrePosting validates a proposed batch against live balances.
	PrePosting(in HookInput, batch PostingBatch) (*Directives, error)

	// PostPosting reacts to a committed batch.
	PostPosting(in HookInput, batch PostingBatch) (*Directives, error)

	ScheduledEvent(in HookInput, event EventType) (*Directives, error)

	// ParameterChange validates proposed parameter values.
	ParameterChange(in HookInput, proposed map[string]string) (*Directives, error)

	DerivedValues(in HookInput) (*Directives, error)
}

// =============================================================================
// PRODUCT REGISTRY
// =============================================================================

var (
	productRegistry = make(map[ProductID]Product)
	registryMu      sync.RWMutex
)

// RegisterProduct validates the manifest and adds the product.
func RegisterProduct(p Product) error {
	if p.ID() == "" {
		return &ManifestError{Problem: "empty product id"}
	}
	if err := p.Manifest().Validate(); err != nil {
		var me *ManifestError
		if errors.As(err, &me) {
			me.Product = p.ID()
		}
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := productRegistry[p.ID()]; exists {
		return fmt.Errorf("product %s already registered", p.ID())
	}
	productRegistry[p.ID()] = p
	return nil
}

// MustRegister registers a product or panics. Use from init().
func MustRegister(p Product) {
	if err := RegisterProduct(p); err != nil {
		panic(err)
	}
}

// LookupProduct finds a registered product by ID.
func LookupProduct(id ProductID) (Product, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := productRegistry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, nil
}

// ListProducts returns every registered product sorted by ID.
func ListProducts() []Product {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Product, 0, len(productRegistry))
	for _, p := range productRegistry {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// =============================================================================
// DEFINITION VALIDATION
// =============================================================================

// ParameterValidator is implemented by products that can check a full set
// of definition parameters before any account uses them.
type ParameterValidator interface {
	ValidateParameters(params map[string]string) error
}

// ParameterSnapshot exposes a flat parameter map through ParameterReader,
// declaring every parameter the manifest names. All values are effective
// from the zero time.
func ParameterSnapshot(m Manifest, side Tside, params map[string]string) *Snapshot {
	snap := NewSnapshot(DataRequirements{Parameters: m.ParameterNames()}, side, time.Time{})
	snap.SetParameters(params)
	return snap
}
