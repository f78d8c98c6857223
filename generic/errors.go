/*
errors.go - Centralized error types for the host boundary

PURPOSE:
  All error types in one place for consistency and discoverability.
  Product packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - missing/invalid parameters, undeclared reads.
     Fatal for the invocation, surfaced to the operator.
  2. Registry errors - unknown products, invalid manifests
  3. Store errors - persistence failures in the reference host

  Validation failures of a proposed posting are NOT errors: they are
  returned as a Rejection directive (see posting.go).

USAGE:
  if errors.Is(err, generic.ErrConfiguration) {
      // abort the invocation, report to the operator
  }

SEE ALSO:
  - snapshot.go: Raises ConfigurationError on undeclared reads
  - manifest.go: Raises ManifestError at registration
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration marks every fatal configuration problem.
	ErrConfiguration = errors.New("configuration error")

	// ErrUndeclaredRequirement is returned when a hook reads data its
	// manifest entry does not declare.
	ErrUndeclaredRequirement = errors.New("undeclared data requirement")

	// ErrParameterNotSet is returned when a declared parameter has no value.
	ErrParameterNotSet = errors.New("parameter not set")

	// ErrInvalidManifest is returned when a product registers an
	// inconsistent manifest.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrProductNotFound is returned when a referenced product isn't registered.
	ErrProductNotFound = errors.New("product not found")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when opening an account under a taken ID.
	ErrAccountExists = errors.New("account already exists")

	// ErrDefinitionNotFound is returned when a product definition doesn't exist.
	ErrDefinitionNotFound = errors.New("product definition not found")

	// ErrDuplicateIdempotencyKey is returned when a posting with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAccountClosed is returned when posting to a closed account.
	ErrAccountClosed = errors.New("account closed")

	// ErrUnbalancedBatch is returned when a batch's legs don't net to zero.
	ErrUnbalancedBatch = errors.New("unbalanced posting batch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError describes a fatal problem with product configuration.
type ConfigurationError struct {
	Parameter string
	Problem   string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("configuration error: %s", e.Problem)
	}
	return fmt.Sprintf("configuration error: parameter %q: %s", e.Parameter, e.Problem)
}

// Unwrap exposes both the category and any underlying cause.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// ConfigError is a shortcut for product packages.
func ConfigError(parameter, format string, args ...any) error {
	return &ConfigurationError{Parameter: parameter, Problem: fmt.Sprintf(format, args...)}
}

// ManifestError provides details about an invalid manifest.
type ManifestError struct {
	Product ProductID
	Hook    HookKey
	Problem string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s %s: %s", e.Product, e.Hook, e.Problem)
}

func (e *ManifestError) Unwrap() error { return ErrInvalidManifest }

// RejectionError wraps a Rejection so the host can return it as an error.
type RejectionError struct {
	AccountID AccountID
	Rejection Rejection
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected for %s: %s", e.AccountID, e.Rejection.Error())
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationError returns true for fatal configuration problems.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsRejection returns true if the error carries a rejection directive.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return IsRejection(err) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrUnbalancedBatch)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrDefinitionNotFound)
}
