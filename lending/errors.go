/*
errors.go - Error types for the lending engine

PURPOSE:
  All error types in one place. The core fails deterministically with one of
  three sentinels; the CRUD layer adds a few of its own. Every failure is local
  and synchronous, none of them are retryable.

ERROR CATEGORIES:
  1. Terms errors   - ErrInvalidLoanTerms at schedule-build time
  2. Date errors    - ErrInvalidDate for unparsable or zero dates
  3. Lookup errors  - ErrNotFound, raised by stores and propagated
  4. Record errors  - ErrAlreadyPaid, ErrDuplicateClient, ErrInvalidClient

USAGE:
  if errors.Is(err, lending.ErrNotFound) {
      // 404
  }

SEE ALSO:
  - schedule.go: returns InvalidLoanTermsError
  - store.go: stores return NotFoundError
  - api/handlers.go: maps these to HTTP status codes
*/
package lending

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidLoanTerms is returned when principal, installment count or
	// interest rate is out of range.
	ErrInvalidLoanTerms = errors.New("invalid loan terms")

	// ErrInvalidDate is returned for a zero or unparsable date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrNotFound is returned when a referenced client, loan, installment,
	// payment or payment method does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPaid is returned when paying an installment that is already paid.
	ErrAlreadyPaid = errors.New("installment already paid")

	// ErrDuplicateClient is returned when a client with the same DNI exists.
	ErrDuplicateClient = errors.New("client already registered")

	// ErrInvalidClient is returned when client data fails validation.
	ErrInvalidClient = errors.New("invalid client")

	// ErrInvalidPaymentMethod is returned when payment method data fails validation.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInactiveMethod is returned when paying with a disabled payment method.
	ErrInactiveMethod = errors.New("payment method is not active")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidLoanTermsError names the offending field.
type InvalidLoanTermsError struct {
	Field  string
	Reason string
}

func (e *InvalidLoanTermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s %s", e.Field, e.Reason)
}

func (e *InvalidLoanTermsError) Unwrap() error { return ErrInvalidLoanTerms }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "client", "loan", "installment", "payment_method"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidLoanTerms) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidClient) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInactiveMethod)
}

// IsConflict returns true if the request conflicts with stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrDuplicateClient)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
