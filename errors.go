package clearing

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("clearing: not found")
	ErrAlreadyExists = errors.New("clearing: already exists")
	ErrInvalidInput  = errors.New("clearing: invalid input")

	// Account errors
	ErrAccountNotFound = errors.New("clearing: account not found")
	ErrAccountExists   = errors.New("clearing: account already exists")
	ErrNoPledge        = errors.New("clearing: account has no pledge")

	// Credex errors
	ErrCredexNotFound     = errors.New("clearing: credex not found")
	ErrInvalidTransition  = errors.New("clearing: invalid status transition")
	ErrCredexNotPending   = errors.New("clearing: credex is not pending")
	ErrCredexNotActive    = errors.New("clearing: credex is not active")
	ErrSelfIssue          = errors.New("clearing: issuer and receiver are the same account")
	ErrUnknownDenom       = errors.New("clearing: unknown denomination")
	ErrNonPositiveAmount  = errors.New("clearing: amount must be positive")
	ErrSecurerUnavailable = errors.New("clearing: no securer available")

	// Day node errors
	ErrDayNotFound  = errors.New("clearing: day node not found")
	ErrNoActiveDay  = errors.New("clearing: no active day node")
	ErrRebaseLocked = errors.New("clearing: rebasing already in progress")

	// Loop errors
	ErrAnchorNotFound = errors.New("clearing: loop anchor not found")

	// Orchestrator errors
	ErrDrainLocked = errors.New("clearing: queue drain already running")

	// Rate errors
	ErrRateUnavailable = errors.New("clearing: exchange rate unavailable")

	// Store errors
	ErrStoreNotReady     = errors.New("clearing: store not ready")
	ErrStoreClosed       = errors.New("clearing: store is closed")
	ErrTransactionFailed = errors.New("clearing: transaction failed")
	ErrMigrationFailed   = errors.New("clearing: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("clearing: validation failed for %s: %s", e.Field, e.Message)
}

// AuthorizationError is returned when a secured issue exceeds the
// collateral ceiling. It carries the ceiling and the securer that was
// evaluated so callers can surface both.
type AuthorizationError struct {
	AccountID string
	SecurerID string
	Denom     string
	Ceiling   float64
	Requested float64
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("clearing: secured amount %.6f %s exceeds authorization ceiling %.6f for account %s",
		e.Requested, e.Denom, e.Ceiling, e.AccountID)
}

// ConsistencyError reports a state the system cannot recover from on
// its own, such as a failed compensation after a partial clearing.
// Callers must treat it as fatal and abort.
type ConsistencyError struct {
	Op     string
	Detail string
	Err    error
}

func (e ConsistencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clearing: consistency violation in %s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("clearing: consistency violation in %s: %s", e.Op, e.Detail)
}

func (e ConsistencyError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "clearing: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("clearing: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCredexNotFound) ||
		errors.Is(err, ErrDayNotFound) ||
		errors.Is(err, ErrAnchorNotFound)
}

// IsAuthorization returns true if the error is an authorization denial.
func IsAuthorization(err error) bool {
	var ae AuthorizationError
	return errors.As(err, &ae)
}

// IsConsistency returns true if the error is a fatal consistency
// violation.
func IsConsistency(err error) bool {
	var ce ConsistencyError
	return errors.As(err, &ce)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrRateUnavailable) ||
		errors.Is(err, ErrRebaseLocked) ||
		errors.Is(err, ErrDrainLocked)
}
