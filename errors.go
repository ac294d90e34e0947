package entitle

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("entitle: not found")
	ErrAlreadyExists = errors.New("entitle: already exists")
	ErrInvalidInput  = errors.New("entitle: invalid input")

	// Plan errors
	ErrPlanNotFound = errors.New("entitle: plan not found")
	ErrPackNotFound = errors.New("entitle: top-up pack not found")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("entitle: subscription not found")
	ErrIllegalTransition    = errors.New("entitle: illegal subscription transition")
	ErrTrialUnavailable     = errors.New("entitle: trial not available")

	// Entitlement errors
	ErrQuotaExceeded = errors.New("entitle: quota exceeded")

	// Payment errors
	ErrCheckoutInFlight   = errors.New("entitle: a checkout is already in flight")
	ErrSessionNotFound    = errors.New("entitle: payment session not found")
	ErrStaleConfirmation  = errors.New("entitle: stale confirmation for settled session")
	ErrSignatureInvalid   = errors.New("entitle: confirmation signature invalid")
	ErrGatewayUnavailable = errors.New("entitle: payment gateway unavailable")

	// Reconciliation errors
	ErrReconciliationTimeout = errors.New("entitle: reconciliation attempts exhausted")

	// Store errors
	ErrStoreNotReady = errors.New("entitle: store not ready")
	ErrStoreClosed   = errors.New("entitle: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("entitle: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrPackNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsQuotaExceeded returns true if the error is a quota denial. Denials are
// expected outcomes (HTTP 402-equivalent), not system faults.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsStaleConfirmation returns true if the error marks a duplicate or late
// confirmation for a session that already settled. Safe to ignore.
func IsStaleConfirmation(err error) bool {
	return errors.Is(err, ErrStaleConfirmation)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, ErrStoreNotReady)
}
