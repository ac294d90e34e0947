// Package gateway abstracts the third-party payment gateway handoff. The
// engine builds a checkout through a Gateway, the tenant completes payment
// off-system, and the gateway's confirmation comes back through
// VerifyConfirmation before any state change is applied.
package gateway

import (
	"context"
	"errors"

	"github.com/stayforge/entitle/types"
)

// Verification and availability failures surfaced by implementations.
var (
	// ErrSignature means the confirmation payload failed signature or
	// checksum verification and must never be applied.
	ErrSignature = errors.New("gateway: signature verification failed")
	// ErrUnavailable means the checkout payload could not be constructed.
	// Callers may retry.
	ErrUnavailable = errors.New("gateway: unavailable")
)

// Outcome is the gateway's verdict on a completed checkout.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// CheckoutRequest carries everything a gateway needs to build a checkout.
// SessionID is the payment reference echoed back in the confirmation.
type CheckoutRequest struct {
	SessionID string
	TenantID  string
	Amount    types.Money
	ItemName  string
	ReturnURL string
	CancelURL string
}

// Checkout is the handoff returned to the client. Gateways that accept a
// plain redirect set only URL; gateways that require a server-rendered POST
// set Fields, and the client renders an auto-submitting form.
type Checkout struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields,omitempty"`
}

// RequiresForm reports whether this checkout must be submitted as a POST
// form rather than followed as a redirect.
func (c *Checkout) RequiresForm() bool {
	return c.Method == "POST" && len(c.Fields) > 0
}

// Confirmation is a verified inbound payment notification. Amount is
// checked against the stored session by the caller; a mismatch is treated
// the same as a bad signature.
type Confirmation struct {
	SessionID string
	Outcome   Outcome
	Amount    types.Money
	Raw       map[string]string
}

// Gateway is the payment provider adapter.
type Gateway interface {
	// Name identifies the provider in logs and stored sessions.
	Name() string

	// BuildCheckout computes the signed checkout payload for a session.
	// Returns ErrUnavailable when the payload cannot be constructed.
	BuildCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)

	// VerifyConfirmation validates an inbound confirmation payload.
	// Returns ErrSignature when verification fails; an unverified payload
	// is rejected regardless of which session it claims.
	VerifyConfirmation(ctx context.Context, fields map[string]string) (*Confirmation, error)
}
