// Package payment defines the payment session, the idempotency anchor for
// every gateway interaction.
package payment

import (
	"time"

	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/types"
)

// Kind distinguishes what a payment session purchases.
type Kind string

const (
	KindSubscribe Kind = "subscribe"
	KindTopUp     Kind = "topup"
)

// Status is the lifecycle state of a payment session. Initiated is the only
// non-terminal state; a session leaves it exactly once.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status is final. A confirmation arriving for
// a session already in a terminal state is a stale replay, not an error.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusExpired
}

// Session is one checkout attempt. At most one non-terminal session exists
// per tenant; the store enforces that on create. The session id doubles as
// the gateway payment reference and the webhook idempotency key.
type Session struct {
	types.Entity
	ID       id.SessionID `json:"id"`
	TenantID string       `json:"tenant_id"`
	Kind     Kind         `json:"kind"`
	Status   Status       `json:"status"`
	Amount   types.Money  `json:"amount"`
	// PlanID is set for subscribe sessions.
	PlanID string `json:"plan_id,omitempty"`
	// PackID, Resource, and Credits are set for top-up sessions.
	PackID      string        `json:"pack_id,omitempty"`
	Resource    plan.Resource `json:"resource,omitempty"`
	Credits     int64         `json:"credits,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	ReturnURL   string        `json:"return_url,omitempty"`
	CancelURL   string        `json:"cancel_url,omitempty"`
	GatewayName string        `json:"gateway_name,omitempty"`
}

// NewSubscribeSession creates an initiated session purchasing a plan.
func NewSubscribeSession(tenantID, planID string, amount types.Money) *Session {
	return &Session{
		Entity:   types.NewEntity(),
		ID:       id.NewSessionID(),
		TenantID: tenantID,
		Kind:     KindSubscribe,
		Status:   StatusInitiated,
		Amount:   amount,
		PlanID:   planID,
	}
}

// NewTopUpSession creates an initiated session purchasing a credit pack.
func NewTopUpSession(tenantID, packID string, resource plan.Resource, credits int64, amount types.Money) *Session {
	return &Session{
		Entity:   types.NewEntity(),
		ID:       id.NewSessionID(),
		TenantID: tenantID,
		Kind:     KindTopUp,
		Status:   StatusInitiated,
		Amount:   amount,
		PackID:   packID,
		Resource: resource,
		Credits:  credits,
	}
}

// Open reports whether the session is still awaiting a gateway outcome.
func (s *Session) Open() bool {
	return !s.Status.Terminal()
}

// Stale reports whether an initiated session is older than ttl.
func (s *Session) Stale(now time.Time, ttl time.Duration) bool {
	return s.Status == StatusInitiated && now.Sub(s.CreatedAt) > ttl
}
