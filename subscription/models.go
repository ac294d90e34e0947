// Package subscription defines the tenant subscription record and its
// lifecycle state machine.
package subscription

import (
	"time"

	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/types"
)

// Status is the externally visible lifecycle state of a subscription.
type Status string

const (
	StatusFree      Status = "free"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusTrialing  Status = "trialing"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusPending, StatusActive, StatusTrialing, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Settled reports whether no payment is in flight: free, active, trialing,
// cancelled and expired are all steady states; only pending awaits a
// gateway outcome.
func (s Status) Settled() bool {
	return s != StatusPending
}

// Entitled reports whether a subscription in this status grants paid-plan
// quota. Cancelled stays entitled until period end; the caller checks the
// period boundary.
func (s Status) Entitled() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusCancelled:
		return true
	}
	return false
}

// transitions is the legal-edge table of the state machine. Self edges are
// not listed; re-asserting the current status is handled upstream as a
// stale, idempotent event, not a transition.
var transitions = map[Status][]Status{
	StatusFree:      {StatusPending, StatusTrialing},
	StatusPending:   {StatusActive, StatusFree},
	StatusActive:    {StatusCancelled, StatusExpired, StatusPending},
	StatusTrialing:  {StatusActive, StatusPending, StatusFree},
	StatusCancelled: {StatusFree, StatusPending},
	StatusExpired:   {StatusFree, StatusPending},
}

// CanTransition reports whether moving from one status to another follows a
// legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Subscription is a tenant's one subscription row. Tenant-id uniqueness is
// enforced by the store; the row is created implicitly as free the first
// time a tenant is observed.
type Subscription struct {
	types.Entity
	ID          id.SubscriptionID `json:"id"`
	TenantID    string            `json:"tenant_id"`
	PlanID      string            `json:"plan_id"`
	Status      Status            `json:"status"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	ActivatedAt *time.Time        `json:"activated_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	TrialEnd    *time.Time        `json:"trial_end,omitempty"`
	GatewayRef  string            `json:"gateway_ref,omitempty"`
	// PendingPlanID holds the target plan while a checkout is in flight, so
	// a failed payment restores the previous plan untouched.
	PendingPlanID string `json:"pending_plan_id,omitempty"`
	// PriorStatus is the status to restore when a pending checkout fails.
	PriorStatus Status `json:"prior_status,omitempty"`
}

// New creates a fresh free-tier subscription for a tenant.
func New(tenantID string) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		Entity:      types.NewEntity(),
		ID:          id.NewSubscriptionID(),
		TenantID:    tenantID,
		PlanID:      "free",
		Status:      StatusFree,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
	}
}

// InTrial reports whether the subscription is trialing and the trial has not
// ended as of now.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.Status == StatusTrialing && s.TrialEnd != nil && now.Before(*s.TrialEnd)
}

// PastPeriodEnd reports whether now is at or beyond the current period end.
func (s *Subscription) PastPeriodEnd(now time.Time) bool {
	return !now.Before(s.PeriodEnd)
}
