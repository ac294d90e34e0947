package store

import (
	"context"
	"time"

	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/usage"
)

// Store is the unified storage interface for all entitle entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
//
// Lookups that find nothing return the root package's not-found sentinels.
// Conditional writes return a bool reporting whether the guarded update
// applied, so the quota bound and session terminality hold even when a
// second process shares the database.
type Store interface {
	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	// ListExpiringSubscriptions returns subscriptions whose period ended at
	// or before the cutoff and whose status still grants entitlements.
	ListExpiringSubscriptions(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error)

	// Usage counter methods
	GetCounter(ctx context.Context, tenantID string, resource plan.Resource) (*usage.Counter, error)
	PutCounter(ctx context.Context, c *usage.Counter) error
	// IncrementUsage applies used = used + n only when used + n <= limit,
	// keyed by counter id and period start. Returns whether it applied.
	IncrementUsage(ctx context.Context, counterID id.CounterID, n int64) (bool, error)
	// ReplaceCounters swaps in fresh counters for a tenant, used on plan
	// activation and period rollover.
	ReplaceCounters(ctx context.Context, tenantID string, counters []*usage.Counter) error
	// SetCounterLimits rewrites the limit of each current-period counter,
	// clamping used to the new limit. Used on mid-period plan changes.
	SetCounterLimits(ctx context.Context, tenantID string, limits plan.Limits) error

	// Top-up credit methods
	GetTopUp(ctx context.Context, tenantID string, resource plan.Resource) (*topup.Credit, error)
	// AddTopUp credits the balance, creating the row when absent.
	AddTopUp(ctx context.Context, tenantID string, resource plan.Resource, credits int64) error
	// ConsumeTopUp applies balance = balance - n only when balance >= n.
	// Returns whether it applied.
	ConsumeTopUp(ctx context.Context, tenantID string, resource plan.Resource, n int64) (bool, error)

	// Payment session methods
	CreateSession(ctx context.Context, s *payment.Session) error
	GetSession(ctx context.Context, sessionID id.SessionID) (*payment.Session, error)
	// GetOpenSession returns the tenant's single non-terminal session, if any.
	GetOpenSession(ctx context.Context, tenantID string) (*payment.Session, error)
	// FinalizeSession moves a session to a terminal status. The transition
	// applies only when the session is still open; returns whether it did.
	FinalizeSession(ctx context.Context, sessionID id.SessionID, status payment.Status, at time.Time) (bool, error)
	// ListStaleSessions returns initiated sessions created at or before the
	// cutoff.
	ListStaleSessions(ctx context.Context, cutoff time.Time) ([]*payment.Session, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
