// Package plugin provides an extensible plugin system for entitle.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionActivated is called when a pending or trialing subscription
// becomes active.
type OnSubscriptionActivated interface {
	Plugin
	OnSubscriptionActivated(ctx context.Context, sub interface{}) error
}

// OnSubscriptionCancelled is called when a tenant cancels.
type OnSubscriptionCancelled interface {
	Plugin
	OnSubscriptionCancelled(ctx context.Context, sub interface{}) error
}

// OnSubscriptionExpired is called when a subscription lapses past its grace
// window or a cancelled period runs out.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub interface{}) error
}

// OnTrialStarted is called when a tenant starts a trial.
type OnTrialStarted interface {
	Plugin
	OnTrialStarted(ctx context.Context, sub interface{}) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnCheckoutInitiated is called when a payment session is created.
type OnCheckoutInitiated interface {
	Plugin
	OnCheckoutInitiated(ctx context.Context, session interface{}) error
}

// OnPaymentConfirmed is called after a verified confirmation settles a
// session. Fires once per session; replays do not re-emit.
type OnPaymentConfirmed interface {
	Plugin
	OnPaymentConfirmed(ctx context.Context, session interface{}) error
}

// OnPaymentFailed is called when a session settles as failed or expired.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, session interface{}) error
}

// OnTopUpCredited is called when confirmed top-up credits land on the ledger.
type OnTopUpCredited interface {
	Plugin
	OnTopUpCredited(ctx context.Context, tenantID string, resource string, credits int64) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called when an entitlement is checked.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, decision interface{}) error
}

// OnQuotaExceeded is called when a consume call is denied.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, tenantID, resource string, used, limit int64) error
}
