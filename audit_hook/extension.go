// Package audithook bridges entitle lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plugin"
	"github.com/stayforge/entitle/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnSubscriptionActivated = (*Extension)(nil)
	_ plugin.OnSubscriptionCancelled = (*Extension)(nil)
	_ plugin.OnSubscriptionExpired   = (*Extension)(nil)
	_ plugin.OnTrialStarted          = (*Extension)(nil)
	_ plugin.OnCheckoutInitiated     = (*Extension)(nil)
	_ plugin.OnPaymentConfirmed      = (*Extension)(nil)
	_ plugin.OnPaymentFailed         = (*Extension)(nil)
	_ plugin.OnTopUpCredited         = (*Extension)(nil)
	_ plugin.OnQuotaExceeded         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly; callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges entitle lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (e *Extension) OnSubscriptionActivated(ctx context.Context, sub interface{}) error {
	tenantID, planID := subscriptionDetails(sub)
	return e.record(ctx, ActionSubscriptionActivated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, tenantID, CategorySubscription, nil,
		"tenant_id", tenantID,
		"plan_id", planID,
	)
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (e *Extension) OnSubscriptionCancelled(ctx context.Context, sub interface{}) error {
	tenantID, planID := subscriptionDetails(sub)
	return e.record(ctx, ActionSubscriptionCancelled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, tenantID, CategorySubscription, nil,
		"tenant_id", tenantID,
		"plan_id", planID,
	)
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (e *Extension) OnSubscriptionExpired(ctx context.Context, sub interface{}) error {
	tenantID, planID := subscriptionDetails(sub)
	return e.record(ctx, ActionSubscriptionExpired, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, tenantID, CategorySubscription, nil,
		"tenant_id", tenantID,
		"plan_id", planID,
	)
}

// OnTrialStarted implements plugin.OnTrialStarted.
func (e *Extension) OnTrialStarted(ctx context.Context, sub interface{}) error {
	tenantID, planID := subscriptionDetails(sub)
	return e.record(ctx, ActionTrialStarted, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, tenantID, CategorySubscription, nil,
		"tenant_id", tenantID,
		"plan_id", planID,
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnCheckoutInitiated implements plugin.OnCheckoutInitiated.
func (e *Extension) OnCheckoutInitiated(ctx context.Context, session interface{}) error {
	sessionID, tenantID, kind := sessionDetails(session)
	return e.record(ctx, ActionCheckoutInitiated, SeverityInfo, OutcomeSuccess,
		ResourcePayment, sessionID, CategoryPayment, nil,
		"tenant_id", tenantID,
		"kind", kind,
	)
}

// OnPaymentConfirmed implements plugin.OnPaymentConfirmed.
func (e *Extension) OnPaymentConfirmed(ctx context.Context, session interface{}) error {
	sessionID, tenantID, kind := sessionDetails(session)
	return e.record(ctx, ActionPaymentConfirmed, SeverityInfo, OutcomeSuccess,
		ResourcePayment, sessionID, CategoryPayment, nil,
		"tenant_id", tenantID,
		"kind", kind,
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, session interface{}) error {
	sessionID, tenantID, kind := sessionDetails(session)
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourcePayment, sessionID, CategoryPayment, nil,
		"tenant_id", tenantID,
		"kind", kind,
	)
}

// OnTopUpCredited implements plugin.OnTopUpCredited.
func (e *Extension) OnTopUpCredited(ctx context.Context, tenantID, resource string, credits int64) error {
	return e.record(ctx, ActionTopUpCredited, SeverityInfo, OutcomeSuccess,
		ResourcePayment, tenantID, CategoryPayment, nil,
		"tenant_id", tenantID,
		"resource", resource,
		"credits", credits,
	)
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (e *Extension) OnQuotaExceeded(ctx context.Context, tenantID, resource string, used, limit int64) error {
	return e.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, resource, CategoryAccess, nil,
		"tenant_id", tenantID,
		"resource", resource,
		"used", used,
		"limit", limit,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func subscriptionDetails(v interface{}) (tenantID, planID string) {
	if sub, ok := v.(*subscription.Subscription); ok {
		return sub.TenantID, sub.PlanID
	}
	return "", ""
}

func sessionDetails(v interface{}) (sessionID, tenantID, kind string) {
	if sess, ok := v.(*payment.Session); ok {
		return sess.ID.String(), sess.TenantID, string(sess.Kind)
	}
	return "", "", ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
