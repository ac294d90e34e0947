package entitle

import (
	"context"

	"github.com/stayforge/entitle/reconcile"
	"github.com/stayforge/entitle/subscription"
)

// AwaitActivation polls the tenant's subscription status until the pending
// checkout resolves or the polling budget runs out. It never drives a
// transition itself; the confirmation path and the sweeper do that.
func (e *Engine) AwaitActivation(ctx context.Context, tenantID string, opts reconcile.Options) (reconcile.Outcome, error) {
	if tenantID == "" {
		return reconcile.OutcomeTimedOut, ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	if opts.Logger == nil {
		opts.Logger = e.logger
	}

	out, err := reconcile.Run(ctx, func(ctx context.Context) (subscription.Status, error) {
		sub, err := e.Subscription(ctx, tenantID)
		if err != nil {
			return "", err
		}
		return sub.Status, nil
	}, opts)

	if out == reconcile.OutcomeTimedOut && err == nil {
		e.logger.Warn("activation reconciliation timed out", "tenant_id", tenantID)
		return out, ErrReconciliationTimeout
	}
	return out, err
}
