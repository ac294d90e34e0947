package entitle

import (
	"context"
	"errors"
	"fmt"

	"github.com/stayforge/entitle/entitlement"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/subscription"
)

// ──────────────────────────────────────────────────
// Entitlement checks
// ──────────────────────────────────────────────────

// CanConsume reports whether the tenant could consume n units of the
// resource right now, without consuming anything. A denial is a normal
// decision, not an error.
func (e *Engine) CanConsume(ctx context.Context, tenantID string, resource plan.Resource, n int64) (*entitlement.Decision, error) {
	if err := validateConsume(tenantID, resource, n); err != nil {
		return nil, err
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	sub, err := e.loadSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	d, err := e.decision(ctx, sub, resource)
	if err != nil {
		return nil, err
	}

	d.Allowed = d.Remaining() >= n
	if !d.Allowed {
		d.Reason = "quota exhausted"
	}

	e.plugins.EmitEntitlementChecked(ctx, d)
	return d, nil
}

// Consume atomically checks and consumes n units of the resource. Periodic
// quota is drawn down first; for resources that support top-ups the
// non-expiring credit balance covers what the period cannot. Denial returns
// the decision together with ErrQuotaExceeded and consumes nothing.
func (e *Engine) Consume(ctx context.Context, tenantID string, resource plan.Resource, n int64) (*entitlement.Decision, error) {
	if err := validateConsume(tenantID, resource, n); err != nil {
		return nil, err
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	sub, err := e.loadSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c, err := e.currentCounter(ctx, sub, resource)
	if err != nil {
		return nil, err
	}

	applied, err := e.store.IncrementUsage(ctx, c.ID, n)
	if err != nil {
		return nil, err
	}
	if applied {
		d, err := e.decision(ctx, sub, resource)
		if err != nil {
			return nil, err
		}
		d.Allowed = true
		e.plugins.EmitEntitlementChecked(ctx, d)
		return d, nil
	}

	// Period quota cannot cover n; fall through to the top-up ledger where
	// the resource supports it. The draw is all-or-nothing on one source.
	if resource.SupportsTopUp() {
		applied, err = e.store.ConsumeTopUp(ctx, tenantID, resource, n)
		if err != nil {
			return nil, err
		}
		if applied {
			d, err := e.decision(ctx, sub, resource)
			if err != nil {
				return nil, err
			}
			d.Allowed = true
			d.Reason = "drawn from top-up balance"
			e.plugins.EmitEntitlementChecked(ctx, d)
			return d, nil
		}
	}

	d, err := e.decision(ctx, sub, resource)
	if err != nil {
		return nil, err
	}
	d.Allowed = false
	d.Reason = "quota exhausted"

	e.logger.Debug("consume denied",
		"tenant_id", tenantID,
		"resource", resource,
		"used", d.Used,
		"limit", d.Limit,
	)
	e.plugins.EmitEntitlementChecked(ctx, d)
	e.plugins.EmitQuotaExceeded(ctx, tenantID, string(resource), d.Used, d.Limit)

	return d, fmt.Errorf("%w: %s", ErrQuotaExceeded, resource)
}

// decision assembles the current standing for a resource. Callers hold the
// tenant lock.
func (e *Engine) decision(ctx context.Context, sub *subscription.Subscription, resource plan.Resource) (*entitlement.Decision, error) {
	c, err := e.currentCounter(ctx, sub, resource)
	if err != nil {
		return nil, err
	}

	d := &entitlement.Decision{
		Resource: resource,
		Used:     c.Used,
		Limit:    c.Limit,
	}

	if resource.SupportsTopUp() {
		credit, err := e.store.GetTopUp(ctx, sub.TenantID, resource)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			d.RemainingTopUp = credit.Balance
		}
	}

	return d, nil
}

func validateConsume(tenantID string, resource plan.Resource, n int64) error {
	if tenantID == "" {
		return ValidationError{Field: "tenantID", Message: "must not be empty"}
	}
	if !resource.Valid() {
		return ValidationError{Field: "resource", Message: fmt.Sprintf("unknown resource %q", resource)}
	}
	if n <= 0 {
		return ValidationError{Field: "n", Message: "must be positive"}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Tenant summary
// ──────────────────────────────────────────────────

// Summary is a tenant's full standing: subscription, plan, and per-resource
// usage including top-up balances.
type Summary struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Plan         plan.Plan                  `json:"plan"`
	Usage        []*entitlement.Decision    `json:"usage"`
}

// Summarize returns the tenant's subscription and per-resource standing in
// one read.
func (e *Engine) Summarize(ctx context.Context, tenantID string) (*Summary, error) {
	if tenantID == "" {
		return nil, ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	sub, err := e.loadSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p, ok := e.catalog.Get(sub.PlanID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, sub.PlanID)
	}

	s := &Summary{
		Subscription: sub,
		Plan:         p,
		Usage:        make([]*entitlement.Decision, 0, len(plan.Resources())),
	}
	for _, r := range plan.Resources() {
		d, err := e.decision(ctx, sub, r)
		if err != nil {
			return nil, err
		}
		d.Allowed = d.Remaining() > 0
		s.Usage = append(s.Usage, d)
	}

	return s, nil
}
