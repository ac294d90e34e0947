package entitle

import (
	"context"
	"errors"
	"fmt"

	"github.com/stayforge/entitle/gateway"
	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
)

// CheckoutIntent is the handoff returned by RequestSubscribe and
// RequestTopUp: the session anchoring the payment and the gateway payload
// the client redirects or form-posts with.
type CheckoutIntent struct {
	SessionID id.SessionID      `json:"session_id"`
	Checkout  *gateway.Checkout `json:"checkout"`
}

// ──────────────────────────────────────────────────
// Checkout initiation
// ──────────────────────────────────────────────────

// RequestSubscribe starts a paid-plan checkout for a tenant. The
// subscription moves to pending and a payment session is created before the
// gateway handoff; the tenant's prior footing is restored if the payment
// fails or the session expires.
func (e *Engine) RequestSubscribe(ctx context.Context, tenantID, planID, returnURL, cancelURL string) (*CheckoutIntent, error) {
	if tenantID == "" {
		return nil, ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	sub, err := e.loadSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p, ok := e.catalog.Get(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, planID)
	}
	if p.IsFree() {
		return nil, fmt.Errorf("%w: the free tier is not purchasable", ErrInvalidInput)
	}

	if !subscription.CanTransition(sub.Status, subscription.StatusPending) {
		if sub.Status == subscription.StatusPending {
			return nil, ErrCheckoutInFlight
		}
		e.logger.Error("illegal subscription transition",
			"tenant_id", tenantID,
			"from", sub.Status,
			"to", subscription.StatusPending,
		)
		return nil, fmt.Errorf("%w: %s -> pending", ErrIllegalTransition, sub.Status)
	}

	if err := e.ensureNoOpenSession(ctx, tenantID); err != nil {
		return nil, err
	}

	sess := payment.NewSubscribeSession(tenantID, p.ID, p.Price)
	sess.ReturnURL = returnURL
	sess.CancelURL = cancelURL
	sess.GatewayName = e.gateway.Name()

	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	co, err := e.buildCheckout(ctx, sess, p.Name)
	if err != nil {
		return nil, err
	}

	sub.PriorStatus = sub.Status
	sub.PendingPlanID = p.ID
	sub.Status = subscription.StatusPending
	sub.GatewayRef = sess.ID.String()
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	e.logger.Info("checkout initiated",
		"tenant_id", tenantID,
		"session_id", sess.ID,
		"plan_id", p.ID,
		"amount", sess.Amount,
	)
	e.plugins.EmitCheckoutInitiated(ctx, sess)

	return &CheckoutIntent{SessionID: sess.ID, Checkout: co}, nil
}

// RequestTopUp starts a top-up credit checkout. The subscription status is
// untouched; only the credit balance changes on confirmation.
func (e *Engine) RequestTopUp(ctx context.Context, tenantID, packID, returnURL, cancelURL string) (*CheckoutIntent, error) {
	if tenantID == "" {
		return nil, ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	if _, err := e.loadSubscription(ctx, tenantID); err != nil {
		return nil, err
	}

	pack, ok := topup.Find(e.packs, packID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPackNotFound, packID)
	}

	if err := e.ensureNoOpenSession(ctx, tenantID); err != nil {
		return nil, err
	}

	sess := payment.NewTopUpSession(tenantID, pack.ID, pack.For, pack.Credits, pack.Price)
	sess.ReturnURL = returnURL
	sess.CancelURL = cancelURL
	sess.GatewayName = e.gateway.Name()

	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	co, err := e.buildCheckout(ctx, sess, pack.Name)
	if err != nil {
		return nil, err
	}

	e.logger.Info("top-up checkout initiated",
		"tenant_id", tenantID,
		"session_id", sess.ID,
		"pack_id", pack.ID,
		"credits", pack.Credits,
	)
	e.plugins.EmitCheckoutInitiated(ctx, sess)

	return &CheckoutIntent{SessionID: sess.ID, Checkout: co}, nil
}

// ensureNoOpenSession rejects a new checkout while the tenant's single
// non-terminal session still awaits a gateway outcome. The store's create
// guard backs this up for processes sharing a database. Callers hold the
// tenant lock.
func (e *Engine) ensureNoOpenSession(ctx context.Context, tenantID string) error {
	_, err := e.store.GetOpenSession(ctx, tenantID)
	switch {
	case err == nil:
		return ErrCheckoutInFlight
	case errors.Is(err, ErrSessionNotFound):
		return nil
	default:
		return err
	}
}

// buildCheckout asks the gateway for the signed handoff. On failure the
// just-created session is settled as failed so it cannot block the tenant's
// next attempt.
func (e *Engine) buildCheckout(ctx context.Context, sess *payment.Session, itemName string) (*gateway.Checkout, error) {
	co, err := e.gateway.BuildCheckout(ctx, gateway.CheckoutRequest{
		SessionID: sess.ID.String(),
		TenantID:  sess.TenantID,
		Amount:    sess.Amount,
		ItemName:  itemName,
		ReturnURL: sess.ReturnURL,
		CancelURL: sess.CancelURL,
	})
	if err != nil {
		if _, ferr := e.store.FinalizeSession(ctx, sess.ID, payment.StatusFailed, e.now()); ferr != nil {
			e.logger.Error("settle session after gateway failure",
				"session_id", sess.ID,
				"error", ferr,
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return co, nil
}

// ──────────────────────────────────────────────────
// Confirmation handling
// ──────────────────────────────────────────────────

// ConfirmPayment verifies an inbound gateway confirmation and settles the
// referenced session. Verification (signature and amount against the stored
// session) happens before any state change. The session id is the
// idempotency key: a confirmation for an already-settled session returns
// ErrStaleConfirmation and applies nothing.
func (e *Engine) ConfirmPayment(ctx context.Context, fields map[string]string) (*payment.Session, error) {
	conf, err := e.gateway.VerifyConfirmation(ctx, fields)
	if err != nil {
		if errors.Is(err, gateway.ErrSignature) {
			e.logger.Warn("confirmation rejected", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, err
	}

	sessionID, err := id.ParseSessionID(conf.SessionID)
	if err != nil {
		e.logger.Warn("confirmation references malformed session id",
			"session_id", conf.SessionID,
		)
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, conf.SessionID)
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := e.tenants.lock(sess.TenantID)
	defer unlock()

	// Re-read under the tenant lock; a concurrent delivery may have settled
	// the session in the meantime.
	sess, err = e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Amount mismatch outranks staleness: a tampered replay is rejected as a
	// verification failure, not acknowledged as a duplicate.
	if !conf.Amount.Equal(sess.Amount) {
		e.logger.Warn("confirmation amount mismatch",
			"session_id", sess.ID,
			"expected", sess.Amount,
			"got", conf.Amount,
		)
		return nil, fmt.Errorf("%w: amount mismatch", ErrSignatureInvalid)
	}

	if sess.Status.Terminal() {
		e.logger.Debug("stale confirmation ignored",
			"session_id", sess.ID,
			"status", sess.Status,
		)
		return sess, ErrStaleConfirmation
	}

	if conf.Outcome != gateway.OutcomeComplete {
		return sess, e.settleFailed(ctx, sess)
	}
	return sess, e.settleConfirmed(ctx, sess)
}

// PaymentFailed settles a session as failed, for gateways that report
// failure through the return flow rather than a signed notification.
func (e *Engine) PaymentFailed(ctx context.Context, sessionID id.SessionID) error {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	unlock := e.tenants.lock(sess.TenantID)
	defer unlock()

	sess, err = e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		e.logger.Debug("stale failure report ignored", "session_id", sess.ID)
		return ErrStaleConfirmation
	}

	return e.settleFailed(ctx, sess)
}

// settleConfirmed applies the effects of a verified successful payment.
// Callers hold the tenant lock and have checked the session is open.
func (e *Engine) settleConfirmed(ctx context.Context, sess *payment.Session) error {
	now := e.now()

	applied, err := e.store.FinalizeSession(ctx, sess.ID, payment.StatusConfirmed, now)
	if err != nil {
		return err
	}
	if !applied {
		return ErrStaleConfirmation
	}
	sess.Status = payment.StatusConfirmed
	sess.ResolvedAt = &now

	switch sess.Kind {
	case payment.KindSubscribe:
		if err := e.activate(ctx, sess); err != nil {
			return err
		}
	case payment.KindTopUp:
		if err := e.store.AddTopUp(ctx, sess.TenantID, sess.Resource, sess.Credits); err != nil {
			return err
		}
		e.logger.Info("top-up credited",
			"tenant_id", sess.TenantID,
			"resource", sess.Resource,
			"credits", sess.Credits,
		)
		e.plugins.EmitTopUpCredited(ctx, sess.TenantID, string(sess.Resource), sess.Credits)
	}

	e.plugins.EmitPaymentConfirmed(ctx, sess)
	return nil
}

// activate moves the subscription onto the purchased plan. A plan change
// from an active subscription keeps the running period and used values and
// only rewrites the counter limits; every other entry opens a fresh period
// with carried-over usage. The top-up balance is never touched.
func (e *Engine) activate(ctx context.Context, sess *payment.Session) error {
	sub, err := e.store.GetSubscription(ctx, sess.TenantID)
	if err != nil {
		return err
	}

	p, ok := e.catalog.Get(sess.PlanID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlanNotFound, sess.PlanID)
	}

	if !subscription.CanTransition(sub.Status, subscription.StatusActive) {
		e.logger.Error("illegal subscription transition",
			"tenant_id", sub.TenantID,
			"from", sub.Status,
			"to", subscription.StatusActive,
		)
		return fmt.Errorf("%w: %s -> active", ErrIllegalTransition, sub.Status)
	}

	now := e.now()
	midPeriod := sub.PriorStatus == subscription.StatusActive && !sub.PastPeriodEnd(now)

	sub.Status = subscription.StatusActive
	sub.PlanID = p.ID
	sub.ActivatedAt = &now
	if !midPeriod {
		sub.PeriodStart = now
		sub.PeriodEnd = now.AddDate(0, 1, 0)
	}
	sub.TrialEnd = nil
	sub.CancelledAt = nil
	sub.PendingPlanID = ""
	sub.PriorStatus = ""
	sub.GatewayRef = sess.ID.String()

	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if midPeriod {
		if err := e.store.SetCounterLimits(ctx, sub.TenantID, p.Limits); err != nil {
			return err
		}
	} else if err := e.resetCounters(ctx, sub, p.Limits, true); err != nil {
		return err
	}

	e.logger.Info("subscription activated",
		"tenant_id", sub.TenantID,
		"plan_id", p.ID,
		"session_id", sess.ID,
	)
	e.plugins.EmitSubscriptionActivated(ctx, sub)
	return nil
}

// settleFailed finalizes a session as failed and restores a pending
// subscription to its prior footing. Callers hold the tenant lock.
func (e *Engine) settleFailed(ctx context.Context, sess *payment.Session) error {
	now := e.now()

	applied, err := e.store.FinalizeSession(ctx, sess.ID, payment.StatusFailed, now)
	if err != nil {
		return err
	}
	if !applied {
		return ErrStaleConfirmation
	}
	sess.Status = payment.StatusFailed
	sess.ResolvedAt = &now

	e.logger.Info("payment failed",
		"tenant_id", sess.TenantID,
		"session_id", sess.ID,
		"kind", sess.Kind,
	)
	e.plugins.EmitPaymentFailed(ctx, sess)

	if sess.Kind == payment.KindSubscribe {
		return e.restoreAfterFailedCheckout(ctx, sess.TenantID)
	}
	return nil
}

// restoreAfterFailedCheckout returns a pending subscription to where it
// stood before the checkout: the prior status when one was recorded, free
// otherwise. Callers hold the tenant lock.
func (e *Engine) restoreAfterFailedCheckout(ctx context.Context, tenantID string) error {
	sub, err := e.store.GetSubscription(ctx, tenantID)
	if err != nil {
		return err
	}
	if sub.Status != subscription.StatusPending {
		return nil
	}

	restored := sub.PriorStatus
	if restored == "" || !restored.Valid() {
		restored = subscription.StatusFree
	}

	sub.Status = restored
	sub.PendingPlanID = ""
	sub.PriorStatus = ""
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	e.logger.Info("pending subscription restored",
		"tenant_id", tenantID,
		"status", restored,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Cancellation and trials
// ──────────────────────────────────────────────────

// RequestCancel cancels an active subscription. Entitlements stay in force
// until the current period ends; the lapse to free happens lazily on read
// or via the sweeper.
func (e *Engine) RequestCancel(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	sub, err := e.loadSubscription(ctx, tenantID)
	if err != nil {
		return err
	}

	if !subscription.CanTransition(sub.Status, subscription.StatusCancelled) {
		e.logger.Error("illegal subscription transition",
			"tenant_id", tenantID,
			"from", sub.Status,
			"to", subscription.StatusCancelled,
		)
		return fmt.Errorf("%w: %s -> cancelled", ErrIllegalTransition, sub.Status)
	}

	now := e.now()
	sub.Status = subscription.StatusCancelled
	sub.CancelledAt = &now
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	e.logger.Info("subscription cancelled",
		"tenant_id", tenantID,
		"entitled_until", sub.PeriodEnd,
	)
	e.plugins.EmitSubscriptionCancelled(ctx, sub)
	return nil
}

// StartTrial moves a free tenant onto a trial of the given plan. Counters
// start fresh at the plan's limits for the trial window.
func (e *Engine) StartTrial(ctx context.Context, tenantID, planID string) error {
	if tenantID == "" {
		return ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	sub, err := e.loadSubscription(ctx, tenantID)
	if err != nil {
		return err
	}

	p, ok := e.catalog.Get(planID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlanNotFound, planID)
	}
	if !p.Trialable() {
		return fmt.Errorf("%w: plan %q has no trial", ErrTrialUnavailable, planID)
	}

	if !subscription.CanTransition(sub.Status, subscription.StatusTrialing) {
		e.logger.Error("illegal subscription transition",
			"tenant_id", tenantID,
			"from", sub.Status,
			"to", subscription.StatusTrialing,
		)
		return fmt.Errorf("%w: %s -> trialing", ErrIllegalTransition, sub.Status)
	}

	now := e.now()
	trialEnd := now.AddDate(0, 0, p.TrialDays)
	sub.Status = subscription.StatusTrialing
	sub.PlanID = p.ID
	sub.TrialEnd = &trialEnd
	sub.PeriodStart = now
	sub.PeriodEnd = trialEnd
	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if err := e.resetCounters(ctx, sub, p.Limits, false); err != nil {
		return err
	}

	e.logger.Info("trial started",
		"tenant_id", tenantID,
		"plan_id", p.ID,
		"trial_end", trialEnd,
	)
	e.plugins.EmitTrialStarted(ctx, sub)
	return nil
}
