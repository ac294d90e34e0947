// Package observability provides a metrics extension for entitle that records
// lifecycle event counts through a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/stayforge/entitle/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionActivated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCancelled = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired   = (*MetricsExtension)(nil)
	_ plugin.OnTrialStarted          = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutInitiated     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentConfirmed      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed         = (*MetricsExtension)(nil)
	_ plugin.OnTopUpCredited         = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked    = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an entitle plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Subscription metrics
	SubscriptionActivated Counter
	SubscriptionCancelled Counter
	SubscriptionExpired   Counter
	TrialStarted          Counter

	// Payment metrics
	CheckoutInitiated Counter
	PaymentConfirmed  Counter
	PaymentFailed     Counter
	TopUpCredited     Counter
	TopUpCreditsTotal Counter

	// Entitlement metrics
	EntitlementChecks Counter
	EntitlementDenied Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Subscription metrics
		SubscriptionActivated: factory.Counter("entitle.subscription.activated"),
		SubscriptionCancelled: factory.Counter("entitle.subscription.cancelled"),
		SubscriptionExpired:   factory.Counter("entitle.subscription.expired"),
		TrialStarted:          factory.Counter("entitle.subscription.trial_started"),

		// Payment metrics
		CheckoutInitiated: factory.Counter("entitle.payment.checkout_initiated"),
		PaymentConfirmed:  factory.Counter("entitle.payment.confirmed"),
		PaymentFailed:     factory.Counter("entitle.payment.failed"),
		TopUpCredited:     factory.Counter("entitle.topup.credited"),
		TopUpCreditsTotal: factory.Counter("entitle.topup.credits_total"),

		// Entitlement metrics
		EntitlementChecks: factory.Counter("entitle.entitlement.checks"),
		EntitlementDenied: factory.Counter("entitle.entitlement.denied"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (m *MetricsExtension) OnSubscriptionActivated(_ context.Context, _ interface{}) error {
	m.SubscriptionActivated.Inc()
	return nil
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (m *MetricsExtension) OnSubscriptionCancelled(_ context.Context, _ interface{}) error {
	m.SubscriptionCancelled.Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ interface{}) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// OnTrialStarted implements plugin.OnTrialStarted.
func (m *MetricsExtension) OnTrialStarted(_ context.Context, _ interface{}) error {
	m.TrialStarted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnCheckoutInitiated implements plugin.OnCheckoutInitiated.
func (m *MetricsExtension) OnCheckoutInitiated(_ context.Context, _ interface{}) error {
	m.CheckoutInitiated.Inc()
	return nil
}

// OnPaymentConfirmed implements plugin.OnPaymentConfirmed.
func (m *MetricsExtension) OnPaymentConfirmed(_ context.Context, _ interface{}) error {
	m.PaymentConfirmed.Inc()
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ interface{}) error {
	m.PaymentFailed.Inc()
	return nil
}

// OnTopUpCredited implements plugin.OnTopUpCredited.
func (m *MetricsExtension) OnTopUpCredited(_ context.Context, _, _ string, credits int64) error {
	m.TopUpCredited.Inc()
	m.TopUpCreditsTotal.Add(float64(credits))
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, _ interface{}) error {
	m.EntitlementChecks.Inc()
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _, _ string, _, _ int64) error {
	m.EntitlementDenied.Inc()
	return nil
}
