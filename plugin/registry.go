package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onSubscriptionActivated []OnSubscriptionActivated
	onSubscriptionCancelled []OnSubscriptionCancelled
	onSubscriptionExpired   []OnSubscriptionExpired
	onTrialStarted          []OnTrialStarted
	onCheckoutInitiated     []OnCheckoutInitiated
	onPaymentConfirmed      []OnPaymentConfirmed
	onPaymentFailed         []OnPaymentFailed
	onTopUpCredited         []OnTopUpCredited
	onEntitlementChecked    []OnEntitlementChecked
	onQuotaExceeded         []OnQuotaExceeded
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSubscriptionActivated); ok {
		r.onSubscriptionActivated = append(r.onSubscriptionActivated, v)
	}
	if v, ok := p.(OnSubscriptionCancelled); ok {
		r.onSubscriptionCancelled = append(r.onSubscriptionCancelled, v)
	}
	if v, ok := p.(OnSubscriptionExpired); ok {
		r.onSubscriptionExpired = append(r.onSubscriptionExpired, v)
	}
	if v, ok := p.(OnTrialStarted); ok {
		r.onTrialStarted = append(r.onTrialStarted, v)
	}
	if v, ok := p.(OnCheckoutInitiated); ok {
		r.onCheckoutInitiated = append(r.onCheckoutInitiated, v)
	}
	if v, ok := p.(OnPaymentConfirmed); ok {
		r.onPaymentConfirmed = append(r.onPaymentConfirmed, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnTopUpCredited); ok {
		r.onTopUpCredited = append(r.onTopUpCredited, v)
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		r.onQuotaExceeded = append(r.onQuotaExceeded, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnSubscriptionActivated)(nil)).Elem(), "OnSubscriptionActivated")
	checkInterface(reflect.TypeOf((*OnSubscriptionCancelled)(nil)).Elem(), "OnSubscriptionCancelled")
	checkInterface(reflect.TypeOf((*OnSubscriptionExpired)(nil)).Elem(), "OnSubscriptionExpired")
	checkInterface(reflect.TypeOf((*OnTrialStarted)(nil)).Elem(), "OnTrialStarted")
	checkInterface(reflect.TypeOf((*OnCheckoutInitiated)(nil)).Elem(), "OnCheckoutInitiated")
	checkInterface(reflect.TypeOf((*OnPaymentConfirmed)(nil)).Elem(), "OnPaymentConfirmed")
	checkInterface(reflect.TypeOf((*OnPaymentFailed)(nil)).Elem(), "OnPaymentFailed")
	checkInterface(reflect.TypeOf((*OnTopUpCredited)(nil)).Elem(), "OnTopUpCredited")
	checkInterface(reflect.TypeOf((*OnEntitlementChecked)(nil)).Elem(), "OnEntitlementChecked")
	checkInterface(reflect.TypeOf((*OnQuotaExceeded)(nil)).Elem(), "OnQuotaExceeded")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionActivated emits a subscription activated event.
func (r *Registry) EmitSubscriptionActivated(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionActivated(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionActivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionCancelled emits a subscription cancelled event.
func (r *Registry) EmitSubscriptionCancelled(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCancelled(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCancelled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionExpired emits a subscription expired event.
func (r *Registry) EmitSubscriptionExpired(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionExpired(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTrialStarted emits a trial started event.
func (r *Registry) EmitTrialStarted(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onTrialStarted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTrialStarted(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnTrialStarted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCheckoutInitiated emits a checkout initiated event.
func (r *Registry) EmitCheckoutInitiated(ctx context.Context, session interface{}) {
	r.mu.RLock()
	plugins := r.onCheckoutInitiated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCheckoutInitiated(ctx, session)
		}); err != nil {
			r.logger.Warn("plugin OnCheckoutInitiated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentConfirmed emits a payment confirmed event.
func (r *Registry) EmitPaymentConfirmed(ctx context.Context, session interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentConfirmed(ctx, session)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentConfirmed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, session interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentFailed(ctx, session)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTopUpCredited emits a top-up credited event.
func (r *Registry) EmitTopUpCredited(ctx context.Context, tenantID, resource string, credits int64) {
	r.mu.RLock()
	plugins := r.onTopUpCredited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTopUpCredited(ctx, tenantID, resource, credits)
		}); err != nil {
			r.logger.Warn("plugin OnTopUpCredited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntitlementChecked emits an entitlement checked event.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, decision interface{}) {
	r.mu.RLock()
	plugins := r.onEntitlementChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntitlementChecked(ctx, decision)
		}); err != nil {
			r.logger.Warn("plugin OnEntitlementChecked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitQuotaExceeded emits a quota exceeded event.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, tenantID, resource string, used, limit int64) {
	r.mu.RLock()
	plugins := r.onQuotaExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnQuotaExceeded(ctx, tenantID, resource, used, limit)
		}); err != nil {
			r.logger.Warn("plugin OnQuotaExceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
