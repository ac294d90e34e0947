package entitle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stayforge/entitle/gateway"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/plugin"
	"github.com/stayforge/entitle/store"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/usage"
)

// Engine is the subscription and entitlement engine.
type Engine struct {
	store   store.Store
	gateway gateway.Gateway
	catalog *plan.Catalog
	packs   []topup.Pack
	plugins *plugin.Registry
	logger  *slog.Logger

	// Per-tenant write serialization
	tenants tenantLocks

	// Background sweeper
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	sweepInterval time.Duration
	sessionTTL    time.Duration
	graceWindow   time.Duration

	now func() time.Time
}

// New creates a new Engine instance backed by the given store and payment
// gateway.
func New(s store.Store, gw gateway.Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		gateway:       gw,
		catalog:       plan.Default(),
		packs:         topup.DefaultPacks(),
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		stopChan:      make(chan struct{}),
		sweepInterval: time.Minute,
		sessionTTL:    time.Hour,
		graceWindow:   72 * time.Hour,
		now:           func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog replaces the built-in plan catalog.
func WithCatalog(c *plan.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithPacks replaces the built-in top-up pack table.
func WithPacks(packs []topup.Pack) Option {
	return func(e *Engine) {
		e.packs = packs
	}
}

// WithSweepInterval sets how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// WithSessionTTL sets how long an initiated payment session may stay open
// before the sweeper expires it.
func WithSessionTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.sessionTTL = d
	}
}

// WithGraceWindow sets how long past period end an active subscription keeps
// its entitlements while awaiting renewal.
func WithGraceWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.graceWindow = d
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Catalog returns the engine's plan catalog.
func (e *Engine) Catalog() *plan.Catalog {
	return e.catalog
}

// Packs returns the engine's top-up pack table.
func (e *Engine) Packs() []topup.Pack {
	return e.packs
}

// Start migrates the store, initializes plugins, and begins the background
// sweeper.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.sweepWorker(ctx)

	e.logger.Info("entitle started",
		"catalog_version", e.catalog.Version(),
		"sweep_interval", e.sweepInterval,
		"session_ttl", e.sessionTTL,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Per-tenant serialization
// ──────────────────────────────────────────────────

// tenantLocks serializes subscription transitions and quota increments per
// tenant. Cross-tenant work never contends.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *tenantLocks) lock(tenantID string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	l, ok := t.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[tenantID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ──────────────────────────────────────────────────
// Subscription reads
// ──────────────────────────────────────────────────

// Subscription returns the tenant's subscription, creating the implicit
// free-tier row the first time the tenant is observed and applying lazy
// status finalization (cancelled period ran out, trial ended, grace
// exhausted) before returning.
func (e *Engine) Subscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	if tenantID == "" {
		return nil, ValidationError{Field: "tenantID", Message: "must not be empty"}
	}

	unlock := e.tenants.lock(tenantID)
	defer unlock()

	return e.loadSubscription(ctx, tenantID)
}

// loadSubscription is Subscription without the tenant lock; callers hold it.
func (e *Engine) loadSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		sub = subscription.New(tenantID)
		free := e.catalog.Free()
		sub.PlanID = free.ID

		if err := e.store.CreateSubscription(ctx, sub); err != nil {
			// A concurrent request may have created the row.
			if !errors.Is(err, ErrAlreadyExists) {
				return nil, err
			}
			sub, err = e.store.GetSubscription(ctx, tenantID)
			if err != nil {
				return nil, err
			}
		} else {
			if err := e.resetCounters(ctx, sub, free.Limits, false); err != nil {
				return nil, err
			}
			e.logger.Debug("implicit free subscription created", "tenant_id", tenantID)
		}
	} else if err != nil {
		return nil, err
	}

	return e.finalizeLapsed(ctx, sub)
}

// finalizeLapsed applies the time-driven transitions that do not depend on a
// payment event. It is idempotent and safe to run on every read; the
// background sweeper runs the same logic so lapsed tenants converge even
// when nobody reads them.
func (e *Engine) finalizeLapsed(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	now := e.now()

	switch sub.Status {
	case subscription.StatusTrialing:
		if sub.TrialEnd != nil && !now.Before(*sub.TrialEnd) {
			return sub, e.demoteToFree(ctx, sub, subscription.StatusFree)
		}

	case subscription.StatusCancelled:
		if sub.PastPeriodEnd(now) {
			return sub, e.demoteToFree(ctx, sub, subscription.StatusFree)
		}

	case subscription.StatusActive:
		if !now.Before(sub.PeriodEnd.Add(e.graceWindow)) {
			if err := e.demoteToFree(ctx, sub, subscription.StatusExpired); err != nil {
				return nil, err
			}
			e.plugins.EmitSubscriptionExpired(ctx, sub)
			return sub, nil
		}
	}

	return sub, nil
}

// demoteToFree moves a lapsed subscription to the given end status and drops
// its counters to free-tier limits on a fresh period.
func (e *Engine) demoteToFree(ctx context.Context, sub *subscription.Subscription, to subscription.Status) error {
	now := e.now()
	free := e.catalog.Free()

	sub.Status = to
	sub.PlanID = free.ID
	sub.PeriodStart = now
	sub.PeriodEnd = now.AddDate(0, 1, 0)
	sub.TrialEnd = nil
	sub.PendingPlanID = ""
	sub.PriorStatus = ""

	if err := e.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	e.logger.Info("subscription lapsed to free tier",
		"tenant_id", sub.TenantID,
		"status", to,
	)

	return e.resetCounters(ctx, sub, free.Limits, false)
}

// resetCounters installs counters for the subscription's current period. When
// carryUsed is set, each resource's current used value survives and only the
// limits change; otherwise counters start from zero.
func (e *Engine) resetCounters(ctx context.Context, sub *subscription.Subscription, limits plan.Limits, carryUsed bool) error {
	now := e.now()

	counters := make([]*usage.Counter, 0, len(plan.Resources()))
	for _, r := range plan.Resources() {
		c := usage.NewCounter(sub.TenantID, r, sub.PeriodStart, now, limits.For(r))
		if carryUsed {
			if prev, err := e.store.GetCounter(ctx, sub.TenantID, r); err == nil && !prev.Elapsed(now) {
				c.Used = prev.Used
				if c.Used > c.Limit {
					c.Used = c.Limit
				}
			}
		}
		counters = append(counters, c)
	}

	return e.store.ReplaceCounters(ctx, sub.TenantID, counters)
}

// currentCounter returns the tenant's counter for the resource in the period
// containing now, creating or lazily rolling it over as needed. Callers hold
// the tenant lock.
func (e *Engine) currentCounter(ctx context.Context, sub *subscription.Subscription, resource plan.Resource) (*usage.Counter, error) {
	now := e.now()

	p, ok := e.catalog.Get(sub.PlanID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	limit := p.Limits.For(resource)

	c, err := e.store.GetCounter(ctx, sub.TenantID, resource)
	if errors.Is(err, ErrNotFound) {
		c = usage.NewCounter(sub.TenantID, resource, sub.PeriodStart, now, limit)
		if err := e.store.PutCounter(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	if c.Elapsed(now) {
		c = c.Rollover(now, limit)
		if err := e.store.PutCounter(ctx, c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ──────────────────────────────────────────────────
// Background sweeper
// ──────────────────────────────────────────────────

// sweepWorker periodically finalizes lapsed subscriptions and expires stale
// payment sessions. Lazy evaluation on read stays authoritative; the sweeper
// only makes convergence independent of traffic.
func (e *Engine) sweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

func (e *Engine) sweepOnce(ctx context.Context) {
	now := e.now()

	subs, err := e.store.ListExpiringSubscriptions(ctx, now)
	if err != nil {
		e.logger.Error("sweep: list expiring subscriptions failed", "error", err)
	} else {
		for _, sub := range subs {
			unlock := e.tenants.lock(sub.TenantID)
			if _, err := e.loadSubscription(ctx, sub.TenantID); err != nil {
				e.logger.Error("sweep: finalize subscription failed",
					"tenant_id", sub.TenantID,
					"error", err,
				)
			}
			unlock()
		}
	}

	stale, err := e.store.ListStaleSessions(ctx, now.Add(-e.sessionTTL))
	if err != nil {
		e.logger.Error("sweep: list stale sessions failed", "error", err)
		return
	}
	for _, sess := range stale {
		if err := e.expireSession(ctx, sess); err != nil {
			e.logger.Error("sweep: expire session failed",
				"session_id", sess.ID,
				"error", err,
			)
		}
	}
}

// expireSession abandons an initiated session the tenant walked away from,
// releasing the one-open-session invariant and restoring a pending
// subscription to its prior footing.
func (e *Engine) expireSession(ctx context.Context, sess *payment.Session) error {
	unlock := e.tenants.lock(sess.TenantID)
	defer unlock()

	// Re-read under the tenant lock; a confirmation racing the sweep may have
	// settled the session, or the listing may predate the TTL boundary.
	cur, err := e.store.GetSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !cur.Stale(e.now(), e.sessionTTL) {
		return nil
	}

	applied, err := e.store.FinalizeSession(ctx, sess.ID, payment.StatusExpired, e.now())
	if err != nil || !applied {
		return err
	}

	e.logger.Info("payment session expired",
		"session_id", sess.ID,
		"tenant_id", sess.TenantID,
		"kind", sess.Kind,
	)
	e.plugins.EmitPaymentFailed(ctx, sess)

	if sess.Kind == payment.KindSubscribe {
		return e.restoreAfterFailedCheckout(ctx, sess.TenantID)
	}
	return nil
}
