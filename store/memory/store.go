// Package memory provides an in-memory Store for tests and demos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/stayforge/entitle"
	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/store"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/topup"
	"github.com/stayforge/entitle/usage"
)

type Store struct {
	mu sync.RWMutex

	// Subscription storage, keyed by tenant id
	subscriptions map[string]*subscription.Subscription

	// Usage counters, keyed by tenant id + resource
	counters map[string]*usage.Counter

	// Top-up credits, keyed by tenant id + resource
	topups map[string]*topup.Credit

	// Payment sessions, keyed by session id
	sessions map[string]*payment.Session

	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subscription.Subscription),
		counters:      make(map[string]*usage.Counter),
		topups:        make(map[string]*topup.Credit),
		sessions:      make(map[string]*payment.Session),
	}
}

func resourceKey(tenantID string, resource plan.Resource) string {
	return tenantID + "/" + string(resource)
}

// Subscription Store implementation

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.TenantID]; exists {
		return entitle.ErrAlreadyExists
	}

	cp := *sub
	s.subscriptions[sub.TenantID] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, tenantID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subscriptions[tenantID]
	if !exists {
		return nil, entitle.ErrSubscriptionNotFound
	}

	cp := *sub
	return &cp, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.TenantID]; !exists {
		return entitle.ErrSubscriptionNotFound
	}

	cp := *sub
	cp.Touch()
	s.subscriptions[sub.TenantID] = &cp
	return nil
}

func (s *Store) ListExpiringSubscriptions(_ context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if !sub.Status.Entitled() {
			continue
		}
		if sub.PeriodEnd.After(cutoff) {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

// Usage counter Store implementation

func (s *Store) GetCounter(_ context.Context, tenantID string, resource plan.Resource) (*usage.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.counters[resourceKey(tenantID, resource)]
	if !exists {
		return nil, entitle.ErrNotFound
	}

	cp := *c
	return &cp, nil
}

func (s *Store) PutCounter(_ context.Context, c *usage.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.counters[resourceKey(c.TenantID, c.Resource)] = &cp
	return nil
}

func (s *Store) IncrementUsage(_ context.Context, counterID id.CounterID, n int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.counters {
		if c.ID.String() != counterID.String() {
			continue
		}
		if c.Used+n > c.Limit {
			return false, nil
		}
		c.Used += n
		c.Touch()
		return true, nil
	}
	return false, entitle.ErrNotFound
}

func (s *Store) ReplaceCounters(_ context.Context, tenantID string, counters []*usage.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range counters {
		cp := *c
		s.counters[resourceKey(tenantID, c.Resource)] = &cp
	}
	return nil
}

func (s *Store) SetCounterLimits(_ context.Context, tenantID string, limits plan.Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range plan.Resources() {
		c, exists := s.counters[resourceKey(tenantID, r)]
		if !exists {
			continue
		}
		c.Limit = limits.For(r)
		if c.Used > c.Limit {
			c.Used = c.Limit
		}
		c.Touch()
	}
	return nil
}

// Top-up Store implementation

func (s *Store) GetTopUp(_ context.Context, tenantID string, resource plan.Resource) (*topup.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.topups[resourceKey(tenantID, resource)]
	if !exists {
		return nil, entitle.ErrNotFound
	}

	cp := *c
	return &cp, nil
}

func (s *Store) AddTopUp(_ context.Context, tenantID string, resource plan.Resource, credits int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceKey(tenantID, resource)
	c, exists := s.topups[key]
	if !exists {
		c = topup.NewCredit(tenantID, resource)
		s.topups[key] = c
	}
	c.Balance += credits
	c.Touch()
	return nil
}

func (s *Store) ConsumeTopUp(_ context.Context, tenantID string, resource plan.Resource, n int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.topups[resourceKey(tenantID, resource)]
	if !exists || c.Balance < n {
		return false, nil
	}
	c.Balance -= n
	c.Touch()
	return true, nil
}

// Payment session Store implementation

func (s *Store) CreateSession(_ context.Context, sess *payment.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID.String()]; exists {
		return entitle.ErrAlreadyExists
	}
	for _, existing := range s.sessions {
		if existing.TenantID == sess.TenantID && existing.Open() {
			return entitle.ErrCheckoutInFlight
		}
	}

	cp := *sess
	s.sessions[sess.ID.String()] = &cp
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID id.SessionID) (*payment.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sessionID.String()]
	if !exists {
		return nil, entitle.ErrSessionNotFound
	}

	cp := *sess
	return &cp, nil
}

func (s *Store) GetOpenSession(_ context.Context, tenantID string) (*payment.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.TenantID == tenantID && sess.Open() {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, entitle.ErrSessionNotFound
}

func (s *Store) FinalizeSession(_ context.Context, sessionID id.SessionID, status payment.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID.String()]
	if !exists {
		return false, entitle.ErrSessionNotFound
	}
	if sess.Status.Terminal() {
		return false, nil
	}

	sess.Status = status
	sess.ResolvedAt = &at
	sess.Touch()
	return true, nil
}

func (s *Store) ListStaleSessions(_ context.Context, cutoff time.Time) ([]*payment.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Session
	for _, sess := range s.sessions {
		if sess.Status != payment.StatusInitiated {
			continue
		}
		if sess.CreatedAt.After(cutoff) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

// Core Store implementation

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return entitle.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
