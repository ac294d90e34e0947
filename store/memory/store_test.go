package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stayforge/entitle"
	"github.com/stayforge/entitle/payment"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/store/memory"
	"github.com/stayforge/entitle/subscription"
	"github.com/stayforge/entitle/types"
	"github.com/stayforge/entitle/usage"
)

func TestSubscriptionCRUD(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.GetSubscription(ctx, "tenant-1"); !errors.Is(err, entitle.ErrSubscriptionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	sub := subscription.New("tenant-1")
	if err := s.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.CreateSubscription(ctx, subscription.New("tenant-1")); !errors.Is(err, entitle.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	got, err := s.GetSubscription(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != subscription.StatusFree {
		t.Errorf("expected free, got %q", got.Status)
	}

	got.Status = subscription.StatusPending
	if err := s.UpdateSubscription(ctx, got); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// The store hands out copies; mutating a read must not leak.
	got.Status = subscription.StatusExpired
	again, _ := s.GetSubscription(ctx, "tenant-1")
	if again.Status != subscription.StatusPending {
		t.Errorf("store leaked a shared pointer: %q", again.Status)
	}
}

func TestIncrementUsageBound(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	c := usage.NewCounter("tenant-1", plan.ResourceAIGenerations, now, now, 8)
	if err := s.PutCounter(ctx, c); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	for i := 0; i < 8; i++ {
		ok, err := s.IncrementUsage(ctx, c.ID, 1)
		if err != nil || !ok {
			t.Fatalf("increment %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, err := s.IncrementUsage(ctx, c.ID, 1)
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if ok {
		t.Error("increment beyond limit should not apply")
	}

	got, _ := s.GetCounter(ctx, "tenant-1", plan.ResourceAIGenerations)
	if got.Used != 8 {
		t.Errorf("expected used=8, got %d", got.Used)
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	c := usage.NewCounter("tenant-1", plan.ResourceAIGenerations, now, now, 50)
	if err := s.PutCounter(ctx, c); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementUsage(ctx, c.ID, 1)
		}()
	}
	wg.Wait()

	got, _ := s.GetCounter(ctx, "tenant-1", plan.ResourceAIGenerations)
	if got.Used != 50 {
		t.Errorf("expected used to stop at the limit, got %d", got.Used)
	}
}

func TestSetCounterLimitsClampsUsed(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	c := usage.NewCounter("tenant-1", plan.ResourceAIGenerations, now, now, 500)
	c.Used = 200
	if err := s.PutCounter(ctx, c); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	limits := plan.Limits{Properties: 1, AIGenerations: 100, SavedListings: 20}
	if err := s.SetCounterLimits(ctx, "tenant-1", limits); err != nil {
		t.Fatalf("set limits failed: %v", err)
	}

	got, err := s.GetCounter(ctx, "tenant-1", plan.ResourceAIGenerations)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Limit != 100 {
		t.Errorf("expected limit=100, got %d", got.Limit)
	}
	// Used never overhangs a lowered limit.
	if got.Used != 100 {
		t.Errorf("expected used clamped to 100, got %d", got.Used)
	}
}

func TestTopUpBalance(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.AddTopUp(ctx, "tenant-1", plan.ResourceAIGenerations, 100); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.AddTopUp(ctx, "tenant-1", plan.ResourceAIGenerations, 50); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	ok, err := s.ConsumeTopUp(ctx, "tenant-1", plan.ResourceAIGenerations, 120)
	if err != nil || !ok {
		t.Fatalf("consume: ok=%v err=%v", ok, err)
	}

	ok, _ = s.ConsumeTopUp(ctx, "tenant-1", plan.ResourceAIGenerations, 31)
	if ok {
		t.Error("consuming past the balance should not apply")
	}

	got, _ := s.GetTopUp(ctx, "tenant-1", plan.ResourceAIGenerations)
	if got.Balance != 30 {
		t.Errorf("expected balance 30, got %d", got.Balance)
	}

	ok, _ = s.ConsumeTopUp(ctx, "tenant-2", plan.ResourceAIGenerations, 1)
	if ok {
		t.Error("consuming an absent balance should not apply")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	sess := payment.NewSubscribeSession("tenant-1", "growth", types.USD(7900))
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// One open session per tenant.
	second := payment.NewTopUpSession("tenant-1", "ai-100", plan.ResourceAIGenerations, 100, types.USD(900))
	if err := s.CreateSession(ctx, second); !errors.Is(err, entitle.ErrCheckoutInFlight) {
		t.Fatalf("expected checkout in flight, got %v", err)
	}

	open, err := s.GetOpenSession(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get open failed: %v", err)
	}
	if open.ID.String() != sess.ID.String() {
		t.Errorf("unexpected open session %q", open.ID)
	}

	now := time.Now().UTC()
	applied, err := s.FinalizeSession(ctx, sess.ID, payment.StatusConfirmed, now)
	if err != nil || !applied {
		t.Fatalf("finalize: applied=%v err=%v", applied, err)
	}

	// Finalizing twice is a no-op.
	applied, err = s.FinalizeSession(ctx, sess.ID, payment.StatusFailed, now)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if applied {
		t.Error("second finalize should not apply")
	}

	got, _ := s.GetSession(ctx, sess.ID)
	if got.Status != payment.StatusConfirmed {
		t.Errorf("replay overwrote terminal status: %q", got.Status)
	}

	// The terminal session no longer blocks a new checkout.
	if err := s.CreateSession(ctx, second); err != nil {
		t.Fatalf("create after finalize failed: %v", err)
	}
}

func TestListStaleSessions(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	old := payment.NewSubscribeSession("tenant-1", "growth", types.USD(7900))
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := s.CreateSession(ctx, old); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	fresh := payment.NewSubscribeSession("tenant-2", "starter", types.USD(2900))
	if err := s.CreateSession(ctx, fresh); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stale, err := s.ListStaleSessions(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID.String() != old.ID.String() {
		t.Errorf("expected only the old session, got %d", len(stale))
	}
}

func TestPingAfterClose(t *testing.T) {
	s := memory.New()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, entitle.ErrStoreClosed) {
		t.Errorf("expected store closed, got %v", err)
	}
}
