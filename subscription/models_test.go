package subscription_test

import (
	"testing"
	"time"

	"github.com/stayforge/entitle/subscription"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from subscription.Status
		to   subscription.Status
		want bool
	}{
		{"free to pending", subscription.StatusFree, subscription.StatusPending, true},
		{"free to trialing", subscription.StatusFree, subscription.StatusTrialing, true},
		{"pending to active", subscription.StatusPending, subscription.StatusActive, true},
		{"pending to free", subscription.StatusPending, subscription.StatusFree, true},
		{"active to cancelled", subscription.StatusActive, subscription.StatusCancelled, true},
		{"active to expired", subscription.StatusActive, subscription.StatusExpired, true},
		{"active to pending upgrade", subscription.StatusActive, subscription.StatusPending, true},
		{"trialing to active", subscription.StatusTrialing, subscription.StatusActive, true},
		{"trialing to pending conversion", subscription.StatusTrialing, subscription.StatusPending, true},
		{"trialing to free", subscription.StatusTrialing, subscription.StatusFree, true},
		{"cancelled to free", subscription.StatusCancelled, subscription.StatusFree, true},
		{"cancelled resubscribe", subscription.StatusCancelled, subscription.StatusPending, true},
		{"expired resubscribe", subscription.StatusExpired, subscription.StatusPending, true},

		{"free to active skips payment", subscription.StatusFree, subscription.StatusActive, false},
		{"trialing to expired", subscription.StatusTrialing, subscription.StatusExpired, false},
		{"free to cancelled", subscription.StatusFree, subscription.StatusCancelled, false},
		{"pending to cancelled", subscription.StatusPending, subscription.StatusCancelled, false},
		{"expired to active", subscription.StatusExpired, subscription.StatusActive, false},
		{"cancelled to active", subscription.StatusCancelled, subscription.StatusActive, false},
		{"active self edge", subscription.StatusActive, subscription.StatusActive, false},
		{"unknown from", subscription.Status("bogus"), subscription.StatusFree, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := subscription.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []subscription.Status{
		subscription.StatusFree,
		subscription.StatusPending,
		subscription.StatusActive,
		subscription.StatusTrialing,
		subscription.StatusCancelled,
		subscription.StatusExpired,
	} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if subscription.Status("past_due").Valid() {
		t.Error("unknown status should not be valid")
	}

	if subscription.StatusPending.Settled() {
		t.Error("pending should not be settled")
	}
	if !subscription.StatusCancelled.Settled() {
		t.Error("cancelled should be settled")
	}

	if !subscription.StatusCancelled.Entitled() {
		t.Error("cancelled should stay entitled until period end")
	}
	if subscription.StatusFree.Entitled() {
		t.Error("free should not be entitled to paid quota")
	}
	if subscription.StatusPending.Entitled() {
		t.Error("pending should not be entitled to paid quota")
	}
}

func TestNewSubscription(t *testing.T) {
	sub := subscription.New("tenant-1")

	if sub.TenantID != "tenant-1" {
		t.Errorf("expected tenant-1, got %q", sub.TenantID)
	}
	if sub.Status != subscription.StatusFree {
		t.Errorf("expected free status, got %q", sub.Status)
	}
	if sub.PlanID != "free" {
		t.Errorf("expected free plan, got %q", sub.PlanID)
	}
	if sub.ID.IsNil() {
		t.Error("expected a generated id")
	}
	if !sub.PeriodEnd.After(sub.PeriodStart) {
		t.Error("period end should follow period start")
	}
}

func TestPeriodAndTrialChecks(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	sub := subscription.New("tenant-1")
	sub.PeriodStart = now.AddDate(0, -1, 0)
	sub.PeriodEnd = now.Add(-time.Hour)
	if !sub.PastPeriodEnd(now) {
		t.Error("expected past period end")
	}

	sub.PeriodEnd = now.Add(time.Hour)
	if sub.PastPeriodEnd(now) {
		t.Error("expected inside period")
	}

	trialEnd := now.Add(24 * time.Hour)
	sub.Status = subscription.StatusTrialing
	sub.TrialEnd = &trialEnd
	if !sub.InTrial(now) {
		t.Error("expected in trial")
	}
	if sub.InTrial(now.Add(48 * time.Hour)) {
		t.Error("expected trial over")
	}
}
