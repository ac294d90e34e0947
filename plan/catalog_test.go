package plan_test

import (
	"testing"

	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/types"
)

func TestDefaultCatalog(t *testing.T) {
	c := plan.Default()

	tests := []struct {
		id      string
		price   int64
		ai      int64
		trial   bool
		missing bool
	}{
		{id: "free", price: 0, ai: 8},
		{id: "starter", price: 2900, ai: 100, trial: true},
		{id: "growth", price: 7900, ai: 500, trial: true},
		{id: "enterprise", missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, ok := c.Get(tt.id)
			if tt.missing {
				if ok {
					t.Fatalf("expected %q to be absent", tt.id)
				}
				return
			}
			if !ok {
				t.Fatalf("expected %q to be present", tt.id)
			}
			if p.Price.Amount != tt.price {
				t.Errorf("expected price %d, got %d", tt.price, p.Price.Amount)
			}
			if got := p.Limits.For(plan.ResourceAIGenerations); got != tt.ai {
				t.Errorf("expected AI limit %d, got %d", tt.ai, got)
			}
			if p.Trialable() != tt.trial {
				t.Errorf("expected trialable=%v", tt.trial)
			}
		})
	}
}

func TestCatalogFree(t *testing.T) {
	c := plan.Default()
	free := c.Free()

	if !free.IsFree() {
		t.Error("Free() should return the free tier")
	}
	if !free.Price.IsZero() {
		t.Errorf("free tier should cost nothing, got %s", free.Price)
	}
	if free.Trialable() {
		t.Error("free tier should not be trialable")
	}
}

func TestCatalogListOrder(t *testing.T) {
	got := plan.Default().List()

	want := []string{"free", "starter", "growth"}
	if len(got) != len(want) {
		t.Fatalf("expected %d plans, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, got[i].ID)
		}
	}
}

func TestLimitsFor(t *testing.T) {
	l := plan.Limits{Properties: 1, AIGenerations: 8, SavedListings: 20}

	tests := []struct {
		resource plan.Resource
		want     int64
	}{
		{plan.ResourceProperties, 1},
		{plan.ResourceAIGenerations, 8},
		{plan.ResourceSavedListings, 20},
		{plan.Resource("bogus"), 0},
	}

	for _, tt := range tests {
		if got := l.For(tt.resource); got != tt.want {
			t.Errorf("For(%q): expected %d, got %d", tt.resource, tt.want, got)
		}
	}
}

func TestResourceTopUpSupport(t *testing.T) {
	if !plan.ResourceAIGenerations.SupportsTopUp() {
		t.Error("ai_generations should support top-ups")
	}
	if plan.ResourceProperties.SupportsTopUp() {
		t.Error("properties should not support top-ups")
	}
	if plan.ResourceSavedListings.SupportsTopUp() {
		t.Error("saved_listings should not support top-ups")
	}
}

func TestCustomCatalog(t *testing.T) {
	c := plan.NewCatalog(7,
		plan.Plan{ID: plan.FreeID, Name: "Free", Price: types.Zero("eur")},
		plan.Plan{ID: "pro", Name: "Pro", Price: types.EUR(4900)},
	)

	if c.Version() != 7 {
		t.Errorf("expected version 7, got %d", c.Version())
	}
	if _, ok := c.Get("pro"); !ok {
		t.Error("expected custom plan to be present")
	}
}
