// Package topup defines the non-expiring credit balance that extends a
// resource's quota beyond its periodic limit.
package topup

import (
	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/types"
)

// Credit is the single per-(tenant, resource) credit balance row. The
// balance increases only through a confirmed top-up payment and decreases
// only through consumption. It never expires and survives plan changes.
type Credit struct {
	types.Entity
	ID       id.TopUpID    `json:"id"`
	TenantID string        `json:"tenant_id"`
	Resource plan.Resource `json:"resource"`
	Balance  int64         `json:"balance"`
}

// NewCredit creates an empty credit balance for a tenant and resource.
func NewCredit(tenantID string, resource plan.Resource) *Credit {
	return &Credit{
		Entity:   types.NewEntity(),
		ID:       id.NewTopUpID(),
		TenantID: tenantID,
		Resource: resource,
		Balance:  0,
	}
}

// Pack is a purchasable top-up bundle: a fixed number of credits at a fixed
// price. Packs live beside the plan catalog and follow the same
// immutability rule.
type Pack struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Credits int64         `json:"credits"`
	Price   types.Money   `json:"price"`
	For     plan.Resource `json:"resource"`
}

// DefaultPacks returns the built-in AI generation top-up packs.
func DefaultPacks() []Pack {
	return []Pack{
		{ID: "ai-100", Name: "100 AI generations", Credits: 100, Price: types.USD(900), For: plan.ResourceAIGenerations},
		{ID: "ai-500", Name: "500 AI generations", Credits: 500, Price: types.USD(3900), For: plan.ResourceAIGenerations},
	}
}

// Find looks up a pack by id in the given set.
func Find(packs []Pack, packID string) (Pack, bool) {
	for _, p := range packs {
		if p.ID == packID {
			return p, true
		}
	}
	return Pack{}, false
}
