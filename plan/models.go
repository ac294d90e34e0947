package plan

import (
	"github.com/stayforge/entitle/types"
)

// Resource identifies one of the independently metered resource types.
type Resource string

const (
	// ResourceProperties is the number of property listings a tenant may hold.
	ResourceProperties Resource = "properties"
	// ResourceAIGenerations is the monthly AI generation allowance. This is
	// the only resource that supports top-up credits.
	ResourceAIGenerations Resource = "ai_generations"
	// ResourceSavedListings is the number of saved listings a tenant may hold.
	ResourceSavedListings Resource = "saved_listings"
)

// Resources lists every metered resource type in a stable order.
func Resources() []Resource {
	return []Resource{ResourceProperties, ResourceAIGenerations, ResourceSavedListings}
}

// Valid reports whether r is a known resource type.
func (r Resource) Valid() bool {
	switch r {
	case ResourceProperties, ResourceAIGenerations, ResourceSavedListings:
		return true
	}
	return false
}

// SupportsTopUp reports whether top-up credits apply to this resource.
func (r Resource) SupportsTopUp() bool {
	return r == ResourceAIGenerations
}

// Period is the billing cycle length of a plan.
type Period string

const (
	PeriodMonthly Period = "monthly"
)

// Limits holds the per-resource quota limits of a plan for one billing period.
type Limits struct {
	Properties    int64 `json:"properties"`
	AIGenerations int64 `json:"ai_generations"`
	SavedListings int64 `json:"saved_listings"`
}

// For returns the limit for the given resource. Unknown resources get 0.
func (l Limits) For(r Resource) int64 {
	switch r {
	case ResourceProperties:
		return l.Properties
	case ResourceAIGenerations:
		return l.AIGenerations
	case ResourceSavedListings:
		return l.SavedListings
	}
	return 0
}

// Plan is one immutable tier of the catalog.
//
// Plan ids are human-curated slugs ("free", "growth"), not TypeIDs: they are
// the only cross-system reference and must stay stable across catalog
// versions. Pricing and limit changes apply to new subscriptions and
// renewals only, never to an already-active period.
type Plan struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Price     types.Money `json:"price"`
	Period    Period      `json:"period"`
	Limits    Limits      `json:"limits"`
	TrialDays int         `json:"trial_days"`
}

// IsFree reports whether this is the zero-price default tier.
func (p Plan) IsFree() bool {
	return p.ID == FreeID
}

// Trialable reports whether the plan offers a trial.
func (p Plan) Trialable() bool {
	return p.TrialDays > 0 && !p.IsFree()
}
