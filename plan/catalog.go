package plan

import (
	"sort"

	"github.com/stayforge/entitle/types"
)

// FreeID is the id of the default tier every tenant starts on.
const FreeID = "free"

// Catalog is a static, versioned table of plan tiers. It is built once at
// startup and never mutated afterwards; lookups are pure reads. A new catalog
// version replaces the whole table, and already-active periods keep the
// limits that were in force when they were granted.
type Catalog struct {
	version int
	plans   map[string]Plan
}

// NewCatalog builds a catalog from the given plans. The free tier must be
// present; callers composing custom catalogs include it explicitly.
func NewCatalog(version int, plans ...Plan) *Catalog {
	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	return &Catalog{version: version, plans: byID}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(1,
		Plan{
			ID:     FreeID,
			Name:   "Free",
			Price:  types.Zero("usd"),
			Period: PeriodMonthly,
			Limits: Limits{
				Properties:    1,
				AIGenerations: 8,
				SavedListings: 20,
			},
		},
		Plan{
			ID:        "starter",
			Name:      "Starter",
			Price:     types.USD(2900),
			Period:    PeriodMonthly,
			TrialDays: 14,
			Limits: Limits{
				Properties:    5,
				AIGenerations: 100,
				SavedListings: 200,
			},
		},
		Plan{
			ID:        "growth",
			Name:      "Growth",
			Price:     types.USD(7900),
			Period:    PeriodMonthly,
			TrialDays: 14,
			Limits: Limits{
				Properties:    25,
				AIGenerations: 500,
				SavedListings: 1000,
			},
		},
	)
}

// Version returns the catalog version.
func (c *Catalog) Version() int {
	return c.version
}

// Get looks up a plan by id.
func (c *Catalog) Get(planID string) (Plan, bool) {
	p, ok := c.plans[planID]
	return p, ok
}

// Free returns the free tier.
func (c *Catalog) Free() Plan {
	return c.plans[FreeID]
}

// List returns every plan sorted by price, free tier first.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price.Amount != out[j].Price.Amount {
			return out[i].Price.Amount < out[j].Price.Amount
		}
		return out[i].ID < out[j].ID
	})
	return out
}
