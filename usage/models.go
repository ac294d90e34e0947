// Package usage defines the per-period bounded counters that meter tenant
// resource consumption.
package usage

import (
	"time"

	"github.com/stayforge/entitle/id"
	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/types"
)

// Counter is one (tenant, resource, period) metering row. Used never exceeds
// Limit; the bound is enforced at increment time by the store's conditional
// update, not checked after the fact.
type Counter struct {
	types.Entity
	ID          id.CounterID  `json:"id"`
	TenantID    string        `json:"tenant_id"`
	Resource    plan.Resource `json:"resource"`
	PeriodStart time.Time     `json:"period_start"`
	Used        int64         `json:"used"`
	Limit       int64         `json:"limit"`
}

// NewCounter creates a zeroed counter for the period containing now,
// anchored at the subscription's period start.
func NewCounter(tenantID string, resource plan.Resource, anchor, now time.Time, limit int64) *Counter {
	return &Counter{
		Entity:      types.NewEntity(),
		ID:          id.NewCounterID(),
		TenantID:    tenantID,
		Resource:    resource,
		PeriodStart: PeriodStart(anchor, now),
		Used:        0,
		Limit:       limit,
	}
}

// PeriodStart returns the start of the billing period containing now, for a
// monthly cycle anchored at the given instant. The anchor's day-of-month and
// time-of-day are preserved; a day-31 anchor normalizes through shorter
// months the same way AddDate-based renewals do.
func PeriodStart(anchor, now time.Time) time.Time {
	if now.Before(anchor) {
		return anchor
	}
	start := anchor
	for {
		next := start.AddDate(0, 1, 0)
		if now.Before(next) {
			return start
		}
		start = next
	}
}

// Elapsed reports whether the counter's period has ended as of now.
func (c *Counter) Elapsed(now time.Time) bool {
	return !now.Before(c.PeriodStart.AddDate(0, 1, 0))
}

// Remaining returns how much periodic quota is left.
func (c *Counter) Remaining() int64 {
	if c.Used >= c.Limit {
		return 0
	}
	return c.Limit - c.Used
}

// Rollover returns a fresh zeroed counter for the period containing now,
// keeping the same anchor cadence. Rolling over is idempotent: rolling an
// already-current counter returns an equivalent row.
func (c *Counter) Rollover(now time.Time, limit int64) *Counter {
	return NewCounter(c.TenantID, c.Resource, c.PeriodStart, now, limit)
}
