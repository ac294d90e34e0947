package usage_test

import (
	"testing"
	"time"

	"github.com/stayforge/entitle/plan"
	"github.com/stayforge/entitle/usage"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		now    time.Time
		want   time.Time
	}{
		{"same month", date(2026, 1, 15), date(2026, 1, 20), date(2026, 1, 15)},
		{"one month later", date(2026, 1, 15), date(2026, 2, 16), date(2026, 2, 15)},
		{"boundary instant rolls", date(2026, 1, 15), date(2026, 2, 15), date(2026, 2, 15)},
		{"just before boundary", date(2026, 1, 15), date(2026, 2, 14), date(2026, 1, 15)},
		{"many months later", date(2025, 6, 1), date(2026, 3, 10), date(2026, 3, 1)},
		{"now before anchor", date(2026, 5, 1), date(2026, 4, 1), date(2026, 5, 1)},
		{"day-31 anchor normalizes", date(2026, 1, 31), date(2026, 3, 5), date(2026, 3, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := usage.PeriodStart(tt.anchor, tt.now); !got.Equal(tt.want) {
				t.Errorf("PeriodStart(%v, %v) = %v, want %v", tt.anchor, tt.now, got, tt.want)
			}
		})
	}
}

func TestCounterLifecycle(t *testing.T) {
	anchor := date(2026, 1, 15)
	now := date(2026, 1, 20)

	c := usage.NewCounter("tenant-1", plan.ResourceAIGenerations, anchor, now, 8)
	if c.Used != 0 {
		t.Errorf("expected fresh counter, got used=%d", c.Used)
	}
	if !c.PeriodStart.Equal(anchor) {
		t.Errorf("expected period start %v, got %v", anchor, c.PeriodStart)
	}
	if c.Remaining() != 8 {
		t.Errorf("expected remaining 8, got %d", c.Remaining())
	}

	c.Used = 8
	if c.Remaining() != 0 {
		t.Errorf("expected remaining 0, got %d", c.Remaining())
	}
	c.Used = 9
	if c.Remaining() != 0 {
		t.Errorf("remaining never goes negative, got %d", c.Remaining())
	}

	if c.Elapsed(date(2026, 2, 10)) {
		t.Error("period should still be current")
	}
	if !c.Elapsed(date(2026, 2, 15)) {
		t.Error("period should have elapsed at the boundary")
	}
}

func TestRollover(t *testing.T) {
	anchor := date(2026, 1, 15)
	c := usage.NewCounter("tenant-1", plan.ResourceAIGenerations, anchor, anchor, 8)
	c.Used = 8

	later := date(2026, 3, 20)
	fresh := c.Rollover(later, 100)

	if fresh.Used != 0 {
		t.Errorf("rollover should zero usage, got %d", fresh.Used)
	}
	if fresh.Limit != 100 {
		t.Errorf("rollover should take the new limit, got %d", fresh.Limit)
	}
	if want := date(2026, 3, 15); !fresh.PeriodStart.Equal(want) {
		t.Errorf("rollover should keep the anchor cadence: got %v, want %v", fresh.PeriodStart, want)
	}

	// Rolling over a current counter lands on the same period.
	again := fresh.Rollover(later.Add(24*time.Hour), 100)
	if !again.PeriodStart.Equal(fresh.PeriodStart) {
		t.Errorf("idempotent rollover moved the period: %v != %v", again.PeriodStart, fresh.PeriodStart)
	}
}
