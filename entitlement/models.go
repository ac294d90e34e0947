// Package entitlement defines the result type of quota checks.
package entitlement

import "github.com/stayforge/entitle/plan"

// Decision is the outcome of a canConsume/consume check. A denial is a
// normal decision with Allowed=false, never an error.
type Decision struct {
	Allowed  bool          `json:"allowed"`
	Resource plan.Resource `json:"resource"`
	Used     int64         `json:"used"`
	Limit    int64         `json:"limit"`
	// RemainingTopUp is the non-expiring credit balance left for resources
	// that support top-ups, zero otherwise.
	RemainingTopUp int64  `json:"remaining_topup"`
	Reason         string `json:"reason,omitempty"`
}

// Remaining returns the total units still consumable this period,
// periodic quota plus top-up balance.
func (d Decision) Remaining() int64 {
	periodic := d.Limit - d.Used
	if periodic < 0 {
		periodic = 0
	}
	return periodic + d.RemainingTopUp
}
