package audithook

import "log/slog"

// Option configures the audit Extension.
type Option func(*Extension)

// WithLogger sets the logger used for internal diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEnabledActions restricts auditing to the listed actions.
// By default all actions are audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithDisabledActions audits everything except the listed actions.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(allActions))
		for _, a := range allActions {
			e.enabled[a] = true
		}
		for _, a := range actions {
			delete(e.enabled, a)
		}
	}
}

var allActions = []string{
	ActionSubscriptionActivated,
	ActionSubscriptionCancelled,
	ActionSubscriptionExpired,
	ActionTrialStarted,
	ActionCheckoutInitiated,
	ActionPaymentConfirmed,
	ActionPaymentFailed,
	ActionTopUpCredited,
	ActionQuotaExceeded,
}
