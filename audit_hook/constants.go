package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionActivated = "subscription.activated"
	ActionSubscriptionCancelled = "subscription.cancelled"
	ActionSubscriptionExpired   = "subscription.expired"
	ActionTrialStarted          = "subscription.trial_started"

	// Payment actions
	ActionCheckoutInitiated = "payment.checkout_initiated"
	ActionPaymentConfirmed  = "payment.confirmed"
	ActionPaymentFailed     = "payment.failed"
	ActionTopUpCredited     = "payment.topup_credited"

	// Entitlement actions
	ActionQuotaExceeded = "quota.exceeded"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
	ResourceEntitlement  = "entitlement"
)

// Category constants for audit events.
const (
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryAccess       = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
