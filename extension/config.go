package extension

import "time"

// Config holds the entitle extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.entitle" or "entitle" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for billing routes (default: "/billing").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// SweepInterval is how often the background sweeper finalizes lapsed
	// subscriptions and expires stale payment sessions (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SessionTTL is how long an initiated payment session may stay open
	// before the sweeper expires it (default: 1h).
	SessionTTL time.Duration `json:"session_ttl" mapstructure:"session_ttl" yaml:"session_ttl"`

	// GraceWindow is how long past period end an active subscription keeps
	// its entitlements while awaiting renewal (default: 72h).
	GraceWindow time.Duration `json:"grace_window" mapstructure:"grace_window" yaml:"grace_window"`

	// GatewayEndpoint is the payment gateway's hosted checkout URL.
	// Used to construct the default form-post gateway when no gateway was
	// provided programmatically.
	GatewayEndpoint string `json:"gateway_endpoint" mapstructure:"gateway_endpoint" yaml:"gateway_endpoint"`

	// GatewayMerchantID identifies the merchant account at the gateway.
	GatewayMerchantID string `json:"gateway_merchant_id" mapstructure:"gateway_merchant_id" yaml:"gateway_merchant_id"`

	// GatewaySecret is the shared HMAC secret for signing checkout forms and
	// verifying confirmations.
	GatewaySecret string `json:"gateway_secret" mapstructure:"gateway_secret" yaml:"gateway_secret"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/billing",
		SweepInterval: time.Minute,
		SessionTTL:    time.Hour,
		GraceWindow:   72 * time.Hour,
	}
}
