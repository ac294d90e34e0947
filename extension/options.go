package extension

import (
	"time"

	"github.com/xraph/grove"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/gateway"
	"github.com/stayforge/entitle/plugin"
	"github.com/stayforge/entitle/store"
)

// Option configures the entitle Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGateway sets the payment gateway for the engine.
func WithGateway(gw gateway.Gateway) Option {
	return func(e *Extension) {
		e.gateway = gw
	}
}

// WithGroveDB sets a grove database handle. The extension auto-constructs
// the matching store backend (postgres/sqlite/mongo) from the driver type.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes an entitle.Option through to the underlying engine.
func WithEngineOption(opt entitle.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an entitle plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for billing routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSweepInterval sets how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithSessionTTL sets how long an initiated payment session may stay open.
func WithSessionTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.SessionTTL = d }
}

// WithGraceWindow sets the post-period grace window for active subscriptions.
func WithGraceWindow(d time.Duration) Option {
	return func(e *Extension) { e.config.GraceWindow = d }
}
