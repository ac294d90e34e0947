// Package extension provides the Forge extension adapter for entitle.
//
// It implements the forge.Extension interface to integrate entitle
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.entitle" or "entitle" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	entitle "github.com/stayforge/entitle"
	"github.com/stayforge/entitle/gateway"
	"github.com/stayforge/entitle/store"
	"github.com/stayforge/entitle/store/memory"
	"github.com/stayforge/entitle/store/mongo"
	"github.com/stayforge/entitle/store/postgres"
	"github.com/stayforge/entitle/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "entitle"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription and entitlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts entitle as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *entitle.Engine
	store      store.Store
	gateway    gateway.Gateway
	groveDB    *grove.DB
	engineOpts []entitle.Option
}

// New creates a new entitle Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying entitle instance.
// This is nil until Register is called.
func (e *Extension) Engine() *entitle.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Construct the store from a grove database if one was provided;
	// fall back to the in-memory store otherwise.
	if e.store == nil {
		if e.groveDB != nil {
			s, err := storeForGroveDB(e.groveDB)
			if err != nil {
				return err
			}
			e.store = s
		} else {
			e.store = memory.New()
		}
	}

	// Use the form-post gateway built from config when no gateway was
	// provided programmatically.
	if e.gateway == nil {
		if e.config.GatewaySecret == "" {
			return errors.New("entitle: no payment gateway provided and gateway_secret is not configured")
		}
		e.gateway = gateway.NewFormPost(
			e.config.GatewayEndpoint,
			e.config.GatewayMerchantID,
			e.config.GatewaySecret,
		)
	}

	eng := entitle.New(e.store, e.gateway, e.buildEngineOpts()...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*entitle.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("entitle: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("entitle: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs entitle.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []entitle.Option {
	opts := make([]entitle.Option, 0, len(e.engineOpts)+3)

	if e.config.SweepInterval > 0 {
		opts = append(opts, entitle.WithSweepInterval(e.config.SweepInterval))
	}
	if e.config.SessionTTL > 0 {
		opts = append(opts, entitle.WithSessionTTL(e.config.SessionTTL))
	}
	if e.config.GraceWindow > 0 {
		opts = append(opts, entitle.WithGraceWindow(e.config.GraceWindow))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// storeForGroveDB picks the store backend matching the database's driver.
func storeForGroveDB(db *grove.DB) (store.Store, error) {
	if pgdriver.Unwrap(db) != nil {
		return postgres.New(db), nil
	}
	if sqlitedriver.Unwrap(db) != nil {
		return sqlite.New(db), nil
	}
	if mongodriver.Unwrap(db) != nil {
		return mongo.New(db), nil
	}
	return nil, errors.New("entitle: unsupported grove driver")
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("entitle: configuration is required but not found in config files; " +
				"ensure 'extensions.entitle' or 'entitle' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("entitle: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("session_ttl", e.config.SessionTTL),
		forge.F("grace_window", e.config.GraceWindow),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.entitle" first (namespaced pattern).
	if cm.IsSet("extensions.entitle") {
		if err := cm.Bind("extensions.entitle", &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", "extensions.entitle"),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind extensions.entitle config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "entitle" key.
	if cm.IsSet("entitle") {
		if err := cm.Bind("entitle", &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", "entitle"),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind entitle config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaults.SessionTTL
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = defaults.GraceWindow
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.GatewayEndpoint == "" && programmaticConfig.GatewayEndpoint != "" {
		yamlConfig.GatewayEndpoint = programmaticConfig.GatewayEndpoint
	}
	if yamlConfig.GatewayMerchantID == "" && programmaticConfig.GatewayMerchantID != "" {
		yamlConfig.GatewayMerchantID = programmaticConfig.GatewayMerchantID
	}
	if yamlConfig.GatewaySecret == "" && programmaticConfig.GatewaySecret != "" {
		yamlConfig.GatewaySecret = programmaticConfig.GatewaySecret
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.SessionTTL == 0 && programmaticConfig.SessionTTL != 0 {
		yamlConfig.SessionTTL = programmaticConfig.SessionTTL
	}
	if yamlConfig.GraceWindow == 0 && programmaticConfig.GraceWindow != 0 {
		yamlConfig.GraceWindow = programmaticConfig.GraceWindow
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
