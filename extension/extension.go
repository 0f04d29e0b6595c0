// Package extension provides the Forge extension adapter for the clearing engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.clearing" or "clearing" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	clearing "github.com/xraph/clearing"
	"github.com/xraph/clearing/ratefeed"
	"github.com/xraph/clearing/store"
	"github.com/xraph/clearing/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "clearing"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Mutual-credit clearing ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the clearing engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *clearing.Engine
	store      store.Store
	engineOpts []clearing.Option
}

// New creates a new clearing Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying clearing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *clearing.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the clearing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	eng := clearing.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*clearing.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("clearing: extension not initialized")
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
		return errors.New("clearing: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs clearing.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []clearing.Option {
	opts := make([]clearing.Option, 0, len(e.engineOpts)+3)

	if e.config.ReferenceDenom != "" {
		opts = append(opts, clearing.WithReferenceDenom(e.config.ReferenceDenom))
	}
	if e.config.RateFeedURL != "" {
		opts = append(opts, clearing.WithRateSource(ratefeed.NewHTTP(e.config.RateFeedURL, nil)))
	}
	if e.config.DrainInterval > 0 {
		opts = append(opts, clearing.WithDrainInterval(e.config.DrainInterval))
	}
	if e.config.DrainBudget > 0 {
		opts = append(opts, clearing.WithDrainBudget(e.config.DrainBudget))
	}
	if e.config.RebaseInterval > 0 {
		opts = append(opts, clearing.WithRebaseInterval(e.config.RebaseInterval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("clearing: configuration is required but not found in config files; " +
				"ensure 'extensions.clearing' or 'clearing' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("clearing: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("reference_denom", e.config.ReferenceDenom),
		forge.F("rate_feed_url", e.config.RateFeedURL),
		forge.F("drain_interval", e.config.DrainInterval),
		forge.F("drain_budget", e.config.DrainBudget),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.clearing" first (namespaced pattern).
	if cm.IsSet("extensions.clearing") {
		if err := cm.Bind("extensions.clearing", &cfg); err == nil {
			e.Logger().Debug("clearing: loaded config from file",
				forge.F("key", "extensions.clearing"),
			)
			return cfg, true
		}
		e.Logger().Warn("clearing: failed to bind extensions.clearing config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "clearing" key.
	if cm.IsSet("clearing") {
		if err := cm.Bind("clearing", &cfg); err == nil {
			e.Logger().Debug("clearing: loaded config from file",
				forge.F("key", "clearing"),
			)
			return cfg, true
		}
		e.Logger().Warn("clearing: failed to bind clearing config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ReferenceDenom == "" {
		cfg.ReferenceDenom = defaults.ReferenceDenom
	}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = defaults.DrainInterval
	}
	if cfg.DrainBudget == 0 {
		cfg.DrainBudget = defaults.DrainBudget
	}
	if cfg.RebaseInterval == 0 {
		cfg.RebaseInterval = defaults.RebaseInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.ReferenceDenom == "" && programmaticConfig.ReferenceDenom != "" {
		yamlConfig.ReferenceDenom = programmaticConfig.ReferenceDenom
	}
	if yamlConfig.RateFeedURL == "" && programmaticConfig.RateFeedURL != "" {
		yamlConfig.RateFeedURL = programmaticConfig.RateFeedURL
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.DrainInterval == 0 && programmaticConfig.DrainInterval != 0 {
		yamlConfig.DrainInterval = programmaticConfig.DrainInterval
	}
	if yamlConfig.DrainBudget == 0 && programmaticConfig.DrainBudget != 0 {
		yamlConfig.DrainBudget = programmaticConfig.DrainBudget
	}
	if yamlConfig.RebaseInterval == 0 && programmaticConfig.RebaseInterval != 0 {
		yamlConfig.RebaseInterval = programmaticConfig.RebaseInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
