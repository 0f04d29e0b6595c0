package extension

import (
	"time"

	clearing "github.com/xraph/clearing"
	"github.com/xraph/clearing/plugin"
	"github.com/xraph/clearing/ratefeed"
	"github.com/xraph/clearing/store"
)

// Option configures the clearing Forge extension.
type Option func(*Extension)

// WithStore sets the store for the clearing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a clearing.Option through to the underlying engine.
func WithEngineOption(opt clearing.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a clearing plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, clearing.WithPlugin(p))
	}
}

// WithRateSource sets the exchange rate source for daily rebasing.
// Takes precedence over the rate_feed_url config key.
func WithRateSource(src ratefeed.Source) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, clearing.WithRateSource(src))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithReferenceDenom sets the denomination the daily CXX value is expressed in.
func WithReferenceDenom(denom string) Option {
	return func(e *Extension) { e.config.ReferenceDenom = denom }
}

// WithRateFeedURL sets the base URL of an HTTP exchange rate source.
func WithRateFeedURL(url string) Option {
	return func(e *Extension) { e.config.RateFeedURL = url }
}

// WithDrainInterval sets how frequently the accepted credex queue is drained.
func WithDrainInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.DrainInterval = d }
}

// WithDrainBudget sets the soft time limit for a single drain pass.
func WithDrainBudget(d time.Duration) Option {
	return func(e *Extension) { e.config.DrainBudget = d }
}

// WithRebaseInterval sets how frequently the daily rebasing worker runs.
func WithRebaseInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.RebaseInterval = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
