package extension

import "time"

// Config holds the clearing extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.clearing" or "clearing" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ReferenceDenom is the denomination the daily CXX value is expressed in
	// (default: "USD").
	ReferenceDenom string `json:"reference_denom" mapstructure:"reference_denom" yaml:"reference_denom"`

	// RateFeedURL is the base URL of an HTTP exchange rate source. When set,
	// the extension constructs a ratefeed.HTTPSource for daily rebasing.
	RateFeedURL string `json:"rate_feed_url" mapstructure:"rate_feed_url" yaml:"rate_feed_url"`

	// DrainInterval is how frequently the background worker drains the
	// accepted credex queue (default: 15s).
	DrainInterval time.Duration `json:"drain_interval" mapstructure:"drain_interval" yaml:"drain_interval"`

	// DrainBudget is the soft time limit for a single drain pass. The worker
	// stops between items once the budget is exceeded (default: 14m).
	DrainBudget time.Duration `json:"drain_budget" mapstructure:"drain_budget" yaml:"drain_budget"`

	// RebaseInterval is how frequently the background worker runs daily
	// rebasing (default: 24h). Zero leaves scheduling to the host.
	RebaseInterval time.Duration `json:"rebase_interval" mapstructure:"rebase_interval" yaml:"rebase_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReferenceDenom: "USD",
		DrainInterval:  15 * time.Second,
		DrainBudget:    14 * time.Minute,
		RebaseInterval: 24 * time.Hour,
	}
}
