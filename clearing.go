package clearing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/clearing/graph"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/plugin"
	"github.com/xraph/clearing/ratefeed"
	"github.com/xraph/clearing/store"
)

// Engine is the main clearing engine.
type Engine struct {
	store   store.Store
	graph   *graph.Graph
	plugins *plugin.Registry
	logger  *slog.Logger
	rates   ratefeed.Source

	// Configuration
	foundationID   id.AccountID
	refDenom       string
	denoms         []string
	drainInterval  time.Duration
	drainBudget    time.Duration
	rebaseInterval time.Duration

	// Run ownership. The drain lock is held for the duration of one queue
	// drain pass; the rebase lock for one rebasing run.
	drainMu  sync.Mutex
	rebaseMu sync.Mutex

	// Monotonic acceptance stamping
	acceptMu     sync.Mutex
	lastAccepted time.Time

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		graph:          graph.New(),
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		denoms:         []string{"USD", "EUR", "GBP", "ZAR"},
		refDenom:       "USD",
		drainInterval:  time.Minute,
		drainBudget:    14 * time.Minute,
		rebaseInterval: 24 * time.Hour,
		stopChan:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRateSource sets the external exchange rate source used by rebasing.
func WithRateSource(src ratefeed.Source) Option {
	return func(e *Engine) {
		e.rates = src
	}
}

// WithFoundationAccount sets the trust-root foundation account. Settlement
// credexes issued during rebasing flow to and from this account.
func WithFoundationAccount(accountID id.AccountID) Option {
	return func(e *Engine) {
		e.foundationID = accountID
	}
}

// WithReferenceDenom sets the external numeraire the daily CXX value is
// expressed in.
func WithReferenceDenom(denom string) Option {
	return func(e *Engine) {
		e.refDenom = denom
	}
}

// WithDenominations sets the denominations the engine fetches rates for.
func WithDenominations(denoms ...string) Option {
	return func(e *Engine) {
		e.denoms = denoms
	}
}

// WithDrainInterval sets how frequently the background worker drains the
// accepted credex queue.
func WithDrainInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.drainInterval = d
	}
}

// WithDrainBudget sets the soft wall-clock budget for one drain pass.
func WithDrainBudget(d time.Duration) Option {
	return func(e *Engine) {
		e.drainBudget = d
	}
}

// WithRebaseInterval sets how frequently the background worker runs the
// daily rebasing pipeline. Zero disables the worker; the host schedules
// RunDailyRebasing itself.
func WithRebaseInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.rebaseInterval = d
	}
}

// Start migrates the store, rebuilds the in-process debt graph, and begins
// background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Rebuild the active-debt graph from the system of record.
	if err := e.rebuildGraph(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start queue drain worker
	e.wg.Add(1)
	go e.drainWorker(ctx)

	// Start daily rebasing worker
	if e.rebaseInterval > 0 {
		e.wg.Add(1)
		go e.rebaseWorker(ctx)
	}

	e.logger.Info("clearing engine started",
		"drain_interval", e.drainInterval,
		"drain_budget", e.drainBudget,
		"rebase_interval", e.rebaseInterval,
		"reference_denom", e.refDenom,
		"active_edges", e.graph.Len(),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Graph returns the in-process active-debt graph. The store remains the
// system of record; the graph is a search view rebuilt on Start.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// rebuildGraph loads every ACTIVE credex from the store into the in-process
// search graph.
func (e *Engine) rebuildGraph(ctx context.Context) error {
	e.graph.Reset()

	credexes, err := e.store.ListActiveCredexes(ctx)
	if err != nil {
		return err
	}

	for _, c := range credexes {
		e.graph.Upsert(graph.Edge{
			CredexID:    c.ID.String(),
			Issuer:      c.IssuerID.String(),
			Receiver:    c.ReceiverID.String(),
			Outstanding: c.OutstandingAmount,
			DueDate:     c.DueDate,
		})
	}

	return nil
}

// drainWorker periodically drains the account and accepted-credex queues.
func (e *Engine) drainWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			if err := e.RunQueueDrain(ctx); err != nil {
				if IsRetryable(err) {
					e.logger.Debug("queue drain skipped", "reason", err)
					continue
				}
				e.logger.Error("queue drain failed", "error", err)
			}
		}
	}
}

// rebaseWorker periodically runs the daily rebasing pipeline. The first run
// after a cold start bootstraps the genesis day.
func (e *Engine) rebaseWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.rebaseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			if err := e.RunDailyRebasing(ctx); err != nil {
				if IsRetryable(err) {
					e.logger.Debug("daily rebasing skipped", "reason", err)
					continue
				}
				e.logger.Error("daily rebasing failed", "error", err)
			}
		}
	}
}
