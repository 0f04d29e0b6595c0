// Package observability provides a metrics extension for the clearing engine
// that records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/clearing/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAccountRegistered   = (*MetricsExtension)(nil)
	_ plugin.OnCredexIssued        = (*MetricsExtension)(nil)
	_ plugin.OnCredexAccepted      = (*MetricsExtension)(nil)
	_ plugin.OnCredexDeclined      = (*MetricsExtension)(nil)
	_ plugin.OnCredexCancelled     = (*MetricsExtension)(nil)
	_ plugin.OnLoopCleared         = (*MetricsExtension)(nil)
	_ plugin.OnCredexCleared       = (*MetricsExtension)(nil)
	_ plugin.OnCredexDefaulted     = (*MetricsExtension)(nil)
	_ plugin.OnRebaseStarted       = (*MetricsExtension)(nil)
	_ plugin.OnRebaseCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnQueueDrained        = (*MetricsExtension)(nil)
	_ plugin.OnAuthorizationDenied = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a clearing plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountsRegistered Counter

	// Credex metrics
	CredexIssued    Counter
	CredexAccepted  Counter
	CredexDeclined  Counter
	CredexCancelled Counter
	CredexCleared   Counter
	CredexDefaulted Counter

	// Clearing metrics
	LoopsCleared      Counter
	LoopLength        Histogram
	LoopClearedAmount Histogram

	// Rebasing metrics
	RebaseRuns    Counter
	RebaseLatency Histogram

	// Queue metrics
	QueueDrains       Counter
	QueueAccountBatch Histogram
	QueueCredexBatch  Histogram
	QueueDrainLatency Histogram

	// Authorization metrics
	AuthorizationDenied Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountsRegistered: factory.Counter("clearing.account.registered"),

		// Credex metrics
		CredexIssued:    factory.Counter("clearing.credex.issued"),
		CredexAccepted:  factory.Counter("clearing.credex.accepted"),
		CredexDeclined:  factory.Counter("clearing.credex.declined"),
		CredexCancelled: factory.Counter("clearing.credex.cancelled"),
		CredexCleared:   factory.Counter("clearing.credex.cleared"),
		CredexDefaulted: factory.Counter("clearing.credex.defaulted"),

		// Clearing metrics
		LoopsCleared:      factory.Counter("clearing.loop.cleared"),
		LoopLength:        factory.Histogram("clearing.loop.length"),
		LoopClearedAmount: factory.Histogram("clearing.loop.cleared_amount"),

		// Rebasing metrics
		RebaseRuns:    factory.Counter("clearing.rebase.runs"),
		RebaseLatency: factory.Histogram("clearing.rebase.latency_ms"),

		// Queue metrics
		QueueDrains:       factory.Counter("clearing.queue.drains"),
		QueueAccountBatch: factory.Histogram("clearing.queue.account_batch"),
		QueueCredexBatch:  factory.Histogram("clearing.queue.credex_batch"),
		QueueDrainLatency: factory.Histogram("clearing.queue.drain_latency_ms"),

		// Authorization metrics
		AuthorizationDenied: factory.Counter("clearing.authorization.denied"),

		// Error metrics
		StoreErrors:  factory.Counter("clearing.store.errors"),
		PluginErrors: factory.Counter("clearing.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (m *MetricsExtension) OnAccountRegistered(_ context.Context, _ interface{}) error {
	m.AccountsRegistered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credex lifecycle hooks
// ──────────────────────────────────────────────────

// OnCredexIssued implements plugin.OnCredexIssued.
func (m *MetricsExtension) OnCredexIssued(_ context.Context, _ interface{}) error {
	m.CredexIssued.Inc()
	return nil
}

// OnCredexAccepted implements plugin.OnCredexAccepted.
func (m *MetricsExtension) OnCredexAccepted(_ context.Context, _ interface{}) error {
	m.CredexAccepted.Inc()
	return nil
}

// OnCredexDeclined implements plugin.OnCredexDeclined.
func (m *MetricsExtension) OnCredexDeclined(_ context.Context, _ interface{}) error {
	m.CredexDeclined.Inc()
	return nil
}

// OnCredexCancelled implements plugin.OnCredexCancelled.
func (m *MetricsExtension) OnCredexCancelled(_ context.Context, _ interface{}) error {
	m.CredexCancelled.Inc()
	return nil
}

// OnCredexCleared implements plugin.OnCredexCleared.
func (m *MetricsExtension) OnCredexCleared(_ context.Context, _ interface{}) error {
	m.CredexCleared.Inc()
	return nil
}

// OnCredexDefaulted implements plugin.OnCredexDefaulted.
func (m *MetricsExtension) OnCredexDefaulted(_ context.Context, _ interface{}) error {
	m.CredexDefaulted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Clearing hooks
// ──────────────────────────────────────────────────

// OnLoopCleared implements plugin.OnLoopCleared.
func (m *MetricsExtension) OnLoopCleared(_ context.Context, _ interface{}) error {
	m.LoopsCleared.Inc()
	// Would need to inspect the anchor to observe length and amount
	return nil
}

// ──────────────────────────────────────────────────
// Rebasing hooks
// ──────────────────────────────────────────────────

// OnRebaseStarted implements plugin.OnRebaseStarted.
func (m *MetricsExtension) OnRebaseStarted(_ context.Context, _ interface{}) error {
	m.RebaseRuns.Inc()
	return nil
}

// OnRebaseCompleted implements plugin.OnRebaseCompleted.
func (m *MetricsExtension) OnRebaseCompleted(_ context.Context, _ interface{}, elapsed time.Duration) error {
	m.RebaseLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Queue and authorization hooks
// ──────────────────────────────────────────────────

// OnQueueDrained implements plugin.OnQueueDrained.
func (m *MetricsExtension) OnQueueDrained(_ context.Context, accounts, credexes int, elapsed time.Duration) error {
	m.QueueDrains.Inc()
	m.QueueAccountBatch.Observe(float64(accounts))
	m.QueueCredexBatch.Observe(float64(credexes))
	m.QueueDrainLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnAuthorizationDenied implements plugin.OnAuthorizationDenied.
func (m *MetricsExtension) OnAuthorizationDenied(_ context.Context, _, _ string, _, _ float64) error {
	m.AuthorizationDenied.Inc()
	return nil
}
