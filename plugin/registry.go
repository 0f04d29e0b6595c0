package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onAccountRegistered   []OnAccountRegistered
	onCredexIssued        []OnCredexIssued
	onCredexAccepted      []OnCredexAccepted
	onCredexDeclined      []OnCredexDeclined
	onCredexCancelled     []OnCredexCancelled
	onLoopCleared         []OnLoopCleared
	onCredexCleared       []OnCredexCleared
	onCredexDefaulted     []OnCredexDefaulted
	onRebaseStarted       []OnRebaseStarted
	onRebaseCompleted     []OnRebaseCompleted
	onQueueDrained        []OnQueueDrained
	onAuthorizationDenied []OnAuthorizationDenied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountRegistered); ok {
		r.onAccountRegistered = append(r.onAccountRegistered, v)
	}
	if v, ok := p.(OnCredexIssued); ok {
		r.onCredexIssued = append(r.onCredexIssued, v)
	}
	if v, ok := p.(OnCredexAccepted); ok {
		r.onCredexAccepted = append(r.onCredexAccepted, v)
	}
	if v, ok := p.(OnCredexDeclined); ok {
		r.onCredexDeclined = append(r.onCredexDeclined, v)
	}
	if v, ok := p.(OnCredexCancelled); ok {
		r.onCredexCancelled = append(r.onCredexCancelled, v)
	}
	if v, ok := p.(OnLoopCleared); ok {
		r.onLoopCleared = append(r.onLoopCleared, v)
	}
	if v, ok := p.(OnCredexCleared); ok {
		r.onCredexCleared = append(r.onCredexCleared, v)
	}
	if v, ok := p.(OnCredexDefaulted); ok {
		r.onCredexDefaulted = append(r.onCredexDefaulted, v)
	}
	if v, ok := p.(OnRebaseStarted); ok {
		r.onRebaseStarted = append(r.onRebaseStarted, v)
	}
	if v, ok := p.(OnRebaseCompleted); ok {
		r.onRebaseCompleted = append(r.onRebaseCompleted, v)
	}
	if v, ok := p.(OnQueueDrained); ok {
		r.onQueueDrained = append(r.onQueueDrained, v)
	}
	if v, ok := p.(OnAuthorizationDenied); ok {
		r.onAuthorizationDenied = append(r.onAuthorizationDenied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAccountRegistered)(nil)).Elem(), "OnAccountRegistered")
	checkInterface(reflect.TypeOf((*OnCredexIssued)(nil)).Elem(), "OnCredexIssued")
	checkInterface(reflect.TypeOf((*OnCredexAccepted)(nil)).Elem(), "OnCredexAccepted")
	checkInterface(reflect.TypeOf((*OnLoopCleared)(nil)).Elem(), "OnLoopCleared")
	checkInterface(reflect.TypeOf((*OnCredexDefaulted)(nil)).Elem(), "OnCredexDefaulted")
	checkInterface(reflect.TypeOf((*OnRebaseStarted)(nil)).Elem(), "OnRebaseStarted")
	checkInterface(reflect.TypeOf((*OnQueueDrained)(nil)).Elem(), "OnQueueDrained")
	checkInterface(reflect.TypeOf((*OnAuthorizationDenied)(nil)).Elem(), "OnAuthorizationDenied")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountRegistered emits an account registered event.
func (r *Registry) EmitAccountRegistered(ctx context.Context, account interface{}) {
	r.mu.RLock()
	plugins := r.onAccountRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountRegistered(ctx, account)
		}); err != nil {
			r.logger.Warn("plugin OnAccountRegistered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCredexIssued emits a credex issued event.
func (r *Registry) EmitCredexIssued(ctx context.Context, credex interface{}) {
	r.mu.RLock()
	plugins := r.onCredexIssued
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCredexIssued(ctx, credex)
		}); err != nil {
			r.logger.Warn("plugin OnCredexIssued failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCredexAccepted emits a credex accepted event.
func (r *Registry) EmitCredexAccepted(ctx context.Context, credex interface{}) {
	r.mu.RLock()
	plugins := r.onCredexAccepted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCredexAccepted(ctx, credex)
		}); err != nil {
			r.logger.Warn("plugin OnCredexAccepted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCredexDeclined emits a credex declined event.
func (r *Registry) EmitCredexDeclined(ctx context.Context, credex interface{}) {
	r.mu.RLock()
	plugins := r.onCredexDeclined
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCredexDeclined(ctx, credex)
		}); err != nil {
			r.logger.Warn("plugin OnCredexDeclined failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCredexCancelled emits a credex cancelled event.
func (r *Registry) EmitCredexCancelled(ctx context.Context, credex interface{}) {
	r.mu.RLock()
	plugins := r.onCredexCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCredexCancelled(ctx, credex)
		}); err != nil {
			r.logger.Warn("plugin OnCredexCancelled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLoopCleared emits a loop cleared event.
func (r *Registry) EmitLoopCleared(ctx context.Context, anchor interface{}) {
	r.mu.RLock()
	plugins := r.onLoopCleared
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLoopCleared(ctx, anchor)
		}); err != nil {
			r.logger.Warn("plugin OnLoopCleared failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCredexCleared emits a credex cleared event.
func (r *Registry) EmitCredexCleared(ctx context.Context, credex interface{}) {
	r.mu.RLock()
	plugins := r.onCredexCleared
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCredexCleared(ctx, credex)
		}); err != nil {
			r.logger.Warn("plugin OnCredexCleared failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCredexDefaulted emits a credex defaulted event.
func (r *Registry) EmitCredexDefaulted(ctx context.Context, credex interface{}) {
	r.mu.RLock()
	plugins := r.onCredexDefaulted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCredexDefaulted(ctx, credex)
		}); err != nil {
			r.logger.Warn("plugin OnCredexDefaulted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRebaseStarted emits a rebase started event.
func (r *Registry) EmitRebaseStarted(ctx context.Context, dayNode interface{}) {
	r.mu.RLock()
	plugins := r.onRebaseStarted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRebaseStarted(ctx, dayNode)
		}); err != nil {
			r.logger.Warn("plugin OnRebaseStarted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRebaseCompleted emits a rebase completed event.
func (r *Registry) EmitRebaseCompleted(ctx context.Context, dayNode interface{}, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onRebaseCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRebaseCompleted(ctx, dayNode, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnRebaseCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitQueueDrained emits a queue drained event.
func (r *Registry) EmitQueueDrained(ctx context.Context, accounts, credexes int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onQueueDrained
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnQueueDrained(ctx, accounts, credexes, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnQueueDrained failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAuthorizationDenied emits an authorization denied event.
func (r *Registry) EmitAuthorizationDenied(ctx context.Context, accountID, denom string, ceiling, requested float64) {
	r.mu.RLock()
	plugins := r.onAuthorizationDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAuthorizationDenied(ctx, accountID, denom, ceiling, requested)
		}); err != nil {
			r.logger.Warn("plugin OnAuthorizationDenied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the clearing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
