// Package plugin defines the extension interfaces for the clearing engine.
//
// Plugins implement the base Plugin interface plus any number of the
// event hook interfaces below. The registry discovers implemented hooks
// at registration time and dispatches events without reflection on the
// hot path.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique identifier for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the clearing engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the clearing engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered is called after an account is created.
type OnAccountRegistered interface {
	Plugin
	OnAccountRegistered(ctx context.Context, account interface{}) error
}

// ──────────────────────────────────────────────────
// Credex lifecycle hooks
// ──────────────────────────────────────────────────

// OnCredexIssued is called after a credex offer or request is created.
type OnCredexIssued interface {
	Plugin
	OnCredexIssued(ctx context.Context, credex interface{}) error
}

// OnCredexAccepted is called after a pending credex becomes active.
type OnCredexAccepted interface {
	Plugin
	OnCredexAccepted(ctx context.Context, credex interface{}) error
}

// OnCredexDeclined is called after a counterparty declines a pending credex.
type OnCredexDeclined interface {
	Plugin
	OnCredexDeclined(ctx context.Context, credex interface{}) error
}

// OnCredexCancelled is called after an issuer withdraws a pending credex.
type OnCredexCancelled interface {
	Plugin
	OnCredexCancelled(ctx context.Context, credex interface{}) error
}

// ──────────────────────────────────────────────────
// Clearing hooks
// ──────────────────────────────────────────────────

// OnLoopCleared is called after a credit loop is netted and its anchor stored.
type OnLoopCleared interface {
	Plugin
	OnLoopCleared(ctx context.Context, anchor interface{}) error
}

// OnCredexCleared is called for each credex fully redeemed by loop clearing.
type OnCredexCleared interface {
	Plugin
	OnCredexCleared(ctx context.Context, credex interface{}) error
}

// OnCredexDefaulted is called when an overdue credex is marked defaulted.
type OnCredexDefaulted interface {
	Plugin
	OnCredexDefaulted(ctx context.Context, credex interface{}) error
}

// ──────────────────────────────────────────────────
// Rebasing hooks
// ──────────────────────────────────────────────────

// OnRebaseStarted is called when a daily rebasing run acquires the day lock.
type OnRebaseStarted interface {
	Plugin
	OnRebaseStarted(ctx context.Context, dayNode interface{}) error
}

// OnRebaseCompleted is called after a daily rebasing run finishes.
type OnRebaseCompleted interface {
	Plugin
	OnRebaseCompleted(ctx context.Context, dayNode interface{}, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Queue and authorization hooks
// ──────────────────────────────────────────────────

// OnQueueDrained is called after a queue drain pass completes.
type OnQueueDrained interface {
	Plugin
	OnQueueDrained(ctx context.Context, accounts, credexes int, elapsed time.Duration) error
}

// OnAuthorizationDenied is called when a secured issue fails its collateral check.
type OnAuthorizationDenied interface {
	Plugin
	OnAuthorizationDenied(ctx context.Context, accountID, denom string, ceiling, requested float64) error
}
