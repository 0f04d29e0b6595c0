// Package audithook bridges clearing lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/clearing/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnAccountRegistered   = (*Extension)(nil)
	_ plugin.OnCredexIssued        = (*Extension)(nil)
	_ plugin.OnCredexAccepted      = (*Extension)(nil)
	_ plugin.OnCredexDeclined      = (*Extension)(nil)
	_ plugin.OnCredexCancelled     = (*Extension)(nil)
	_ plugin.OnLoopCleared         = (*Extension)(nil)
	_ plugin.OnCredexDefaulted     = (*Extension)(nil)
	_ plugin.OnRebaseStarted       = (*Extension)(nil)
	_ plugin.OnRebaseCompleted     = (*Extension)(nil)
	_ plugin.OnQueueDrained        = (*Extension)(nil)
	_ plugin.OnAuthorizationDenied = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not import
// any concrete audit system; callers inject the backend at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges clearing lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (e *Extension) OnAccountRegistered(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionAccountRegistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, "", CategoryLedger, nil,
		"event", "account_registered",
	)
}

// ──────────────────────────────────────────────────
// Credex lifecycle hooks
// ──────────────────────────────────────────────────

// OnCredexIssued implements plugin.OnCredexIssued.
func (e *Extension) OnCredexIssued(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCredexIssued, SeverityInfo, OutcomeSuccess,
		ResourceCredex, "", CategoryLedger, nil,
		"event", "credex_issued",
	)
}

// OnCredexAccepted implements plugin.OnCredexAccepted.
func (e *Extension) OnCredexAccepted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCredexAccepted, SeverityInfo, OutcomeSuccess,
		ResourceCredex, "", CategoryLedger, nil,
		"event", "credex_accepted",
	)
}

// OnCredexDeclined implements plugin.OnCredexDeclined.
func (e *Extension) OnCredexDeclined(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCredexDeclined, SeverityInfo, OutcomeSuccess,
		ResourceCredex, "", CategoryLedger, nil,
		"event", "credex_declined",
	)
}

// OnCredexCancelled implements plugin.OnCredexCancelled.
func (e *Extension) OnCredexCancelled(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCredexCancelled, SeverityInfo, OutcomeSuccess,
		ResourceCredex, "", CategoryLedger, nil,
		"event", "credex_cancelled",
	)
}

// OnCredexDefaulted implements plugin.OnCredexDefaulted.
func (e *Extension) OnCredexDefaulted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCredexDefaulted, SeverityWarning, OutcomeSuccess,
		ResourceCredex, "", CategoryLedger, nil,
		"event", "credex_defaulted",
	)
}

// ──────────────────────────────────────────────────
// Clearing hooks
// ──────────────────────────────────────────────────

// OnLoopCleared implements plugin.OnLoopCleared.
func (e *Extension) OnLoopCleared(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionLoopCleared, SeverityInfo, OutcomeSuccess,
		ResourceLoop, "", CategoryClearing, nil,
		"event", "loop_cleared",
	)
}

// ──────────────────────────────────────────────────
// Rebasing hooks
// ──────────────────────────────────────────────────

// OnRebaseStarted implements plugin.OnRebaseStarted.
func (e *Extension) OnRebaseStarted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionRebaseStarted, SeverityInfo, OutcomeSuccess,
		ResourceDayNode, "", CategoryRebasing, nil,
		"event", "rebase_started",
	)
}

// OnRebaseCompleted implements plugin.OnRebaseCompleted.
func (e *Extension) OnRebaseCompleted(ctx context.Context, _ interface{}, elapsed time.Duration) error {
	return e.record(ctx, ActionRebaseCompleted, SeverityInfo, OutcomeSuccess,
		ResourceDayNode, "", CategoryRebasing, nil,
		"event", "rebase_completed",
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Queue and authorization hooks
// ──────────────────────────────────────────────────

// OnQueueDrained implements plugin.OnQueueDrained.
func (e *Extension) OnQueueDrained(ctx context.Context, accounts, credexes int, elapsed time.Duration) error {
	return e.record(ctx, ActionQueueDrained, SeverityInfo, OutcomeSuccess,
		ResourceQueue, "", CategoryOperation, nil,
		"accounts", accounts,
		"credexes", credexes,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnAuthorizationDenied implements plugin.OnAuthorizationDenied.
func (e *Extension) OnAuthorizationDenied(ctx context.Context, accountID, denom string, ceiling, requested float64) error {
	return e.record(ctx, ActionAuthorizationDenied, SeverityWarning, OutcomeFailure,
		ResourceAccount, accountID, CategoryAccess, nil,
		"account_id", accountID,
		"denomination", denom,
		"ceiling", ceiling,
		"requested", requested,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
