package clearing

import (
	"context"
	"errors"
	"time"
)

// queueBatchSize is the number of queue entries fetched per store call.
const queueBatchSize = 64

// RunQueueDrain drains the pending-account and accepted-credex queues.
//
// The run skips entirely while the active day has rebasing in progress, and
// at most one drain pass runs at a time; a second caller gets ErrDrainLocked
// instead of waiting. Accounts are mirrored at-least-once with per-record
// errors logged and retried next run. Accepted credexes are processed in
// acceptance order, strictly sequentially, because each loop-finding pass
// must observe the cumulative effect of all prior ones. A soft wall-clock
// budget stops the run between items; in-flight work is never cancelled.
func (e *Engine) RunQueueDrain(ctx context.Context) error {
	if !e.drainMu.TryLock() {
		return ErrDrainLocked
	}
	defer e.drainMu.Unlock()

	activeDay, err := e.store.GetActiveDayNode(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveDay) {
			// Genesis day not bootstrapped yet; nothing to clear against.
			e.logger.Debug("queue drain skipped", "reason", "no active day")
			return nil
		}
		return err
	}
	if activeDay.RebasingInProgress {
		e.logger.Debug("queue drain skipped", "reason", "rebasing in progress")
		return nil
	}

	start := time.Now()
	accountsDone := e.drainAccounts(ctx, start)
	credexesDone, err := e.drainCredexes(ctx, start)

	elapsed := time.Since(start)
	e.plugins.EmitQueueDrained(ctx, accountsDone, credexesDone, elapsed)

	e.logger.Debug("queue drain finished",
		"accounts", accountsDone,
		"credexes", credexesDone,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return err
}

// drainAccounts mirrors queued accounts into the search graph. Failures leave
// the entry queued for the next run.
func (e *Engine) drainAccounts(ctx context.Context, start time.Time) int {
	done := 0
	for {
		if e.overBudget(start, "account queue") {
			return done
		}

		queued, err := e.store.ListQueuedAccounts(ctx, queueBatchSize)
		if err != nil {
			e.logger.Error("failed to list queued accounts", "error", err)
			return done
		}
		if len(queued) == 0 {
			return done
		}

		progressed := 0
		for _, accountID := range queued {
			// The graph creates nodes implicitly when edges arrive; mirroring
			// only has to confirm the account exists in the system of record.
			if _, err := e.store.GetAccount(ctx, accountID); err != nil {
				e.logger.Warn("queued account not mirrored",
					"account_id", accountID,
					"error", err,
				)
				continue
			}
			if err := e.store.AckAccount(ctx, accountID); err != nil {
				e.logger.Warn("failed to ack mirrored account",
					"account_id", accountID,
					"error", err,
				)
				continue
			}
			progressed++
		}
		done += progressed

		// Every remaining entry failed; leave them for the next run.
		if progressed == 0 {
			return done
		}
	}
}

// drainCredexes feeds accepted credexes to the loop finder in acceptance
// order. A loop-finder failure abandons the run; the entry stays queued.
func (e *Engine) drainCredexes(ctx context.Context, start time.Time) (int, error) {
	done := 0
	for {
		if e.overBudget(start, "credex queue") {
			return done, nil
		}

		queued, err := e.store.ListQueuedCredexes(ctx, queueBatchSize)
		if err != nil {
			return done, err
		}
		if len(queued) == 0 {
			return done, nil
		}

		progressed := 0
		for _, qc := range queued {
			if e.overBudget(start, "credex queue") {
				return done + progressed, nil
			}

			if err := e.RunLoopFinder(ctx, qc.CredexID); err != nil {
				e.logger.Error("loop finder failed, abandoning drain run",
					"credex_id", qc.CredexID,
					"error", err,
				)
				return done + progressed, err
			}
			if err := e.store.AckCredex(ctx, qc.CredexID); err != nil {
				e.logger.Warn("failed to ack drained credex",
					"credex_id", qc.CredexID,
					"error", err,
				)
				continue
			}
			progressed++
		}
		done += progressed

		// Every remaining entry failed to ack; leave them for the next run.
		if progressed == 0 {
			return done, nil
		}
	}
}

// overBudget reports whether the soft wall-clock budget has elapsed.
func (e *Engine) overBudget(start time.Time, phase string) bool {
	if time.Since(start) < e.drainBudget {
		return false
	}
	e.logger.Warn("queue drain budget exceeded, stopping between items",
		"phase", phase,
		"budget", e.drainBudget,
	)
	return true
}
