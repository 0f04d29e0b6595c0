package clearing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/types"
)

// RunDailyRebasing recomputes the daily CXX valuation and rescales every
// stored balance against it.
//
// The pipeline: mark the active day rebasing, default overdue debt, fetch
// external rates, confirm pledged participants against the collateral
// authorizer, set the new CXX value to the mean confirmed pledge in the
// reference numeraire, create and activate the next day node, rescale all
// non-terminal credexes and loop anchors preserving display value, issue the
// offset settlement credexes, and clear the rebasing flag.
//
// The run is not crash-atomic; the successor day node carries a step cursor
// so an interrupted run resumes where it stopped instead of duplicating
// work. The defaulting phase preceding day creation is idempotent and simply
// re-runs. With no day node at all, a genesis day is bootstrapped.
func (e *Engine) RunDailyRebasing(ctx context.Context) error {
	if !e.rebaseMu.TryLock() {
		return ErrRebaseLocked
	}
	defer e.rebaseMu.Unlock()

	start := time.Now()

	oldDay, err := e.store.GetActiveDayNode(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoActiveDay) {
			return err
		}

		// Either an interrupted run crashed between deactivating the old
		// day and activating its successor, or this is a cold start.
		newDay, findErr := e.findMidRebaseDay(ctx)
		if findErr != nil {
			return findErr
		}
		if newDay == nil {
			return e.bootstrapGenesis(ctx)
		}
		newDay.Active = true
		newDay.Touch()
		if err := e.store.UpdateDayNode(ctx, newDay); err != nil {
			return err
		}
		return e.finishRebase(ctx, newDay, start)
	}

	if oldDay.RebasingInProgress && midPipeline(oldDay.RebaseStep) {
		// The active day is itself a successor whose creation was
		// interrupted after activation; resume its late phase.
		return e.finishRebase(ctx, oldDay, start)
	}

	// Fresh run, or a resume that crashed during the idempotent early phase.
	if !oldDay.RebasingInProgress {
		oldDay.RebasingInProgress = true
		oldDay.Touch()
		if err := e.store.UpdateDayNode(ctx, oldDay); err != nil {
			return err
		}
	}
	e.plugins.EmitRebaseStarted(ctx, oldDay)

	if err := e.defaultOverdue(ctx); err != nil {
		return err
	}

	quotes, err := e.currentQuotes(ctx)
	if err != nil {
		return err
	}

	confirmed, newValue, err := e.confirmParticipants(ctx, oldDay, quotes)
	if err != nil {
		return err
	}

	newDay, err := e.createNextDay(ctx, oldDay, quotes, newValue)
	if err != nil {
		return err
	}

	e.logger.Info("day advanced",
		"old_day_id", oldDay.ID,
		"new_day_id", newDay.ID,
		"date", newDay.Date.Format("2006-01-02"),
		"cxx_value", newDay.CXXValue,
		"participants", len(confirmed),
	)

	return e.finishRebase(ctx, newDay, start)
}

// midPipeline reports whether the cursor marks an unfinished creation
// pipeline.
func midPipeline(step string) bool {
	switch step {
	case day.StepCreated, day.StepRescaled, day.StepSettling:
		return true
	}
	return false
}

// findMidRebaseDay locates a successor day whose creation was interrupted
// before activation. Returns nil when no such day exists.
func (e *Engine) findMidRebaseDay(ctx context.Context) (*day.Node, error) {
	days, err := e.store.ListDayNodes(ctx, day.ListOpts{})
	if err != nil {
		return nil, err
	}

	var found *day.Node
	for _, d := range days {
		if !d.RebasingInProgress || !midPipeline(d.RebaseStep) {
			continue
		}
		if found == nil || d.CreatedAt.After(found.CreatedAt) {
			found = d
		}
	}
	return found, nil
}

// bootstrapGenesis creates the first day node with a CXX value of one
// reference unit.
func (e *Engine) bootstrapGenesis(ctx context.Context) error {
	quotes, err := e.currentQuotes(ctx)
	if err != nil {
		return err
	}

	genesis := day.New(time.Now().UTC(), 1, e.refDenom, dayRates(quotes, 1))
	genesis.Active = true
	genesis.RebaseStep = day.StepDone

	if err := e.store.CreateDayNode(ctx, genesis); err != nil {
		return err
	}

	e.logger.Info("genesis day created",
		"day_id", genesis.ID,
		"date", genesis.Date.Format("2006-01-02"),
		"reference_denom", e.refDenom,
	)
	return nil
}

// defaultOverdue marks every ACTIVE credex with an elapsed due date as
// DEFAULTED and retires it from the search graph. Idempotent: already
// defaulted instruments are terminal and no longer listed.
func (e *Engine) defaultOverdue(ctx context.Context) error {
	overdue, err := e.store.ListOverdueCredexes(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, c := range overdue {
		if c.Status != credex.StatusActive {
			continue
		}
		c.Default()
		c.Touch()
		if err := e.store.UpdateCredex(ctx, c); err != nil {
			e.logger.Warn("failed to default overdue credex",
				"credex_id", c.ID,
				"error", err,
			)
			continue
		}
		e.graph.Remove(c.IssuerID.String(), c.ID.String())
		e.plugins.EmitCredexDefaulted(ctx, c)
	}
	return nil
}

// currentQuotes fetches the current rate for every supported denomination,
// expressed as reference units per one denomination unit.
func (e *Engine) currentQuotes(ctx context.Context) (map[string]float64, error) {
	if e.rates == nil {
		return nil, fmt.Errorf("%w: no rate source configured", ErrRateUnavailable)
	}

	quotes, err := e.rates.Current(ctx, e.refDenom, e.denoms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	quotes[e.refDenom] = 1
	return quotes, nil
}

// confirmParticipants filters pledged accounts to those whose pledge fits
// under their collateral ceiling and computes the new CXX value as the mean
// confirmed pledge in the reference numeraire. With no confirmed
// participants the old value carries over.
func (e *Engine) confirmParticipants(ctx context.Context, oldDay *day.Node, quotes map[string]float64) ([]*account.Account, float64, error) {
	pledged, err := e.store.ListAccounts(ctx, account.ListOpts{Pledged: true})
	if err != nil {
		return nil, 0, err
	}

	var confirmed []*account.Account
	sum := 0.0
	for _, a := range pledged {
		if a.ID == e.foundationID {
			continue
		}
		quote, ok := quotes[a.PledgeDenom]
		if !ok || quote <= 0 {
			e.logger.Warn("pledge denomination has no rate, excluding participant",
				"account_id", a.ID,
				"denomination", a.PledgeDenom,
			)
			continue
		}

		auth, err := e.GetSecuredAuthorization(ctx, a.ID, a.PledgeDenom)
		if err != nil {
			e.logger.Warn("authorization check failed, excluding participant",
				"account_id", a.ID,
				"error", err,
			)
			continue
		}
		if !auth.Unbounded && auth.Securable+types.Tolerance < a.PledgeAmount {
			e.logger.Info("pledge exceeds collateral ceiling, excluding participant",
				"account_id", a.ID,
				"pledge", a.PledgeAmount,
				"ceiling", auth.Securable,
			)
			continue
		}

		confirmed = append(confirmed, a)
		sum += a.PledgeAmount * quote
	}

	if len(confirmed) == 0 {
		return nil, oldDay.CXXValue, nil
	}
	return confirmed, sum / float64(len(confirmed)), nil
}

// dayRates derives the per-denomination rate table (CXX per denomination
// unit) from reference quotes and a CXX value.
func dayRates(quotes map[string]float64, cxxValue float64) map[string]float64 {
	rates := make(map[string]float64, len(quotes)+1)
	for denom, quote := range quotes {
		rates[denom] = quote / cxxValue
	}
	return rates
}

// createNextDay persists the successor day node and performs the activation
// handover: the successor is created inactive with the rebasing flag set,
// the old day is deactivated and linked, then the successor is activated.
func (e *Engine) createNextDay(ctx context.Context, oldDay *day.Node, quotes map[string]float64, newValue float64) (*day.Node, error) {
	date := time.Now().UTC()
	if !midnight(date).After(oldDay.Date) {
		date = oldDay.Date.AddDate(0, 0, 1)
	}

	newDay := day.New(date, newValue, e.refDenom, dayRates(quotes, newValue))
	newDay.RebasingInProgress = true
	newDay.RebaseStep = day.StepCreated
	newDay.PrevID = oldDay.ID

	if err := e.store.CreateDayNode(ctx, newDay); err != nil {
		return nil, err
	}

	oldDay.NextID = newDay.ID
	oldDay.Active = false
	oldDay.RebasingInProgress = false
	oldDay.Touch()
	if err := e.store.UpdateDayNode(ctx, oldDay); err != nil {
		return nil, err
	}

	newDay.Active = true
	newDay.Touch()
	if err := e.store.UpdateDayNode(ctx, newDay); err != nil {
		return nil, err
	}
	return newDay, nil
}

// finishRebase runs (or resumes) the late pipeline phase on an activated
// successor day: rescaling, settlement, and clearing the rebasing flag.
func (e *Engine) finishRebase(ctx context.Context, newDay *day.Node, start time.Time) error {
	if newDay.RebaseStep == day.StepCreated {
		oldDay, err := e.store.GetDayNode(ctx, newDay.PrevID)
		if err != nil {
			return err
		}

		// CXX revaluation ratio for CXX-denominated instruments and
		// anchors. Foreign-currency instruments are repriced to the new
		// day's rate for their denomination instead; the store reads the
		// rate table off the day node. Either way display value
		// (amount / multiplier) is preserved.
		ratio := oldDay.CXXValue / newDay.CXXValue
		if err := e.store.RescaleAmounts(ctx, newDay.ID, ratio); err != nil {
			return err
		}
		// Per-denomination factors differ, so the search graph is rebuilt
		// from the store rather than scaled in place.
		if err := e.rebuildGraph(ctx); err != nil {
			return err
		}
		newDay.RebaseStep = day.StepRescaled
	}

	if newDay.RebaseStep == day.StepRescaled {
		newDay.RebaseStep = day.StepSettling
		newDay.Touch()
		if err := e.store.UpdateDayNode(ctx, newDay); err != nil {
			return err
		}
	}

	if newDay.RebaseStep == day.StepSettling {
		if err := e.settleParticipants(ctx, newDay); err != nil {
			return err
		}
	}

	newDay.RebaseStep = day.StepDone
	newDay.RebasingInProgress = false
	newDay.Touch()
	if err := e.store.UpdateDayNode(ctx, newDay); err != nil {
		return err
	}

	elapsed := time.Since(start)
	e.logger.Info("daily rebasing finished",
		"day_id", newDay.ID,
		"cxx_value", newDay.CXXValue,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	e.plugins.EmitRebaseCompleted(ctx, newDay, elapsed)
	return nil
}

// settleParticipants issues the two offset settlement credexes per confirmed
// participant: their pledge to the foundation, and one new CXX unit back.
// Both flow through normal issuance and acceptance, so they are netted by
// the next queue drain. The day node records settled participants so a
// resumed run does not issue twice.
func (e *Engine) settleParticipants(ctx context.Context, newDay *day.Node) error {
	if e.foundationID.IsNil() {
		e.logger.Warn("no foundation account configured, skipping settlement")
		return nil
	}

	quotes := make(map[string]float64, len(newDay.Rates))
	for denom, rate := range newDay.Rates {
		quotes[denom] = rate * newDay.CXXValue
	}

	confirmed, _, err := e.confirmParticipants(ctx, newDay, quotes)
	if err != nil {
		return err
	}

	for _, a := range confirmed {
		if newDay.HasSettled(a.ID.String()) {
			continue
		}

		if err := e.settleOne(ctx, a); err != nil {
			e.logger.Warn("settlement failed for participant",
				"account_id", a.ID,
				"error", err,
			)
			continue
		}

		newDay.MarkSettled(a.ID.String())
		newDay.Touch()
		if err := e.store.UpdateDayNode(ctx, newDay); err != nil {
			return err
		}
	}
	return nil
}

// settleOne issues and accepts both settlement credexes for one participant.
func (e *Engine) settleOne(ctx context.Context, a *account.Account) error {
	give, err := e.IssueCredex(ctx, IssueSpec{
		IssuerID:     a.ID,
		ReceiverID:   e.foundationID,
		Denomination: a.PledgeDenom,
		Amount:       a.PledgeAmount,
		Type:         credex.TypeOfferingGive,
	})
	if err != nil {
		return err
	}
	if _, err := e.AcceptCredex(ctx, give.ID); err != nil {
		return err
	}

	receive, err := e.IssueCredex(ctx, IssueSpec{
		IssuerID:     e.foundationID,
		ReceiverID:   a.ID,
		Denomination: types.DenomCXX,
		Amount:       1,
		Type:         credex.TypeOfferingReceive,
	})
	if err != nil {
		return err
	}
	_, err = e.AcceptCredex(ctx, receive.ID)
	return err
}

// midnight truncates a time to UTC midnight.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
