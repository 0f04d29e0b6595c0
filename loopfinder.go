package clearing

import (
	"context"
	"strings"
	"time"

	"github.com/xraph/clearing/graph"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	"github.com/xraph/clearing/store"
	"github.com/xraph/clearing/types"
)

// candidate is one discovered cycle with its selection metrics.
type candidate struct {
	edges       []graph.Edge
	length      int
	lowest      float64
	earliestDue *time.Time
	key         string // joined segment ids, for deterministic final tie-break
}

// RunLoopFinder discovers and nets credit loops through the given credex.
//
// It repeats until fixpoint: find every simple cycle in the active-debt graph
// that starts and ends at the credex's issuer and passes through the credex's
// edge, select one by policy, clear it by its lowest outstanding amount, and
// search again. Each cleared cycle is committed atomically by the store; a
// failure aborts the invocation and leaves prior cycles committed.
//
// At most one loop-finding pass runs at a time system-wide; the queue
// orchestrator serializes invocations.
func (e *Engine) RunLoopFinder(ctx context.Context, credexID id.CredexID) error {
	c, err := e.store.GetCredex(ctx, credexID)
	if err != nil {
		return err
	}
	if c.Status.IsTerminal() {
		// Already cleared or retired by an earlier pass; nothing to do.
		return nil
	}
	if c.Status.IsPending() {
		return ErrCredexNotActive
	}

	activeDay, err := e.store.GetActiveDayNode(ctx)
	if err != nil {
		return err
	}

	issuer := c.IssuerID.String()
	anchor := c.ID.String()

	for {
		cycles := e.graph.Cycles(issuer, anchor)
		if len(cycles) == 0 {
			return nil
		}

		best := selectCycle(cycles)

		cleared, err := e.clearCycle(ctx, activeDay.ID, best)
		if err != nil {
			return err
		}

		e.logger.Info("credit loop cleared",
			"anchor_id", cleared.Anchor.ID,
			"day_id", activeDay.ID,
			"loop_length", len(cleared.Segments),
			"cleared_amount", cleared.Anchor.ClearedAmount,
		)
		e.plugins.EmitLoopCleared(ctx, cleared.Anchor)

		// Each pass strictly decreases total outstanding in the cycle, so
		// the fixpoint terminates.
	}
}

// selectCycle applies the selection policy: globally earliest due date first
// (absent due dates sort last), then longest cycle, then lexicographically
// smallest segment id sequence.
func selectCycle(cycles [][]graph.Edge) candidate {
	candidates := make([]candidate, 0, len(cycles))
	for _, edges := range cycles {
		candidates = append(candidates, measure(edges))
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.better(best) {
			best = cand
		}
	}
	return best
}

// measure computes the selection metrics for one cycle.
func measure(edges []graph.Edge) candidate {
	cand := candidate{
		edges:  edges,
		length: len(edges),
		lowest: edges[0].Outstanding,
	}

	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		if edge.Outstanding < cand.lowest {
			cand.lowest = edge.Outstanding
		}
		if edge.DueDate != nil {
			if cand.earliestDue == nil || edge.DueDate.Before(*cand.earliestDue) {
				due := *edge.DueDate
				cand.earliestDue = &due
			}
		}
		ids = append(ids, edge.CredexID)
	}
	cand.key = strings.Join(ids, "|")
	return cand
}

// better reports whether c should be selected over other.
func (c candidate) better(other candidate) bool {
	// Earliest due date wins; cycles with no due date sort last.
	switch {
	case c.earliestDue != nil && other.earliestDue == nil:
		return true
	case c.earliestDue == nil && other.earliestDue != nil:
		return false
	case c.earliestDue != nil && other.earliestDue != nil:
		if c.earliestDue.Before(*other.earliestDue) {
			return true
		}
		if other.earliestDue.Before(*c.earliestDue) {
			return false
		}
	}

	// Equal due dates: longest cycle wins.
	if c.length != other.length {
		return c.length > other.length
	}

	// Deterministic final tie-break.
	return c.key < other.key
}

// clearCycle nets a cycle by its lowest outstanding amount. The store commits
// the whole cycle atomically; the in-process graph is updated afterwards to
// mirror the committed state.
func (e *Engine) clearCycle(ctx context.Context, dayID id.DayNodeID, cand candidate) (*store.Clearing, error) {
	anchor := &loop.Anchor{
		Entity:        types.NewEntity(),
		ID:            id.NewLoopAnchorID(),
		DayNodeID:     dayID,
		ClearedAmount: cand.lowest,
		Multiplier:    1,
		Segments:      make([]loop.Segment, 0, len(cand.edges)),
	}

	clearing := &store.Clearing{
		Anchor:   anchor,
		Segments: make([]store.Segment, 0, len(cand.edges)),
	}

	for _, edge := range cand.edges {
		credexID, err := id.ParseCredexID(edge.CredexID)
		if err != nil {
			return nil, err
		}
		issuerID, err := id.ParseAccountID(edge.Issuer)
		if err != nil {
			return nil, err
		}
		receiverID, err := id.ParseAccountID(edge.Receiver)
		if err != nil {
			return nil, err
		}

		anchor.Segments = append(anchor.Segments, loop.Segment{
			CredexID:          credexID,
			IssuerID:          issuerID,
			ReceiverID:        receiverID,
			OutstandingBefore: edge.Outstanding,
		})
		clearing.Segments = append(clearing.Segments, store.Segment{
			CredexID: credexID,
			Amount:   cand.lowest,
			Cleared:  edge.Outstanding-cand.lowest < types.Tolerance,
		})
	}

	if err := e.store.ApplyClearing(ctx, clearing); err != nil {
		return nil, err
	}

	// Mirror the committed clearing into the search graph: fully redeemed
	// segments are retired, partial ones reduced.
	for i, edge := range cand.edges {
		if clearing.Segments[i].Cleared {
			e.graph.Remove(edge.Issuer, edge.CredexID)
			if c, err := e.store.GetCredex(ctx, clearing.Segments[i].CredexID); err == nil {
				e.plugins.EmitCredexCleared(ctx, c)
			}
		} else {
			e.graph.Reduce(edge.Issuer, edge.CredexID, cand.lowest)
		}
	}

	return clearing, nil
}
