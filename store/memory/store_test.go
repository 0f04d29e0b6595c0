package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/clearing"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	"github.com/xraph/clearing/store"
	"github.com/xraph/clearing/types"
)

func newActiveCredex(amount float64) *credex.Credex {
	return &credex.Credex{
		Entity:            types.NewEntity(),
		ID:                id.NewCredexID(),
		IssuerID:          id.NewAccountID(),
		ReceiverID:        id.NewAccountID(),
		Denomination:      "USD",
		Multiplier:        1,
		InitialAmount:     amount,
		OutstandingAmount: amount,
		Status:            credex.StatusActive,
		Type:              credex.TypePurchase,
	}
}

func newAnchor(segments ...loop.Segment) *loop.Anchor {
	return &loop.Anchor{
		Entity:     types.NewEntity(),
		ID:         id.NewLoopAnchorID(),
		Multiplier: 1,
		Segments:   segments,
	}
}

func TestApplyClearingAtomicity(t *testing.T) {
	s := New()
	ctx := context.Background()

	active := newActiveCredex(10)
	pending := newActiveCredex(10)
	pending.Status = credex.StatusPendingOffer
	if err := s.CreateCredex(ctx, active); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateCredex(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	anchor := newAnchor(
		loop.Segment{CredexID: active.ID},
		loop.Segment{CredexID: pending.ID},
	)
	err := s.ApplyClearing(ctx, &store.Clearing{
		Anchor: anchor,
		Segments: []store.Segment{
			{CredexID: active.ID, Amount: 10, Cleared: true},
			{CredexID: pending.ID, Amount: 10, Cleared: true},
		},
	})
	if !errors.Is(err, clearing.ErrCredexNotActive) {
		t.Fatalf("err = %v, want ErrCredexNotActive", err)
	}

	// The ineligible segment must have blocked the whole event.
	got, _ := s.GetCredex(ctx, active.ID)
	if !types.EqualWithin(got.OutstandingAmount, 10) {
		t.Errorf("outstanding = %v, want 10 (untouched)", got.OutstandingAmount)
	}
	anchors, _ := s.ListLoopAnchors(ctx, loop.ListOpts{})
	if len(anchors) != 0 {
		t.Errorf("anchors = %d, want 0", len(anchors))
	}
}

func TestApplyClearingRedeemsAndClears(t *testing.T) {
	s := New()
	ctx := context.Background()

	full := newActiveCredex(10)
	partial := newActiveCredex(25)
	if err := s.CreateCredex(ctx, full); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateCredex(ctx, partial); err != nil {
		t.Fatalf("create: %v", err)
	}

	anchor := newAnchor(
		loop.Segment{CredexID: full.ID, OutstandingBefore: 10},
		loop.Segment{CredexID: partial.ID, OutstandingBefore: 25},
	)
	anchor.ClearedAmount = 10
	err := s.ApplyClearing(ctx, &store.Clearing{
		Anchor: anchor,
		Segments: []store.Segment{
			{CredexID: full.ID, Amount: 10, Cleared: true},
			{CredexID: partial.ID, Amount: 10, Cleared: false},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	gotFull, _ := s.GetCredex(ctx, full.ID)
	if gotFull.Status != credex.StatusCleared || gotFull.OutstandingAmount != 0 {
		t.Errorf("full: status %s outstanding %v, want CLEARED 0", gotFull.Status, gotFull.OutstandingAmount)
	}
	gotPartial, _ := s.GetCredex(ctx, partial.ID)
	if gotPartial.Status != credex.StatusActive || !types.EqualWithin(gotPartial.OutstandingAmount, 15) {
		t.Errorf("partial: status %s outstanding %v, want ACTIVE 15", gotPartial.Status, gotPartial.OutstandingAmount)
	}
	if !gotFull.ConservationOK() || !gotPartial.ConservationOK() {
		t.Error("conservation violated")
	}

	anchors, _ := s.ListLoopAnchors(ctx, loop.ListOpts{})
	if len(anchors) != 1 {
		t.Fatalf("anchors = %d, want 1", len(anchors))
	}
}

func TestRescaleAmountsAppliesOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	c := newActiveCredex(10)
	if err := s.CreateCredex(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	foreign := newActiveCredex(12.5)
	foreign.Denomination = "EUR"
	foreign.Multiplier = 1.25
	if err := s.CreateCredex(ctx, foreign); err != nil {
		t.Fatalf("create: %v", err)
	}
	native := newActiveCredex(8)
	native.Denomination = types.DenomCXX
	if err := s.CreateCredex(ctx, native); err != nil {
		t.Fatalf("create: %v", err)
	}
	terminal := newActiveCredex(7)
	terminal.Status = credex.StatusCleared
	if err := s.CreateCredex(ctx, terminal); err != nil {
		t.Fatalf("create: %v", err)
	}

	n := day.New(time.Now().UTC(), 2, "USD", map[string]float64{"USD": 0.5, "EUR": 0.75})
	n.RebaseStep = day.StepCreated
	if err := s.CreateDayNode(ctx, n); err != nil {
		t.Fatalf("create day: %v", err)
	}

	if err := s.RescaleAmounts(ctx, n.ID, 0.5); err != nil {
		t.Fatalf("rescale: %v", err)
	}

	// Foreign-currency instruments are repriced to the day's rate with
	// face value intact.
	got, _ := s.GetCredex(ctx, c.ID)
	if !types.EqualWithin(got.OutstandingAmount, 5) || !types.EqualWithin(got.Multiplier, 0.5) {
		t.Errorf("USD: outstanding %v multiplier %v, want 5 and 0.5", got.OutstandingAmount, got.Multiplier)
	}
	gotForeign, _ := s.GetCredex(ctx, foreign.ID)
	if !types.EqualWithin(gotForeign.OutstandingAmount, 7.5) || !types.EqualWithin(gotForeign.Multiplier, 0.75) {
		t.Errorf("EUR: outstanding %v multiplier %v, want 7.5 and 0.75",
			gotForeign.OutstandingAmount, gotForeign.Multiplier)
	}
	if !types.EqualWithin(gotForeign.OutstandingAmount/gotForeign.Multiplier, 10) {
		t.Errorf("EUR display = %v, want 10", gotForeign.OutstandingAmount/gotForeign.Multiplier)
	}

	// CXX-denominated instruments revalue with the numeraire.
	gotNative, _ := s.GetCredex(ctx, native.ID)
	if !types.EqualWithin(gotNative.OutstandingAmount, 4) || !types.EqualWithin(gotNative.Multiplier, 0.5) {
		t.Errorf("CXX: outstanding %v multiplier %v, want 4 and 0.5",
			gotNative.OutstandingAmount, gotNative.Multiplier)
	}

	// Terminal instruments keep their historical amounts.
	gotTerminal, _ := s.GetCredex(ctx, terminal.ID)
	if !types.EqualWithin(gotTerminal.InitialAmount, 7) {
		t.Errorf("terminal initial = %v, want 7", gotTerminal.InitialAmount)
	}

	// A retried rescale against the same day is a no-op.
	if err := s.RescaleAmounts(ctx, n.ID, 0.5); err != nil {
		t.Fatalf("retry rescale: %v", err)
	}
	got, _ = s.GetCredex(ctx, c.ID)
	if !types.EqualWithin(got.OutstandingAmount, 5) {
		t.Errorf("outstanding after retry = %v, want 5 (no double scale)", got.OutstandingAmount)
	}

	gotDay, _ := s.GetDayNode(ctx, n.ID)
	if gotDay.RebaseStep != day.StepRescaled {
		t.Errorf("cursor = %s, want %s", gotDay.RebaseStep, day.StepRescaled)
	}
}

func TestCredexQueueOrderAndAck(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	first := id.NewCredexID()
	second := id.NewCredexID()
	if err := s.EnqueueCredex(ctx, second, base.Add(time.Nanosecond)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.EnqueueCredex(ctx, first, base); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Re-enqueueing the same instrument is a no-op.
	if err := s.EnqueueCredex(ctx, first, base.Add(time.Hour)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	queued, err := s.ListQueuedCredexes(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("queued = %d, want 2", len(queued))
	}
	if queued[0].CredexID != first || queued[1].CredexID != second {
		t.Error("queue not ordered by acceptance time")
	}

	if err := s.AckCredex(ctx, first); err != nil {
		t.Fatalf("ack: %v", err)
	}
	queued, _ = s.ListQueuedCredexes(ctx, 10)
	if len(queued) != 1 || queued[0].CredexID != second {
		t.Errorf("after ack: %d entries", len(queued))
	}
	// Acking an absent entry is not an error.
	if err := s.AckCredex(ctx, first); err != nil {
		t.Errorf("double ack: %v", err)
	}
}

func TestActiveDayHandover(t *testing.T) {
	s := New()
	ctx := context.Background()

	old := day.New(time.Now().UTC().AddDate(0, 0, -1), 1, "USD", map[string]float64{"USD": 1})
	old.Active = true
	old.RebaseStep = day.StepDone
	if err := s.CreateDayNode(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetActiveDayNode(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got.ID != old.ID {
		t.Fatalf("active = %s, want %s", got.ID, old.ID)
	}

	next := day.New(time.Now().UTC(), 1, "USD", map[string]float64{"USD": 1})
	next.RebasingInProgress = true
	next.RebaseStep = day.StepCreated
	next.PrevID = old.ID
	if err := s.CreateDayNode(ctx, next); err != nil {
		t.Fatalf("create: %v", err)
	}

	old.Active = false
	if err := s.UpdateDayNode(ctx, old); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.GetActiveDayNode(ctx); !errors.Is(err, clearing.ErrNoActiveDay) {
		t.Fatalf("err = %v, want ErrNoActiveDay", err)
	}

	next.Active = true
	if err := s.UpdateDayNode(ctx, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = s.GetActiveDayNode(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got.ID != next.ID {
		t.Errorf("active = %s, want %s", got.ID, next.ID)
	}
}
