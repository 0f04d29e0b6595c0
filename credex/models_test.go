package credex

import (
	"testing"
	"time"

	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/types"
)

func newActive(outstanding float64) *Credex {
	return &Credex{
		Entity:            types.NewEntity(),
		ID:                id.NewCredexID(),
		IssuerID:          id.NewAccountID(),
		ReceiverID:        id.NewAccountID(),
		Denomination:      "USD",
		Multiplier:        1.5,
		InitialAmount:     outstanding,
		OutstandingAmount: outstanding,
		Type:              TypePurchase,
		Status:            StatusActive,
	}
}

func TestConservation(t *testing.T) {
	c := newActive(15)

	if !c.ConservationOK() {
		t.Fatal("fresh credex should conserve")
	}

	c.Redeem(5)
	if !c.ConservationOK() {
		t.Error("conservation violated after partial redemption")
	}

	c.Redeem(10)
	if !c.ConservationOK() {
		t.Error("conservation violated after full redemption")
	}
	if c.OutstandingAmount != 0 {
		t.Errorf("outstanding should be exactly zero, got %v", c.OutstandingAmount)
	}
}

func TestRedeemSnapsDust(t *testing.T) {
	c := newActive(10)
	// Three thirds never sum to exactly 10 in binary floating point.
	third := 10.0 / 3.0
	c.Redeem(third)
	c.Redeem(third)
	c.Redeem(10 - 2*third)

	if c.OutstandingAmount != 0 {
		t.Errorf("outstanding should snap to exact zero, got %v", c.OutstandingAmount)
	}
	if !c.ConservationOK() {
		t.Error("conservation violated after dust snap")
	}
}

func TestDefault(t *testing.T) {
	c := newActive(15)
	c.Default()

	if c.Status != StatusDefaulted {
		t.Errorf("status: got %s, want %s", c.Status, StatusDefaulted)
	}
	if c.OutstandingAmount != 0 {
		t.Errorf("outstanding: got %v, want 0", c.OutstandingAmount)
	}
	if c.DefaultedAmount != 15 {
		t.Errorf("defaulted: got %v, want 15", c.DefaultedAmount)
	}
	if !c.ConservationOK() {
		t.Error("conservation violated after default")
	}
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"offer to active", StatusPendingOffer, StatusActive, true},
		{"request to active", StatusPendingRequest, StatusActive, true},
		{"offer to declined", StatusPendingOffer, StatusDeclined, true},
		{"offer to cancelled", StatusPendingOffer, StatusCancelled, true},
		{"active to cleared", StatusActive, StatusCleared, true},
		{"active to defaulted", StatusActive, StatusDefaulted, true},
		{"offer to cleared", StatusPendingOffer, StatusCleared, false},
		{"active to declined", StatusActive, StatusDeclined, false},
		{"cleared is terminal", StatusCleared, StatusActive, false},
		{"defaulted is terminal", StatusDefaulted, StatusCleared, false},
		{"declined is terminal", StatusDeclined, StatusActive, false},
		{"cancelled is terminal", StatusCancelled, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newActive(1)
			c.Status = tt.from
			if got := c.CanTransition(tt.to); got != tt.ok {
				t.Errorf("CanTransition(%s -> %s): got %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestDisplayValues(t *testing.T) {
	c := newActive(15) // multiplier 1.5 -> 10 USD face

	face := c.FaceValue()
	if face.Denom != "USD" || !types.EqualWithin(face.Value, 10) {
		t.Errorf("face value: got %v, want 10 USD", face)
	}

	c.Redeem(7.5)
	disp := c.DisplayOutstanding()
	if !types.EqualWithin(disp.Value, 5) {
		t.Errorf("display outstanding: got %v, want 5 USD", disp)
	}
}

func TestOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := newActive(1)
	if c.Overdue(now) {
		t.Error("credex without due date can never be overdue")
	}

	c.DueDate = &past
	if !c.Overdue(now) {
		t.Error("elapsed due date should be overdue")
	}

	c.DueDate = &future
	if c.Overdue(now) {
		t.Error("future due date should not be overdue")
	}
}
