// Package day models the clearing calendar. Each node carries the CXX
// valuation and the per-denomination rates that were in force for that
// day, chained to its predecessor and successor.
package day

import (
	"time"

	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/types"
)

// Rebase step cursors. A node records the last completed step of its
// creation pipeline so an interrupted run can resume where it stopped.
const (
	StepNone     = ""
	StepCreated  = "created"
	StepRescaled = "rescaled"
	StepSettling = "settling"
	StepDone     = "done"
)

// Node is one day in the clearing calendar.
type Node struct {
	types.Entity

	ID   id.DayNodeID `json:"id"`
	Date time.Time    `json:"date"` // UTC midnight

	// Active marks the single node the system currently operates
	// against. Exactly one node is active at any time.
	Active bool `json:"active"`

	// RebasingInProgress is set while the daily pipeline runs against
	// this node. Queue draining is suspended while it is set.
	RebasingInProgress bool `json:"rebasing_in_progress"`

	// RebaseStep is the last completed step of this node's creation
	// pipeline, from the Step constants above. A fully created node
	// carries StepDone.
	RebaseStep string `json:"rebase_step"`

	// CXXValue is the value of 1 CXX expressed in RefDenom.
	CXXValue float64 `json:"cxx_value"`
	RefDenom string  `json:"ref_denom"`

	// Rates maps each denomination to CXX per one unit of it, as of
	// this day. The CXX entry is always 1.
	Rates map[string]float64 `json:"rates"`

	PrevID id.DayNodeID `json:"prev_id"`
	NextID id.DayNodeID `json:"next_id"`

	// SettledParticipants records accounts whose offset settlement
	// credexes have already been issued during this node's creation,
	// so a resumed run does not issue them twice.
	SettledParticipants []string `json:"settled_participants,omitempty"`
}

// New returns a node for the given calendar date with the supplied
// valuation. The date is normalized to UTC midnight.
func New(date time.Time, cxxValue float64, refDenom string, rates map[string]float64) *Node {
	if rates == nil {
		rates = make(map[string]float64)
	}
	rates[types.DenomCXX] = 1

	return &Node{
		Entity:   types.NewEntity(),
		ID:       id.NewDayNodeID(),
		Date:     time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		CXXValue: cxxValue,
		RefDenom: refDenom,
		Rates:    rates,
	}
}

// Rate returns CXX per one unit of denom. The CXX rate is always 1.
func (n *Node) Rate(denom string) (float64, bool) {
	if denom == types.DenomCXX {
		return 1, true
	}
	r, ok := n.Rates[denom]
	if !ok || r <= 0 {
		return 0, false
	}
	return r, true
}

// HasSettled reports whether the account already received its offset
// settlement during this node's creation.
func (n *Node) HasSettled(accountID string) bool {
	for _, p := range n.SettledParticipants {
		if p == accountID {
			return true
		}
	}
	return false
}

// MarkSettled records the account as settled, idempotently.
func (n *Node) MarkSettled(accountID string) {
	if n.HasSettled(accountID) {
		return
	}
	n.SettledParticipants = append(n.SettledParticipants, accountID)
}

// ListOpts filters day node listings.
type ListOpts struct {
	Before time.Time
	After  time.Time
	Limit  int
	Offset int
}
