// Package loop models cleared credit loops. An anchor is the permanent
// record of one netting event: which segments participated and how much
// was cleared around the cycle.
package loop

import (
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/types"
)

// Segment is one credex's participation in a cleared loop, captured at
// the moment of clearing.
type Segment struct {
	CredexID   id.CredexID  `json:"credex_id"`
	IssuerID   id.AccountID `json:"issuer_id"`
	ReceiverID id.AccountID `json:"receiver_id"`

	// OutstandingBefore is the segment's outstanding CXX amount before
	// the cleared amount was deducted.
	OutstandingBefore float64 `json:"outstanding_before"`
}

// Anchor is the permanent record of a cleared loop. ClearedAmount is
// stored in CXX units and rescaled on each rebase alongside credexes;
// Multiplier tracks the CXX valuation so display values stay fixed.
type Anchor struct {
	types.Entity

	ID        id.LoopAnchorID `json:"id"`
	DayNodeID id.DayNodeID    `json:"day_node_id"`

	ClearedAmount float64 `json:"cleared_amount"`
	Multiplier    float64 `json:"multiplier"`

	Segments []Segment `json:"segments"`
}

// DisplayCleared returns the cleared amount in the reference display
// frame fixed at clearing time.
func (a *Anchor) DisplayCleared() float64 {
	if a.Multiplier == 0 {
		return 0
	}
	return a.ClearedAmount / a.Multiplier
}

// CredexIDs returns the segment credex ids in loop order.
func (a *Anchor) CredexIDs() []id.CredexID {
	out := make([]id.CredexID, len(a.Segments))
	for i, s := range a.Segments {
		out[i] = s.CredexID
	}
	return out
}

// Rescale applies a rebase ratio to the anchor, preserving the display
// value by scaling amount and multiplier together.
func (a *Anchor) Rescale(ratio float64) {
	a.ClearedAmount *= ratio
	a.Multiplier *= ratio
	a.Touch()
}

// ListOpts filters loop anchor listings.
type ListOpts struct {
	DayNodeID id.DayNodeID
	CredexID  id.CredexID
	Limit     int
	Offset    int
}
