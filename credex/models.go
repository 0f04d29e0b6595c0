// Package credex defines the credex debt instrument and its state machine.
package credex

import (
	"math"
	"time"

	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/types"
)

// Status is the lifecycle state of a credex.
type Status string

const (
	StatusPendingOffer   Status = "PENDING_OFFER"
	StatusPendingRequest Status = "PENDING_REQUEST"
	StatusActive         Status = "ACTIVE" // accepted; an OWES edge in the debt graph
	StatusCleared        Status = "CLEARED"
	StatusDefaulted      Status = "DEFAULTED"
	StatusCancelled      Status = "CANCELLED"
	StatusDeclined       Status = "DECLINED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCleared, StatusDefaulted, StatusCancelled, StatusDeclined:
		return true
	}
	return false
}

// IsPending reports whether the credex awaits acceptance.
func (s Status) IsPending() bool {
	return s == StatusPendingOffer || s == StatusPendingRequest
}

// Type classifies the purpose of a credex.
type Type string

const (
	TypePurchase        Type = "PURCHASE"
	TypeOfferingGive    Type = "DCO_GIVE"    // participant pledge to the foundation
	TypeOfferingReceive Type = "DCO_RECEIVE" // one numeraire unit back to the participant
)

// Credex is a debt instrument. All five amount fields are stored in
// canonical numeraire (CXX) units; the display value in the instrument's
// denomination is amount / Multiplier.
//
// Conservation invariant, maintained at every point in time:
//
//	InitialAmount == OutstandingAmount + RedeemedAmount +
//	                 DefaultedAmount + WrittenOffAmount
type Credex struct {
	types.Entity
	ID           id.CredexID  `json:"id"`
	IssuerID     id.AccountID `json:"issuer_id"`
	ReceiverID   id.AccountID `json:"receiver_id"`
	Denomination string       `json:"denomination"`

	// Multiplier is the numeraire exchange rate of Denomination snapshotted
	// at creation time (CXX per one display unit). Updated only by rebasing.
	Multiplier float64 `json:"multiplier"`

	InitialAmount     float64 `json:"initial_amount"`
	OutstandingAmount float64 `json:"outstanding_amount"`
	RedeemedAmount    float64 `json:"redeemed_amount"`
	DefaultedAmount   float64 `json:"defaulted_amount"`
	WrittenOffAmount  float64 `json:"written_off_amount"`

	// DueDate is optional; absent means no due date (always securable,
	// sorts last in loop selection).
	DueDate *time.Time `json:"due_date,omitempty"`

	Secured   bool         `json:"secured"`
	SecurerID id.AccountID `json:"securer_id,omitempty"`

	Type   Type   `json:"type"`
	Status Status `json:"status"`

	// AcceptedAt is the monotonic acceptance timestamp; queue processing
	// strictly follows this order.
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	// DayNodeID links the instrument to the day whose rate it snapshotted.
	DayNodeID id.DayNodeID `json:"day_node_id"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConservationOK verifies the conservation invariant within floating tolerance.
func (c *Credex) ConservationOK() bool {
	sum := c.OutstandingAmount + c.RedeemedAmount + c.DefaultedAmount + c.WrittenOffAmount
	return types.EqualWithin(c.InitialAmount, sum)
}

// Outstanding returns the outstanding balance in numeraire units.
func (c *Credex) Outstanding() types.Amount {
	return types.CXX(c.OutstandingAmount)
}

// DisplayOutstanding returns the outstanding balance in the instrument's
// denomination.
func (c *Credex) DisplayOutstanding() types.Amount {
	return types.In(c.Denomination, c.OutstandingAmount/c.Multiplier)
}

// FaceValue returns the initial amount in the instrument's denomination.
func (c *Credex) FaceValue() types.Amount {
	return types.In(c.Denomination, c.InitialAmount/c.Multiplier)
}

// Overdue reports whether the credex has a due date that elapsed before asOf.
func (c *Credex) Overdue(asOf time.Time) bool {
	return c.DueDate != nil && c.DueDate.Before(asOf)
}

// CanTransition reports whether the state machine permits moving to next.
func (c *Credex) CanTransition(next Status) bool {
	if c.Status.IsTerminal() {
		return false
	}
	switch next {
	case StatusActive:
		return c.Status.IsPending()
	case StatusDeclined, StatusCancelled:
		return c.Status.IsPending()
	case StatusCleared, StatusDefaulted:
		return c.Status == StatusActive
	}
	return false
}

// Redeem moves amount (numeraire units) from outstanding to redeemed.
// The caller is responsible for not redeeming more than is outstanding.
func (c *Credex) Redeem(amount float64) {
	c.OutstandingAmount -= amount
	c.RedeemedAmount += amount
	// Snap exact zero so cleared instruments don't carry residual dust.
	if math.Abs(c.OutstandingAmount) < types.Tolerance {
		c.RedeemedAmount += c.OutstandingAmount
		c.OutstandingAmount = 0
	}
}

// Default moves the entire outstanding balance to defaulted.
func (c *Credex) Default() {
	c.DefaultedAmount += c.OutstandingAmount
	c.OutstandingAmount = 0
	c.Status = StatusDefaulted
}

// ListOpts filters credex listings.
type ListOpts struct {
	Status       Status
	Denomination string
	IssuerID     id.AccountID
	ReceiverID   id.AccountID
	SecurerID    id.AccountID
	DueBefore    time.Time
	Limit        int
	Offset       int
}
