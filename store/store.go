package store

import (
	"context"
	"time"

	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
)

// QueuedCredex is one entry of the accepted-credex queue. Entries are
// drained in AcceptedAt order.
type QueuedCredex struct {
	CredexID   id.CredexID
	AcceptedAt time.Time
}

// Segment is one credex's share of an atomic clearing.
type Segment struct {
	CredexID id.CredexID

	// Amount is deducted from outstanding and added to redeemed.
	Amount float64

	// Cleared marks segments whose outstanding reaches exact zero and
	// must transition to CLEARED.
	Cleared bool
}

// Clearing is one atomic netting event: every segment is adjusted and
// the anchor inserted together, or nothing is applied.
type Clearing struct {
	Anchor   *loop.Anchor
	Segments []Segment
}

// Store is the unified storage interface for all clearing entities.
// Instead of embedding sub-interfaces, all methods are declared
// explicitly to avoid naming conflicts.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*account.Account, error)
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error

	// Credex methods
	CreateCredex(ctx context.Context, c *credex.Credex) error
	GetCredex(ctx context.Context, credexID id.CredexID) (*credex.Credex, error)
	ListCredexes(ctx context.Context, opts credex.ListOpts) ([]*credex.Credex, error)
	UpdateCredex(ctx context.Context, c *credex.Credex) error
	ListActiveCredexes(ctx context.Context) ([]*credex.Credex, error)
	ListOverdueCredexes(ctx context.Context, asOf time.Time) ([]*credex.Credex, error)

	// Day node methods
	CreateDayNode(ctx context.Context, n *day.Node) error
	GetDayNode(ctx context.Context, dayID id.DayNodeID) (*day.Node, error)
	GetActiveDayNode(ctx context.Context) (*day.Node, error)
	ListDayNodes(ctx context.Context, opts day.ListOpts) ([]*day.Node, error)
	UpdateDayNode(ctx context.Context, n *day.Node) error

	// Loop anchor methods
	CreateLoopAnchor(ctx context.Context, a *loop.Anchor) error
	GetLoopAnchor(ctx context.Context, anchorID id.LoopAnchorID) (*loop.Anchor, error)
	ListLoopAnchors(ctx context.Context, opts loop.ListOpts) ([]*loop.Anchor, error)

	// Queue methods. Both queues are at-least-once: entries survive
	// until acked and reappear on the next drain otherwise.
	EnqueueAccount(ctx context.Context, accountID id.AccountID) error
	ListQueuedAccounts(ctx context.Context, limit int) ([]id.AccountID, error)
	AckAccount(ctx context.Context, accountID id.AccountID) error
	EnqueueCredex(ctx context.Context, credexID id.CredexID, acceptedAt time.Time) error
	ListQueuedCredexes(ctx context.Context, limit int) ([]QueuedCredex, error)
	AckCredex(ctx context.Context, credexID id.CredexID) error

	// ApplyClearing applies one netting event atomically: deduct each
	// segment, transition exact-zero segments to CLEARED, insert the
	// anchor. Partial application is never visible.
	ApplyClearing(ctx context.Context, c *Clearing) error

	// RescaleAmounts reprices every non-terminal credex against dayID's
	// rate table: CXX-denominated instruments have amounts and multiplier
	// scaled by ratio, foreign-currency instruments have their multiplier
	// set to the day's rate for their denomination with amounts scaled by
	// newRate/oldMultiplier (a denomination missing from the table falls
	// back to ratio). Loop anchors scale by ratio. Display value
	// (amount / multiplier) is preserved for every instrument. The call
	// advances dayID's rebase step cursor to day.StepRescaled in the same
	// atomic unit; a repeat call after the cursor has advanced is a
	// no-op, so an interrupted rebase can safely retry the step.
	RescaleAmounts(ctx context.Context, dayID id.DayNodeID, ratio float64) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
