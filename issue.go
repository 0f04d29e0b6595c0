package clearing

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/graph"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	"github.com/xraph/clearing/types"
)

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// RegisterAccount creates a new account and enqueues it for mirroring into
// the search graph.
func (e *Engine) RegisterAccount(ctx context.Context, a *account.Account) error {
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "account name is required"}
	}
	if a.Type == "" {
		return &ValidationError{Field: "type", Message: "account type is required"}
	}
	if a.DefaultDenom == "" {
		return &ValidationError{Field: "default_denom", Message: "default denomination is required"}
	}
	if a.PledgeAmount < 0 {
		return &ValidationError{Field: "pledge_amount", Message: "pledge amount must not be negative"}
	}
	if a.PledgeAmount > 0 && a.PledgeDenom == "" {
		return &ValidationError{Field: "pledge_denom", Message: "pledge denomination is required with a pledge amount"}
	}

	if a.ID.IsNil() {
		a.ID = id.NewAccountID()
	}
	a.Entity = types.NewEntity()

	if err := e.store.CreateAccount(ctx, a); err != nil {
		return err
	}

	if err := e.store.EnqueueAccount(ctx, a.ID); err != nil {
		e.logger.Warn("failed to enqueue account for mirroring",
			"account_id", a.ID,
			"error", err,
		)
	}

	e.plugins.EmitAccountRegistered(ctx, a)
	return nil
}

// GetAccount retrieves an account by ID.
func (e *Engine) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// GetAccountByHandle retrieves an account by its unique handle.
func (e *Engine) GetAccountByHandle(ctx context.Context, handle string) (*account.Account, error) {
	return e.store.GetAccountByHandle(ctx, handle)
}

// ListAccounts lists accounts matching the given filter.
func (e *Engine) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return e.store.ListAccounts(ctx, opts)
}

// ──────────────────────────────────────────────────
// Credex Issuance
// ──────────────────────────────────────────────────

// IssueSpec describes a credex to be issued.
type IssueSpec struct {
	IssuerID     id.AccountID
	ReceiverID   id.AccountID
	Denomination string

	// Amount is the face value in display units of Denomination.
	Amount float64

	Type    credex.Type
	DueDate *time.Time
	Secured bool

	// Request issues a PENDING_REQUEST instead of a PENDING_OFFER.
	Request bool
}

// IssueCredex validates the request, applies the collateral authorizer for
// secured issues, and persists a pending credex. The active day's rate for
// the denomination is snapshotted as the instrument's multiplier; the stored
// amount is display amount times multiplier.
func (e *Engine) IssueCredex(ctx context.Context, spec IssueSpec) (*credex.Credex, error) {
	if spec.IssuerID.IsNil() {
		return nil, &ValidationError{Field: "issuer_id", Message: "issuer is required"}
	}
	if spec.ReceiverID.IsNil() {
		return nil, &ValidationError{Field: "receiver_id", Message: "receiver is required"}
	}
	if spec.IssuerID == spec.ReceiverID {
		return nil, ErrSelfIssue
	}
	if spec.Denomination == "" {
		return nil, &ValidationError{Field: "denomination", Message: "denomination is required"}
	}
	if spec.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if spec.Type == "" {
		spec.Type = credex.TypePurchase
	}

	if _, err := e.store.GetAccount(ctx, spec.IssuerID); err != nil {
		return nil, err
	}
	if _, err := e.store.GetAccount(ctx, spec.ReceiverID); err != nil {
		return nil, err
	}

	activeDay, err := e.store.GetActiveDayNode(ctx)
	if err != nil {
		return nil, err
	}
	rate, ok := activeDay.Rate(spec.Denomination)
	if !ok {
		return nil, ErrUnknownDenom
	}

	var securerID id.AccountID
	if spec.Secured {
		auth, err := e.GetSecuredAuthorization(ctx, spec.IssuerID, spec.Denomination)
		if err != nil {
			return nil, err
		}
		if !auth.Unbounded && auth.Securable < spec.Amount-types.Tolerance {
			e.plugins.EmitAuthorizationDenied(ctx,
				spec.IssuerID.String(), spec.Denomination, auth.Securable, spec.Amount)
			return nil, &AuthorizationError{
				AccountID: spec.IssuerID.String(),
				SecurerID: auth.SecurerID.String(),
				Denom:     spec.Denomination,
				Ceiling:   auth.Securable,
				Requested: spec.Amount,
			}
		}
		securerID = auth.SecurerID
	}

	status := credex.StatusPendingOffer
	if spec.Request {
		status = credex.StatusPendingRequest
	}

	native := spec.Amount * rate
	c := &credex.Credex{
		Entity:            types.NewEntity(),
		ID:                id.NewCredexID(),
		IssuerID:          spec.IssuerID,
		ReceiverID:        spec.ReceiverID,
		Denomination:      spec.Denomination,
		Multiplier:        rate,
		InitialAmount:     native,
		OutstandingAmount: native,
		DueDate:           spec.DueDate,
		Secured:           spec.Secured,
		SecurerID:         securerID,
		Type:              spec.Type,
		Status:            status,
		DayNodeID:         activeDay.ID,
	}

	if err := e.store.CreateCredex(ctx, c); err != nil {
		return nil, err
	}

	e.logger.Debug("credex issued",
		"credex_id", c.ID,
		"issuer_id", c.IssuerID,
		"receiver_id", c.ReceiverID,
		"denomination", c.Denomination,
		"amount", spec.Amount,
		"secured", c.Secured,
	)

	e.plugins.EmitCredexIssued(ctx, c)
	return c, nil
}

// AcceptCredex moves a pending credex to ACTIVE, stamps a monotonic
// acceptance time, mirrors the new debt edge into the search graph, and
// enqueues the instrument for loop finding.
func (e *Engine) AcceptCredex(ctx context.Context, credexID id.CredexID) (*credex.Credex, error) {
	c, err := e.store.GetCredex(ctx, credexID)
	if err != nil {
		return nil, err
	}
	if !c.Status.IsPending() {
		return nil, ErrCredexNotPending
	}

	prevStatus := c.Status
	acceptedAt := e.nextAcceptTime()
	c.Status = credex.StatusActive
	c.AcceptedAt = &acceptedAt
	c.Touch()

	if err := e.store.UpdateCredex(ctx, c); err != nil {
		return nil, err
	}

	// Without a queue entry no drain pass ever feeds this instrument to
	// the loop finder, so a failed enqueue fails the acceptance and the
	// instrument is returned to pending.
	if err := e.store.EnqueueCredex(ctx, c.ID, acceptedAt); err != nil {
		c.Status = prevStatus
		c.AcceptedAt = nil
		c.Touch()
		if revertErr := e.store.UpdateCredex(ctx, c); revertErr != nil {
			return nil, ConsistencyError{
				Op:     "AcceptCredex",
				Detail: "enqueue failed and status revert failed, credex active but unqueued",
				Err:    revertErr,
			}
		}
		return nil, fmt.Errorf("enqueue accepted credex: %w", err)
	}

	e.graph.Upsert(graph.Edge{
		CredexID:    c.ID.String(),
		Issuer:      c.IssuerID.String(),
		Receiver:    c.ReceiverID.String(),
		Outstanding: c.OutstandingAmount,
		DueDate:     c.DueDate,
	})

	e.plugins.EmitCredexAccepted(ctx, c)
	return c, nil
}

// DeclineCredex moves a pending credex to DECLINED.
func (e *Engine) DeclineCredex(ctx context.Context, credexID id.CredexID) error {
	return e.retirePending(ctx, credexID, credex.StatusDeclined)
}

// CancelCredex moves a pending credex to CANCELLED.
func (e *Engine) CancelCredex(ctx context.Context, credexID id.CredexID) error {
	return e.retirePending(ctx, credexID, credex.StatusCancelled)
}

func (e *Engine) retirePending(ctx context.Context, credexID id.CredexID, next credex.Status) error {
	c, err := e.store.GetCredex(ctx, credexID)
	if err != nil {
		return err
	}
	if !c.CanTransition(next) {
		return ErrCredexNotPending
	}

	c.Status = next
	c.Touch()
	if err := e.store.UpdateCredex(ctx, c); err != nil {
		return err
	}

	switch next {
	case credex.StatusDeclined:
		e.plugins.EmitCredexDeclined(ctx, c)
	case credex.StatusCancelled:
		e.plugins.EmitCredexCancelled(ctx, c)
	}
	return nil
}

// GetCredex retrieves a credex by ID.
func (e *Engine) GetCredex(ctx context.Context, credexID id.CredexID) (*credex.Credex, error) {
	return e.store.GetCredex(ctx, credexID)
}

// ListCredexes lists credexes matching the given filter.
func (e *Engine) ListCredexes(ctx context.Context, opts credex.ListOpts) ([]*credex.Credex, error) {
	return e.store.ListCredexes(ctx, opts)
}

// ListLoopAnchors lists netting records matching the given filter.
func (e *Engine) ListLoopAnchors(ctx context.Context, opts loop.ListOpts) ([]*loop.Anchor, error) {
	return e.store.ListLoopAnchors(ctx, opts)
}

// GetActiveDay returns the single active day node.
func (e *Engine) GetActiveDay(ctx context.Context) (*day.Node, error) {
	return e.store.GetActiveDayNode(ctx)
}

// nextAcceptTime returns a strictly increasing acceptance timestamp.
func (e *Engine) nextAcceptTime() time.Time {
	e.acceptMu.Lock()
	defer e.acceptMu.Unlock()

	now := time.Now().UTC()
	if !now.After(e.lastAccepted) {
		now = e.lastAccepted.Add(time.Nanosecond)
	}
	e.lastAccepted = now
	return now
}
