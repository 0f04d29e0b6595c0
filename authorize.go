package clearing

import (
	"context"

	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/id"
)

// Authorization is the result of a collateral authorization check.
type Authorization struct {
	// SecurerID identifies the account whose collateral backs the
	// authorization. For unbounded audited-trust results this is the
	// checked account itself.
	SecurerID id.AccountID

	// Securable is the ceiling in display units of the requested
	// denomination. Meaningless when Unbounded is true.
	Securable float64

	// Unbounded is true when the account is audited-trusted and may issue
	// secured debt without a ceiling.
	Unbounded bool
}

// GetSecuredAuthorization computes how much the account may issue as
// collateral-backed debt in the given denomination.
//
// Audited-trust accounts (audited by the foundation directly, or audited by
// an account the foundation audits) are unbounded and self-secured. Otherwise
// the ceiling is the maximum over securers S of
//
//	net(S) = inbound secured debt owed to the account backed by S
//	       - outbound secured debt owed or offered by the account backed by S
//
// restricted to the denomination and converted to display units via a single
// active-day rate snapshot. Collateral from different securers does not
// stack. The routine is read-only and safe to call concurrently.
func (e *Engine) GetSecuredAuthorization(ctx context.Context, accountID id.AccountID, denom string) (*Authorization, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if e.auditedTrusted(ctx, acct.ID, acct.AuditedBy) {
		return &Authorization{SecurerID: acct.ID, Unbounded: true}, nil
	}

	// One rate snapshot for the whole call; rates from two different days
	// must never mix within a single authorization.
	activeDay, err := e.store.GetActiveDayNode(ctx)
	if err != nil {
		return nil, err
	}
	rate, ok := activeDay.Rate(denom)
	if !ok {
		return nil, ErrUnknownDenom
	}

	net := make(map[string]float64)

	// Inbound collateralized debt owed to the account.
	inbound, err := e.store.ListCredexes(ctx, credex.ListOpts{
		ReceiverID:   accountID,
		Denomination: denom,
	})
	if err != nil {
		return nil, err
	}
	for _, c := range inbound {
		if !c.Secured || c.SecurerID.IsNil() || c.Status != credex.StatusActive {
			continue
		}
		net[c.SecurerID.String()] += c.OutstandingAmount / rate
	}

	// Outbound secured debt owed or offered by the account.
	outbound, err := e.store.ListCredexes(ctx, credex.ListOpts{
		IssuerID:     accountID,
		Denomination: denom,
	})
	if err != nil {
		return nil, err
	}
	for _, c := range outbound {
		if !c.Secured || c.SecurerID.IsNil() {
			continue
		}
		if c.Status != credex.StatusActive && !c.Status.IsPending() {
			continue
		}
		net[c.SecurerID.String()] -= c.OutstandingAmount / rate
	}

	auth := &Authorization{}
	bestKey := ""
	for key, v := range net {
		if v > auth.Securable || (v == auth.Securable && bestKey != "" && key < bestKey) {
			securerID, err := id.ParseAccountID(key)
			if err != nil {
				continue
			}
			auth.Securable = v
			auth.SecurerID = securerID
			bestKey = key
		}
	}
	if auth.Securable < 0 {
		auth.Securable = 0
	}

	return auth, nil
}

// auditedTrusted reports whether the account is reachable from the trust
// root via audit edges, directly or through one intermediate auditor.
func (e *Engine) auditedTrusted(ctx context.Context, accountID, auditedBy id.AccountID) bool {
	if e.foundationID.IsNil() {
		return false
	}
	if accountID == e.foundationID {
		return true
	}
	if auditedBy.IsNil() {
		return false
	}
	if auditedBy == e.foundationID {
		return true
	}

	auditor, err := e.store.GetAccount(ctx, auditedBy)
	if err != nil {
		return false
	}
	return auditor.AuditedBy == e.foundationID
}
