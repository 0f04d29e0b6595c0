// Package account defines member, company, and foundation accounts.
package account

import (
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/types"
)

// Type classifies an account.
type Type string

const (
	TypeHuman      Type = "HUMAN"
	TypeCompany    Type = "COMPANY"
	TypeFoundation Type = "FOUNDATION"
)

// Account is a participant in the clearing ledger. Accounts are created once,
// mutated by profile updates, and never deleted.
type Account struct {
	types.Entity
	ID           id.AccountID      `json:"id"`
	Name         string            `json:"name"`
	Handle       string            `json:"handle"`
	Phone        string            `json:"phone,omitempty"`
	Type         Type              `json:"type"`
	DefaultDenom string            `json:"default_denom"`

	// Daily offering pledge. A zero PledgeAmount means the account has not
	// declared participation.
	PledgeAmount float64 `json:"pledge_amount,omitempty"`
	PledgeDenom  string  `json:"pledge_denom,omitempty"`

	// AuditedBy records the auditing foundation (the FOUNDATION_AUDITED
	// edge). Nil when the account is not audited.
	AuditedBy id.AccountID `json:"audited_by,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// HasPledge reports whether the account has declared a daily offering pledge.
func (a *Account) HasPledge() bool {
	return a.PledgeAmount > 0 && a.PledgeDenom != ""
}

// Pledge returns the declared pledge as an Amount in display units.
func (a *Account) Pledge() types.Amount {
	return types.In(a.PledgeDenom, a.PledgeAmount)
}

// ListOpts filters account listings.
type ListOpts struct {
	Type    Type
	Pledged bool // only accounts with a declared pledge
	Limit   int
	Offset  int
}
