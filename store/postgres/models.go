package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	"github.com/xraph/clearing/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:clearing_accounts"`

	ID           string            `grove:"id,pk"`
	Name         string            `grove:"name"`
	Handle       string            `grove:"handle"`
	Phone        string            `grove:"phone"`
	Type         string            `grove:"account_type"`
	DefaultDenom string            `grove:"default_denom"`
	PledgeAmount float64           `grove:"pledge_amount"`
	PledgeDenom  string            `grove:"pledge_denom"`
	AuditedBy    string            `grove:"audited_by"`
	Metadata     map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt    time.Time         `grove:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:           a.ID.String(),
		Name:         a.Name,
		Handle:       a.Handle,
		Phone:        a.Phone,
		Type:         string(a.Type),
		DefaultDenom: a.DefaultDenom,
		PledgeAmount: a.PledgeAmount,
		PledgeDenom:  a.PledgeDenom,
		AuditedBy:    a.AuditedBy.String(),
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	var auditedBy id.AccountID
	if m.AuditedBy != "" {
		auditedBy, _ = id.ParseAccountID(m.AuditedBy) //nolint:errcheck // best-effort
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           accountID,
		Name:         m.Name,
		Handle:       m.Handle,
		Phone:        m.Phone,
		Type:         account.Type(m.Type),
		DefaultDenom: m.DefaultDenom,
		PledgeAmount: m.PledgeAmount,
		PledgeDenom:  m.PledgeDenom,
		AuditedBy:    auditedBy,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Credex models ====================

type credexModel struct {
	grove.BaseModel `grove:"table:clearing_credexes"`

	ID                string     `grove:"id,pk"`
	IssuerID          string     `grove:"issuer_id"`
	ReceiverID        string     `grove:"receiver_id"`
	Denomination      string     `grove:"denomination"`
	Multiplier        float64    `grove:"multiplier"`
	InitialAmount     float64    `grove:"initial_amount"`
	OutstandingAmount float64    `grove:"outstanding_amount"`
	RedeemedAmount    float64    `grove:"redeemed_amount"`
	DefaultedAmount   float64    `grove:"defaulted_amount"`
	WrittenOffAmount  float64    `grove:"written_off_amount"`
	DueDate           *time.Time `grove:"due_date"`
	CredexType        string     `grove:"credex_type"`
	Status            string     `grove:"status"`
	Secured           bool       `grove:"secured"`
	SecurerID         string     `grove:"securer_id"`
	AcceptedAt        *time.Time `grove:"accepted_at"`
	DayNodeID         string     `grove:"day_node_id"`
	CreatedAt         time.Time  `grove:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"`
}

func toCredexModel(c *credex.Credex) *credexModel {
	return &credexModel{
		ID:                c.ID.String(),
		IssuerID:          c.IssuerID.String(),
		ReceiverID:        c.ReceiverID.String(),
		Denomination:      c.Denomination,
		Multiplier:        c.Multiplier,
		InitialAmount:     c.InitialAmount,
		OutstandingAmount: c.OutstandingAmount,
		RedeemedAmount:    c.RedeemedAmount,
		DefaultedAmount:   c.DefaultedAmount,
		WrittenOffAmount:  c.WrittenOffAmount,
		DueDate:           c.DueDate,
		CredexType:        string(c.Type),
		Status:            string(c.Status),
		Secured:           c.Secured,
		SecurerID:         c.SecurerID.String(),
		AcceptedAt:        c.AcceptedAt,
		DayNodeID:         c.DayNodeID.String(),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func fromCredexModel(m *credexModel) (*credex.Credex, error) {
	credexID, err := id.ParseCredexID(m.ID)
	if err != nil {
		return nil, err
	}
	issuerID, err := id.ParseAccountID(m.IssuerID)
	if err != nil {
		return nil, err
	}
	receiverID, err := id.ParseAccountID(m.ReceiverID)
	if err != nil {
		return nil, err
	}

	var securerID id.AccountID
	if m.SecurerID != "" {
		securerID, _ = id.ParseAccountID(m.SecurerID) //nolint:errcheck // best-effort
	}
	var dayNodeID id.DayNodeID
	if m.DayNodeID != "" {
		dayNodeID, _ = id.ParseDayNodeID(m.DayNodeID) //nolint:errcheck // best-effort
	}

	return &credex.Credex{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                credexID,
		IssuerID:          issuerID,
		ReceiverID:        receiverID,
		Denomination:      m.Denomination,
		Multiplier:        m.Multiplier,
		InitialAmount:     m.InitialAmount,
		OutstandingAmount: m.OutstandingAmount,
		RedeemedAmount:    m.RedeemedAmount,
		DefaultedAmount:   m.DefaultedAmount,
		WrittenOffAmount:  m.WrittenOffAmount,
		DueDate:           m.DueDate,
		Type:              credex.Type(m.CredexType),
		Status:            credex.Status(m.Status),
		Secured:           m.Secured,
		SecurerID:         securerID,
		AcceptedAt:        m.AcceptedAt,
		DayNodeID:         dayNodeID,
	}, nil
}

// ==================== Day node models ====================

type dayNodeModel struct {
	grove.BaseModel `grove:"table:clearing_day_nodes"`

	ID                  string             `grove:"id,pk"`
	Date                time.Time          `grove:"day_date"`
	Active              bool               `grove:"active"`
	RebasingInProgress  bool               `grove:"rebasing_in_progress"`
	RebaseStep          string             `grove:"rebase_step"`
	CXXValue            float64            `grove:"cxx_value"`
	RefDenom            string             `grove:"ref_denom"`
	Rates               map[string]float64 `grove:"rates,type:jsonb"`
	PrevID              string             `grove:"prev_id"`
	NextID              string             `grove:"next_id"`
	SettledParticipants json.RawMessage    `grove:"settled_participants,type:jsonb"`
	CreatedAt           time.Time          `grove:"created_at"`
	UpdatedAt           time.Time          `grove:"updated_at"`
}

func toDayNodeModel(n *day.Node) *dayNodeModel {
	settled, _ := json.Marshal(n.SettledParticipants) //nolint:errcheck // best-effort

	return &dayNodeModel{
		ID:                  n.ID.String(),
		Date:                n.Date,
		Active:              n.Active,
		RebasingInProgress:  n.RebasingInProgress,
		RebaseStep:          n.RebaseStep,
		CXXValue:            n.CXXValue,
		RefDenom:            n.RefDenom,
		Rates:               n.Rates,
		PrevID:              n.PrevID.String(),
		NextID:              n.NextID.String(),
		SettledParticipants: settled,
		CreatedAt:           n.CreatedAt,
		UpdatedAt:           n.UpdatedAt,
	}
}

func fromDayNodeModel(m *dayNodeModel) (*day.Node, error) {
	dayID, err := id.ParseDayNodeID(m.ID)
	if err != nil {
		return nil, err
	}

	var prevID, nextID id.DayNodeID
	if m.PrevID != "" {
		prevID, _ = id.ParseDayNodeID(m.PrevID) //nolint:errcheck // best-effort
	}
	if m.NextID != "" {
		nextID, _ = id.ParseDayNodeID(m.NextID) //nolint:errcheck // best-effort
	}

	var settled []string
	if len(m.SettledParticipants) > 0 {
		_ = json.Unmarshal(m.SettledParticipants, &settled) //nolint:errcheck // best-effort
	}

	return &day.Node{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  dayID,
		Date:                m.Date,
		Active:              m.Active,
		RebasingInProgress:  m.RebasingInProgress,
		RebaseStep:          m.RebaseStep,
		CXXValue:            m.CXXValue,
		RefDenom:            m.RefDenom,
		Rates:               m.Rates,
		PrevID:              prevID,
		NextID:              nextID,
		SettledParticipants: settled,
	}, nil
}

// ==================== Loop anchor models ====================

type loopAnchorModel struct {
	grove.BaseModel `grove:"table:clearing_loop_anchors"`

	ID            string          `grove:"id,pk"`
	DayNodeID     string          `grove:"day_node_id"`
	ClearedAmount float64         `grove:"cleared_amount"`
	Multiplier    float64         `grove:"multiplier"`
	Segments      json.RawMessage `grove:"segments,type:jsonb"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toLoopAnchorModel(a *loop.Anchor) *loopAnchorModel {
	segments, _ := json.Marshal(a.Segments) //nolint:errcheck // best-effort

	return &loopAnchorModel{
		ID:            a.ID.String(),
		DayNodeID:     a.DayNodeID.String(),
		ClearedAmount: a.ClearedAmount,
		Multiplier:    a.Multiplier,
		Segments:      segments,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromLoopAnchorModel(m *loopAnchorModel) (*loop.Anchor, error) {
	anchorID, err := id.ParseLoopAnchorID(m.ID)
	if err != nil {
		return nil, err
	}

	var dayNodeID id.DayNodeID
	if m.DayNodeID != "" {
		dayNodeID, _ = id.ParseDayNodeID(m.DayNodeID) //nolint:errcheck // best-effort
	}

	var segments []loop.Segment
	if len(m.Segments) > 0 {
		_ = json.Unmarshal(m.Segments, &segments) //nolint:errcheck // best-effort
	}

	return &loop.Anchor{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            anchorID,
		DayNodeID:     dayNodeID,
		ClearedAmount: m.ClearedAmount,
		Multiplier:    m.Multiplier,
		Segments:      segments,
	}, nil
}

// ==================== Queue models ====================

type accountQueueModel struct {
	grove.BaseModel `grove:"table:clearing_account_queue"`

	AccountID string    `grove:"account_id,pk"`
	CreatedAt time.Time `grove:"created_at"`
}

type credexQueueModel struct {
	grove.BaseModel `grove:"table:clearing_credex_queue"`

	CredexID   string    `grove:"credex_id,pk"`
	AcceptedAt time.Time `grove:"accepted_at"`
	CreatedAt  time.Time `grove:"created_at"`
}
