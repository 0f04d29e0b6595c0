package mongo

import (
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

	ID           string            `grove:"id,pk"         bson:"_id"`
	Name         string            `grove:"name"          bson:"name"`
	Handle       string            `grove:"handle"        bson:"handle"`
	Phone        string            `grove:"phone"         bson:"phone"`
	Type         string            `grove:"account_type"  bson:"account_type"`
	DefaultDenom string            `grove:"default_denom" bson:"default_denom"`
	PledgeAmount float64           `grove:"pledge_amount" bson:"pledge_amount"`
	PledgeDenom  string            `grove:"pledge_denom"  bson:"pledge_denom"`
	AuditedBy    string            `grove:"audited_by"    bson:"audited_by"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
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

	ID                string     `grove:"id,pk"              bson:"_id"`
	IssuerID          string     `grove:"issuer_id"          bson:"issuer_id"`
	ReceiverID        string     `grove:"receiver_id"        bson:"receiver_id"`
	Denomination      string     `grove:"denomination"       bson:"denomination"`
	Multiplier        float64    `grove:"multiplier"         bson:"multiplier"`
	InitialAmount     float64    `grove:"initial_amount"     bson:"initial_amount"`
	OutstandingAmount float64    `grove:"outstanding_amount" bson:"outstanding_amount"`
	RedeemedAmount    float64    `grove:"redeemed_amount"    bson:"redeemed_amount"`
	DefaultedAmount   float64    `grove:"defaulted_amount"   bson:"defaulted_amount"`
	WrittenOffAmount  float64    `grove:"written_off_amount" bson:"written_off_amount"`
	DueDate           *time.Time `grove:"due_date"           bson:"due_date,omitempty"`
	CredexType        string     `grove:"credex_type"        bson:"credex_type"`
	Status            string     `grove:"status"             bson:"status"`
	Secured           bool       `grove:"secured"            bson:"secured"`
	SecurerID         string     `grove:"securer_id"         bson:"securer_id"`
	AcceptedAt        *time.Time `grove:"accepted_at"        bson:"accepted_at,omitempty"`
	DayNodeID         string     `grove:"day_node_id"        bson:"day_node_id"`
	CreatedAt         time.Time  `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"         bson:"updated_at"`
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

	ID                  string             `grove:"id,pk"                bson:"_id"`
	Date                time.Time          `grove:"day_date"             bson:"day_date"`
	Active              bool               `grove:"active"               bson:"active"`
	RebasingInProgress  bool               `grove:"rebasing_in_progress" bson:"rebasing_in_progress"`
	RebaseStep          string             `grove:"rebase_step"          bson:"rebase_step"`
	CXXValue            float64            `grove:"cxx_value"            bson:"cxx_value"`
	RefDenom            string             `grove:"ref_denom"            bson:"ref_denom"`
	Rates               map[string]float64 `grove:"rates"                bson:"rates,omitempty"`
	PrevID              string             `grove:"prev_id"              bson:"prev_id"`
	NextID              string             `grove:"next_id"              bson:"next_id"`
	SettledParticipants []string           `grove:"settled_participants" bson:"settled_participants,omitempty"`
	CreatedAt           time.Time          `grove:"created_at"           bson:"created_at"`
	UpdatedAt           time.Time          `grove:"updated_at"           bson:"updated_at"`
}

func toDayNodeModel(n *day.Node) *dayNodeModel {
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
		SettledParticipants: n.SettledParticipants,
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
		SettledParticipants: m.SettledParticipants,
	}, nil
}

// ==================== Loop anchor models ====================

type loopAnchorModel struct {
	grove.BaseModel `grove:"table:clearing_loop_anchors"`

	ID            string         `grove:"id,pk"          bson:"_id"`
	DayNodeID     string         `grove:"day_node_id"    bson:"day_node_id"`
	ClearedAmount float64        `grove:"cleared_amount" bson:"cleared_amount"`
	Multiplier    float64        `grove:"multiplier"     bson:"multiplier"`
	Segments      []segmentModel `grove:"segments"       bson:"segments"`
	CreatedAt     time.Time      `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time      `grove:"updated_at"     bson:"updated_at"`
}

type segmentModel struct {
	CredexID          string  `bson:"credex_id"`
	IssuerID          string  `bson:"issuer_id"`
	ReceiverID        string  `bson:"receiver_id"`
	OutstandingBefore float64 `bson:"outstanding_before"`
}

func toLoopAnchorModel(a *loop.Anchor) *loopAnchorModel {
	segments := make([]segmentModel, len(a.Segments))
	for i, seg := range a.Segments {
		segments[i] = segmentModel{
			CredexID:          seg.CredexID.String(),
			IssuerID:          seg.IssuerID.String(),
			ReceiverID:        seg.ReceiverID.String(),
			OutstandingBefore: seg.OutstandingBefore,
		}
	}

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

	segments := make([]loop.Segment, len(m.Segments))
	for i, seg := range m.Segments {
		credexID, _ := id.ParseCredexID(seg.CredexID)     //nolint:errcheck // best-effort
		issuerID, _ := id.ParseAccountID(seg.IssuerID)    //nolint:errcheck // best-effort
		receiverID, _ := id.ParseAccountID(seg.ReceiverID) //nolint:errcheck // best-effort
		segments[i] = loop.Segment{
			CredexID:          credexID,
			IssuerID:          issuerID,
			ReceiverID:        receiverID,
			OutstandingBefore: seg.OutstandingBefore,
		}
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

	AccountID string    `grove:"account_id,pk" bson:"_id"`
	CreatedAt time.Time `grove:"created_at"    bson:"created_at"`
}

type credexQueueModel struct {
	grove.BaseModel `grove:"table:clearing_credex_queue"`

	CredexID   string    `grove:"credex_id,pk" bson:"_id"`
	AcceptedAt time.Time `grove:"accepted_at"  bson:"accepted_at"`
	CreatedAt  time.Time `grove:"created_at"   bson:"created_at"`
}
