package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/clearing"
	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	"github.com/xraph/clearing/store"
	"github.com/xraph/clearing/types"
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[string]*account.Account

	// Credex storage
	credexes map[string]*credex.Credex

	// Day node storage
	days map[string]*day.Node

	// Loop anchor storage
	anchors map[string]*loop.Anchor

	// Queues
	accountQueue []string
	credexQueue  []store.QueuedCredex
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
		credexes: make(map[string]*credex.Credex),
		days:     make(map[string]*day.Node),
		anchors:  make(map[string]*loop.Anchor),
	}
}

// Account Store implementation

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return clearing.ErrAccountExists
	}
	for _, existing := range s.accounts {
		if a.Handle != "" && existing.Handle == a.Handle {
			return clearing.ErrAccountExists
		}
	}
	s.accounts[a.ID.String()] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return a, nil
	}
	return nil, clearing.ErrAccountNotFound
}

func (s *Store) GetAccountByHandle(_ context.Context, handle string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Handle == handle {
			return a, nil
		}
	}
	return nil, clearing.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if opts.Type != "" && a.Type != opts.Type {
			continue
		}
		if opts.Pledged && !a.HasPledge() {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; !exists {
		return clearing.ErrAccountNotFound
	}
	s.accounts[a.ID.String()] = a
	return nil
}

// Credex Store implementation

func (s *Store) CreateCredex(_ context.Context, c *credex.Credex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credexes[c.ID.String()]; exists {
		return clearing.ErrAlreadyExists
	}
	s.credexes[c.ID.String()] = c
	return nil
}

func (s *Store) GetCredex(_ context.Context, credexID id.CredexID) (*credex.Credex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.credexes[credexID.String()]; ok {
		return c, nil
	}
	return nil, clearing.ErrCredexNotFound
}

func (s *Store) ListCredexes(_ context.Context, opts credex.ListOpts) ([]*credex.Credex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credex.Credex, 0)
	for _, c := range s.credexes {
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		if opts.Denomination != "" && c.Denomination != opts.Denomination {
			continue
		}
		if !opts.IssuerID.IsNil() && c.IssuerID != opts.IssuerID {
			continue
		}
		if !opts.ReceiverID.IsNil() && c.ReceiverID != opts.ReceiverID {
			continue
		}
		if !opts.SecurerID.IsNil() && c.SecurerID != opts.SecurerID {
			continue
		}
		if !opts.DueBefore.IsZero() && (c.DueDate == nil || !c.DueDate.Before(opts.DueBefore)) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateCredex(_ context.Context, c *credex.Credex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credexes[c.ID.String()]; !exists {
		return clearing.ErrCredexNotFound
	}
	s.credexes[c.ID.String()] = c
	return nil
}

func (s *Store) ListActiveCredexes(_ context.Context) ([]*credex.Credex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credex.Credex, 0)
	for _, c := range s.credexes {
		if c.Status == credex.StatusActive {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) ListOverdueCredexes(_ context.Context, asOf time.Time) ([]*credex.Credex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credex.Credex, 0)
	for _, c := range s.credexes {
		if c.Status == credex.StatusActive && c.Overdue(asOf) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

// Day node Store implementation

func (s *Store) CreateDayNode(_ context.Context, n *day.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.days[n.ID.String()]; exists {
		return clearing.ErrAlreadyExists
	}
	s.days[n.ID.String()] = n
	return nil
}

func (s *Store) GetDayNode(_ context.Context, dayID id.DayNodeID) (*day.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, ok := s.days[dayID.String()]; ok {
		return n, nil
	}
	return nil, clearing.ErrDayNotFound
}

func (s *Store) GetActiveDayNode(_ context.Context) (*day.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.days {
		if n.Active {
			return n, nil
		}
	}
	return nil, clearing.ErrNoActiveDay
}

func (s *Store) ListDayNodes(_ context.Context, opts day.ListOpts) ([]*day.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*day.Node, 0)
	for _, n := range s.days {
		if !opts.Before.IsZero() && !n.Date.Before(opts.Before) {
			continue
		}
		if !opts.After.IsZero() && !n.Date.After(opts.After) {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateDayNode(_ context.Context, n *day.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.days[n.ID.String()]; !exists {
		return clearing.ErrDayNotFound
	}
	s.days[n.ID.String()] = n
	return nil
}

// Loop anchor Store implementation

func (s *Store) CreateLoopAnchor(_ context.Context, a *loop.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.anchors[a.ID.String()]; exists {
		return clearing.ErrAlreadyExists
	}
	s.anchors[a.ID.String()] = a
	return nil
}

func (s *Store) GetLoopAnchor(_ context.Context, anchorID id.LoopAnchorID) (*loop.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.anchors[anchorID.String()]; ok {
		return a, nil
	}
	return nil, clearing.ErrAnchorNotFound
}

func (s *Store) ListLoopAnchors(_ context.Context, opts loop.ListOpts) ([]*loop.Anchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*loop.Anchor, 0)
	for _, a := range s.anchors {
		if !opts.DayNodeID.IsNil() && a.DayNodeID != opts.DayNodeID {
			continue
		}
		if !opts.CredexID.IsNil() && !anchorHasCredex(a, opts.CredexID) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func anchorHasCredex(a *loop.Anchor, credexID id.CredexID) bool {
	for _, seg := range a.Segments {
		if seg.CredexID == credexID {
			return true
		}
	}
	return false
}

// Queue Store implementation

func (s *Store) EnqueueAccount(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountID.String()
	for _, q := range s.accountQueue {
		if q == key {
			return nil
		}
	}
	s.accountQueue = append(s.accountQueue, key)
	return nil
}

func (s *Store) ListQueuedAccounts(_ context.Context, limit int) ([]id.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.accountQueue)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]id.AccountID, 0, n)
	for _, key := range s.accountQueue[:n] {
		aid, err := id.ParseAccountID(key)
		if err != nil {
			continue
		}
		result = append(result, aid)
	}
	return result, nil
}

func (s *Store) AckAccount(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountID.String()
	for i, q := range s.accountQueue {
		if q == key {
			s.accountQueue = append(s.accountQueue[:i], s.accountQueue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) EnqueueCredex(_ context.Context, credexID id.CredexID, acceptedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.credexQueue {
		if q.CredexID == credexID {
			return nil
		}
	}
	s.credexQueue = append(s.credexQueue, store.QueuedCredex{CredexID: credexID, AcceptedAt: acceptedAt})
	return nil
}

func (s *Store) ListQueuedCredexes(_ context.Context, limit int) ([]store.QueuedCredex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]store.QueuedCredex, len(s.credexQueue))
	copy(result, s.credexQueue)
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].AcceptedAt.Equal(result[j].AcceptedAt) {
			return result[i].AcceptedAt.Before(result[j].AcceptedAt)
		}
		return result[i].CredexID.String() < result[j].CredexID.String()
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AckCredex(_ context.Context, credexID id.CredexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, q := range s.credexQueue {
		if q.CredexID == credexID {
			s.credexQueue = append(s.credexQueue[:i], s.credexQueue[i+1:]...)
			return nil
		}
	}
	return nil
}

// Clearing implementation. The whole event applies under one lock, so
// partial application is never visible to readers.
func (s *Store) ApplyClearing(_ context.Context, c *store.Clearing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate before mutating anything.
	for _, seg := range c.Segments {
		cx, ok := s.credexes[seg.CredexID.String()]
		if !ok {
			return clearing.ErrCredexNotFound
		}
		if cx.Status != credex.StatusActive {
			return clearing.ErrCredexNotActive
		}
	}

	for _, seg := range c.Segments {
		cx := s.credexes[seg.CredexID.String()]
		cx.Redeem(seg.Amount)
		if seg.Cleared {
			cx.Status = credex.StatusCleared
		}
		cx.Touch()
	}
	s.anchors[c.Anchor.ID.String()] = c.Anchor
	return nil
}

func (s *Store) RescaleAmounts(_ context.Context, dayID id.DayNodeID, ratio float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.days[dayID.String()]
	if !ok {
		return clearing.ErrDayNotFound
	}
	switch n.RebaseStep {
	case day.StepRescaled, day.StepSettling, day.StepDone:
		// Already applied; a retry must not double-scale.
		return nil
	}

	for _, c := range s.credexes {
		if c.Status.IsTerminal() {
			continue
		}
		// CXX-denominated instruments revalue with the numeraire itself;
		// foreign-currency instruments are repriced to the new day's rate
		// so their face value is untouched.
		factor := ratio
		newMult := c.Multiplier * ratio
		if rate, ok := n.Rates[c.Denomination]; ok && rate > 0 && c.Denomination != types.DenomCXX {
			factor = rate / c.Multiplier
			newMult = rate
		}
		c.InitialAmount *= factor
		c.OutstandingAmount *= factor
		c.RedeemedAmount *= factor
		c.DefaultedAmount *= factor
		c.WrittenOffAmount *= factor
		c.Multiplier = newMult
		c.Touch()
	}
	for _, a := range s.anchors {
		a.Rescale(ratio)
	}
	n.RebaseStep = day.StepRescaled
	n.Touch()
	return nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func paginate[T any](in []T, offset, limit int) []T {
	start := offset
	if start > len(in) {
		start = len(in)
	}
	end := start + limit
	if limit == 0 || end > len(in) {
		end = len(in)
	}
	return in[start:end]
}
