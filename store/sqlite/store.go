package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/clearing"
	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	clearingstore "github.com/xraph/clearing/store"
	"github.com/xraph/clearing/types"
)

// compile-time interface check
var _ clearingstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("clearing/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("clearing/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, clearing.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("handle = ?", handle).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, clearing.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.sdb.NewSelect(&models)

	if opts.Type != "" {
		q = q.Where("account_type = ?", string(opts.Type))
	}
	if opts.Pledged {
		q = q.Where("pledge_amount > 0")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return clearing.ErrAccountNotFound
	}
	return nil
}

// ==================== Credex Store ====================

func (s *Store) CreateCredex(ctx context.Context, c *credex.Credex) error {
	m := toCredexModel(c)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetCredex(ctx context.Context, credexID id.CredexID) (*credex.Credex, error) {
	m := new(credexModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", credexID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, clearing.ErrCredexNotFound
		}
		return nil, err
	}
	return fromCredexModel(m)
}

func (s *Store) ListCredexes(ctx context.Context, opts credex.ListOpts) ([]*credex.Credex, error) {
	var models []credexModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Denomination != "" {
		q = q.Where("denomination = ?", opts.Denomination)
	}
	if !opts.IssuerID.IsNil() {
		q = q.Where("issuer_id = ?", opts.IssuerID.String())
	}
	if !opts.ReceiverID.IsNil() {
		q = q.Where("receiver_id = ?", opts.ReceiverID.String())
	}
	if !opts.SecurerID.IsNil() {
		q = q.Where("securer_id = ?", opts.SecurerID.String())
	}
	if !opts.DueBefore.IsZero() {
		q = q.Where("due_date IS NOT NULL AND due_date < ?", opts.DueBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return fromCredexModels(models)
}

func (s *Store) UpdateCredex(ctx context.Context, c *credex.Credex) error {
	m := toCredexModel(c)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return clearing.ErrCredexNotFound
	}
	return nil
}

func (s *Store) ListActiveCredexes(ctx context.Context) ([]*credex.Credex, error) {
	var models []credexModel
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(credex.StatusActive)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromCredexModels(models)
}

func (s *Store) ListOverdueCredexes(ctx context.Context, asOf time.Time) ([]*credex.Credex, error) {
	var models []credexModel
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(credex.StatusActive)).
		Where("due_date IS NOT NULL AND due_date < ?", asOf).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromCredexModels(models)
}

func fromCredexModels(models []credexModel) ([]*credex.Credex, error) {
	result := make([]*credex.Credex, len(models))
	for i := range models {
		c, err := fromCredexModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Day node Store ====================

func (s *Store) CreateDayNode(ctx context.Context, n *day.Node) error {
	m := toDayNodeModel(n)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetDayNode(ctx context.Context, dayID id.DayNodeID) (*day.Node, error) {
	m := new(dayNodeModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", dayID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, clearing.ErrDayNotFound
		}
		return nil, err
	}
	return fromDayNodeModel(m)
}

func (s *Store) GetActiveDayNode(ctx context.Context) (*day.Node, error) {
	m := new(dayNodeModel)
	err := s.sdb.NewSelect(m).
		Where("active = 1").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, clearing.ErrNoActiveDay
		}
		return nil, err
	}
	return fromDayNodeModel(m)
}

func (s *Store) ListDayNodes(ctx context.Context, opts day.ListOpts) ([]*day.Node, error) {
	var models []dayNodeModel
	q := s.sdb.NewSelect(&models)

	if !opts.Before.IsZero() {
		q = q.Where("day_date < ?", opts.Before)
	}
	if !opts.After.IsZero() {
		q = q.Where("day_date > ?", opts.After)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("day_date ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*day.Node, len(models))
	for i := range models {
		n, err := fromDayNodeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = n
	}
	return result, nil
}

func (s *Store) UpdateDayNode(ctx context.Context, n *day.Node) error {
	m := toDayNodeModel(n)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return clearing.ErrDayNotFound
	}
	return nil
}

// ==================== Loop anchor Store ====================

func (s *Store) CreateLoopAnchor(ctx context.Context, a *loop.Anchor) error {
	m := toLoopAnchorModel(a)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetLoopAnchor(ctx context.Context, anchorID id.LoopAnchorID) (*loop.Anchor, error) {
	m := new(loopAnchorModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", anchorID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, clearing.ErrAnchorNotFound
		}
		return nil, err
	}
	return fromLoopAnchorModel(m)
}

func (s *Store) ListLoopAnchors(ctx context.Context, opts loop.ListOpts) ([]*loop.Anchor, error) {
	var models []loopAnchorModel
	q := s.sdb.NewSelect(&models)

	if !opts.DayNodeID.IsNil() {
		q = q.Where("day_node_id = ?", opts.DayNodeID.String())
	}
	if !opts.CredexID.IsNil() {
		q = q.Where("segments LIKE ?", "%"+opts.CredexID.String()+"%")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*loop.Anchor, len(models))
	for i := range models {
		a, err := fromLoopAnchorModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Queue Store ====================

func (s *Store) EnqueueAccount(ctx context.Context, accountID id.AccountID) error {
	m := &accountQueueModel{AccountID: accountID.String(), CreatedAt: now()}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListQueuedAccounts(ctx context.Context, limit int) ([]id.AccountID, error) {
	var models []accountQueueModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC, account_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]id.AccountID, 0, len(models))
	for i := range models {
		aid, err := id.ParseAccountID(models[i].AccountID)
		if err != nil {
			continue
		}
		result = append(result, aid)
	}
	return result, nil
}

func (s *Store) AckAccount(ctx context.Context, accountID id.AccountID) error {
	_, err := s.sdb.NewDelete((*accountQueueModel)(nil)).
		Where("account_id = ?", accountID.String()).
		Exec(ctx)
	return err
}

func (s *Store) EnqueueCredex(ctx context.Context, credexID id.CredexID, acceptedAt time.Time) error {
	m := &credexQueueModel{CredexID: credexID.String(), AcceptedAt: acceptedAt, CreatedAt: now()}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(credex_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListQueuedCredexes(ctx context.Context, limit int) ([]clearingstore.QueuedCredex, error) {
	var models []credexQueueModel
	q := s.sdb.NewSelect(&models).OrderExpr("accepted_at ASC, credex_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]clearingstore.QueuedCredex, 0, len(models))
	for i := range models {
		cid, err := id.ParseCredexID(models[i].CredexID)
		if err != nil {
			continue
		}
		result = append(result, clearingstore.QueuedCredex{CredexID: cid, AcceptedAt: models[i].AcceptedAt})
	}
	return result, nil
}

func (s *Store) AckCredex(ctx context.Context, credexID id.CredexID) error {
	_, err := s.sdb.NewDelete((*credexQueueModel)(nil)).
		Where("credex_id = ?", credexID.String()).
		Exec(ctx)
	return err
}

// ==================== Clearing ====================

// ApplyClearing applies segments one by one with status-guarded
// updates, rolling back applied segments if a later one fails. A
// failed rollback leaves the ledger inconsistent and is reported as a
// ConsistencyError.
func (s *Store) ApplyClearing(ctx context.Context, c *clearingstore.Clearing) error {
	applied := make([]clearingstore.Segment, 0, len(c.Segments))

	rollback := func() error {
		var me clearing.MultiError
		for i := len(applied) - 1; i >= 0; i-- {
			seg := applied[i]
			_, err := s.sdb.NewUpdate((*credexModel)(nil)).
				Set("outstanding_amount = outstanding_amount + ?", seg.Amount).
				Set("redeemed_amount = redeemed_amount - ?", seg.Amount).
				Set("status = ?", string(credex.StatusActive)).
				Set("updated_at = ?", now()).
				Where("id = ?", seg.CredexID.String()).
				Exec(ctx)
			me.Add(err)
		}
		return me.First()
	}

	for _, seg := range c.Segments {
		q := s.sdb.NewUpdate((*credexModel)(nil)).
			Set("updated_at = ?", now()).
			Where("id = ?", seg.CredexID.String()).
			Where("status = ?", string(credex.StatusActive))
		if seg.Cleared {
			// Set expressions see the pre-update row, so redeemed
			// absorbs the full old outstanding including dust.
			q = q.Set("redeemed_amount = redeemed_amount + outstanding_amount").
				Set("outstanding_amount = 0").
				Set("status = ?", string(credex.StatusCleared))
		} else {
			q = q.Set("outstanding_amount = outstanding_amount - ?", seg.Amount).
				Set("redeemed_amount = redeemed_amount + ?", seg.Amount)
		}

		res, err := q.Exec(ctx)
		if err == nil {
			var rows int64
			rows, err = res.RowsAffected()
			if err == nil && rows == 0 {
				err = clearing.ErrCredexNotActive
			}
		}
		if err != nil {
			if rbErr := rollback(); rbErr != nil {
				return clearing.ConsistencyError{Op: "ApplyClearing", Detail: "rollback failed", Err: rbErr}
			}
			return fmt.Errorf("%w: %v", clearing.ErrTransactionFailed, err)
		}
		applied = append(applied, seg)
	}

	if _, err := s.sdb.NewInsert(toLoopAnchorModel(c.Anchor)).Exec(ctx); err != nil {
		if rbErr := rollback(); rbErr != nil {
			return clearing.ConsistencyError{Op: "ApplyClearing", Detail: "rollback failed", Err: rbErr}
		}
		return fmt.Errorf("%w: %v", clearing.ErrTransactionFailed, err)
	}
	return nil
}

// RescaleAmounts checks the day node's step cursor, reprices credexes
// against the day's rate table, scales anchors, then advances the
// cursor. The cursor check makes a retry after a completed run a no-op.
func (s *Store) RescaleAmounts(ctx context.Context, dayID id.DayNodeID, ratio float64) error {
	n, err := s.GetDayNode(ctx, dayID)
	if err != nil {
		return err
	}
	switch n.RebaseStep {
	case day.StepRescaled, day.StepSettling, day.StepDone:
		return nil
	}

	terminal := []interface{}{
		string(credex.StatusCleared), string(credex.StatusDefaulted),
		string(credex.StatusCancelled), string(credex.StatusDeclined),
	}

	// Foreign-currency instruments are set to the new day's rate with
	// amounts scaled by rate/multiplier; SET expressions evaluate against
	// the pre-update row, so the multiplier assignment comes last safely.
	var repriced []string
	for denom, rate := range n.Rates {
		if denom == types.DenomCXX || rate <= 0 {
			continue
		}
		repriced = append(repriced, denom)
		_, err = s.sdb.NewUpdate((*credexModel)(nil)).
			Set("initial_amount = initial_amount * (? / multiplier)", rate).
			Set("outstanding_amount = outstanding_amount * (? / multiplier)", rate).
			Set("redeemed_amount = redeemed_amount * (? / multiplier)", rate).
			Set("defaulted_amount = defaulted_amount * (? / multiplier)", rate).
			Set("written_off_amount = written_off_amount * (? / multiplier)", rate).
			Set("multiplier = ?", rate).
			Set("updated_at = ?", now()).
			Where("denomination = ?", denom).
			Where("status NOT IN (?, ?, ?, ?)", terminal...).
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	// CXX-denominated instruments, and any denomination the table does
	// not quote, revalue with the numeraire itself.
	scaleByRatio := s.sdb.NewUpdate((*credexModel)(nil)).
		Set("initial_amount = initial_amount * ?", ratio).
		Set("outstanding_amount = outstanding_amount * ?", ratio).
		Set("redeemed_amount = redeemed_amount * ?", ratio).
		Set("defaulted_amount = defaulted_amount * ?", ratio).
		Set("written_off_amount = written_off_amount * ?", ratio).
		Set("multiplier = multiplier * ?", ratio).
		Set("updated_at = ?", now()).
		Where("status NOT IN (?, ?, ?, ?)", terminal...)
	for _, denom := range repriced {
		scaleByRatio = scaleByRatio.Where("denomination <> ?", denom)
	}
	_, err = scaleByRatio.Exec(ctx)
	if err != nil {
		return err
	}

	_, err = s.sdb.NewUpdate((*loopAnchorModel)(nil)).
		Set("cleared_amount = cleared_amount * ?", ratio).
		Set("multiplier = multiplier * ?", ratio).
		Set("updated_at = ?", now()).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return err
	}

	res, err := s.sdb.NewUpdate((*dayNodeModel)(nil)).
		Set("rebase_step = ?", day.StepRescaled).
		Set("updated_at = ?", now()).
		Where("id = ?", dayID.String()).
		Where("rebase_step NOT IN (?, ?, ?)", day.StepRescaled, day.StepSettling, day.StepDone).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return clearing.ConsistencyError{Op: "RescaleAmounts", Detail: "step cursor advanced concurrently"}
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
