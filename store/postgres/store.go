package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("clearing/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("clearing/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
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
	err := s.pg.NewSelect(m).
		Where("handle = $1", handle).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("account_type = $%d", argIdx), string(opts.Type))
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetCredex(ctx context.Context, credexID id.CredexID) (*credex.Credex, error) {
	m := new(credexModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", credexID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Denomination != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("denomination = $%d", argIdx), opts.Denomination)
	}
	if !opts.IssuerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("issuer_id = $%d", argIdx), opts.IssuerID.String())
	}
	if !opts.ReceiverID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("receiver_id = $%d", argIdx), opts.ReceiverID.String())
	}
	if !opts.SecurerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("securer_id = $%d", argIdx), opts.SecurerID.String())
	}
	if !opts.DueBefore.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("due_date IS NOT NULL AND due_date < $%d", argIdx), opts.DueBefore)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	err := s.pg.NewSelect(&models).
		Where("status = $1", string(credex.StatusActive)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromCredexModels(models)
}

func (s *Store) ListOverdueCredexes(ctx context.Context, asOf time.Time) ([]*credex.Credex, error) {
	var models []credexModel
	err := s.pg.NewSelect(&models).
		Where("status = $1", string(credex.StatusActive)).
		Where("due_date IS NOT NULL AND due_date < $2", asOf).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetDayNode(ctx context.Context, dayID id.DayNodeID) (*day.Node, error) {
	m := new(dayNodeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", dayID.String()).
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
	err := s.pg.NewSelect(m).
		Where("active = TRUE").
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.Before.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("day_date < $%d", argIdx), opts.Before)
	}
	if !opts.After.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("day_date > $%d", argIdx), opts.After)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetLoopAnchor(ctx context.Context, anchorID id.LoopAnchorID) (*loop.Anchor, error) {
	m := new(loopAnchorModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", anchorID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.DayNodeID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("day_node_id = $%d", argIdx), opts.DayNodeID.String())
	}
	if !opts.CredexID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("segments @> $%d::jsonb", argIdx),
			fmt.Sprintf(`[{"credex_id":%q}]`, opts.CredexID.String()))
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
	_, err := s.pg.NewInsert(m).
		OnConflict("(account_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListQueuedAccounts(ctx context.Context, limit int) ([]id.AccountID, error) {
	var models []accountQueueModel
	q := s.pg.NewSelect(&models).OrderExpr("created_at ASC, account_id ASC")
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
	_, err := s.pg.NewDelete((*accountQueueModel)(nil)).
		Where("account_id = $1", accountID.String()).
		Exec(ctx)
	return err
}

func (s *Store) EnqueueCredex(ctx context.Context, credexID id.CredexID, acceptedAt time.Time) error {
	m := &credexQueueModel{CredexID: credexID.String(), AcceptedAt: acceptedAt, CreatedAt: now()}
	_, err := s.pg.NewInsert(m).
		OnConflict("(credex_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListQueuedCredexes(ctx context.Context, limit int) ([]clearingstore.QueuedCredex, error) {
	var models []credexQueueModel
	q := s.pg.NewSelect(&models).OrderExpr("accepted_at ASC, credex_id ASC")
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
	_, err := s.pg.NewDelete((*credexQueueModel)(nil)).
		Where("credex_id = $1", credexID.String()).
		Exec(ctx)
	return err
}

// ==================== Clearing ====================

type clearingSegmentRow struct {
	ID      string  `json:"id"`
	Amount  float64 `json:"amount"`
	Cleared bool    `json:"cleared"`
}

// ApplyClearing runs the whole netting event as one SQL statement, so
// it either commits completely or not at all. The eligible CTE gates
// both the updates and the anchor insert on every segment still being
// ACTIVE; a stale segment makes the statement a no-op and the caller
// gets ErrTransactionFailed.
func (s *Store) ApplyClearing(ctx context.Context, c *clearingstore.Clearing) error {
	rows := make([]clearingSegmentRow, len(c.Segments))
	for i, seg := range c.Segments {
		rows[i] = clearingSegmentRow{ID: seg.CredexID.String(), Amount: seg.Amount, Cleared: seg.Cleared}
	}
	segJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("clearing/postgres: encode segments: %w", err)
	}

	anchor := toLoopAnchorModel(c.Anchor)

	var updated int
	err = s.pg.NewRaw(`
WITH seg AS (
    SELECT (x->>'id')                          AS id,
           (x->>'amount')::double precision    AS amount,
           (x->>'cleared')::boolean            AS cleared
    FROM jsonb_array_elements($1::jsonb) AS x
), eligible AS (
    SELECT (SELECT COUNT(*) FROM seg) = COUNT(*) AS ok
    FROM seg JOIN clearing_credexes c ON c.id = seg.id AND c.status = $2
), upd AS (
    UPDATE clearing_credexes c SET
        outstanding_amount = CASE WHEN seg.cleared THEN 0 ELSE c.outstanding_amount - seg.amount END,
        redeemed_amount    = c.redeemed_amount + CASE WHEN seg.cleared THEN c.outstanding_amount ELSE seg.amount END,
        status             = CASE WHEN seg.cleared THEN $3 ELSE c.status END,
        updated_at         = NOW()
    FROM seg, eligible
    WHERE c.id = seg.id AND c.status = $2 AND eligible.ok
    RETURNING c.id
), ins AS (
    INSERT INTO clearing_loop_anchors (id, day_node_id, cleared_amount, multiplier, segments, created_at, updated_at)
    SELECT $4, $5, $6, $7, $8::jsonb, NOW(), NOW()
    FROM eligible WHERE eligible.ok
    RETURNING id
)
SELECT COUNT(*) FROM upd
`,
		string(segJSON),
		string(credex.StatusActive),
		string(credex.StatusCleared),
		anchor.ID, anchor.DayNodeID, anchor.ClearedAmount, anchor.Multiplier, string(anchor.Segments),
	).Scan(ctx, &updated)
	if err != nil {
		return err
	}
	if updated != len(c.Segments) {
		return clearing.ErrTransactionFailed
	}
	return nil
}

// RescaleAmounts reprices credexes against the day node's rate table,
// rescales anchors, and advances the day node's step cursor in one
// atomic statement. CXX-denominated instruments scale by ratio; foreign
// instruments are set to the day's rate for their denomination with
// amounts scaled by newRate/oldMultiplier. The cursor gate makes a
// retry after a crash a no-op.
func (s *Store) RescaleAmounts(ctx context.Context, dayID id.DayNodeID, ratio float64) error {
	var applied int
	err := s.pg.NewRaw(`
WITH gate AS (
    UPDATE clearing_day_nodes
    SET rebase_step = $1, updated_at = NOW()
    WHERE id = $2 AND rebase_step NOT IN ($1, $3, $4)
    RETURNING id, rates
), r AS (
    SELECT kv.key AS denom, kv.value::float8 AS rate
    FROM gate, jsonb_each_text(gate.rates) kv
), cdx AS (
    UPDATE clearing_credexes c SET
        initial_amount     = c.initial_amount * x.factor,
        outstanding_amount = c.outstanding_amount * x.factor,
        redeemed_amount    = c.redeemed_amount * x.factor,
        defaulted_amount   = c.defaulted_amount * x.factor,
        written_off_amount = c.written_off_amount * x.factor,
        multiplier         = x.mult,
        updated_at         = NOW()
    FROM (
        SELECT c2.id,
            CASE WHEN c2.denomination = $10 OR r.rate IS NULL OR r.rate <= 0
                 THEN $5 ELSE r.rate / c2.multiplier END AS factor,
            CASE WHEN c2.denomination = $10 OR r.rate IS NULL OR r.rate <= 0
                 THEN c2.multiplier * $5 ELSE r.rate END AS mult
        FROM clearing_credexes c2
        LEFT JOIN r ON r.denom = c2.denomination
        WHERE c2.status NOT IN ($6, $7, $8, $9)
    ) x
    WHERE c.id = x.id AND EXISTS (SELECT 1 FROM gate)
    RETURNING c.id
), anch AS (
    UPDATE clearing_loop_anchors SET
        cleared_amount = cleared_amount * $5,
        multiplier     = multiplier * $5,
        updated_at     = NOW()
    WHERE EXISTS (SELECT 1 FROM gate)
    RETURNING id
)
SELECT COUNT(*) FROM gate
`,
		day.StepRescaled, dayID.String(), day.StepSettling, day.StepDone,
		ratio,
		string(credex.StatusCleared), string(credex.StatusDefaulted),
		string(credex.StatusCancelled), string(credex.StatusDeclined),
		types.DenomCXX,
	).Scan(ctx, &applied)
	return err
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
