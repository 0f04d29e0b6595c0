package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/clearing"
	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	clearingstore "github.com/xraph/clearing/store"
	"github.com/xraph/clearing/types"
)

// Collection name constants.
const (
	colAccounts     = "clearing_accounts"
	colCredexes     = "clearing_credexes"
	colDayNodes     = "clearing_day_nodes"
	colLoopAnchors  = "clearing_loop_anchors"
	colAccountQueue = "clearing_account_queue"
	colCredexQueue  = "clearing_credex_queue"
)

// compile-time interface check
var _ clearingstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all clearing collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("clearing/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, clearing.ErrAccountNotFound
		}
		return nil, fmt.Errorf("clearing/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"handle": handle}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, clearing.ErrAccountNotFound
		}
		return nil, fmt.Errorf("clearing/mongo: get account by handle: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	filter := bson.M{}
	if opts.Type != "" {
		filter["account_type"] = string(opts.Type)
	}
	if opts.Pledged {
		filter["pledge_amount"] = bson.M{"$gt": 0}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("clearing/mongo: list accounts: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return clearing.ErrAccountNotFound
	}
	return nil
}

// ==================== Credex Store ====================

func (s *Store) CreateCredex(ctx context.Context, c *credex.Credex) error {
	m := toCredexModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: create credex: %w", err)
	}
	return nil
}

func (s *Store) GetCredex(ctx context.Context, credexID id.CredexID) (*credex.Credex, error) {
	var m credexModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": credexID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, clearing.ErrCredexNotFound
		}
		return nil, fmt.Errorf("clearing/mongo: get credex: %w", err)
	}
	return fromCredexModel(&m)
}

func (s *Store) ListCredexes(ctx context.Context, opts credex.ListOpts) ([]*credex.Credex, error) {
	var models []credexModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Denomination != "" {
		filter["denomination"] = opts.Denomination
	}
	if !opts.IssuerID.IsNil() {
		filter["issuer_id"] = opts.IssuerID.String()
	}
	if !opts.ReceiverID.IsNil() {
		filter["receiver_id"] = opts.ReceiverID.String()
	}
	if !opts.SecurerID.IsNil() {
		filter["securer_id"] = opts.SecurerID.String()
	}
	if !opts.DueBefore.IsZero() {
		filter["due_date"] = bson.M{"$lt": opts.DueBefore}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("clearing/mongo: list credexes: %w", err)
	}

	return fromCredexModels(models)
}

func (s *Store) UpdateCredex(ctx context.Context, c *credex.Credex) error {
	m := toCredexModel(c)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: update credex: %w", err)
	}
	if res.MatchedCount() == 0 {
		return clearing.ErrCredexNotFound
	}
	return nil
}

func (s *Store) ListActiveCredexes(ctx context.Context) ([]*credex.Credex, error) {
	var models []credexModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"status": string(credex.StatusActive)}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("clearing/mongo: list active credexes: %w", err)
	}
	return fromCredexModels(models)
}

func (s *Store) ListOverdueCredexes(ctx context.Context, asOf time.Time) ([]*credex.Credex, error) {
	var models []credexModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":   string(credex.StatusActive),
			"due_date": bson.M{"$lt": asOf},
		}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("clearing/mongo: list overdue credexes: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: create day node: %w", err)
	}
	return nil
}

func (s *Store) GetDayNode(ctx context.Context, dayID id.DayNodeID) (*day.Node, error) {
	var m dayNodeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": dayID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, clearing.ErrDayNotFound
		}
		return nil, fmt.Errorf("clearing/mongo: get day node: %w", err)
	}
	return fromDayNodeModel(&m)
}

func (s *Store) GetActiveDayNode(ctx context.Context) (*day.Node, error) {
	var m dayNodeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"active": true}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, clearing.ErrNoActiveDay
		}
		return nil, fmt.Errorf("clearing/mongo: get active day node: %w", err)
	}
	return fromDayNodeModel(&m)
}

func (s *Store) ListDayNodes(ctx context.Context, opts day.ListOpts) ([]*day.Node, error) {
	var models []dayNodeModel

	filter := bson.M{}
	dateFilter := bson.M{}
	if !opts.Before.IsZero() {
		dateFilter["$lt"] = opts.Before
	}
	if !opts.After.IsZero() {
		dateFilter["$gt"] = opts.After
	}
	if len(dateFilter) > 0 {
		filter["day_date"] = dateFilter
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "day_date", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("clearing/mongo: list day nodes: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: update day node: %w", err)
	}
	if res.MatchedCount() == 0 {
		return clearing.ErrDayNotFound
	}
	return nil
}

// ==================== Loop anchor Store ====================

func (s *Store) CreateLoopAnchor(ctx context.Context, a *loop.Anchor) error {
	m := toLoopAnchorModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: create loop anchor: %w", err)
	}
	return nil
}

func (s *Store) GetLoopAnchor(ctx context.Context, anchorID id.LoopAnchorID) (*loop.Anchor, error) {
	var m loopAnchorModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": anchorID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, clearing.ErrAnchorNotFound
		}
		return nil, fmt.Errorf("clearing/mongo: get loop anchor: %w", err)
	}
	return fromLoopAnchorModel(&m)
}

func (s *Store) ListLoopAnchors(ctx context.Context, opts loop.ListOpts) ([]*loop.Anchor, error) {
	var models []loopAnchorModel

	filter := bson.M{}
	if !opts.DayNodeID.IsNil() {
		filter["day_node_id"] = opts.DayNodeID.String()
	}
	if !opts.CredexID.IsNil() {
		filter["segments.credex_id"] = opts.CredexID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("clearing/mongo: list loop anchors: %w", err)
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.AccountID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id":        m.AccountID,
			"created_at": m.CreatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: enqueue account: %w", err)
	}
	return nil
}

func (s *Store) ListQueuedAccounts(ctx context.Context, limit int) ([]id.AccountID, error) {
	var models []accountQueueModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("clearing/mongo: list queued accounts: %w", err)
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
	_, err := s.mdb.NewDelete((*accountQueueModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: ack account: %w", err)
	}
	return nil
}

func (s *Store) EnqueueCredex(ctx context.Context, credexID id.CredexID, acceptedAt time.Time) error {
	m := &credexQueueModel{CredexID: credexID.String(), AcceptedAt: acceptedAt, CreatedAt: now()}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.CredexID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id":         m.CredexID,
			"accepted_at": m.AcceptedAt,
			"created_at":  m.CreatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: enqueue credex: %w", err)
	}
	return nil
}

func (s *Store) ListQueuedCredexes(ctx context.Context, limit int) ([]clearingstore.QueuedCredex, error) {
	var models []credexQueueModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "accepted_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("clearing/mongo: list queued credexes: %w", err)
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
	_, err := s.mdb.NewDelete((*credexQueueModel)(nil)).
		Filter(bson.M{"_id": credexID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing/mongo: ack credex: %w", err)
	}
	return nil
}

// ==================== Clearing ====================

// ApplyClearing applies segments one by one with status-guarded
// updates, rolling back applied segments if a later one fails. A
// failed rollback leaves the ledger inconsistent and is reported as a
// ConsistencyError.
func (s *Store) ApplyClearing(ctx context.Context, c *clearingstore.Clearing) error {
	col := s.mdb.Collection(colCredexes)
	applied := make([]clearingstore.Segment, 0, len(c.Segments))

	rollback := func() error {
		var me clearing.MultiError
		for i := len(applied) - 1; i >= 0; i-- {
			seg := applied[i]
			_, err := col.UpdateOne(ctx,
				bson.M{"_id": seg.CredexID.String()},
				bson.M{
					"$inc": bson.M{
						"outstanding_amount": seg.Amount,
						"redeemed_amount":    -seg.Amount,
					},
					"$set": bson.M{"status": string(credex.StatusActive), "updated_at": now()},
				})
			me.Add(err)
		}
		return me.First()
	}

	for _, seg := range c.Segments {
		update := bson.M{
			"$inc": bson.M{
				"outstanding_amount": -seg.Amount,
				"redeemed_amount":    seg.Amount,
			},
			"$set": bson.M{"updated_at": now()},
		}
		if seg.Cleared {
			update = bson.M{
				"$set": bson.M{
					"outstanding_amount": 0.0,
					"status":             string(credex.StatusCleared),
					"updated_at":         now(),
				},
				"$inc": bson.M{"redeemed_amount": seg.Amount},
			}
		}

		res, err := col.UpdateOne(ctx,
			bson.M{"_id": seg.CredexID.String(), "status": string(credex.StatusActive)},
			update)
		if err == nil && res.MatchedCount == 0 {
			err = clearing.ErrCredexNotActive
		}
		if err != nil {
			if rbErr := rollback(); rbErr != nil {
				return clearing.ConsistencyError{Op: "ApplyClearing", Detail: "rollback failed", Err: rbErr}
			}
			return fmt.Errorf("%w: %v", clearing.ErrTransactionFailed, err)
		}
		applied = append(applied, seg)
	}

	if _, err := s.mdb.NewInsert(toLoopAnchorModel(c.Anchor)).Exec(ctx); err != nil {
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

	terminal := []string{
		string(credex.StatusCleared), string(credex.StatusDefaulted),
		string(credex.StatusCancelled), string(credex.StatusDeclined),
	}

	// Foreign-currency instruments are repriced to the new day's rate.
	// The per-document factor rate/multiplier needs a pipeline update.
	repriced := []string{}
	for denom, rate := range n.Rates {
		if denom == types.DenomCXX || rate <= 0 {
			continue
		}
		repriced = append(repriced, denom)
		factor := bson.M{"$divide": bson.A{rate, "$multiplier"}}
		_, err = s.mdb.Collection(colCredexes).UpdateMany(ctx,
			bson.M{
				"denomination": denom,
				"status":       bson.M{"$nin": terminal},
			},
			bson.A{bson.M{"$set": bson.M{
				"initial_amount":     bson.M{"$multiply": bson.A{"$initial_amount", factor}},
				"outstanding_amount": bson.M{"$multiply": bson.A{"$outstanding_amount", factor}},
				"redeemed_amount":    bson.M{"$multiply": bson.A{"$redeemed_amount", factor}},
				"defaulted_amount":   bson.M{"$multiply": bson.A{"$defaulted_amount", factor}},
				"written_off_amount": bson.M{"$multiply": bson.A{"$written_off_amount", factor}},
				"multiplier":         rate,
				"updated_at":         now(),
			}}})
		if err != nil {
			return fmt.Errorf("clearing/mongo: reprice %s credexes: %w", denom, err)
		}
	}

	// CXX-denominated instruments and unquoted denominations revalue
	// with the numeraire.
	_, err = s.mdb.Collection(colCredexes).UpdateMany(ctx,
		bson.M{
			"denomination": bson.M{"$nin": repriced},
			"status":       bson.M{"$nin": terminal},
		},
		bson.M{
			"$mul": bson.M{
				"initial_amount":     ratio,
				"outstanding_amount": ratio,
				"redeemed_amount":    ratio,
				"defaulted_amount":   ratio,
				"written_off_amount": ratio,
				"multiplier":         ratio,
			},
			"$set": bson.M{"updated_at": now()},
		})
	if err != nil {
		return fmt.Errorf("clearing/mongo: rescale credexes: %w", err)
	}

	_, err = s.mdb.Collection(colLoopAnchors).UpdateMany(ctx,
		bson.M{},
		bson.M{
			"$mul": bson.M{"cleared_amount": ratio, "multiplier": ratio},
			"$set": bson.M{"updated_at": now()},
		})
	if err != nil {
		return fmt.Errorf("clearing/mongo: rescale anchors: %w", err)
	}

	res, err := s.mdb.Collection(colDayNodes).UpdateOne(ctx,
		bson.M{
			"_id":         dayID.String(),
			"rebase_step": bson.M{"$nin": []string{day.StepRescaled, day.StepSettling, day.StepDone}},
		},
		bson.M{"$set": bson.M{"rebase_step": day.StepRescaled, "updated_at": now()}})
	if err != nil {
		return fmt.Errorf("clearing/mongo: advance rebase step: %w", err)
	}
	if res.MatchedCount == 0 {
		return clearing.ConsistencyError{Op: "RescaleAmounts", Detail: "step cursor advanced concurrently"}
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all clearing collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "handle", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "account_type", Value: 1}}},
			{Keys: bson.D{{Key: "pledge_amount", Value: 1}}},
		},
		colCredexes: {
			{Keys: bson.D{{Key: "issuer_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "securer_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colDayNodes: {
			{Keys: bson.D{{Key: "active", Value: 1}}},
			{Keys: bson.D{{Key: "day_date", Value: 1}}},
		},
		colLoopAnchors: {
			{Keys: bson.D{{Key: "day_node_id", Value: 1}}},
			{Keys: bson.D{{Key: "segments.credex_id", Value: 1}}},
		},
		colAccountQueue: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colCredexQueue: {
			{Keys: bson.D{{Key: "accepted_at", Value: 1}}},
		},
	}
}
