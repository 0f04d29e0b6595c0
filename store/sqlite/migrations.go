package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the clearing store.
var Migrations = migrate.NewGroup("clearing")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_clearing_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS clearing_accounts (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    handle        TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    account_type  TEXT NOT NULL DEFAULT 'HUMAN',
    default_denom TEXT NOT NULL DEFAULT '',
    pledge_amount REAL NOT NULL DEFAULT 0,
    pledge_denom  TEXT NOT NULL DEFAULT '',
    audited_by    TEXT NOT NULL DEFAULT '',
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_clearing_accounts_handle ON clearing_accounts (handle) WHERE handle != '';
CREATE INDEX IF NOT EXISTS idx_clearing_accounts_type ON clearing_accounts (account_type);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS clearing_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_clearing_credexes",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS clearing_credexes (
    id                 TEXT PRIMARY KEY,
    issuer_id          TEXT NOT NULL DEFAULT '',
    receiver_id        TEXT NOT NULL DEFAULT '',
    denomination       TEXT NOT NULL DEFAULT '',
    multiplier         REAL NOT NULL DEFAULT 1,
    initial_amount     REAL NOT NULL DEFAULT 0,
    outstanding_amount REAL NOT NULL DEFAULT 0,
    redeemed_amount    REAL NOT NULL DEFAULT 0,
    defaulted_amount   REAL NOT NULL DEFAULT 0,
    written_off_amount REAL NOT NULL DEFAULT 0,
    due_date           TEXT,
    credex_type        TEXT NOT NULL DEFAULT 'PURCHASE',
    status             TEXT NOT NULL DEFAULT 'PENDING_OFFER',
    secured            INTEGER NOT NULL DEFAULT 0,
    securer_id         TEXT NOT NULL DEFAULT '',
    accepted_at        TEXT,
    day_node_id        TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clearing_credexes_issuer ON clearing_credexes (issuer_id, status);
CREATE INDEX IF NOT EXISTS idx_clearing_credexes_receiver ON clearing_credexes (receiver_id, status);
CREATE INDEX IF NOT EXISTS idx_clearing_credexes_status ON clearing_credexes (status);
CREATE INDEX IF NOT EXISTS idx_clearing_credexes_due ON clearing_credexes (due_date) WHERE due_date IS NOT NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS clearing_credexes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_clearing_day_nodes",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS clearing_day_nodes (
    id                   TEXT PRIMARY KEY,
    day_date             TEXT NOT NULL,
    active               INTEGER NOT NULL DEFAULT 0,
    rebasing_in_progress INTEGER NOT NULL DEFAULT 0,
    rebase_step          TEXT NOT NULL DEFAULT '',
    cxx_value            REAL NOT NULL DEFAULT 1,
    ref_denom            TEXT NOT NULL DEFAULT 'USD',
    rates                TEXT NOT NULL DEFAULT '{}',
    prev_id              TEXT NOT NULL DEFAULT '',
    next_id              TEXT NOT NULL DEFAULT '',
    settled_participants TEXT NOT NULL DEFAULT '[]',
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_clearing_day_nodes_active ON clearing_day_nodes (active) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_clearing_day_nodes_date ON clearing_day_nodes (day_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS clearing_day_nodes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_clearing_loop_anchors",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS clearing_loop_anchors (
    id             TEXT PRIMARY KEY,
    day_node_id    TEXT NOT NULL DEFAULT '',
    cleared_amount REAL NOT NULL DEFAULT 0,
    multiplier     REAL NOT NULL DEFAULT 1,
    segments       TEXT NOT NULL DEFAULT '[]',
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clearing_loop_anchors_day ON clearing_loop_anchors (day_node_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS clearing_loop_anchors`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_clearing_queues",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS clearing_account_queue (
    account_id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clearing_credex_queue (
    credex_id   TEXT PRIMARY KEY,
    accepted_at TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clearing_credex_queue_accepted ON clearing_credex_queue (accepted_at, credex_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS clearing_account_queue;
DROP TABLE IF EXISTS clearing_credex_queue;
`)
				return err
			},
		},
	)
}
