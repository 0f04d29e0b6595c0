package postgres

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
    pledge_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    pledge_denom  TEXT NOT NULL DEFAULT '',
    audited_by    TEXT NOT NULL DEFAULT '',
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_clearing_accounts_handle ON clearing_accounts (handle) WHERE handle != '';
CREATE INDEX IF NOT EXISTS idx_clearing_accounts_type ON clearing_accounts (account_type);
CREATE INDEX IF NOT EXISTS idx_clearing_accounts_pledged ON clearing_accounts (pledge_denom) WHERE pledge_amount > 0;
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
    multiplier         DOUBLE PRECISION NOT NULL DEFAULT 1,
    initial_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
    outstanding_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    redeemed_amount    DOUBLE PRECISION NOT NULL DEFAULT 0,
    defaulted_amount   DOUBLE PRECISION NOT NULL DEFAULT 0,
    written_off_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    due_date           TIMESTAMPTZ,
    credex_type        TEXT NOT NULL DEFAULT 'PURCHASE',
    status             TEXT NOT NULL DEFAULT 'PENDING_OFFER',
    secured            BOOLEAN NOT NULL DEFAULT FALSE,
    securer_id         TEXT NOT NULL DEFAULT '',
    accepted_at        TIMESTAMPTZ,
    day_node_id        TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_clearing_credexes_issuer ON clearing_credexes (issuer_id, status);
CREATE INDEX IF NOT EXISTS idx_clearing_credexes_receiver ON clearing_credexes (receiver_id, status);
CREATE INDEX IF NOT EXISTS idx_clearing_credexes_securer ON clearing_credexes (securer_id) WHERE securer_id != '';
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
    day_date             TIMESTAMPTZ NOT NULL,
    active               BOOLEAN NOT NULL DEFAULT FALSE,
    rebasing_in_progress BOOLEAN NOT NULL DEFAULT FALSE,
    rebase_step          TEXT NOT NULL DEFAULT '',
    cxx_value            DOUBLE PRECISION NOT NULL DEFAULT 1,
    ref_denom            TEXT NOT NULL DEFAULT 'USD',
    rates                JSONB NOT NULL DEFAULT '{}',
    prev_id              TEXT NOT NULL DEFAULT '',
    next_id              TEXT NOT NULL DEFAULT '',
    settled_participants JSONB NOT NULL DEFAULT '[]',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_clearing_day_nodes_active ON clearing_day_nodes (active) WHERE active;
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
    cleared_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    multiplier     DOUBLE PRECISION NOT NULL DEFAULT 1,
    segments       JSONB NOT NULL DEFAULT '[]',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS clearing_credex_queue (
    credex_id   TEXT PRIMARY KEY,
    accepted_at TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
