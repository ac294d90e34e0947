package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the entitle store.
var Migrations = migrate.NewGroup("entitle")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_entitle_subscriptions",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS entitle_subscriptions (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL DEFAULT '',
    plan_id         TEXT NOT NULL DEFAULT 'free',
    status          TEXT NOT NULL DEFAULT 'free',
    period_start    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    period_end      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    activated_at    TIMESTAMPTZ,
    cancelled_at    TIMESTAMPTZ,
    trial_end       TIMESTAMPTZ,
    gateway_ref     TEXT NOT NULL DEFAULT '',
    pending_plan_id TEXT NOT NULL DEFAULT '',
    prior_status    TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entitle_subs_tenant ON entitle_subscriptions (tenant_id);
CREATE INDEX IF NOT EXISTS idx_entitle_subs_period_end ON entitle_subscriptions (status, period_end);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS entitle_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_entitle_usage_counters",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS entitle_usage_counters (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL DEFAULT '',
    resource     TEXT NOT NULL DEFAULT '',
    period_start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    used         BIGINT NOT NULL DEFAULT 0,
    quota_limit  BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_entitle_counters_bound CHECK (used >= 0 AND used <= quota_limit)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entitle_counters_tenant_resource ON entitle_usage_counters (tenant_id, resource);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS entitle_usage_counters`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_entitle_topup_credits",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS entitle_topup_credits (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL DEFAULT '',
    resource   TEXT NOT NULL DEFAULT '',
    balance    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT chk_entitle_topup_balance CHECK (balance >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entitle_topup_tenant_resource ON entitle_topup_credits (tenant_id, resource);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS entitle_topup_credits`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_entitle_payment_sessions",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS entitle_payment_sessions (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'initiated',
    amount_cents    BIGINT NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    plan_id         TEXT NOT NULL DEFAULT '',
    pack_id         TEXT NOT NULL DEFAULT '',
    resource        TEXT NOT NULL DEFAULT '',
    credits         BIGINT NOT NULL DEFAULT 0,
    resolved_at     TIMESTAMPTZ,
    return_url      TEXT NOT NULL DEFAULT '',
    cancel_url      TEXT NOT NULL DEFAULT '',
    gateway_name    TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entitle_sessions_one_open ON entitle_payment_sessions (tenant_id) WHERE status = 'initiated';
CREATE INDEX IF NOT EXISTS idx_entitle_sessions_stale ON entitle_payment_sessions (status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS entitle_payment_sessions`)
				return err
			},
		},
	)
}
