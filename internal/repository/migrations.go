package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	name string
	sql  string
}

// Statements are idempotent so Migrate can run on every start.
var migrations = []migration{
	{
		name: "create_accounts",
		sql: `
CREATE TABLE IF NOT EXISTS accounts (
    id                    UUID PRIMARY KEY,
    email                 TEXT NOT NULL,
    name                  TEXT NOT NULL DEFAULT '',
    password_hash         TEXT NOT NULL,
    plan_id               TEXT,
    subscription_status   TEXT NOT NULL DEFAULT 'trialing',
    trial_ends_at         TIMESTAMPTZ NOT NULL,
    pages_used_this_cycle INT NOT NULL DEFAULT 0 CHECK (pages_used_this_cycle >= 0),
    usage_cycle_anchor    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (lower(email));
`,
	},
	{
		name: "create_documents",
		sql: `
CREATE TABLE IF NOT EXISTS documents (
    id         UUID PRIMARY KEY,
    account_id UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
    title      TEXT NOT NULL DEFAULT '',
    slug       TEXT NOT NULL DEFAULT '',
    page_count INT NOT NULL CHECK (page_count > 0),
    text       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_account ON documents (account_id, created_at);
`,
	},
	{
		name: "create_generations",
		sql: `
CREATE TABLE IF NOT EXISTS generations (
    id              UUID PRIMARY KEY,
    account_id      UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
    document_id     UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
    kind            TEXT NOT NULL,
    units_requested INT NOT NULL DEFAULT 0,
    estimated_pages INT NOT NULL DEFAULT 0,
    units_produced  INT,
    pages_charged   INT,
    status          TEXT NOT NULL DEFAULT 'queued',
    output          JSONB,
    failure_reason  TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_generations_account ON generations (account_id, created_at);
`,
	},
	{
		name: "create_usage_entries",
		sql: `
CREATE TABLE IF NOT EXISTS usage_entries (
    id            UUID PRIMARY KEY,
    account_id    UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
    generation_id UUID UNIQUE,
    document_id   UUID,
    operation     TEXT NOT NULL,
    pages         INT NOT NULL CHECK (pages >= 0),
    usage_after   INT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_usage_entries_account ON usage_entries (account_id, created_at);
`,
	},
}

// Migrate creates the application tables. River's own tables are migrated
// separately with rivermigrate.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}
