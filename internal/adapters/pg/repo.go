// Package pg is the Postgres persistence layer. One Repository backs the
// ledger, event, and payout stores plus the notification outbox; every
// multi-step write runs inside WithTx.
package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS ledgers (
	user_token TEXT PRIMARY KEY,
	available BIGINT NOT NULL DEFAULT 0 CHECK (available >= 0),
	locked BIGINT NOT NULL DEFAULT 0 CHECK (locked >= 0),
	pending BIGINT NOT NULL DEFAULT 0 CHECK (pending >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	id UUID PRIMARY KEY,
	user_token TEXT NOT NULL,
	type TEXT NOT NULL,
	amount BIGINT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	event_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_token, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference ON ledger_entries (reference) WHERE reference <> '';
CREATE TABLE IF NOT EXISTS earnings_holds (
	user_token TEXT NOT NULL,
	event_id TEXT NOT NULL,
	amount BIGINT NOT NULL,
	unlock_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_token, event_id)
);
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	owner_token TEXT NOT NULL,
	name TEXT NOT NULL,
	capacity INT NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'public',
	requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
	waitlist_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	registration_code TEXT NOT NULL DEFAULT '',
	ends_at TIMESTAMPTZ,
	cancelled BOOLEAN NOT NULL DEFAULT FALSE,
	cancelled_at TIMESTAMPTZ,
	cancel_reason TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS ticket_types (
	event_id TEXT NOT NULL REFERENCES events (id),
	name TEXT NOT NULL,
	price BIGINT NOT NULL DEFAULT 0,
	capacity INT NOT NULL DEFAULT 0,
	sold INT NOT NULL DEFAULT 0,
	PRIMARY KEY (event_id, name)
);
CREATE TABLE IF NOT EXISTS participants (
	event_id TEXT NOT NULL REFERENCES events (id),
	user_token TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	pass_id TEXT NOT NULL DEFAULT '',
	entry BOOLEAN NOT NULL DEFAULT FALSE,
	ticket_type TEXT NOT NULL DEFAULT '',
	amount_paid BIGINT NOT NULL DEFAULT 0,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, user_token)
);
CREATE TABLE IF NOT EXISTS waitlist (
	event_id TEXT NOT NULL REFERENCES events (id),
	user_token TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, user_token)
);
CREATE TABLE IF NOT EXISTS pending_registrations (
	event_id TEXT NOT NULL REFERENCES events (id),
	user_token TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	ticket_type TEXT NOT NULL DEFAULT '',
	answers JSONB,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, user_token)
);
CREATE TABLE IF NOT EXISTS payouts (
	id UUID PRIMARY KEY,
	user_token TEXT NOT NULL,
	amount BIGINT NOT NULL,
	bank_name TEXT NOT NULL DEFAULT '',
	bank_code TEXT NOT NULL,
	account_number TEXT NOT NULL,
	account_name TEXT NOT NULL,
	status TEXT NOT NULL,
	reference TEXT NOT NULL UNIQUE,
	admin_notes TEXT NOT NULL DEFAULT '',
	scheduled_at TIMESTAMPTZ,
	requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ,
	transfer_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_payouts_scheduled ON payouts (scheduled_at) WHERE status = 'pending';
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	payload_json BYTEA NOT NULL,
	status TEXT NOT NULL DEFAULT 'NEW',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_new ON outbox (created_at) WHERE status = 'NEW';
`

// Migrate creates the schema. Idempotent; production deployments would run a
// versioned migration tool instead.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
