package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently on startup. Statements run one at a time.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash BYTEA NOT NULL,
		token_version INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login    TIMESTAMPTZ
	)`,
	`CREATE SEQUENCE IF NOT EXISTS account_number_seq START WITH 1000000001`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id         BIGSERIAL PRIMARY KEY,
		acc_number BIGINT NOT NULL UNIQUE DEFAULT nextval('account_number_seq'),
		user_id    BIGINT NOT NULL UNIQUE REFERENCES users (id) ON DELETE RESTRICT,
		balance    NUMERIC(20, 2) NOT NULL DEFAULT 0 CONSTRAINT accounts_balance_non_negative CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           BIGSERIAL PRIMARY KEY,
		tx_ref       TEXT NOT NULL UNIQUE,
		kind         TEXT NOT NULL CHECK (kind IN ('transfer', 'refund', 'deposit', 'withdrawal')),
		sender_acc   BIGINT NOT NULL,
		receiver_acc BIGINT NOT NULL,
		amount       NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		refund_ref   TEXT UNIQUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender_acc, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions (receiver_acc, created_at DESC)`,
}

// Migrate creates the tables the service needs when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
