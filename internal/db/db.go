// Package db owns the Postgres connection pool and the schema the
// marketplace persists: accounts, wallets, assets, the transactions audit
// log and the provisioned market configuration.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and ensures the schema exists.
func Init(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	Conn = pool
	zap.L().Info("connected to postgres")

	return ensureSchema(ctx)
}

func ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'trader',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id    TEXT NOT NULL REFERENCES users(id),
			currency   TEXT NOT NULL,
			balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			escrow     BIGINT NOT NULL DEFAULT 0 CHECK (escrow >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, currency)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			currency   TEXT NOT NULL,
			amount     BIGINT NOT NULL,
			type       TEXT NOT NULL,
			status     TEXT NOT NULL,
			reference  TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL DEFAULT '',
			owner_id      TEXT NOT NULL REFERENCES users(id),
			held          BOOLEAN NOT NULL DEFAULT FALSE,
			royalty_payee TEXT,
			royalty_num   BIGINT NOT NULL DEFAULT 0,
			royalty_den   BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS market_config (
			singleton      BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			operator_id    TEXT NOT NULL REFERENCES users(id),
			fee_bps        BIGINT NOT NULL CHECK (fee_bps BETWEEN 0 AND 10000),
			provisioned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE SEQUENCE IF NOT EXISTS listing_id_seq`,
	}
	for _, stmt := range stmts {
		if _, err := Conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// NextListingID draws the next id from the listing sequence. Sequence-backed
// so listing ids stay monotonic across server restarts.
func NextListingID(ctx context.Context) (uint64, error) {
	var id int64
	if err := Conn.QueryRow(ctx, `SELECT nextval('listing_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next listing id: %w", err)
	}
	return uint64(id), nil
}

// LoadMarketConfig reads the provisioned operator and fee rate.
// ok is false when the marketplace has not been provisioned yet.
func LoadMarketConfig(ctx context.Context) (operator string, feeBps int64, ok bool, err error) {
	err = Conn.QueryRow(ctx,
		`SELECT operator_id, fee_bps FROM market_config`,
	).Scan(&operator, &feeBps)
	if err == pgx.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("load market config: %w", err)
	}
	return operator, feeBps, true, nil
}
