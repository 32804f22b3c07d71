package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate applies the ledger schema. The balance checks back up the
// service-level invariants: a bug that would corrupt a wallet fails the
// commit instead of persisting bad state.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: wallets table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			total_earned BIGINT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			level INT NOT NULL DEFAULT 1,
			achievements TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (balance >= 0),
			CHECK (balance = total_earned - total_spent),
			CHECK (level >= 1)
		);
		CREATE INDEX IF NOT EXISTS idx_wallets_balance ON wallets(balance DESC);
		CREATE INDEX IF NOT EXISTS idx_wallets_total_earned ON wallets(total_earned DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: wallets table created")

	// Migration 2: transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES wallets(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL CHECK (amount > 0),
			type VARCHAR(50) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'completed',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
