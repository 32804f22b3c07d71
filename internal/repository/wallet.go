// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reward-ledger/internal/model"
)

// Common errors for repository operations.
var (
	ErrWalletNotFound = errors.New("wallet not found")
)

const walletColumns = "user_id, balance, total_earned, total_spent, level, achievements, created_at, updated_at"

// WalletRepository handles wallet persistence. One row per user; the
// embedded transaction sequence lives in the transactions table keyed
// by user_id so pagination and window counting stay indexable.
type WalletRepository struct {
	pool           *pgxpool.Pool
	welcomeBalance int64
}

// NewWalletRepository creates a new WalletRepository instance.
// welcomeBalance seeds newly created wallets.
func NewWalletRepository(pool *pgxpool.Pool, welcomeBalance int64) *WalletRepository {
	return &WalletRepository{pool: pool, welcomeBalance: welcomeBalance}
}

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(
		&w.UserID,
		&w.Balance,
		&w.TotalEarned,
		&w.TotalSpent,
		&w.Level,
		&w.Achievements,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Get retrieves a wallet by user ID.
// Returns ErrWalletNotFound if the wallet does not exist.
func (r *WalletRepository) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	const query = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1
	`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return w, nil
}

// GetOrCreate retrieves a wallet, creating it with the welcome seed if absent.
// Creation inserts the wallet row and its single welcome transaction in one
// database transaction; a concurrent creator wins the insert race and the
// loser re-fetches, so a user can never end up with two welcome transactions.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID string) (*model.Wallet, bool, error) {
	// Try to get existing wallet first
	w, err := r.Get(ctx, userID)
	if err == nil {
		return w, false, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, false, err
	}

	w, err = r.create(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if w == nil {
		// Lost the creation race to a concurrent request
		w, err = r.Get(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return w, false, nil
	}

	return w, true, nil
}

// create inserts the welcome-seeded wallet. Returns (nil, nil) when another
// request inserted the row first.
func (r *WalletRepository) create(ctx context.Context, userID string) (*model.Wallet, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin wallet creation: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertWallet = `
		INSERT INTO wallets (user_id, balance, total_earned, total_spent, level, achievements)
		VALUES ($1, $2, $2, 0, 1, ARRAY['new_user'])
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, insertWallet, userID, r.welcomeBalance))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	// A zero seed leaves no credit to record.
	if r.welcomeBalance > 0 {
		welcome := &model.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Amount:      r.welcomeBalance,
			Type:        model.TxTypeEarn,
			Description: "Welcome bonus",
			Status:      model.TxStatusCompleted,
			CreatedAt:   time.Now().UTC(),
		}
		if err := insertTransaction(ctx, tx, welcome); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit wallet creation: %w", err)
	}

	return w, nil
}

// Apply persists a completed mutation: one or two wallet updates plus the
// transactions they produced, committed as a single all-or-nothing unit.
// A reader can never observe the debit side of a transfer without the credit.
func (r *WalletRepository) Apply(ctx context.Context, wallets []*model.Wallet, txs []*model.Transaction) error {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin mutation: %w", err)
	}
	defer dbTx.Rollback(ctx)

	const update = `
		UPDATE wallets
		SET balance = $2, total_earned = $3, total_spent = $4, level = $5,
		    achievements = $6, updated_at = NOW()
		WHERE user_id = $1
	`

	for _, w := range wallets {
		tag, err := dbTx.Exec(ctx, update,
			w.UserID, w.Balance, w.TotalEarned, w.TotalSpent, w.Level, w.Achievements)
		if err != nil {
			return fmt.Errorf("failed to update wallet %s: %w", w.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrWalletNotFound
		}
	}

	for _, t := range txs {
		if err := insertTransaction(ctx, dbTx, t); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mutation: %w", err)
	}

	return nil
}

// AddAchievement inserts an achievement tag into the wallet's set.
// The insert is idempotent: a tag already present leaves the row unchanged.
// Returns the updated wallet, or ErrWalletNotFound.
func (r *WalletRepository) AddAchievement(ctx context.Context, userID, tag string) (*model.Wallet, error) {
	const query = `
		UPDATE wallets
		SET achievements = CASE
				WHEN $2 = ANY(achievements) THEN achievements
				ELSE array_append(achievements, $2)
			END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + walletColumns

	w, err := scanWallet(r.pool.QueryRow(ctx, query, userID, tag))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to add achievement: %w", err)
	}

	return w, nil
}

// Top retrieves the top N wallets ordered descending by the given field.
// sortBy "earned" ranks by lifetime earnings, anything else by balance.
func (r *WalletRepository) Top(ctx context.Context, sortBy string, limit int) ([]*model.Wallet, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		ORDER BY balance DESC
		LIMIT $1
	`
	if sortBy == "earned" {
		query = `
			SELECT ` + walletColumns + `
			FROM wallets
			ORDER BY total_earned DESC
			LIMIT $1
		`
	}

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}

	return wallets, nil
}
