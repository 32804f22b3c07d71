package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reward-ledger/internal/model"
)

// TransactionRepository handles transaction reads: history pagination and
// rate-limit window counting. Writes always go through WalletRepository.Apply
// so they commit atomically with the balance mutation they represent.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// insertTransaction appends a transaction record inside an open database
// transaction. Records are append-only: no update or delete path exists.
func insertTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	var metadata []byte
	if t.Metadata != nil {
		var err error
		metadata, err = json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal transaction metadata: %w", err)
		}
	}

	const query = `
		INSERT INTO transactions (id, user_id, amount, type, description, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		t.ID, t.UserID, t.Amount, t.Type, t.Description, t.Status, metadata, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// ListByUser retrieves a page of a user's transactions ordered newest first,
// along with the total count for the user.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int, error) {
	const query = `
		SELECT id, user_id, amount, type, description, status, metadata, created_at,
		       COUNT(*) OVER() AS total
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var (
		transactions []*model.Transaction
		total        int
	)
	for rows.Next() {
		var (
			t        model.Transaction
			metadata []byte
		)
		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Amount,
			&t.Type,
			&t.Description,
			&t.Status,
			&metadata,
			&t.CreatedAt,
			&total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if len(metadata) > 0 {
			t.Metadata = &model.Metadata{}
			if err := json.Unmarshal(metadata, t.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
			}
		}
		transactions = append(transactions, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating transactions: %w", err)
	}

	// COUNT(*) OVER() is absent when the page is past the end
	if total == 0 && offset > 0 {
		const countQuery = `SELECT COUNT(*) FROM transactions WHERE user_id = $1`
		if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
		}
	}

	return transactions, total, nil
}

// CountSince counts a user's transactions created after the given instant.
// Backs the rate limiter's trailing window; hits idx_transactions_user_time.
func (r *TransactionRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND created_at > $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent transactions: %w", err)
	}

	return count, nil
}
