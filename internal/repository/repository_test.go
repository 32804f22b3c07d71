// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"reward-ledger/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = Migrate(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func earnTx(userID string, amount int64, createdAt time.Time) *model.Transaction {
	return &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        model.TxTypeEarn,
		Description: "test credit",
		Status:      model.TxStatusCompleted,
		CreatedAt:   createdAt,
	}
}

func TestWalletRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	w, created, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", w.UserID)
	assert.Equal(t, int64(50), w.Balance)
	assert.Equal(t, int64(50), w.TotalEarned)
	assert.Equal(t, int64(0), w.TotalSpent)
	assert.Equal(t, 1, w.Level)
	assert.Equal(t, []string{"new_user"}, w.Achievements)

	// The welcome credit was recorded alongside the wallet.
	txs, total, err := txRepo.ListByUser(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, txs, 1)
	assert.Equal(t, "Welcome bonus", txs[0].Description)
	assert.Equal(t, int64(50), txs[0].Amount)

	// Second call finds the existing row; no second welcome credit.
	w2, created, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, w.Balance, w2.Balance)

	_, total, err = txRepo.ListByUser(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestWalletRepository_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	ctx := context.Background()

	_, err := repo.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletRepository_Apply(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	w, _, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	w.Balance += 30
	w.TotalEarned += 30
	err = repo.Apply(ctx, []*model.Wallet{w}, []*model.Transaction{
		earnTx("alice", 30, time.Now().UTC()),
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(80), got.Balance)
	assert.Equal(t, int64(80), got.TotalEarned)

	_, total, err := txRepo.ListByUser(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestWalletRepository_ApplyUnknownWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	ctx := context.Background()

	ghost := &model.Wallet{UserID: "ghost", Balance: 10, TotalEarned: 10, Level: 1}
	err := repo.Apply(ctx, []*model.Wallet{ghost}, nil)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletRepository_ApplyIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	w, _, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	// Balance no longer matches earned - spent, so the wallets table CHECK
	// rejects the update. The transaction append in the same unit must roll
	// back with it.
	w.Balance += 30
	err = repo.Apply(ctx, []*model.Wallet{w}, []*model.Transaction{
		earnTx("alice", 30, time.Now().UTC()),
	})
	require.Error(t, err)

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Balance)

	_, total, err := txRepo.ListByUser(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestWalletRepository_ApplyTwoWallets(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	ctx := context.Background()

	from, _, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	to, _, err := repo.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	now := time.Now().UTC()
	transferID := uuid.NewString()
	from.Balance -= 20
	from.TotalSpent += 20
	to.Balance += 20
	to.TotalEarned += 20

	debit := &model.Transaction{
		ID: uuid.NewString(), UserID: "alice", Amount: 20,
		Type: model.TxTypeTransferDebit, Description: "Transfer to bob: gift",
		Status: model.TxStatusCompleted,
		Metadata: &model.Metadata{
			Transfer: &model.TransferMeta{CounterpartyID: "bob", TransferID: transferID},
		},
		CreatedAt: now,
	}
	credit := &model.Transaction{
		ID: uuid.NewString(), UserID: "bob", Amount: 20,
		Type: model.TxTypeTransferCredit, Description: "Transfer from alice: gift",
		Status: model.TxStatusCompleted,
		Metadata: &model.Metadata{
			Transfer: &model.TransferMeta{CounterpartyID: "alice", TransferID: transferID},
		},
		CreatedAt: now,
	}

	err = repo.Apply(ctx, []*model.Wallet{from, to}, []*model.Transaction{debit, credit})
	require.NoError(t, err)

	gotFrom, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	gotTo, err := repo.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(30), gotFrom.Balance)
	assert.Equal(t, int64(70), gotTo.Balance)

	// Metadata survives the JSONB roundtrip with the shared transfer ID.
	txRepo := NewTransactionRepository(pool)
	txs, _, err := txRepo.ListByUser(ctx, "bob", 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	var creditTx *model.Transaction
	for _, tx := range txs {
		if tx.Type == model.TxTypeTransferCredit {
			creditTx = tx
		}
	}
	require.NotNil(t, creditTx)
	require.NotNil(t, creditTx.Metadata)
	require.NotNil(t, creditTx.Metadata.Transfer)
	assert.Equal(t, transferID, creditTx.Metadata.Transfer.TransferID)
	assert.Equal(t, "alice", creditTx.Metadata.Transfer.CounterpartyID)
}

func TestWalletRepository_AddAchievement(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 50)
	ctx := context.Background()

	_, _, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	w, err := repo.AddAchievement(ctx, "alice", "first_win")
	require.NoError(t, err)
	assert.Equal(t, []string{"new_user", "first_win"}, w.Achievements)

	// Idempotent re-insert.
	w, err = repo.AddAchievement(ctx, "alice", "first_win")
	require.NoError(t, err)
	assert.Equal(t, []string{"new_user", "first_win"}, w.Achievements)

	_, err = repo.AddAchievement(ctx, "ghost", "nope")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletRepository_Top(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 0)
	ctx := context.Background()

	seed := func(userID string, earned, spent int64) {
		w, _, err := repo.GetOrCreate(ctx, userID)
		require.NoError(t, err)
		w.TotalEarned += earned
		w.TotalSpent += spent
		w.Balance = w.TotalEarned - w.TotalSpent
		require.NoError(t, repo.Apply(ctx, []*model.Wallet{w}, []*model.Transaction{
			earnTx(userID, earned, time.Now().UTC()),
		}))
	}
	seed("low", 10, 0)
	seed("mid", 100, 70)
	seed("high", 60, 0)

	// By balance: high 60, mid 30, low 10.
	wallets, err := repo.Top(ctx, "balance", 10)
	require.NoError(t, err)
	require.Len(t, wallets, 3)
	assert.Equal(t, "high", wallets[0].UserID)
	assert.Equal(t, "mid", wallets[1].UserID)
	assert.Equal(t, "low", wallets[2].UserID)

	// By lifetime earnings: mid 100, high 60, low 10.
	wallets, err = repo.Top(ctx, "earned", 10)
	require.NoError(t, err)
	require.Len(t, wallets, 3)
	assert.Equal(t, "mid", wallets[0].UserID)

	// Limit truncates.
	wallets, err = repo.Top(ctx, "balance", 2)
	require.NoError(t, err)
	assert.Len(t, wallets, 2)
}

func TestTransactionRepository_ListByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 0)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	w, _, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		w.Balance += 10
		w.TotalEarned += 10
		require.NoError(t, repo.Apply(ctx, []*model.Wallet{w}, []*model.Transaction{
			earnTx("alice", 10, base.Add(time.Duration(i)*time.Minute)),
		}))
	}

	// Newest first. The zero welcome seed left no welcome record, so the
	// five credits are everything.
	txs, total, err := txRepo.ListByUser(ctx, "alice", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, txs, 3)
	for i := 1; i < len(txs); i++ {
		assert.False(t, txs[i].CreatedAt.After(txs[i-1].CreatedAt))
	}

	txs, total, err = txRepo.ListByUser(ctx, "alice", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, txs, 2)

	// Past the end: empty page, count still reported.
	txs, total, err = txRepo.ListByUser(ctx, "alice", 3, 50)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, txs)

	// Unknown user: empty, no error.
	txs, total, err = txRepo.ListByUser(ctx, "ghost", 3, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, txs)
}

func TestTransactionRepository_CountSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewWalletRepository(pool, 0)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	w, _, err := repo.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	now := time.Now().UTC()
	ages := []time.Duration{-90 * time.Second, -45 * time.Second, -10 * time.Second}
	for _, age := range ages {
		w.Balance += 5
		w.TotalEarned += 5
		require.NoError(t, repo.Apply(ctx, []*model.Wallet{w}, []*model.Transaction{
			earnTx("alice", 5, now.Add(age)),
		}))
	}

	// 60-second window catches the two recent credits, not the
	// 90-second-old one.
	count, err := txRepo.CountSince(ctx, "alice", now.Add(-60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = txRepo.CountSince(ctx, "alice", now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = txRepo.CountSince(ctx, "bob", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)
}
