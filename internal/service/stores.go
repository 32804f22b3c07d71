// Package service provides the ledger business logic: single-wallet
// mutations, two-wallet transfers, leveling, rate limiting, and reads.
package service

import (
	"context"
	"errors"
	"time"

	"reward-ledger/internal/model"
)

// Common errors for ledger operations. All of them are expected, typed
// outcomes surfaced to the caller, never process-fatal.
var (
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// WalletStore is the persistence contract the ledger services depend on.
// Apply must commit all given wallet updates and transaction appends as a
// single all-or-nothing unit.
type WalletStore interface {
	Get(ctx context.Context, userID string) (*model.Wallet, error)
	GetOrCreate(ctx context.Context, userID string) (*model.Wallet, bool, error)
	Apply(ctx context.Context, wallets []*model.Wallet, txs []*model.Transaction) error
	AddAchievement(ctx context.Context, userID, tag string) (*model.Wallet, error)
	Top(ctx context.Context, sortBy string, limit int) ([]*model.Wallet, error)
}

// TransactionStore serves transaction reads: history pages and the
// trailing-window count behind the rate limiter.
type TransactionStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}
