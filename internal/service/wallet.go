package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reward-ledger/internal/model"
	"reward-ledger/internal/pkg/lock"
	"reward-ledger/internal/repository"
)

// WalletService processes single-wallet mutations: earn and spend.
// Every operation runs its whole load-validate-mutate-persist sequence
// under the wallet's lock, and persists exactly once.
type WalletService struct {
	wallets  WalletStore
	limiter  *RateLimiter
	leveling *LevelingEngine
	locks    *lock.WalletLock
}

// NewWalletService creates a new WalletService instance.
func NewWalletService(
	wallets WalletStore,
	limiter *RateLimiter,
	leveling *LevelingEngine,
	locks *lock.WalletLock,
) *WalletService {
	return &WalletService{
		wallets:  wallets,
		limiter:  limiter,
		leveling: leveling,
		locks:    locks,
	}
}

// Earn credits points to a wallet, creating it with the welcome seed if
// absent. Level thresholds crossed by the credit (including by the bonuses
// themselves) append one extra earn transaction each and grant the
// matching level achievement. Returns the updated wallet and the primary
// transaction.
func (s *WalletService) Earn(ctx context.Context, userID string, amount int64, description string, attrs map[string]string) (*model.Wallet, *model.Transaction, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var (
		wallet  *model.Wallet
		primary *model.Transaction
	)
	err := s.locks.WithLock(userID, func() error {
		w, _, err := s.wallets.GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load wallet: %w", err)
		}

		now := time.Now().UTC()
		if err := s.limiter.check(ctx, userID, now); err != nil {
			return err
		}

		tx := &model.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Amount:      amount,
			Type:        model.TxTypeEarn,
			Description: description,
			Status:      model.TxStatusCompleted,
			Metadata:    metadataFromAttrs(attrs),
			CreatedAt:   now,
		}

		w.Balance += amount
		w.TotalEarned += amount
		txs := []*model.Transaction{tx}

		for _, b := range s.leveling.Advance(w.Level, w.TotalEarned) {
			w.Level = b.Level
			w.Balance += b.Bonus
			w.TotalEarned += b.Bonus
			w.GrantAchievement(fmt.Sprintf("level_%d", b.Level))
			txs = append(txs, &model.Transaction{
				ID:          uuid.NewString(),
				UserID:      userID,
				Amount:      b.Bonus,
				Type:        model.TxTypeEarn,
				Description: fmt.Sprintf("Level %d achievement bonus", b.Level),
				Status:      model.TxStatusCompleted,
				CreatedAt:   now,
			})
		}

		if err := s.wallets.Apply(ctx, []*model.Wallet{w}, txs); err != nil {
			return fmt.Errorf("failed to persist earn: %w", err)
		}

		wallet, primary = w, tx
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return wallet, primary, nil
}

// Spend debits points from an existing wallet. A missing wallet is an
// error, never an implicit creation; a debit larger than the balance
// leaves the wallet unchanged.
func (s *WalletService) Spend(ctx context.Context, userID string, amount int64, description string, attrs map[string]string) (*model.Wallet, *model.Transaction, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var (
		wallet  *model.Wallet
		primary *model.Transaction
	)
	err := s.locks.WithLock(userID, func() error {
		w, err := s.wallets.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrWalletNotFound) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("failed to load wallet: %w", err)
		}

		if w.Balance < amount {
			return ErrInsufficientBalance
		}

		now := time.Now().UTC()
		if err := s.limiter.check(ctx, userID, now); err != nil {
			return err
		}

		tx := &model.Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Amount:      amount,
			Type:        model.TxTypeSpend,
			Description: description,
			Status:      model.TxStatusCompleted,
			Metadata:    metadataFromAttrs(attrs),
			CreatedAt:   now,
		}

		w.Balance -= amount
		w.TotalSpent += amount

		if err := s.wallets.Apply(ctx, []*model.Wallet{w}, []*model.Transaction{tx}); err != nil {
			return fmt.Errorf("failed to persist spend: %w", err)
		}

		wallet, primary = w, tx
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return wallet, primary, nil
}

// metadataFromAttrs wraps free-form attributes for earn/spend transactions.
func metadataFromAttrs(attrs map[string]string) *model.Metadata {
	if len(attrs) == 0 {
		return nil
	}
	return &model.Metadata{Attrs: attrs}
}
