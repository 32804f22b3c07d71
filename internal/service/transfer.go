package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"reward-ledger/internal/model"
	"reward-ledger/internal/pkg/lock"
	"reward-ledger/internal/repository"
)

// TransferService moves points between two wallets. The debit and the
// credit commit as one unit: both locks are held for the whole sequence
// (acquired in lexicographic order to rule out deadlock) and both wallet
// updates plus both transaction records go through a single atomic Apply,
// so no observer can see a debit without its credit.
type TransferService struct {
	wallets WalletStore
	limiter *RateLimiter
	locks   *lock.WalletLock
}

// NewTransferService creates a new TransferService instance.
func NewTransferService(wallets WalletStore, limiter *RateLimiter, locks *lock.WalletLock) *TransferService {
	return &TransferService{
		wallets: wallets,
		limiter: limiter,
		locks:   locks,
	}
}

// TransferResult carries both updated wallets and the shared transfer ID.
type TransferResult struct {
	From       *model.Wallet
	To         *model.Wallet
	TransferID string
}

// Transfer debits fromUserID and credits toUserID by amount.
// The source wallet must exist and cover the amount; the rate limit is
// checked against the source only. The destination is created with the
// welcome seed if absent. A self-transfer is permitted and conserves
// totals: net balance unchanged, totalSpent and totalEarned each grow
// by amount.
func (s *TransferService) Transfer(ctx context.Context, fromUserID, toUserID string, amount int64, description string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result *TransferResult
	err := s.locks.WithLockPair(fromUserID, toUserID, func() error {
		from, err := s.wallets.Get(ctx, fromUserID)
		if err != nil {
			if errors.Is(err, repository.ErrWalletNotFound) {
				return ErrWalletNotFound
			}
			return fmt.Errorf("failed to load source wallet: %w", err)
		}

		if from.Balance < amount {
			return ErrInsufficientBalance
		}

		now := time.Now().UTC()
		if err := s.limiter.check(ctx, fromUserID, now); err != nil {
			return err
		}

		to := from
		if toUserID != fromUserID {
			to, _, err = s.wallets.GetOrCreate(ctx, toUserID)
			if err != nil {
				return fmt.Errorf("failed to load destination wallet: %w", err)
			}
		}

		transferID := uuid.NewString()

		debit := &model.Transaction{
			ID:          uuid.NewString(),
			UserID:      fromUserID,
			Amount:      amount,
			Type:        model.TxTypeTransferDebit,
			Description: fmt.Sprintf("Transfer to %s: %s", toUserID, description),
			Status:      model.TxStatusCompleted,
			Metadata: &model.Metadata{
				Transfer: &model.TransferMeta{CounterpartyID: toUserID, TransferID: transferID},
			},
			CreatedAt: now,
		}
		credit := &model.Transaction{
			ID:          uuid.NewString(),
			UserID:      toUserID,
			Amount:      amount,
			Type:        model.TxTypeTransferCredit,
			Description: fmt.Sprintf("Transfer from %s: %s", fromUserID, description),
			Status:      model.TxStatusCompleted,
			Metadata: &model.Metadata{
				Transfer: &model.TransferMeta{CounterpartyID: fromUserID, TransferID: transferID},
			},
			CreatedAt: now,
		}

		from.Balance -= amount
		from.TotalSpent += amount
		to.Balance += amount
		to.TotalEarned += amount

		wallets := []*model.Wallet{from}
		if to != from {
			wallets = append(wallets, to)
		}

		if err := s.wallets.Apply(ctx, wallets, []*model.Transaction{debit, credit}); err != nil {
			// Nothing was committed; surface with full context so a failed
			// transfer is never silently dropped.
			log.Error().
				Err(err).
				Str("transfer_id", transferID).
				Str("from_user_id", fromUserID).
				Str("to_user_id", toUserID).
				Int64("amount", amount).
				Msg("Transfer persist failed, no side effects applied")
			return fmt.Errorf("failed to persist transfer %s: %w", transferID, err)
		}

		result = &TransferResult{From: from, To: to, TransferID: transferID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
