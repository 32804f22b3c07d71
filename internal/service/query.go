package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reward-ledger/internal/model"
	"reward-ledger/internal/pkg/cache"
	"reward-ledger/internal/repository"
)

// Leaderboard sort fields.
const (
	SortByBalance = "balance"
	SortByEarned  = "earned"
)

// QueryService serves the read-only operations: wallet summary, history
// pages, leaderboard, and the idempotent achievement insert. The
// leaderboard may be served from a short-TTL cache when one is wired.
type QueryService struct {
	wallets          WalletStore
	txs              TransactionStore
	cache            cache.Cache // nil disables caching
	cacheTTL         time.Duration
	historyLimit     int
	leaderboardLimit int
}

// NewQueryService creates a new QueryService instance. c may be nil.
func NewQueryService(
	wallets WalletStore,
	txs TransactionStore,
	c cache.Cache,
	cacheTTL time.Duration,
	historyLimit int,
	leaderboardLimit int,
) *QueryService {
	return &QueryService{
		wallets:          wallets,
		txs:              txs,
		cache:            c,
		cacheTTL:         cacheTTL,
		historyLimit:     historyLimit,
		leaderboardLimit: leaderboardLimit,
	}
}

// GetWallet returns the wallet summary, creating the wallet with the
// welcome seed on first access.
func (s *QueryService) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	w, _, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return w, nil
}

// GetTransactions returns a newest-first page of the user's transactions
// and the total count. An absent wallet yields an empty page, not an error.
func (s *QueryService) GetTransactions(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.txs.ListByUser(ctx, userID, limit, offset)
}

// GetLeaderboard returns the top wallets ordered descending by balance or
// lifetime earnings, projected to public fields only.
func (s *QueryService) GetLeaderboard(ctx context.Context, limit int, sortBy string) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.leaderboardLimit
	}
	if sortBy != SortByEarned {
		sortBy = SortByBalance
	}

	cacheKey := fmt.Sprintf("leaderboard:%s:%d", sortBy, limit)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey)
		if err == nil {
			var entries []model.LeaderboardEntry
			if err := json.Unmarshal([]byte(cached), &entries); err == nil {
				return entries, nil
			}
			log.Warn().Str("key", cacheKey).Msg("Discarding unreadable leaderboard cache entry")
		} else if !errors.Is(err, cache.ErrKeyNotFound) {
			log.Warn().Err(err).Str("key", cacheKey).Msg("Leaderboard cache read failed")
		}
	}

	wallets, err := s.wallets.Top(ctx, sortBy, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(wallets))
	for _, w := range wallets {
		entries = append(entries, w.PublicProjection())
	}

	if s.cache != nil {
		if payload, err := json.Marshal(entries); err == nil {
			if err := s.cache.Set(ctx, cacheKey, string(payload), s.cacheTTL); err != nil {
				log.Warn().Err(err).Str("key", cacheKey).Msg("Leaderboard cache write failed")
			}
		}
	}

	return entries, nil
}

// AddAchievement inserts an achievement tag into an existing wallet's set.
// Idempotent: adding a tag twice is a no-op.
func (s *QueryService) AddAchievement(ctx context.Context, userID, achievement string) (*model.Wallet, error) {
	w, err := s.wallets.AddAchievement(ctx, userID, achievement)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to add achievement: %w", err)
	}
	return w, nil
}
