package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reward-ledger/internal/model"
	"reward-ledger/internal/repository"
)

// memStore is an in-memory WalletStore and TransactionStore used to test
// the services without a database. Apply is all-or-nothing under a single
// mutex, mirroring the transactional store.
type memStore struct {
	mu             sync.Mutex
	wallets        map[string]*model.Wallet
	txs            []*model.Transaction
	welcomeBalance int64
	applyErr       error // when set, Apply fails without mutating state
}

func newMemStore(welcomeBalance int64) *memStore {
	return &memStore{
		wallets:        make(map[string]*model.Wallet),
		welcomeBalance: welcomeBalance,
	}
}

func cloneWallet(w *model.Wallet) *model.Wallet {
	c := *w
	c.Achievements = append([]string(nil), w.Achievements...)
	return &c
}

func (m *memStore) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[userID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	return cloneWallet(w), nil
}

func (m *memStore) GetOrCreate(ctx context.Context, userID string) (*model.Wallet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.wallets[userID]; ok {
		return cloneWallet(w), false, nil
	}

	now := time.Now().UTC()
	w := &model.Wallet{
		UserID:       userID,
		Balance:      m.welcomeBalance,
		TotalEarned:  m.welcomeBalance,
		Level:        1,
		Achievements: []string{"new_user"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.wallets[userID] = w
	m.txs = append(m.txs, &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      m.welcomeBalance,
		Type:        model.TxTypeEarn,
		Description: "Welcome bonus",
		Status:      model.TxStatusCompleted,
		CreatedAt:   now,
	})
	return cloneWallet(w), true, nil
}

func (m *memStore) Apply(ctx context.Context, wallets []*model.Wallet, txs []*model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applyErr != nil {
		return m.applyErr
	}
	for _, w := range wallets {
		if _, ok := m.wallets[w.UserID]; !ok {
			return repository.ErrWalletNotFound
		}
	}
	for _, w := range wallets {
		stored := cloneWallet(w)
		stored.UpdatedAt = time.Now().UTC()
		m.wallets[w.UserID] = stored
	}
	for _, t := range txs {
		c := *t
		m.txs = append(m.txs, &c)
	}
	return nil
}

func (m *memStore) AddAchievement(ctx context.Context, userID, tag string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[userID]
	if !ok {
		return nil, repository.ErrWalletNotFound
	}
	w.GrantAchievement(tag)
	return cloneWallet(w), nil
}

func (m *memStore) Top(ctx context.Context, sortBy string, limit int) ([]*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*model.Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		all = append(all, cloneWallet(w))
	}
	sort.Slice(all, func(i, j int) bool {
		if sortBy == SortByEarned {
			return all[i].TotalEarned > all[j].TotalEarned
		}
		return all[i].Balance > all[j].Balance
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var mine []*model.Transaction
	for _, t := range m.txs {
		if t.UserID == userID {
			mine = append(mine, t)
		}
	}
	// Newest first, matching the repository ordering.
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	mine = mine[offset:]
	if len(mine) > limit {
		mine = mine[:limit]
	}
	out := make([]*model.Transaction, len(mine))
	for i, t := range mine {
		c := *t
		out[i] = &c
	}
	return out, total, nil
}

func (m *memStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range m.txs {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// seedTransaction appends a raw transaction record, bypassing Apply. Used
// to shape the rate-limit window in tests.
func (m *memStore) seedTransaction(userID string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txs = append(m.txs, &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      1,
		Type:        model.TxTypeEarn,
		Description: "seed",
		Status:      model.TxStatusCompleted,
		CreatedAt:   createdAt,
	})
}

// countByUser returns how many transactions the store holds for a user.
func (m *memStore) countByUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range m.txs {
		if t.UserID == userID {
			count++
		}
	}
	return count
}

var _ WalletStore = (*memStore)(nil)
var _ TransactionStore = (*memStore)(nil)
