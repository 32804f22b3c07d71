// Package lock provides per-wallet locking for concurrent ledger operations.
// The read-modify-write sequence for any mutating operation on a wallet runs
// while holding that wallet's lock, which linearizes operations per wallet.
package lock

import (
	"sort"
	"sync"
)

// walletMutex wraps a mutex with reference counting for cleanup.
type walletMutex struct {
	mu       sync.Mutex
	refCount int
}

// WalletLock provides per-wallet locking to prevent race conditions
// during balance mutations.
type WalletLock struct {
	locks sync.Map // map[string]*walletMutex
	pool  sync.Pool
}

// NewWalletLock creates a new WalletLock instance.
func NewWalletLock() *WalletLock {
	return &WalletLock{
		pool: sync.Pool{
			New: func() any {
				return &walletMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given wallet.
func (wl *WalletLock) getLock(userID string) *walletMutex {
	// Try to load existing lock
	if v, ok := wl.locks.Load(userID); ok {
		return v.(*walletMutex)
	}

	// Create new lock from pool
	newLock := wl.pool.Get().(*walletMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := wl.locks.LoadOrStore(userID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		wl.pool.Put(newLock)
	}
	return actual.(*walletMutex)
}

// Lock acquires the lock for a wallet.
// This must be called before any balance-modifying operation.
func (wl *WalletLock) Lock(userID string) {
	lock := wl.getLock(userID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a wallet.
func (wl *WalletLock) Unlock(userID string) {
	if v, ok := wl.locks.Load(userID); ok {
		lock := v.(*walletMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (wl *WalletLock) TryLock(userID string) bool {
	lock := wl.getLock(userID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the wallet's lock.
func (wl *WalletLock) WithLock(userID string, fn func() error) error {
	wl.Lock(userID)
	defer wl.Unlock(userID)
	return fn()
}

// WithLockPair executes a function while holding the locks of both wallets.
// Locks are always acquired in lexicographic order so that two transfers
// between the same pair running in opposite directions cannot deadlock.
// Duplicate IDs are locked once, which makes self-transfers safe.
func (wl *WalletLock) WithLockPair(a, b string, fn func() error) error {
	ids := []string{a}
	if b != a {
		ids = append(ids, b)
		sort.Strings(ids)
	}
	for _, id := range ids {
		wl.Lock(id)
	}
	defer func() {
		for i := len(ids) - 1; i >= 0; i-- {
			wl.Unlock(ids[i])
		}
	}()
	return fn()
}

// IsLocked checks if a wallet currently has an active lock.
// Note: This is a point-in-time check and may change immediately after.
func (wl *WalletLock) IsLocked(userID string) bool {
	if v, ok := wl.locks.Load(userID); ok {
		lock := v.(*walletMutex)
		// Try to acquire and immediately release to check if locked
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
