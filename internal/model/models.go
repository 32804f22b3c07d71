// Package model defines the data models for the reward ledger.
package model

import "time"

// Wallet represents one user's point balance and lifetime totals.
// Invariant after every committed mutation: Balance == TotalEarned - TotalSpent,
// Balance >= 0, and Level and both totals only ever increase.
type Wallet struct {
	UserID       string    `db:"user_id" json:"userId"`
	Balance      int64     `db:"balance" json:"balance"`
	TotalEarned  int64     `db:"total_earned" json:"totalEarned"`
	TotalSpent   int64     `db:"total_spent" json:"totalSpent"`
	Level        int       `db:"level" json:"level"`
	Achievements []string  `db:"achievements" json:"achievements"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

// HasAchievement reports whether the wallet already holds the given achievement tag.
func (w *Wallet) HasAchievement(tag string) bool {
	for _, a := range w.Achievements {
		if a == tag {
			return true
		}
	}
	return false
}

// GrantAchievement adds an achievement tag, preserving set semantics.
// Returns false if the tag was already present.
func (w *Wallet) GrantAchievement(tag string) bool {
	if w.HasAchievement(tag) {
		return false
	}
	w.Achievements = append(w.Achievements, tag)
	return true
}

// Transaction is an immutable record of a single balance-affecting event.
// Amount is always positive; the direction is carried by Type.
type Transaction struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	Amount      int64     `db:"amount" json:"amount"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	Metadata    *Metadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"timestamp"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeEarn           = "earn"            // Credit from earning points (incl. welcome and level bonuses)
	TxTypeSpend          = "spend"           // Debit from spending points
	TxTypeTransferDebit  = "transfer-debit"  // Debit side of a transfer
	TxTypeTransferCredit = "transfer-credit" // Credit side of a transfer
)

// TxStatusCompleted is the only modeled status: a transaction is created
// only after its effect is finalized.
const TxStatusCompleted = "completed"

// Metadata carries optional transaction attributes. Transfer transactions
// carry the typed Transfer shape; earn/spend may carry free-form attributes.
type Metadata struct {
	Transfer *TransferMeta     `json:"transfer,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// TransferMeta links the two sides of a transfer through a shared transfer ID.
type TransferMeta struct {
	CounterpartyID string `json:"counterpartyId"`
	TransferID     string `json:"transferId"`
}

// LeaderboardEntry is the public projection of a wallet for ranking output.
type LeaderboardEntry struct {
	UserID       string   `json:"userId"`
	Balance      int64    `json:"balance"`
	TotalEarned  int64    `json:"totalEarned"`
	TotalSpent   int64    `json:"totalSpent"`
	Level        int      `json:"level"`
	Achievements []string `json:"achievements"`
}

// PublicProjection converts a wallet to its leaderboard projection.
func (w *Wallet) PublicProjection() LeaderboardEntry {
	return LeaderboardEntry{
		UserID:       w.UserID,
		Balance:      w.Balance,
		TotalEarned:  w.TotalEarned,
		TotalSpent:   w.TotalSpent,
		Level:        w.Level,
		Achievements: w.Achievements,
	}
}
