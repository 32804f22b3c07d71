// Package handler implements the HTTP handlers for the ledger API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"reward-ledger/internal/model"
	"reward-ledger/internal/service"
)

// errMissingField marks requests with absent required fields.
var errMissingField = errors.New("missing required field")

// LedgerHandler handles HTTP requests for wallet operations.
type LedgerHandler struct {
	wallets   *service.WalletService
	transfers *service.TransferService
	queries   *service.QueryService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(
	wallets *service.WalletService,
	transfers *service.TransferService,
	queries *service.QueryService,
) *LedgerHandler {
	return &LedgerHandler{
		wallets:   wallets,
		transfers: transfers,
		queries:   queries,
	}
}

func (h *LedgerHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func (h *LedgerHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		statusCode = http.StatusBadRequest
		message = "Amount must be positive"
	case errors.Is(err, errMissingField):
		statusCode = http.StatusBadRequest
		message = "Missing required field"
	case errors.Is(err, service.ErrWalletNotFound):
		statusCode = http.StatusNotFound
		message = "Wallet not found"
	case errors.Is(err, service.ErrInsufficientBalance):
		statusCode = http.StatusBadRequest
		message = "Insufficient balance"
	case errors.Is(err, service.ErrRateLimited):
		statusCode = http.StatusTooManyRequests
		message = "Rate limit exceeded"
	default:
		log.Error().Err(err).Msg("Unhandled service error")
	}

	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// GetWallet handles GET /wallets/{userID}.
func (h *LedgerHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, errMissingField)
		return
	}

	wallet, err := h.queries.GetWallet(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, wallet.PublicProjection())
}

// TransactionRequest is the request body for earn and spend.
type TransactionRequest struct {
	UserID      string            `json:"userId"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type mutationResponse struct {
	Wallet      model.LeaderboardEntry `json:"wallet"`
	Transaction *model.Transaction     `json:"transaction"`
}

// Earn handles POST /wallets/earn.
func (h *LedgerHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, errMissingField)
		return
	}
	if req.UserID == "" || req.Description == "" {
		h.respondWithError(w, errMissingField)
		return
	}

	wallet, tx, err := h.wallets.Earn(r.Context(), req.UserID, req.Amount, req.Description, req.Metadata)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, mutationResponse{
		Wallet:      wallet.PublicProjection(),
		Transaction: tx,
	})
}

// Spend handles POST /wallets/spend.
func (h *LedgerHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, errMissingField)
		return
	}
	if req.UserID == "" || req.Description == "" {
		h.respondWithError(w, errMissingField)
		return
	}

	wallet, tx, err := h.wallets.Spend(r.Context(), req.UserID, req.Amount, req.Description, req.Metadata)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, mutationResponse{
		Wallet:      wallet.PublicProjection(),
		Transaction: tx,
	})
}

// TransferRequest is the request body for transfer.
type TransferRequest struct {
	FromUserID  string `json:"fromUserId"`
	ToUserID    string `json:"toUserId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Transfer handles POST /wallets/transfer.
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, errMissingField)
		return
	}
	if req.FromUserID == "" || req.ToUserID == "" || req.Description == "" {
		h.respondWithError(w, errMissingField)
		return
	}

	result, err := h.transfers.Transfer(r.Context(), req.FromUserID, req.ToUserID, req.Amount, req.Description)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"transferId": result.TransferID,
		"fromWallet": result.From.PublicProjection(),
		"toWallet":   result.To.PublicProjection(),
	})
}

// GetTransactions handles GET /wallets/{userID}/transactions.
func (h *LedgerHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, errMissingField)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, total, err := h.queries.GetTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if transactions == nil {
		transactions = []*model.Transaction{}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"total":        total,
	})
}

// GetLeaderboard handles GET /leaderboard.
func (h *LedgerHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sortBy := r.URL.Query().Get("sortBy")

	entries, err := h.queries.GetLeaderboard(r.Context(), limit, sortBy)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	h.respondWithJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// AchievementRequest is the request body for achievement inserts.
type AchievementRequest struct {
	UserID      string `json:"userId"`
	Achievement string `json:"achievement"`
}

// AddAchievement handles POST /wallets/achievement.
func (h *LedgerHandler) AddAchievement(w http.ResponseWriter, r *http.Request) {
	var req AchievementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, errMissingField)
		return
	}
	if req.UserID == "" || req.Achievement == "" {
		h.respondWithError(w, errMissingField)
		return
	}

	wallet, err := h.queries.AddAchievement(r.Context(), req.UserID, req.Achievement)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]any{"wallet": wallet.PublicProjection()})
}
