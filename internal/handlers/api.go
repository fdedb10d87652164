// Package handlers implements the HTTP surface of the statement service:
// ledger queries, statement uploads and parse session control.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/middleware"
)

// LedgerReader is the query surface the API handlers need. Both store
// backends satisfy it.
type LedgerReader interface {
	Transactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	Statements(ctx context.Context, userID string) ([]domain.StatementRecord, error)
	Accounts(ctx context.Context, userID string) ([]domain.Account, error)
	Institutions(ctx context.Context, userID string) ([]domain.Institution, error)
}

// APIHandler handles ledger query requests.
type APIHandler struct {
	store LedgerReader
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store LedgerReader) *APIHandler {
	return &APIHandler{store: store}
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeJSON encodes v, logging rather than failing when the client has
// gone away mid-encode.
func writeJSON(w http.ResponseWriter, userID, what string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode %s for user %s: %v", what, userID, err)
	}
}

// GetTransactions handles GET /api/transactions
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.Transactions(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	writeJSON(w, userID, "transactions", transactions)
}

// GetStatements handles GET /api/statements
func (h *APIHandler) GetStatements(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	statements, err := h.store.Statements(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch statements", http.StatusInternalServerError)
		return
	}
	if statements == nil {
		statements = []domain.StatementRecord{}
	}
	writeJSON(w, userID, "statements", statements)
}

// GetAccounts handles GET /api/accounts
func (h *APIHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accounts, err := h.store.Accounts(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, userID, "accounts", accounts)
}

// GetInstitutions handles GET /api/institutions
func (h *APIHandler) GetInstitutions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	institutions, err := h.store.Institutions(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to fetch institutions", http.StatusInternalServerError)
		return
	}
	if institutions == nil {
		institutions = []domain.Institution{}
	}
	writeJSON(w, userID, "institutions", institutions)
}
