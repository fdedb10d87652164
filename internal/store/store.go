// Package store persists the canonical ledger to a backing database.
// Two implementations exist: Firestore for the hosted service and SQLite
// for local, single-user use. Both upsert by deterministic ID, so saving
// the same ledger twice is a no-op.
package store

import (
	"context"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
)

// Store is the persistence contract shared by the Firestore and SQLite
// backends.
type Store interface {
	// SaveLedger upserts every entity in the ledger under the given user.
	SaveLedger(ctx context.Context, userID string, ledger *domain.Ledger) error

	// Institutions returns all institutions for a user.
	Institutions(ctx context.Context, userID string) ([]domain.Institution, error)

	// Accounts returns all accounts for a user.
	Accounts(ctx context.Context, userID string) ([]domain.Account, error)

	// Statements returns all statement records for a user, newest first.
	Statements(ctx context.Context, userID string) ([]domain.StatementRecord, error)

	// Transactions returns all transactions for a user, newest first.
	Transactions(ctx context.Context, userID string) ([]domain.Transaction, error)

	Close() error
}
