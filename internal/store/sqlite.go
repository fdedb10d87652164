package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
)

// SQLite persists ledgers in a local SQLite database. It needs no
// credentials or network, which suits the single-user CLI path.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS institutions (
	doc_id  TEXT PRIMARY KEY,
	id      TEXT NOT NULL,
	user_id TEXT NOT NULL,
	name    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	doc_id         TEXT PRIMARY KEY,
	id             TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	institution_id TEXT NOT NULL,
	name           TEXT NOT NULL,
	type           TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS statements (
	doc_id     TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	account_id TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	doc_id      TEXT PRIMARY KEY,
	id          TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	account_id  TEXT NOT NULL,
	date        TEXT NOT NULL,
	amount      REAL NOT NULL,
	type        TEXT NOT NULL,
	category    TEXT NOT NULL,
	description TEXT NOT NULL,
	tag         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions (user_id, date);
`

// NewSQLite opens (creating if needed) a SQLite database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveLedger upserts every ledger entity in one transaction.
func (s *SQLite) SaveLedger(ctx context.Context, userID string, ledger *domain.Ledger) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, inst := range ledger.GetInstitutions() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO institutions (doc_id, id, user_id, name) VALUES (?, ?, ?, ?)
			ON CONFLICT (doc_id) DO UPDATE SET name = excluded.name`,
			docID(userID, inst.ID), inst.ID, userID, inst.Name)
		if err != nil {
			return fmt.Errorf("failed to save institution %s: %w", inst.ID, err)
		}
	}
	for _, acc := range ledger.GetAccounts() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (doc_id, id, user_id, institution_id, name, type) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (doc_id) DO UPDATE SET institution_id = excluded.institution_id, name = excluded.name, type = excluded.type`,
			docID(userID, acc.ID), acc.ID, userID, acc.InstitutionID, acc.Name, string(acc.Type))
		if err != nil {
			return fmt.Errorf("failed to save account %s: %w", acc.ID, err)
		}
	}
	for _, stmt := range ledger.GetStatements() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO statements (doc_id, id, user_id, account_id, start_date, end_date) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (doc_id) DO UPDATE SET start_date = excluded.start_date, end_date = excluded.end_date`,
			docID(userID, stmt.ID), stmt.ID, userID, stmt.AccountID, stmt.StartDate, stmt.EndDate)
		if err != nil {
			return fmt.Errorf("failed to save statement %s: %w", stmt.ID, err)
		}
	}
	for _, txn := range ledger.GetTransactions() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (doc_id, id, user_id, account_id, date, amount, type, category, description, tag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (doc_id) DO UPDATE SET
				amount = excluded.amount, type = excluded.type, category = excluded.category,
				description = excluded.description, tag = excluded.tag`,
			docID(userID, txn.ID), txn.ID, userID, txn.AccountID, txn.Date,
			txn.Amount, string(txn.Type), string(txn.Category), txn.Description, txn.Tag)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

// Institutions returns all institutions for a user.
func (s *SQLite) Institutions(ctx context.Context, userID string) ([]domain.Institution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM institutions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query institutions: %w", err)
	}
	defer rows.Close()

	var out []domain.Institution
	for rows.Next() {
		var inst domain.Institution
		if err := rows.Scan(&inst.ID, &inst.Name); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// Accounts returns all accounts for a user.
func (s *SQLite) Accounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, institution_id, name, type FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var acc domain.Account
		var accType string
		if err := rows.Scan(&acc.ID, &acc.InstitutionID, &acc.Name, &accType); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acc.Type = domain.AccountType(accType)
		out = append(out, acc)
	}
	return out, rows.Err()
}

// Statements returns all statement records for a user, newest first.
func (s *SQLite) Statements(ctx context.Context, userID string) ([]domain.StatementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, start_date, end_date FROM statements WHERE user_id = ? ORDER BY start_date DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	var out []domain.StatementRecord
	for rows.Next() {
		var stmt domain.StatementRecord
		if err := rows.Scan(&stmt.ID, &stmt.AccountID, &stmt.StartDate, &stmt.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		out = append(out, stmt)
	}
	return out, rows.Err()
}

// Transactions returns all transactions for a user, newest first.
func (s *SQLite) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, amount, type, category, description, tag
		FROM transactions WHERE user_id = ? ORDER BY date DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var txnType, category string
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Date, &txn.Amount, &txnType, &category, &txn.Description, &txn.Tag); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Type = domain.TxnType(txnType)
		txn.Category = domain.Category(category)
		out = append(out, txn)
	}
	return out, rows.Err()
}
