package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLedger(t *testing.T) *domain.Ledger {
	t.Helper()
	ledger := domain.NewLedger()
	if err := ledger.AddInstitution(domain.Institution{ID: "uob", Name: "United Overseas Bank"}); err != nil {
		t.Fatal(err)
	}
	if err := ledger.AddAccount(domain.Account{ID: "acc-uob-89-0", InstitutionID: "uob", Name: "UOB One Account", Type: domain.AccountTypeBank}); err != nil {
		t.Fatal(err)
	}
	if err := ledger.AddStatement(domain.StatementRecord{ID: "stmt-2026-01-acc-uob-89-0", AccountID: "acc-uob-89-0", StartDate: "2026-01-01", EndDate: "2026-01-31"}); err != nil {
		t.Fatal(err)
	}
	txns := []domain.Transaction{
		{ID: "acc-uob-89-0-aaaa00000001", AccountID: "acc-uob-89-0", Date: "2026-01-05", Amount: -45.60, Type: domain.TxnTypeExpense, Category: domain.CategoryGroceries, Description: "NETS PURCHASE NTUC FAIRPRICE"},
		{ID: "acc-uob-89-0-aaaa00000002", AccountID: "acc-uob-89-0", Date: "2026-01-15", Amount: 5000.00, Type: domain.TxnTypeIncome, Category: domain.CategoryIncome, Description: "GIRO SALARY ACME PTE LTD"},
	}
	for _, txn := range txns {
		if err := ledger.AddTransaction(txn); err != nil {
			t.Fatal(err)
		}
	}
	return ledger
}

func TestSQLiteSaveAndQuery(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.SaveLedger(ctx, "user-1", sampleLedger(t)); err != nil {
		t.Fatalf("SaveLedger() error = %v", err)
	}

	insts, err := s.Institutions(ctx, "user-1")
	if err != nil {
		t.Fatalf("Institutions() error = %v", err)
	}
	if len(insts) != 1 || insts[0].Name != "United Overseas Bank" {
		t.Errorf("Institutions() = %+v, want 1 UOB entry", insts)
	}

	accounts, err := s.Accounts(ctx, "user-1")
	if err != nil {
		t.Fatalf("Accounts() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].Type != domain.AccountTypeBank {
		t.Errorf("Accounts() = %+v, want 1 bank account", accounts)
	}

	stmts, err := s.Statements(ctx, "user-1")
	if err != nil {
		t.Fatalf("Statements() error = %v", err)
	}
	if len(stmts) != 1 || stmts[0].StartDate != "2026-01-01" {
		t.Errorf("Statements() = %+v, want 1 January statement", stmts)
	}

	txns, err := s.Transactions(ctx, "user-1")
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("Transactions() returned %d rows, want 2", len(txns))
	}
	// Newest first.
	if txns[0].Date != "2026-01-15" {
		t.Errorf("first transaction date = %s, want 2026-01-15", txns[0].Date)
	}
	if txns[1].Category != domain.CategoryGroceries {
		t.Errorf("second transaction category = %s, want groceries", txns[1].Category)
	}
}

func TestSQLiteSaveIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	ledger := sampleLedger(t)

	if err := s.SaveLedger(ctx, "user-1", ledger); err != nil {
		t.Fatalf("first SaveLedger() error = %v", err)
	}
	if err := s.SaveLedger(ctx, "user-1", ledger); err != nil {
		t.Fatalf("second SaveLedger() error = %v", err)
	}

	txns, err := s.Transactions(ctx, "user-1")
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("Transactions() returned %d rows after re-save, want 2", len(txns))
	}
}

func TestSQLiteScopesByUser(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.SaveLedger(ctx, "user-1", sampleLedger(t)); err != nil {
		t.Fatal(err)
	}

	txns, err := s.Transactions(ctx, "user-2")
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txns) != 0 {
		t.Errorf("Transactions() for other user returned %d rows, want 0", len(txns))
	}

	// Same entity IDs under a second user must not collide.
	if err := s.SaveLedger(ctx, "user-2", sampleLedger(t)); err != nil {
		t.Fatalf("SaveLedger() for second user error = %v", err)
	}
	txns, err = s.Transactions(ctx, "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Errorf("Transactions() for second user returned %d rows, want 2", len(txns))
	}
}

func TestSQLiteSaveValidation(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.SaveLedger(ctx, "", domain.NewLedger()); err == nil {
		t.Error("SaveLedger() expected error for empty user ID")
	}
	if err := s.SaveLedger(ctx, "user-1", nil); err == nil {
		t.Error("SaveLedger() expected error for nil ledger")
	}
}

func TestNewSQLiteEmptyPath(t *testing.T) {
	if _, err := NewSQLite(""); err == nil {
		t.Error("NewSQLite() expected error for empty path")
	}
}
