package bankparse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rumor-ml/commons.systems/bankparse/internal/classify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/dedup"
	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/output"
	"github.com/rumor-ml/commons.systems/bankparse/internal/pipeline"
	"github.com/rumor-ml/commons.systems/bankparse/internal/registry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/rules"
	"github.com/rumor-ml/commons.systems/bankparse/internal/scanner"
	"github.com/rumor-ml/commons.systems/bankparse/internal/store"
	"github.com/rumor-ml/commons.systems/bankparse/internal/validate"
)

const integrationCSV = `Date,Description,Amount,Balance
2026-01-05,NETS FAIRPRICE XPRESS,-45.60,1954.40
2026-01-12,GIRO SALARY ACME PTE LTD,5000.00,6954.40
2026-01-15,FAST PAYMENT TO SAVINGS,-500.00,6454.40
2026-01-20,NETFLIX.COM SINGAPORE,-19.80,6434.60
`

func buildArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "uob", "one-account", "123-456-789-0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2026-01.csv"), []byte(integrationCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	engine, err := rules.LoadEmbedded()
	if err != nil {
		t.Fatalf("Failed to load embedded rules: %v", err)
	}
	return pipeline.New(registry.MustNew(), classify.New(engine), nil, nil)
}

// TestIntegration_ScanToLedger drives the whole flow in process: scan,
// parse, transform, validate, write, reload.
func TestIntegration_ScanToLedger(t *testing.T) {
	root := buildArchive(t)
	ctx := context.Background()

	files, err := scanner.New(root).Scan()
	if err != nil {
		t.Fatalf("Failed to scan directory: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Found %d files, want 1", len(files))
	}

	pipe := newPipeline(t)
	ledger := domain.NewLedger()
	state := dedup.NewState()

	summary, err := pipe.ProcessFiles(ctx, "", files, ledger, state)
	if err != nil {
		t.Fatalf("ProcessFiles failed: %v", err)
	}
	if summary.FilesFailed != 0 {
		t.Fatalf("Import failures: %v", summary.Failures)
	}
	if summary.Imported != 4 {
		t.Errorf("Imported = %d, want 4", summary.Imported)
	}

	// The transfer is typed by its wording and re-signed positive like
	// every non-expense type.
	var transfers int
	for _, txn := range ledger.GetTransactions() {
		if txn.Type == domain.TxnTypeTransfer {
			transfers++
			if txn.Amount != 500.00 {
				t.Errorf("transfer amount = %.2f, want 500.00", txn.Amount)
			}
		}
	}
	if transfers != 1 {
		t.Errorf("found %d transfers, want 1", transfers)
	}

	result := validate.ValidateLedger(ledger)
	if !result.Valid() {
		t.Fatalf("Validation errors: %v", result.Errors)
	}

	// Round-trip through the output writer.
	outFile := filepath.Join(t.TempDir(), "ledger.json")
	if err := output.WriteLedgerToFile(ledger, output.WriteOptions{FilePath: outFile}); err != nil {
		t.Fatalf("Failed to write ledger: %v", err)
	}
	loaded, err := output.LoadLedger(outFile)
	if err != nil {
		t.Fatalf("Failed to reload ledger: %v", err)
	}
	if got, want := len(loaded.GetTransactions()), len(ledger.GetTransactions()); got != want {
		t.Errorf("Reloaded ledger has %d transactions, want %d", got, want)
	}
}

// TestIntegration_StatePersistence verifies the dedup state survives a
// save/load cycle and suppresses a re-import.
func TestIntegration_StatePersistence(t *testing.T) {
	root := buildArchive(t)
	ctx := context.Background()
	stateFile := filepath.Join(t.TempDir(), "state.json")

	files, err := scanner.New(root).Scan()
	if err != nil {
		t.Fatalf("Failed to scan directory: %v", err)
	}

	pipe := newPipeline(t)

	state := dedup.NewState()
	if _, err := pipe.ProcessFiles(ctx, "", files, domain.NewLedger(), state); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if err := dedup.SaveState(state, stateFile); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	reloaded, err := dedup.LoadState(stateFile)
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if got := reloaded.TotalFingerprints(); got != 4 {
		t.Fatalf("Reloaded state has %d fingerprints, want 4", got)
	}

	summary, err := pipe.ProcessFiles(ctx, "", files, domain.NewLedger(), reloaded)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if summary.Imported != 0 {
		t.Errorf("Second run imported %d transactions, want 0", summary.Imported)
	}
	if summary.DuplicatesSkipped != 4 {
		t.Errorf("Second run skipped %d duplicates, want 4", summary.DuplicatesSkipped)
	}
}

// TestIntegration_SQLitePersistence verifies the imported ledger survives
// a round trip through the SQLite store.
func TestIntegration_SQLitePersistence(t *testing.T) {
	root := buildArchive(t)
	ctx := context.Background()

	files, err := scanner.New(root).Scan()
	if err != nil {
		t.Fatalf("Failed to scan directory: %v", err)
	}

	pipe := newPipeline(t)
	ledger := domain.NewLedger()
	if _, err := pipe.ProcessFiles(ctx, "", files, ledger, dedup.NewState()); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	defer db.Close()

	if err := db.SaveLedger(ctx, "local", ledger); err != nil {
		t.Fatalf("Failed to save ledger: %v", err)
	}
	// Saving twice must be a no-op thanks to deterministic IDs.
	if err := db.SaveLedger(ctx, "local", ledger); err != nil {
		t.Fatalf("Failed to re-save ledger: %v", err)
	}

	txns, err := db.Transactions(ctx, "local")
	if err != nil {
		t.Fatalf("Failed to query transactions: %v", err)
	}
	if len(txns) != 4 {
		t.Errorf("Store has %d transactions, want 4", len(txns))
	}

	accounts, err := db.Accounts(ctx, "local")
	if err != nil {
		t.Fatalf("Failed to query accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acc-uob-89-0" {
		t.Errorf("Unexpected accounts: %+v", accounts)
	}
}
