// Package transform turns parsed statements into canonical ledger records:
// deterministic IDs, dedup admission, type and category assignment.
package transform

import (
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/classify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/dedup"
	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// Stats summarizes one statement import.
type Stats struct {
	Imported          int
	DuplicatesSkipped int
	RulesMatched      int
	RulesUnmatched    int
	RowErrors         int
}

// EnsureAccount registers the institution and account in the ledger if they
// are not already present. Re-registration is a no-op.
func EnsureAccount(ledger *domain.Ledger, inst domain.Institution, account domain.Account) error {
	if err := ledger.AddInstitution(inst); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("failed to register institution %s: %w", inst.ID, err)
	}
	if err := ledger.AddAccount(account); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("failed to register account %s: %w", account.ID, err)
	}
	return nil
}

// ImportStatement merges one parsed statement into the ledger. The account
// must already be registered (see EnsureAccount).
//
// Each entry is fingerprinted and admitted at most once: entries already in
// the dedup state are counted and skipped, never re-added. Admitted entries
// get a deterministic ID, a transaction type from the classifier, and a
// category from the rules engine. Re-importing the same statement is safe
// and changes nothing.
func ImportStatement(stmt *parser.Statement, account domain.Account, ledger *domain.Ledger, state *dedup.State, classifier *classify.Classifier) (*Stats, error) {
	if stmt == nil {
		return nil, fmt.Errorf("statement cannot be nil")
	}

	stats := &Stats{RowErrors: len(stmt.RowErrors)}
	now := time.Now()

	for _, entry := range stmt.Transactions {
		fp := dedup.GenerateFingerprint(entry.Date, entry.Amount, entry.Description)
		if state.IsDuplicate(fp) {
			stats.DuplicatesSkipped++
			continue
		}

		txnID := GenerateTransactionID(account.ID, fp)
		txnType := classifier.Classify(entry.Description, entry.Amount, account.Type)
		category, matched := classifier.Categorize(entry.Description)
		if matched {
			stats.RulesMatched++
		} else {
			stats.RulesUnmatched++
		}
		amount := classify.NormalizeSign(txnType, entry.Amount)

		txn, err := domain.NewTransaction(txnID, account.ID, entry.Date, entry.Description, amount, txnType, category)
		if err != nil {
			return stats, fmt.Errorf("failed to build transaction for %s %q: %w", entry.Date, entry.Description, err)
		}
		txn.Tag = entry.Tag

		if err := ledger.AddTransaction(*txn); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				stats.DuplicatesSkipped++
				continue
			}
			return stats, fmt.Errorf("failed to add transaction %s: %w", txnID, err)
		}
		if err := state.RecordTransaction(fp, txnID, now); err != nil {
			return stats, fmt.Errorf("failed to record fingerprint for %s: %w", txnID, err)
		}
		stats.Imported++
	}

	if err := recordStatement(stmt, account, ledger); err != nil {
		return stats, err
	}

	return stats, nil
}

// recordStatement appends the audit record for the statement period. A
// statement with no detectable period gets no record; re-imports of the
// same period are no-ops.
func recordStatement(stmt *parser.Statement, account domain.Account, ledger *domain.Ledger) error {
	if stmt.PeriodStart == "" || stmt.PeriodEnd == "" {
		return nil
	}
	start, err := time.Parse("2006-01-02", stmt.PeriodStart)
	if err != nil {
		return fmt.Errorf("invalid statement period start %q: %w", stmt.PeriodStart, err)
	}

	record, err := domain.NewStatementRecord(GenerateStatementID(start, account.ID), account.ID, stmt.PeriodStart, stmt.PeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to build statement record: %w", err)
	}
	if err := ledger.AddStatement(*record); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return fmt.Errorf("failed to add statement record: %w", err)
	}
	return nil
}
