// Package validate checks a canonical ledger for structural problems
// before it is written out: empty fields, bad enums, dangling references
// and duplicate IDs.
package validate

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a ledger
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Valid reports whether the ledger passed without errors. Warnings do
// not fail validation.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string // "transaction", "statement", "account", "institution"
	ID      string
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message)
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidateLedger performs comprehensive validation of a Ledger, checking
// both individual entity constraints and referential integrity.
// Returns ValidationResult with all errors and warnings found.
func ValidateLedger(l *domain.Ledger) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	// Build lookup maps for referential integrity checks
	institutionIDs := make(map[string]bool)
	accountIDs := make(map[string]bool)
	statementIDs := make(map[string]bool)
	transactionIDs := make(map[string]bool)

	// Validate institutions
	for _, inst := range l.GetInstitutions() {
		if inst.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "institution",
				ID:      inst.ID,
				Field:   "ID",
				Value:   "",
				Message: "institution ID cannot be empty",
			})
		}
		if inst.Name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "institution",
				ID:      inst.ID,
				Field:   "Name",
				Value:   "",
				Message: "institution name cannot be empty",
			})
		}

		// Check for duplicate IDs
		if inst.ID != "" {
			if institutionIDs[inst.ID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "institution",
					ID:      inst.ID,
					Field:   "ID",
					Value:   inst.ID,
					Message: "duplicate institution ID",
				})
			}
			institutionIDs[inst.ID] = true
		}
	}

	// Validate accounts
	for _, acc := range l.GetAccounts() {
		if acc.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "ID",
				Value:   "",
				Message: "account ID cannot be empty",
			})
		}
		if acc.Name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "Name",
				Value:   "",
				Message: "account name cannot be empty",
			})
		}
		if acc.InstitutionID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "InstitutionID",
				Value:   "",
				Message: "account institutionId cannot be empty",
			})
		}

		// Validate account type enum
		if !domain.ValidateAccountType(acc.Type) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "Type",
				Value:   string(acc.Type),
				Message: fmt.Sprintf("invalid account type: %s (must be bank, credit, or investment)", acc.Type),
			})
		}

		// Check institution reference
		if acc.InstitutionID != "" && !institutionIDs[acc.InstitutionID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "account",
				ID:      acc.ID,
				Field:   "InstitutionID",
				Value:   acc.InstitutionID,
				Message: fmt.Sprintf("references non-existent institution: %s", acc.InstitutionID),
			})
		}

		// Check for duplicate IDs
		if acc.ID != "" {
			if accountIDs[acc.ID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "account",
					ID:      acc.ID,
					Field:   "ID",
					Value:   acc.ID,
					Message: "duplicate account ID",
				})
			}
			accountIDs[acc.ID] = true
		}
	}

	// Validate statements
	for _, stmt := range l.GetStatements() {
		if stmt.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      stmt.ID,
				Field:   "ID",
				Value:   "",
				Message: "statement ID cannot be empty",
			})
		}
		if stmt.AccountID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      stmt.ID,
				Field:   "AccountID",
				Value:   "",
				Message: "statement accountId cannot be empty",
			})
		}

		// Validate date formats
		if stmt.StartDate != "" {
			if _, err := time.Parse("2006-01-02", stmt.StartDate); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "statement",
					ID:      stmt.ID,
					Field:   "StartDate",
					Value:   stmt.StartDate,
					Message: fmt.Sprintf("invalid date format (expected YYYY-MM-DD): %v", err),
				})
			}
		}

		if stmt.EndDate != "" {
			if _, err := time.Parse("2006-01-02", stmt.EndDate); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "statement",
					ID:      stmt.ID,
					Field:   "EndDate",
					Value:   stmt.EndDate,
					Message: fmt.Sprintf("invalid date format (expected YYYY-MM-DD): %v", err),
				})
			}
		}

		// Validate date ordering (only if both dates are valid)
		if stmt.StartDate != "" && stmt.EndDate != "" {
			start, startErr := time.Parse("2006-01-02", stmt.StartDate)
			end, endErr := time.Parse("2006-01-02", stmt.EndDate)
			if startErr == nil && endErr == nil && end.Before(start) {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "statement",
					ID:      stmt.ID,
					Field:   "EndDate",
					Value:   stmt.EndDate,
					Message: fmt.Sprintf("end date %s is before start date %s", stmt.EndDate, stmt.StartDate),
				})
			}
		}

		// Check account reference
		if stmt.AccountID != "" && !accountIDs[stmt.AccountID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      stmt.ID,
				Field:   "AccountID",
				Value:   stmt.AccountID,
				Message: fmt.Sprintf("references non-existent account: %s", stmt.AccountID),
			})
		}

		// Check for duplicate IDs
		if stmt.ID != "" {
			if statementIDs[stmt.ID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "statement",
					ID:      stmt.ID,
					Field:   "ID",
					Value:   stmt.ID,
					Message: "duplicate statement ID",
				})
			}
			statementIDs[stmt.ID] = true
		}
	}

	// Validate transactions
	for _, txn := range l.GetTransactions() {
		if txn.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "ID",
				Value:   "",
				Message: "transaction ID cannot be empty",
			})
		}
		if txn.Description == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Description",
				Value:   "",
				Message: "transaction description cannot be empty",
			})
		}

		// Validate date format
		if txn.Date != "" {
			if _, err := time.Parse("2006-01-02", txn.Date); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "transaction",
					ID:      txn.ID,
					Field:   "Date",
					Value:   txn.Date,
					Message: fmt.Sprintf("invalid date format (expected YYYY-MM-DD): %v", err),
				})
			}
		}

		// Validate type and category enums
		if !domain.ValidateTxnType(txn.Type) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Type",
				Value:   string(txn.Type),
				Message: fmt.Sprintf("invalid transaction type: %s", txn.Type),
			})
		}
		if !domain.ValidateCategory(txn.Category) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Category",
				Value:   string(txn.Category),
				Message: fmt.Sprintf("invalid category: %s", txn.Category),
			})
		}

		// Check account reference
		if txn.AccountID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "AccountID",
				Value:   "",
				Message: "transaction accountId cannot be empty",
			})
		} else if !accountIDs[txn.AccountID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "AccountID",
				Value:   txn.AccountID,
				Message: fmt.Sprintf("references non-existent account: %s", txn.AccountID),
			})
		}

		// Sign consistency: expenses are negative, every other type is
		// positive. Violations are warnings rather than errors because
		// hand-edited ledgers and refunds typed as expenses do occur.
		switch txn.Type {
		case domain.TxnTypeIncome, domain.TxnTypeInvestment, domain.TxnTypeTransfer:
			if txn.Amount < 0 {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Entity:  "transaction",
					ID:      txn.ID,
					Field:   "Amount",
					Value:   fmt.Sprintf("%.2f", txn.Amount),
					Message: fmt.Sprintf("%s transaction has negative amount", txn.Type),
				})
			}
		case domain.TxnTypeExpense:
			if txn.Amount > 0 {
				result.Warnings = append(result.Warnings, ValidationWarning{
					Entity:  "transaction",
					ID:      txn.ID,
					Field:   "Amount",
					Value:   fmt.Sprintf("%.2f", txn.Amount),
					Message: "expense transaction has positive amount",
				})
			}
		}
		if txn.Amount == 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Amount",
				Value:   "0.00",
				Message: "transaction has zero amount",
			})
		}

		// Check for duplicate IDs
		if txn.ID != "" {
			if transactionIDs[txn.ID] {
				result.Errors = append(result.Errors, ValidationError{
					Entity:  "transaction",
					ID:      txn.ID,
					Field:   "ID",
					Value:   txn.ID,
					Message: "duplicate transaction ID",
				})
			}
			transactionIDs[txn.ID] = true
		}
	}

	return result
}
