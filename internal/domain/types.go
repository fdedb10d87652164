// Package domain holds the canonical ledger model: the validated,
// deduplicated form every statement format converges to.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyExists reports an insert whose ID is already present.
// Callers treat it as a no-op signal, not a failure.
var ErrAlreadyExists = errors.New("already exists")

// TxnType classifies the direction and intent of a transaction.
// Use ValidateTxnType to ensure validity before use.
type TxnType string

const (
	TxnTypeExpense    TxnType = "expense"
	TxnTypeIncome     TxnType = "income"
	TxnTypeInvestment TxnType = "investment"
	TxnTypeTransfer   TxnType = "transfer"
)

// Category represents the budget category enum.
// Use ValidateCategory to ensure validity before use.
type Category string

const (
	CategoryIncome     Category = "income"
	CategoryGroceries  Category = "groceries"
	CategoryDining     Category = "dining"
	CategoryTransport  Category = "transport"
	CategoryUtilities  Category = "utilities"
	CategoryShopping   Category = "shopping"
	CategoryTravel     Category = "travel"
	CategoryHealthcare Category = "healthcare"
	CategoryInvestment Category = "investment"
	CategoryTransfer   Category = "transfer"
	CategoryFees       Category = "fees"
	CategoryOther      Category = "other"
)

// AccountType represents the account type enum.
// Use ValidateAccountType to ensure validity before use.
type AccountType string

const (
	AccountTypeBank       AccountType = "bank"
	AccountTypeCredit     AccountType = "credit"
	AccountTypeInvestment AccountType = "investment"
)

var (
	validTxnTypes = map[TxnType]struct{}{
		TxnTypeExpense: {}, TxnTypeIncome: {},
		TxnTypeInvestment: {}, TxnTypeTransfer: {},
	}

	validCategories = map[Category]struct{}{
		CategoryIncome: {}, CategoryGroceries: {}, CategoryDining: {},
		CategoryTransport: {}, CategoryUtilities: {}, CategoryShopping: {},
		CategoryTravel: {}, CategoryHealthcare: {}, CategoryInvestment: {},
		CategoryTransfer: {}, CategoryFees: {}, CategoryOther: {},
	}

	validAccountTypes = map[AccountType]struct{}{
		AccountTypeBank: {}, AccountTypeCredit: {}, AccountTypeInvestment: {},
	}
)

// Transaction is one canonical ledger entry.
type Transaction struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Date      string `json:"date"` // ISO format YYYY-MM-DD
	// Sign convention:
	//   Negative = expense (purchases, withdrawals, fees)
	//   Positive = everything else (income, investments, transfers)
	// Parsers must normalize to this convention regardless of source file
	// representation.
	Amount      float64  `json:"amount"`
	Type        TxnType  `json:"type"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	// Tag carries the card product name on multi-card statements, empty
	// elsewhere.
	Tag string `json:"tag,omitempty"`
}

// Account is one tracked bank or card account.
type Account struct {
	ID            string      `json:"id"`
	InstitutionID string      `json:"institutionId"`
	Name          string      `json:"name"`
	Type          AccountType `json:"type"`
}

// Institution is a bank or card issuer.
type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StatementRecord tracks one imported statement file and the period it
// covered, for audit and re-import detection.
type StatementRecord struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	StartDate string `json:"startDate"` // YYYY-MM-DD
	EndDate   string `json:"endDate"`   // YYYY-MM-DD
}

// Ledger is the root output structure (full JSON file).
type Ledger struct {
	institutions []Institution
	accounts     []Account
	statements   []StatementRecord
	transactions []Transaction
}

// NewLedger creates an empty ledger with initialized slices
func NewLedger() *Ledger {
	return &Ledger{
		institutions: []Institution{},
		accounts:     []Account{},
		statements:   []StatementRecord{},
		transactions: []Transaction{},
	}
}

func (l *Ledger) hasInstitution(id string) bool {
	for _, inst := range l.institutions {
		if inst.ID == id {
			return true
		}
	}
	return false
}

func (l *Ledger) hasAccount(id string) bool {
	for _, acc := range l.accounts {
		if acc.ID == id {
			return true
		}
	}
	return false
}

// HasTransaction reports whether a transaction ID is already present.
func (l *Ledger) HasTransaction(id string) bool {
	for _, txn := range l.transactions {
		if txn.ID == id {
			return true
		}
	}
	return false
}

// AddInstitution adds a validated institution, checking for duplicate IDs
func (l *Ledger) AddInstitution(inst Institution) error {
	if inst.ID == "" || inst.Name == "" {
		return fmt.Errorf("invalid institution: ID and Name are required")
	}
	if l.hasInstitution(inst.ID) {
		return fmt.Errorf("institution %s: %w", inst.ID, ErrAlreadyExists)
	}
	l.institutions = append(l.institutions, inst)
	return nil
}

// AddAccount adds a validated account, checking for duplicate IDs and a
// valid institution reference
func (l *Ledger) AddAccount(acc Account) error {
	if acc.ID == "" || acc.InstitutionID == "" || acc.Name == "" {
		return fmt.Errorf("invalid account: ID, InstitutionID, and Name are required")
	}
	if !ValidateAccountType(acc.Type) {
		return fmt.Errorf("invalid account type: %s", acc.Type)
	}
	if !l.hasInstitution(acc.InstitutionID) {
		return fmt.Errorf("institution %s not found", acc.InstitutionID)
	}
	if l.hasAccount(acc.ID) {
		return fmt.Errorf("account %s: %w", acc.ID, ErrAlreadyExists)
	}
	l.accounts = append(l.accounts, acc)
	return nil
}

// AddStatement adds a validated statement record, checking for duplicate
// IDs and a valid account reference
func (l *Ledger) AddStatement(stmt StatementRecord) error {
	if stmt.ID == "" || stmt.AccountID == "" {
		return fmt.Errorf("invalid statement: ID and AccountID are required")
	}
	if !l.hasAccount(stmt.AccountID) {
		return fmt.Errorf("account %s not found", stmt.AccountID)
	}
	for _, existing := range l.statements {
		if existing.ID == stmt.ID {
			return fmt.Errorf("statement %s: %w", stmt.ID, ErrAlreadyExists)
		}
	}
	l.statements = append(l.statements, stmt)
	return nil
}

// AddTransaction adds a validated transaction, checking for duplicate IDs
// and a valid account reference
func (l *Ledger) AddTransaction(txn Transaction) error {
	if txn.ID == "" {
		return fmt.Errorf("invalid transaction: ID is required")
	}
	if !l.hasAccount(txn.AccountID) {
		return fmt.Errorf("account %s not found", txn.AccountID)
	}
	if _, err := time.Parse("2006-01-02", txn.Date); err != nil {
		return fmt.Errorf("invalid transaction date: %w", err)
	}
	if !ValidateTxnType(txn.Type) {
		return fmt.Errorf("invalid transaction type: %s", txn.Type)
	}
	if !ValidateCategory(txn.Category) {
		return fmt.Errorf("invalid category: %s", txn.Category)
	}
	if l.HasTransaction(txn.ID) {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrAlreadyExists)
	}
	l.transactions = append(l.transactions, txn)
	return nil
}

// GetInstitutions returns a defensive copy of the institutions slice
func (l *Ledger) GetInstitutions() []Institution {
	return append([]Institution(nil), l.institutions...)
}

// GetAccounts returns a defensive copy of the accounts slice
func (l *Ledger) GetAccounts() []Account {
	return append([]Account(nil), l.accounts...)
}

// GetStatements returns a defensive copy of the statement records slice
func (l *Ledger) GetStatements() []StatementRecord {
	return append([]StatementRecord(nil), l.statements...)
}

// GetTransactions returns a defensive copy of the transactions slice
func (l *Ledger) GetTransactions() []Transaction {
	return append([]Transaction(nil), l.transactions...)
}

// MarshalJSON implements custom JSON marshaling for Ledger
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Institutions []Institution     `json:"institutions"`
		Accounts     []Account         `json:"accounts"`
		Statements   []StatementRecord `json:"statements"`
		Transactions []Transaction     `json:"transactions"`
	}{
		Institutions: l.institutions,
		Accounts:     l.accounts,
		Statements:   l.statements,
		Transactions: l.transactions,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Ledger
func (l *Ledger) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Institutions []Institution     `json:"institutions"`
		Accounts     []Account         `json:"accounts"`
		Statements   []StatementRecord `json:"statements"`
		Transactions []Transaction     `json:"transactions"`
	}{}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	l.institutions = aux.Institutions
	l.accounts = aux.Accounts
	l.statements = aux.Statements
	l.transactions = aux.Transactions
	return nil
}

// NewTransaction creates a validated transaction
func NewTransaction(id, accountID, date, description string, amount float64, txnType TxnType, category Category) (*Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("transaction ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date format: %w", err)
	}
	if description == "" {
		return nil, fmt.Errorf("description cannot be empty")
	}
	if !ValidateTxnType(txnType) {
		return nil, fmt.Errorf("invalid transaction type: %s", txnType)
	}
	if !ValidateCategory(category) {
		return nil, fmt.Errorf("invalid category: %s", category)
	}

	return &Transaction{
		ID:          id,
		AccountID:   accountID,
		Date:        date,
		Description: description,
		Amount:      amount,
		Type:        txnType,
		Category:    category,
	}, nil
}

// NewStatementRecord creates a validated statement record
func NewStatementRecord(id, accountID, startDate, endDate string) (*StatementRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("statement ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date must not be before start date")
	}

	return &StatementRecord{
		ID:        id,
		AccountID: accountID,
		StartDate: startDate,
		EndDate:   endDate,
	}, nil
}

// NewAccount creates a validated account
func NewAccount(id, institutionID, name string, accountType AccountType) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if institutionID == "" {
		return nil, fmt.Errorf("institution ID cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("account name cannot be empty")
	}
	if !ValidateAccountType(accountType) {
		return nil, fmt.Errorf("invalid account type: %s", accountType)
	}

	return &Account{
		ID:            id,
		InstitutionID: institutionID,
		Name:          name,
		Type:          accountType,
	}, nil
}

// NewInstitution creates a validated institution
func NewInstitution(id, name string) (*Institution, error) {
	if id == "" {
		return nil, fmt.Errorf("institution ID cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("institution name cannot be empty")
	}
	return &Institution{ID: id, Name: name}, nil
}

// ValidateTxnType checks if transaction type is valid
func ValidateTxnType(t TxnType) bool {
	_, ok := validTxnTypes[t]
	return ok
}

// ValidateCategory checks if category is valid
func ValidateCategory(c Category) bool {
	_, ok := validCategories[c]
	return ok
}

// ValidateAccountType checks if account type is valid
func ValidateAccountType(t AccountType) bool {
	_, ok := validAccountTypes[t]
	return ok
}
