package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
)

const (
	transactionsCollection  = "bankparse-transactions"
	statementsCollection    = "bankparse-statements"
	accountsCollection      = "bankparse-accounts"
	institutionsCollection  = "bankparse-institutions"
	parseSessionsCollection = "bankparse-parse-sessions"
)

// Firestore persists ledgers in Cloud Firestore. It also carries the
// Firebase Auth client used by the server middleware.
type Firestore struct {
	Client    *firestore.Client
	Auth      *auth.Client
	projectID string
}

// NewFirestore creates a Firestore-backed store using Application Default
// Credentials.
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Firestore{
		Client:    client,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client.
func (s *Firestore) Close() error {
	return s.Client.Close()
}

// transactionDoc is the Firestore shape of a domain.Transaction.
type transactionDoc struct {
	ID          string    `firestore:"id"`
	UserID      string    `firestore:"userId"`
	AccountID   string    `firestore:"accountId"`
	Date        string    `firestore:"date"`
	Amount      float64   `firestore:"amount"`
	Type        string    `firestore:"type"`
	Category    string    `firestore:"category"`
	Description string    `firestore:"description"`
	Tag         string    `firestore:"tag,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type statementDoc struct {
	ID        string    `firestore:"id"`
	UserID    string    `firestore:"userId"`
	AccountID string    `firestore:"accountId"`
	StartDate string    `firestore:"startDate"`
	EndDate   string    `firestore:"endDate"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type accountDoc struct {
	ID            string    `firestore:"id"`
	UserID        string    `firestore:"userId"`
	InstitutionID string    `firestore:"institutionId"`
	Name          string    `firestore:"name"`
	Type          string    `firestore:"type"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type institutionDoc struct {
	ID        string    `firestore:"id"`
	UserID    string    `firestore:"userId"`
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// SaveLedger upserts every ledger entity under the given user. Documents
// are keyed by entity ID, so re-saving is idempotent.
func (s *Firestore) SaveLedger(ctx context.Context, userID string, ledger *domain.Ledger) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	now := time.Now()

	for _, inst := range ledger.GetInstitutions() {
		doc := institutionDoc{ID: inst.ID, UserID: userID, Name: inst.Name, CreatedAt: now}
		if _, err := s.Client.Collection(institutionsCollection).Doc(docID(userID, inst.ID)).Set(ctx, doc); err != nil {
			return fmt.Errorf("failed to save institution %s: %w", inst.ID, err)
		}
	}
	for _, acc := range ledger.GetAccounts() {
		doc := accountDoc{ID: acc.ID, UserID: userID, InstitutionID: acc.InstitutionID, Name: acc.Name, Type: string(acc.Type), CreatedAt: now}
		if _, err := s.Client.Collection(accountsCollection).Doc(docID(userID, acc.ID)).Set(ctx, doc); err != nil {
			return fmt.Errorf("failed to save account %s: %w", acc.ID, err)
		}
	}
	for _, stmt := range ledger.GetStatements() {
		doc := statementDoc{ID: stmt.ID, UserID: userID, AccountID: stmt.AccountID, StartDate: stmt.StartDate, EndDate: stmt.EndDate, CreatedAt: now}
		if _, err := s.Client.Collection(statementsCollection).Doc(docID(userID, stmt.ID)).Set(ctx, doc); err != nil {
			return fmt.Errorf("failed to save statement %s: %w", stmt.ID, err)
		}
	}
	for _, txn := range ledger.GetTransactions() {
		doc := transactionDoc{
			ID: txn.ID, UserID: userID, AccountID: txn.AccountID,
			Date: txn.Date, Amount: txn.Amount, Type: string(txn.Type),
			Category: string(txn.Category), Description: txn.Description,
			Tag: txn.Tag, CreatedAt: now,
		}
		if _, err := s.Client.Collection(transactionsCollection).Doc(docID(userID, txn.ID)).Set(ctx, doc); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// docID scopes a document to its owner, so two users importing the same
// statement never collide.
func docID(userID, entityID string) string {
	return userID + ":" + entityID
}

// Institutions retrieves all institutions for a user.
func (s *Firestore) Institutions(ctx context.Context, userID string) ([]domain.Institution, error) {
	iter := s.Client.Collection(institutionsCollection).
		Where("userId", "==", userID).
		Documents(ctx)

	var out []domain.Institution
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate institutions for user %s: %w", userID, err)
		}
		var d institutionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse institution: %w", err)
		}
		out = append(out, domain.Institution{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

// Accounts retrieves all accounts for a user.
func (s *Firestore) Accounts(ctx context.Context, userID string) ([]domain.Account, error) {
	iter := s.Client.Collection(accountsCollection).
		Where("userId", "==", userID).
		Documents(ctx)

	var out []domain.Account
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts for user %s: %w", userID, err)
		}
		var d accountDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		out = append(out, domain.Account{ID: d.ID, InstitutionID: d.InstitutionID, Name: d.Name, Type: domain.AccountType(d.Type)})
	}
	return out, nil
}

// Statements retrieves all statement records for a user, newest first.
func (s *Firestore) Statements(ctx context.Context, userID string) ([]domain.StatementRecord, error) {
	iter := s.Client.Collection(statementsCollection).
		Where("userId", "==", userID).
		OrderBy("startDate", firestore.Desc).
		Documents(ctx)

	var out []domain.StatementRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate statements for user %s: %w", userID, err)
		}
		var d statementDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse statement: %w", err)
		}
		out = append(out, domain.StatementRecord{ID: d.ID, AccountID: d.AccountID, StartDate: d.StartDate, EndDate: d.EndDate})
	}
	return out, nil
}

// Transactions retrieves all transactions for a user, newest first.
func (s *Firestore) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	iter := s.Client.Collection(transactionsCollection).
		Where("userId", "==", userID).
		OrderBy("date", firestore.Desc).
		Documents(ctx)

	var out []domain.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for user %s: %w", userID, err)
		}
		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		out = append(out, domain.Transaction{
			ID: d.ID, AccountID: d.AccountID, Date: d.Date, Amount: d.Amount,
			Type: domain.TxnType(d.Type), Category: domain.Category(d.Category),
			Description: d.Description, Tag: d.Tag,
		})
	}
	return out, nil
}

// ParseSessionStatus represents the status of a parse session.
type ParseSessionStatus string

const (
	ParseSessionStatusPending    ParseSessionStatus = "pending"
	ParseSessionStatusProcessing ParseSessionStatus = "processing"
	ParseSessionStatusCompleted  ParseSessionStatus = "completed"
	ParseSessionStatusError      ParseSessionStatus = "error"
	ParseSessionStatusCancelled  ParseSessionStatus = "cancelled"
)

// ParseSession tracks one upload-and-parse request in Firestore.
type ParseSession struct {
	ID          string                 `firestore:"id"`
	UserID      string                 `firestore:"userId"`
	Status      ParseSessionStatus     `firestore:"status"`
	FileCount   int                    `firestore:"fileCount"`
	Stats       map[string]interface{} `firestore:"stats"`
	CompletedAt *time.Time             `firestore:"completedAt,omitempty"`
	Error       string                 `firestore:"error,omitempty"`
	CreatedAt   time.Time              `firestore:"createdAt"`
}

// Validate checks if the ParseSession has valid data.
func (s *ParseSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	switch s.Status {
	case ParseSessionStatusPending, ParseSessionStatusProcessing,
		ParseSessionStatusCompleted, ParseSessionStatusError, ParseSessionStatusCancelled:
	default:
		return fmt.Errorf("invalid status: %s", s.Status)
	}
	if s.FileCount < 0 {
		return fmt.Errorf("file count cannot be negative")
	}
	return nil
}

// CreateParseSession creates a new parse session.
func (s *Firestore) CreateParseSession(ctx context.Context, session *ParseSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid parse session: %w", err)
	}
	_, err := s.Client.Collection(parseSessionsCollection).Doc(session.ID).Set(ctx, session)
	return err
}

// UpdateParseSession updates an existing parse session.
func (s *Firestore) UpdateParseSession(ctx context.Context, session *ParseSession) error {
	_, err := s.Client.Collection(parseSessionsCollection).Doc(session.ID).Set(ctx, session)
	return err
}

// GetParseSession retrieves a parse session by ID.
func (s *Firestore) GetParseSession(ctx context.Context, sessionID string) (*ParseSession, error) {
	doc, err := s.Client.Collection(parseSessionsCollection).Doc(sessionID).Get(ctx)
	if err != nil {
		return nil, err
	}
	var session ParseSession
	if err := doc.DataTo(&session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

// ListParseSessions retrieves the most recent parse sessions for a user.
func (s *Firestore) ListParseSessions(ctx context.Context, userID string) ([]*ParseSession, error) {
	iter := s.Client.Collection(parseSessionsCollection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Limit(50).
		Documents(ctx)

	var sessions []*ParseSession
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate parse sessions for user %s: %w", userID, err)
		}
		var sess ParseSession
		if err := doc.DataTo(&sess); err != nil {
			return nil, fmt.Errorf("failed to parse session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, nil
}
