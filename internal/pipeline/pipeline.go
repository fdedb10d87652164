// Package pipeline orchestrates the full import flow: file discovery
// metadata in, canonical ledger records out. Both the CLI and the server
// drive imports through it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/classify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/dedup"
	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/extractor"
	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/notify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
	"github.com/rumor-ml/commons.systems/bankparse/internal/registry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/scanner"
	"github.com/rumor-ml/commons.systems/bankparse/internal/streaming"
	"github.com/rumor-ml/commons.systems/bankparse/internal/transform"
)

// FileResult is the outcome of importing one statement file.
type FileResult struct {
	FileName string
	Parser   string
	Account  domain.Account
	Stats    *transform.Stats
	Alerts   []streaming.AlertEvent
}

// Summary aggregates the outcome of a multi-file run.
type Summary struct {
	FilesProcessed    int
	FilesFailed       int
	Imported          int
	DuplicatesSkipped int
	RulesMatched      int
	RulesUnmatched    int
	RowErrors         int
	Alerts            []streaming.AlertEvent
	Failures          []FileError
}

// FileError records a file that could not be imported. The run continues
// past it.
type FileError struct {
	FileName string
	Err      error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.FileName, e.Err)
}

// Pipeline wires the parser registry, classifier, dedup state and ledger
// into one import flow. The hub is optional; when nil no events are
// emitted.
type Pipeline struct {
	registry   *registry.Registry
	classifier *classify.Classifier
	notifier   *notify.Notifier
	hub        *streaming.StreamHub
}

// New creates a pipeline. notifier and hub may be nil.
func New(reg *registry.Registry, classifier *classify.Classifier, notifier *notify.Notifier, hub *streaming.StreamHub) *Pipeline {
	return &Pipeline{
		registry:   reg,
		classifier: classifier,
		notifier:   notifier,
		hub:        hub,
	}
}

// ProcessFile imports one statement file into the ledger. The file's
// routing metadata decides the institution and, for PDFs, the layout
// chain to try.
func (p *Pipeline) ProcessFile(ctx context.Context, file scanner.ScanResult, ledger *domain.Ledger, state *dedup.State) (*FileResult, error) {
	stmt, parserName, err := p.parseFile(ctx, file)
	if err != nil {
		return nil, err
	}

	account, inst, err := p.resolveAccount(file.Metadata, stmt)
	if err != nil {
		return nil, err
	}

	if err := transform.EnsureAccount(ledger, inst, account); err != nil {
		return nil, err
	}

	before := len(ledger.GetTransactions())
	stats, err := transform.ImportStatement(stmt, account, ledger, state, p.classifier)
	if err != nil {
		return nil, err
	}

	result := &FileResult{
		FileName: filepath.Base(file.Path),
		Parser:   parserName,
		Account:  account,
		Stats:    stats,
	}

	// AddTransaction appends, so everything past the old length is new.
	imported := ledger.GetTransactions()[before:]
	if p.notifier != nil {
		result.Alerts = p.notifier.EvaluateAll(imported)
	}

	return result, nil
}

// parseFile routes the file to a parser. PDFs go through geometry
// extraction and the account's layout chain; byte formats are sniffed by
// the registry.
func (p *Pipeline) parseFile(ctx context.Context, file scanner.ScanResult) (*parser.Statement, string, error) {
	if strings.EqualFold(filepath.Ext(file.Path), ".pdf") {
		return p.parsePDF(file)
	}

	fp, err := p.registry.FindParser(file.Path)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stmt, err := fp.Parse(ctx, f, file.Metadata)
	if err != nil {
		return nil, fp.Name(), fmt.Errorf("parsing failed: %w", err)
	}
	return stmt, fp.Name(), nil
}

// parsePDF extracts positioned text and walks the layout chain for the
// account. A parser that reports a structure error passes the document to
// the next layout; any other error is final.
func (p *Pipeline) parsePDF(file scanner.ScanResult) (*parser.Statement, string, error) {
	pages, err := extractor.Extract(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("text extraction failed: %w", err)
	}

	rows := geometry.Stitch(pages)
	fullText := geometry.JoinText(rows)

	account := domain.Account{Type: accountTypeFor(file.Metadata.Product())}
	chain, known := p.registry.RowParsersFor(account)
	if !known {
		log.Printf("WARN: no layout known for product %q, trying default chain", file.Metadata.Product())
	}

	var lastErr error
	for _, rp := range chain {
		stmt, err := rp.Parse(rows, fullText)
		if err == nil {
			return stmt, rp.Name(), nil
		}
		var structErr *parser.StructureError
		if !errors.As(err, &structErr) {
			return nil, rp.Name(), fmt.Errorf("parsing failed: %w", err)
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("no layout matched %s: %w", filepath.Base(file.Path), lastErr)
}

// resolveAccount derives the canonical institution and account from the
// file's routing metadata and the parsed statement. The statement's own
// account number wins over the directory-derived one.
func (p *Pipeline) resolveAccount(meta *parser.Metadata, stmt *parser.Statement) (domain.Account, domain.Institution, error) {
	instSlug := meta.Institution()
	if instSlug == "" {
		return domain.Account{}, domain.Institution{}, fmt.Errorf("file has no institution metadata; place statements under {root}/{institution}/{product}/")
	}

	accountNumber := stmt.AccountNumber
	if accountNumber == "" {
		accountNumber = meta.AccountNumber()
	}
	if accountNumber == "" {
		return domain.Account{}, domain.Institution{}, fmt.Errorf("no account number in statement or directory path")
	}

	inst := domain.Institution{ID: instSlug, Name: instSlug}

	name := meta.Product()
	if name == "" {
		name = accountNumber
	}
	account := domain.Account{
		ID:            transform.GenerateAccountID(instSlug, accountNumber),
		InstitutionID: inst.ID,
		Name:          name,
		Type:          accountTypeFor(meta.Product()),
	}
	return account, inst, nil
}

// accountTypeFor infers the account type from the product directory name.
func accountTypeFor(product string) domain.AccountType {
	p := strings.ToLower(product)
	switch {
	case strings.Contains(p, "card"):
		return domain.AccountTypeCredit
	case strings.Contains(p, "invest") || strings.Contains(p, "srs"):
		return domain.AccountTypeInvestment
	default:
		return domain.AccountTypeBank
	}
}

// ProcessFiles imports a batch of files, continuing past per-file
// failures. When the pipeline has a hub and sessionID is non-empty,
// progress and result events are broadcast as the run advances.
func (p *Pipeline) ProcessFiles(ctx context.Context, sessionID string, files []scanner.ScanResult, ledger *domain.Ledger, state *dedup.State) (*Summary, error) {
	summary := &Summary{}
	total := len(files)

	for i, file := range files {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		fileName := filepath.Base(file.Path)
		fileID := fmt.Sprintf("%s-%d", sessionID, i)

		p.broadcast(sessionID, streaming.NewFileEvent(streaming.FileEvent{
			ID:        fileID,
			SessionID: sessionID,
			FileName:  fileName,
			Status:    "processing",
		}))

		result, err := p.ProcessFile(ctx, file, ledger, state)
		if err != nil {
			log.Printf("ERROR: failed to import %s: %v", fileName, err)
			summary.FilesFailed++
			summary.Failures = append(summary.Failures, FileError{FileName: fileName, Err: err})
			p.broadcast(sessionID, streaming.NewFileEvent(streaming.FileEvent{
				ID:        fileID,
				SessionID: sessionID,
				FileName:  fileName,
				Status:    "error",
				Error:     err.Error(),
			}))
			continue
		}

		summary.FilesProcessed++
		summary.Imported += result.Stats.Imported
		summary.DuplicatesSkipped += result.Stats.DuplicatesSkipped
		summary.RulesMatched += result.Stats.RulesMatched
		summary.RulesUnmatched += result.Stats.RulesUnmatched
		summary.RowErrors += result.Stats.RowErrors
		summary.Alerts = append(summary.Alerts, result.Alerts...)

		p.broadcast(sessionID, streaming.NewStatementEvent(streaming.StatementEvent{
			AccountID:    result.Account.ID,
			Transactions: result.Stats.Imported,
			Duplicates:   result.Stats.DuplicatesSkipped,
			RowErrors:    result.Stats.RowErrors,
		}))
		for _, alert := range result.Alerts {
			p.broadcast(sessionID, streaming.NewAlertEvent(alert))
		}

		p.broadcast(sessionID, streaming.NewProgressEvent(streaming.ProgressEvent{
			FileID:     fileID,
			FileName:   fileName,
			Processed:  i + 1,
			Total:      total,
			Percentage: float64(i+1) / float64(total) * 100,
			Status:     "completed",
		}))
		p.broadcast(sessionID, streaming.NewFileEvent(streaming.FileEvent{
			ID:        fileID,
			SessionID: sessionID,
			FileName:  fileName,
			Status:    "completed",
			Metadata: map[string]interface{}{
				"parser":       result.Parser,
				"transactions": result.Stats.Imported,
				"duplicates":   result.Stats.DuplicatesSkipped,
			},
		}))
	}

	return summary, nil
}

func (p *Pipeline) broadcast(sessionID string, event streaming.SSEEvent) {
	if p.hub == nil || sessionID == "" {
		return
	}
	p.hub.Broadcast(sessionID, event)
}

// SaveUpload writes one uploaded file into dir, keeping only the base of
// the client-supplied name.
func SaveUpload(dir, name string, src io.Reader) (string, error) {
	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

// NewScanResult builds a ScanResult for a single file outside a scanned
// archive, such as a server upload. Institution and product must be
// supplied by the caller.
func NewScanResult(path, institution, product string) (scanner.ScanResult, error) {
	meta, err := parser.NewMetadata(path, time.Now())
	if err != nil {
		return scanner.ScanResult{}, err
	}
	meta.SetInstitution(institution)
	meta.SetProduct(product)
	return scanner.ScanResult{Path: path, Metadata: meta}, nil
}
