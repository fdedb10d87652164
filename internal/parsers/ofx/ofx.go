// Package ofx provides OFX/QFX statement parsing for bankparse
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// Parser implements OFX/QFX parsing with a stateless design.
// The struct has no fields because OFX parsing requires no configuration
// state, making the parser safe for concurrent use without locking.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
// Safe for concurrent use due to stateless design.
func NewParser() *Parser {
	return parserInstance
}

// getFileInfo returns a formatted file path string for error messages
func getFileInfo(meta *parser.Metadata) string {
	if meta != nil && meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	// OFX header markers cover both v1 SGML and v2 XML formats
	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts a statement from an OFX/QFX file
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Statement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", getFileInfo(meta), err)
	}

	// ofxgo.ParseResponse does not support context cancellation, so this
	// check only catches cancellation between file read and parsing.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file%s (%d bytes): %w", getFileInfo(meta), len(content), err)
	}

	if len(response.CreditCard) > 0 {
		return p.parseCreditCard(response)
	}
	if len(response.Bank) > 0 {
		return p.parseBank(response)
	}

	return nil, fmt.Errorf("no supported statement type found in OFX file%s (creditcard: %d, bank: %d)",
		getFileInfo(meta), len(response.CreditCard), len(response.Bank))
}

// parseBank parses a bank account statement
func (p *Parser) parseBank(resp *ofxgo.Response) (*parser.Statement, error) {
	bankStmt, ok := resp.Bank[0].(*ofxgo.StatementResponse)
	if !ok {
		return nil, fmt.Errorf("failed to type assert bank statement: expected *ofxgo.StatementResponse, got %T", resp.Bank[0])
	}
	if bankStmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list in bank statement")
	}

	stmt := &parser.Statement{
		PeriodStart:   bankStmt.BankTranList.DtStart.Time.Format("2006-01-02"),
		PeriodEnd:     bankStmt.BankTranList.DtEnd.Time.Format("2006-01-02"),
		Currency:      bankStmt.CurDef.String(),
		AccountNumber: bankStmt.BankAcctFrom.AcctID.String(),
	}
	if stmt.AccountNumber == "" {
		return nil, fmt.Errorf("missing account ID in bank statement")
	}

	closing, exact := bankStmt.BalAmt.Float64()
	if exact {
		stmt.ClosingBalance = closing
	}

	if err := p.appendTransactions(stmt, bankStmt.BankTranList); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseCreditCard parses a credit card statement
func (p *Parser) parseCreditCard(resp *ofxgo.Response) (*parser.Statement, error) {
	ccStmt, ok := resp.CreditCard[0].(*ofxgo.CCStatementResponse)
	if !ok {
		return nil, fmt.Errorf("failed to type assert credit card statement: expected *ofxgo.CCStatementResponse, got %T", resp.CreditCard[0])
	}
	if ccStmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list in credit card statement")
	}

	stmt := &parser.Statement{
		PeriodStart:   ccStmt.BankTranList.DtStart.Time.Format("2006-01-02"),
		PeriodEnd:     ccStmt.BankTranList.DtEnd.Time.Format("2006-01-02"),
		Currency:      ccStmt.CurDef.String(),
		AccountNumber: ccStmt.CCAcctFrom.AcctID.String(),
	}
	if stmt.AccountNumber == "" {
		return nil, fmt.Errorf("missing account ID in credit card statement")
	}

	if err := p.appendTransactions(stmt, ccStmt.BankTranList); err != nil {
		return nil, err
	}
	return stmt, nil
}

// appendTransactions converts OFX transactions to statement entries. OFX
// amounts are already signed (debit negative), so no sign inference runs.
func (p *Parser) appendTransactions(stmt *parser.Statement, tranList *ofxgo.TransactionList) error {
	for i, txn := range tranList.Transactions {
		entry, err := extractTransaction(txn)
		if err != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: err.Error()})
			continue
		}
		stmt.Transactions = append(stmt.Transactions, *entry)
	}
	return nil
}

// extractTransaction extracts common transaction fields from an OFX transaction
func extractTransaction(txn ofxgo.Transaction) (*parser.Entry, error) {
	id := txn.FiTID.String()

	// Use posted date; if not available, fall back to user date
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return nil, fmt.Errorf("transaction %s missing both posted date and user date", id)
	}

	// Use Name field for description; if empty, fall back to Memo
	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}
	if description == "" {
		return nil, fmt.Errorf("transaction %s missing both name and memo fields", id)
	}

	amount, _ := txn.TrnAmt.Float64()

	return parser.NewEntry(date.Format("2006-01-02"), description, amount, 0)
}
