// Package csv provides generic CSV statement parsing for bankparse
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// Parser implements generic CSV parsing with a stateless design.
// The struct has no fields because CSV parsing requires no configuration
// state. Column meaning is sniffed per file from the header row, so one
// instance handles exports from different banks.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared CSV parser instance.
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
	return "csv"
}

// Header synonyms across bank exports, matched case-insensitively after
// trimming. First match in scan order wins.
var (
	dateHeaders        = []string{"date", "transaction date", "txn date", "value date", "posted date"}
	descriptionHeaders = []string{"description", "details", "transaction details", "narrative", "merchant", "payee", "memo"}
	amountHeaders      = []string{"amount", "transaction amount", "txn amount", "value"}
	balanceHeaders     = []string{"balance", "running balance", "available balance"}
)

// columns maps the sniffed header to field indexes. -1 means absent.
type columns struct {
	date        int
	description int
	amount      int
	balance     int
}

// CanParse checks if this parser can handle the file based on extension
// and a header row naming at least date, description and amount columns.
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" {
		return false
	}

	r := csv.NewReader(strings.NewReader(string(header)))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if err != nil {
		return false
	}
	cols := sniffHeader(record)
	return cols.date >= 0 && cols.description >= 0 && cols.amount >= 0
}

// Parse extracts a statement from a CSV export. A malformed row is
// recorded as a row error and skipped; only an unusable header or an
// unreadable file fails the parse.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Statement, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content%s: %w", getFileInfo(meta), err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file has no transaction rows%s", getFileInfo(meta))
	}

	cols := sniffHeader(records[0])
	if cols.date < 0 || cols.description < 0 || cols.amount < 0 {
		return nil, fmt.Errorf("unrecognized CSV header %v%s", records[0], getFileInfo(meta))
	}

	stmt := &parser.Statement{}
	if meta != nil {
		stmt.AccountNumber = meta.AccountNumber()
	}

	for i, record := range records[1:] {
		line := i + 2
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		entry, err := p.parseRecord(record, cols)
		if err != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: line, Reason: err.Error()})
			continue
		}
		stmt.Transactions = append(stmt.Transactions, *entry)
	}

	if n := len(stmt.Transactions); n > 0 {
		stmt.PeriodStart = stmt.Transactions[0].Date
		stmt.PeriodEnd = stmt.Transactions[n-1].Date
		if stmt.PeriodStart > stmt.PeriodEnd {
			stmt.PeriodStart, stmt.PeriodEnd = stmt.PeriodEnd, stmt.PeriodStart
		}
		if cols.balance >= 0 {
			stmt.OpeningBalance = stmt.Transactions[0].Balance - stmt.Transactions[0].Amount
			stmt.ClosingBalance = stmt.Transactions[n-1].Balance
		}
	}

	return stmt, nil
}

// parseRecord converts one data row using the sniffed column map.
func (p *Parser) parseRecord(record []string, cols columns) (*parser.Entry, error) {
	max := cols.date
	if cols.description > max {
		max = cols.description
	}
	if cols.amount > max {
		max = cols.amount
	}
	if len(record) <= max {
		return nil, fmt.Errorf("row has %d fields, need at least %d", len(record), max+1)
	}

	date, err := parser.NormalizeDate(record[cols.date])
	if err != nil {
		return nil, err
	}
	amount, err := parser.ParseAmount(record[cols.amount])
	if err != nil {
		return nil, err
	}

	balance := 0.0
	if cols.balance >= 0 && cols.balance < len(record) {
		if b, err := parser.ParseAmount(record[cols.balance]); err == nil {
			balance = b
		}
	}

	return parser.NewEntry(date, strings.TrimSpace(record[cols.description]), amount, balance)
}

func sniffHeader(record []string) columns {
	cols := columns{date: -1, description: -1, amount: -1, balance: -1}
	for i, field := range record {
		name := strings.ToLower(strings.TrimSpace(field))
		switch {
		case cols.date < 0 && matches(name, dateHeaders):
			cols.date = i
		case cols.description < 0 && matches(name, descriptionHeaders):
			cols.description = i
		case cols.amount < 0 && matches(name, amountHeaders):
			cols.amount = i
		case cols.balance < 0 && matches(name, balanceHeaders):
			cols.balance = i
		}
	}
	return cols
}

func matches(name string, synonyms []string) bool {
	for _, s := range synonyms {
		if name == s {
			return true
		}
	}
	return false
}
