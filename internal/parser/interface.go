// Package parser defines the contract and shared types for all statement
// format parsers.
package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
)

// RowParser is the strategy interface for PDF statement parsers. It
// consumes the stitched visual rows of a document plus the full joined
// text (used for period and section-boundary markers).
type RowParser interface {
	// Name returns the parser identifier (e.g. "uob-bank", "uob-card")
	Name() string

	// Parse converts grouped rows into a statement. A missing period or
	// transaction-section marker is a *StructureError; no partial result
	// is returned in that case.
	Parse(rows []geometry.Row, fullText string) (*Statement, error)
}

// FileParser is the strategy interface for byte-stream formats (CSV, OFX)
// that carry their own structure and need no geometry reconstruction.
type FileParser interface {
	// Name returns the parser identifier (e.g. "csv", "ofx")
	Name() string

	// CanParse checks if this parser can handle the file.
	// header holds the first bytes of the file for format sniffing.
	CanParse(path string, header []byte) bool

	// Parse extracts a statement from the reader.
	Parse(ctx context.Context, r io.Reader, meta *Metadata) (*Statement, error)
}

// Statement is the terminal output of a format parser, before
// deduplication and classification.
type Statement struct {
	OpeningBalance float64
	ClosingBalance float64
	PeriodStart    string // YYYY-MM-DD
	PeriodEnd      string // YYYY-MM-DD
	Currency       string
	AccountNumber  string
	Transactions   []Entry
	// RowErrors holds per-row failures that did not abort the parse.
	// One malformed line never discards the statement.
	RowErrors []RowError
}

// Entry is a raw transaction tuple: the unit of deduplication and
// classification. Amount is signed (debit negative, credit positive);
// Balance is the running balance after the entry, 0 where the format has
// none. Tag carries the card name on multi-card statements.
type Entry struct {
	Date        string // YYYY-MM-DD
	Description string
	Amount      float64
	Balance     float64
	Tag         string
}

// NewEntry creates a validated entry.
func NewEntry(date, description string, amount, balance float64) (*Entry, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid entry date %q: %w", date, err)
	}
	if description == "" {
		return nil, fmt.Errorf("entry description cannot be empty")
	}
	return &Entry{
		Date:        date,
		Description: description,
		Amount:      amount,
		Balance:     balance,
	}, nil
}

// StructureError reports a statement whose required section markers could
// not be located. It is fatal for the file: without the markers a parser
// cannot bound its scan and must not guess.
type StructureError struct {
	Parser string
	Marker string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: required marker %q not found in statement text", e.Parser, e.Marker)
}

// RowError records a single row that failed field extraction and was
// skipped. Accumulated and returned beside the rows that did parse.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
}
