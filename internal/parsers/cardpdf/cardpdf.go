// Package cardpdf parses multi-card credit card statements from grouped
// PDF rows. Each card section is headed by the card product name; the
// transactions under it carry that name as a tag.
package cardpdf

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// Parser implements the credit card statement format: post date and
// transaction date per row, no running balance, CR suffix marking credits.
type Parser struct{}

// New returns a credit card statement parser.
func New() *Parser {
	return &Parser{}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "uob-card"
}

var (
	statementDatePattern = regexp.MustCompile(
		`(?i)statement\s+date[:\s]+(\d{1,2}\s+[A-Za-z]{3}\s+\d{4})`)

	// Card section headers. A new match switches the tag applied to
	// subsequent transactions.
	cardHeaderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(UOB\s+)?ONE\s+CARD\b`),
		regexp.MustCompile(`(?i)^(UOB\s+)?PRVI\s+MILES\s+(VISA|AMEX|MASTERCARD)\s+CARD\b`),
		regexp.MustCompile(`(?i)^(UOB\s+)?LADY'?S\s+(SOLITAIRE\s+)?CARD\b`),
		regexp.MustCompile(`(?i)^(UOB\s+)?EVOL\s+CARD\b`),
		regexp.MustCompile(`(?i)^(UOB\s+)?VISA\s+SIGNATURE\b`),
		regexp.MustCompile(`(?i)^(UOB\s+)?ABSOLUTE\s+CASHBACK\s+CARD\b`),
	}

	cardNumberPattern = regexp.MustCompile(`^\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}$`)

	// <post date> <transaction date> <description> <amount>[ CR]
	cardTxnPattern = regexp.MustCompile(
		`(?i)^(\d{2}\s+[A-Za-z]{3})\s+(\d{2}\s+[A-Za-z]{3})\s+(.+?)\s+([\d,]+\.\d{2})(\s+CR)?$`)

	// Foreign currency annotation under a transaction: "MYR 12.50".
	fxPattern = regexp.MustCompile(`^([A-Z]{3})\s+([\d,]+\.\d{2})$`)

	// Summary rows that look like transactions but are not purchases.
	skipPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)PREVIOUS\s+BALANCE`),
		regexp.MustCompile(`(?i)PAYMENT\s*[-–]?\s*THANK\s+YOU`),
		regexp.MustCompile(`(?i)PAYMENT\s+RECEIVED`),
		regexp.MustCompile(`(?i)SUB[-\s]?TOTAL`),
		regexp.MustCompile(`(?i)TOTAL\s+BALANCE`),
		regexp.MustCompile(`(?i)MINIMUM\s+PAYMENT`),
		regexp.MustCompile(`(?i)STATEMENT\s+DATE`),
	}
)

// Parse extracts transactions from a card statement. The statement date
// marker and at least one card section header are load-bearing: without
// them dates cannot be resolved and transactions cannot be tagged.
func (p *Parser) Parse(rows []geometry.Row, fullText string) (*parser.Statement, error) {
	sm := statementDatePattern.FindStringSubmatch(fullText)
	if sm == nil {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "statement date"}
	}
	periodEnd, err := parser.NormalizeDate(sm[1])
	if err != nil {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "statement date"}
	}
	periodEndTime, _ := time.Parse("2006-01-02", periodEnd)

	stmt := &parser.Statement{
		PeriodStart: periodEndTime.AddDate(0, -1, 1).Format("2006-01-02"),
		PeriodEnd:   periodEnd,
		Currency:    "SGD",
	}

	var (
		currentCard string
		sawCard     bool
		seen        = map[string]bool{}
	)

	for i, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}

		if card := matchCardHeader(text); card != "" {
			currentCard = card
			sawCard = true
			continue
		}
		if cardNumberPattern.MatchString(text) {
			// Masked card number row under the section header.
			if stmt.AccountNumber == "" {
				stmt.AccountNumber = text
			}
			continue
		}
		if isSkipRow(text) {
			continue
		}

		if m := fxPattern.FindStringSubmatch(text); m != nil {
			// Foreign currency annotation belongs to the transaction above.
			if n := len(stmt.Transactions); n > 0 {
				stmt.Transactions[n-1].Description += fmt.Sprintf(" (%s %s)", m[1], m[2])
			}
			continue
		}

		entry, rowErr := p.parseTransactionRow(row, text, currentCard, periodEndTime)
		if rowErr != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: rowErr.Error()})
			continue
		}
		if entry == nil {
			continue
		}

		// Dual-pass extraction can surface the same purchase twice.
		key := fmt.Sprintf("%s|%.2f|%s", entry.Date, entry.Amount, entry.Description)
		if seen[key] {
			continue
		}
		seen[key] = true
		stmt.Transactions = append(stmt.Transactions, *entry)
	}

	if !sawCard {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "card section header"}
	}

	return stmt, nil
}

// parseTransactionRow tries the joined-text shape first and falls back to
// fragment positions when extraction merged or split fields oddly. A row
// that matches neither shape is not a transaction and is silently skipped;
// a row that matches but fails field parsing is a row error.
func (p *Parser) parseTransactionRow(row geometry.Row, text, card string, periodEnd time.Time) (*parser.Entry, error) {
	m := cardTxnPattern.FindStringSubmatch(text)
	if m == nil {
		m = matchFragments(row)
	}
	if m == nil {
		return nil, nil
	}

	// The second date is the transaction date; the first is the posting
	// date and is discarded.
	date, err := parser.ResolveShortDate(m[2], periodEnd)
	if err != nil {
		return nil, fmt.Errorf("bad transaction date %q: %w", m[2], err)
	}
	amount, err := parser.ParseAmount(m[4])
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", m[4], err)
	}

	// Charges are negative; only an explicit CR suffix marks a credit.
	if strings.TrimSpace(m[5]) == "" {
		amount = -amount
	}

	entry, err := parser.NewEntry(date, strings.TrimSpace(m[3]), amount, 0)
	if err != nil {
		return nil, err
	}
	entry.Tag = card
	return entry, nil
}

var shortDate = regexp.MustCompile(`(?i)^\d{2}\s+[A-Za-z]{3}$`)

// matchFragments reassembles a transaction from raw fragments when the
// joined text did not match: first two date-shaped fragments, the last
// amount fragment, an optional trailing CR, everything between as the
// description. Returns submatch-shaped fields or nil.
func matchFragments(row geometry.Row) []string {
	var parts []string
	for _, f := range row.Fragments {
		parts = append(parts, strings.Fields(f.Text)...)
	}
	// Re-tokenize so "01 DEC" split or merged across fragments is uniform.
	if len(parts) < 6 {
		return nil
	}

	if !shortDate.MatchString(parts[0]+" "+parts[1]) || !shortDate.MatchString(parts[2]+" "+parts[3]) {
		return nil
	}

	cr := ""
	end := len(parts)
	if strings.EqualFold(parts[end-1], "CR") {
		cr = " CR"
		end--
	}
	if end < 6 || !parser.IsAmount(parts[end-1]) {
		return nil
	}

	desc := strings.Join(parts[4:end-1], " ")
	if desc == "" {
		return nil
	}
	return []string{"", parts[0] + " " + parts[1], parts[2] + " " + parts[3], desc, parts[end-1], cr}
}

func matchCardHeader(text string) string {
	for _, p := range cardHeaderPatterns {
		if m := p.FindString(text); m != "" {
			return strings.ToUpper(strings.Join(strings.Fields(m), " "))
		}
	}
	return ""
}

func isSkipRow(text string) bool {
	for _, p := range skipPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
