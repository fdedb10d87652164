package bankpdf

import (
	"regexp"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// LegacyParser handles older statements whose extracted text has no usable
// fragment positions. It works on joined text lines only: the transaction
// table is bounded by a "Description" header line and an "End of
// Transaction"/"Total" line, and amount signs come entirely from the
// balance delta.
type LegacyParser struct{}

// NewLegacy returns a text-only fallback parser.
func NewLegacy() *LegacyParser {
	return &LegacyParser{}
}

// Name returns the parser identifier
func (p *LegacyParser) Name() string {
	return "uob-bank-legacy"
}

var (
	legacyHeader = regexp.MustCompile(`(?i)^date\b.*\bdescription\b`)
	legacyEnd    = regexp.MustCompile(`(?i)^(end of transaction|total\b)`)
	// DD Mon <description> <amount> <balance>
	legacyTxn = regexp.MustCompile(`^(\d{2} [A-Za-z]{3})\s+(.+?)\s+([\d,]+\.\d{2})\s+([\d,]+\.\d{2})$`)
)

// Parse scans the joined text line by line. Rows are accepted only between
// the table header and end marker; both are required.
func (p *LegacyParser) Parse(rows []geometry.Row, fullText string) (*parser.Statement, error) {
	pm := periodPattern.FindStringSubmatch(fullText)
	if pm == nil {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "statement period"}
	}
	periodStart, err := parser.NormalizeDate(pm[1])
	if err != nil {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "statement period"}
	}
	periodEnd, err := parser.NormalizeDate(pm[2])
	if err != nil {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "statement period"}
	}
	periodEndTime, _ := time.Parse("2006-01-02", periodEnd)

	lines := strings.Split(fullText, "\n")
	start := -1
	for i, line := range lines {
		if legacyHeader.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "Description"}
	}

	stmt := &parser.Statement{
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Currency:      detectCurrency(fullText),
		AccountNumber: detectAccountNumber(fullText),
	}

	var (
		runningBalance float64
		haveRunning    bool
		ended          bool
		lastIdx        = -1
	)

	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if legacyEnd.MatchString(line) {
			ended = true
			break
		}
		if isDisclaimer(line) {
			lastIdx = -1
			continue
		}

		if balanceBF.MatchString(line) {
			if bal, ok := trailingAmount(line); ok {
				if !haveRunning {
					stmt.OpeningBalance = bal
				}
				runningBalance = bal
				haveRunning = true
			}
			lastIdx = -1
			continue
		}

		m := legacyTxn.FindStringSubmatch(line)
		if m == nil {
			// Continuation of the previous description.
			if lastIdx >= 0 && !dateStartPattern.MatchString(line) {
				stmt.Transactions[lastIdx].Description += " " + line
			} else if dateStartPattern.MatchString(line) {
				stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: "unparseable transaction row"})
				lastIdx = -1
			}
			continue
		}

		date, err := parser.ResolveShortDate(m[1], periodEndTime)
		if err != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: err.Error()})
			continue
		}
		amount, err := parser.ParseAmount(m[3])
		if err != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: err.Error()})
			continue
		}
		balance, err := parser.ParseAmount(m[4])
		if err != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: err.Error()})
			continue
		}

		if haveRunning && balance < runningBalance {
			amount = -amount
		}
		runningBalance = balance
		haveRunning = true

		entry, err := parser.NewEntry(date, strings.TrimSpace(m[2]), amount, balance)
		if err != nil {
			stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: err.Error()})
			continue
		}
		stmt.Transactions = append(stmt.Transactions, *entry)
		lastIdx = len(stmt.Transactions) - 1
	}

	if !ended {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "End of Transaction"}
	}
	if len(stmt.Transactions) > 0 {
		stmt.ClosingBalance = stmt.Transactions[len(stmt.Transactions)-1].Balance
	} else {
		stmt.ClosingBalance = stmt.OpeningBalance
	}

	return stmt, nil
}

var trailingNumber = regexp.MustCompile(`([\d,]+\.\d{2})\s*$`)

func trailingAmount(line string) (float64, bool) {
	m := trailingNumber.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := parser.ParseAmount(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}
