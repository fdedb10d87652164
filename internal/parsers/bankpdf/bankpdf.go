// Package bankpdf parses single running-balance bank account statements
// from grouped PDF rows.
package bankpdf

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/layout"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// Parser implements the single-balance account statement format: one
// transaction per date row, numeric columns for withdrawal/deposit/balance,
// continuation rows folded into the running description.
type Parser struct{}

// New returns a bank statement parser.
func New() *Parser {
	return &Parser{}
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "uob-bank"
}

// scanState names the row scanner states so the stop conditions of
// continuation folding are independently testable.
type scanState int

const (
	seekingTransaction scanState = iota
	collectingContinuation
)

var (
	periodPattern = regexp.MustCompile(
		`(?i)(?:statement\s+)?period[:\s]+(\d{1,2}\s+[A-Za-z]{3}\s+\d{4})\s*(?:to|-|–)\s*(\d{1,2}\s+[A-Za-z]{3}\s+\d{4})`)
	accountPattern  = regexp.MustCompile(`(?i)account\s+(?:no|number)[.:\s]+([0-9][0-9-]{5,})`)
	currencyPattern = regexp.MustCompile(`\b(SGD|USD|EUR|GBP|MYR)\b`)

	// A transaction starts with a two-digit day and three-letter month.
	dateStartPattern = regexp.MustCompile(`^(\d{2}\s+[A-Za-z]{3})\b`)

	balanceBF = regexp.MustCompile(`(?i)\bBALANCE\s+B/F\b`)
	balanceCF = regexp.MustCompile(`(?i)\bBALANCE\s+C/F\b`)
	endMarker = regexp.MustCompile(`(?i)end of transaction details|^total\b`)
)

// Fixed footer and letterhead patterns dropped from continuations.
var disclaimerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)deposit insurance scheme`),
	regexp.MustCompile(`(?i)insured up to`),
	regexp.MustCompile(`(?i)please notify (us|the bank)`),
	regexp.MustCompile(`(?i)united overseas bank`),
	regexp.MustCompile(`(?i)co\.?\s*reg\.?\s*no`),
	regexp.MustCompile(`(?i)^page\s+\d+(\s+of\s+\d+)?$`),
	regexp.MustCompile(`(?i)statement of account`),
	regexp.MustCompile(`(?i)^date\s+description`),
}

// Parse converts grouped rows into a statement. The statement period and
// the BALANCE B/F section boundary are load-bearing: without them the
// scan cannot be bounded and the parse fails with a StructureError.
func (p *Parser) Parse(rows []geometry.Row, fullText string) (*parser.Statement, error) {
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
	if !balanceBF.MatchString(fullText) {
		return nil, &parser.StructureError{Parser: p.Name(), Marker: "BALANCE B/F"}
	}
	periodEndTime, _ := time.Parse("2006-01-02", periodEnd)

	stmt := &parser.Statement{
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Currency:      detectCurrency(fullText),
		AccountNumber: detectAccountNumber(fullText),
	}

	cols := layout.Detect(rows)

	var (
		state          = seekingTransaction
		pending        *parser.Entry
		runningBalance float64
		haveOpening    bool
		inSection      bool
	)

	flush := func() {
		if pending != nil {
			stmt.Transactions = append(stmt.Transactions, *pending)
			pending = nil
		}
		state = seekingTransaction
	}

	for i, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}

		// Opening balance comes from the first BALANCE B/F row; later
		// occurrences (page carry-overs) only re-anchor the running balance.
		if balanceBF.MatchString(text) {
			flush()
			if bal, ok := lastAmount(row); ok {
				if !haveOpening {
					stmt.OpeningBalance = bal
					haveOpening = true
				}
				runningBalance = bal
			}
			inSection = true
			continue
		}

		if balanceCF.MatchString(text) || endMarker.MatchString(strings.ToLower(text)) {
			flush()
			if bal, ok := lastAmount(row); ok {
				stmt.ClosingBalance = bal
			}
			inSection = false
			continue
		}

		if !inSection {
			continue
		}

		if isDisclaimer(text) {
			// Disclaimer ends continuation collection; the line itself is dropped.
			flush()
			continue
		}

		if m := dateStartPattern.FindStringSubmatch(text); m != nil {
			flush()
			entry, balance, rowErr := p.parseTransactionRow(row, m[1], cols, runningBalance, periodEndTime)
			if rowErr != nil {
				stmt.RowErrors = append(stmt.RowErrors, parser.RowError{Line: i, Reason: rowErr.Error()})
				continue
			}
			runningBalance = balance
			pending = entry
			state = collectingContinuation
			continue
		}

		if state == collectingContinuation && pending != nil {
			pending.Description = pending.Description + " " + text
		}
	}
	flush()

	if stmt.ClosingBalance == 0 && len(stmt.Transactions) > 0 {
		stmt.ClosingBalance = stmt.Transactions[len(stmt.Transactions)-1].Balance
	}

	return stmt, nil
}

// parseTransactionRow extracts one transaction from a date-led row.
// Numeric fragments are assigned to columns by nearest-anchor distance;
// when no anchor is confident, the rightmost number is the balance, the
// remaining number the amount, and the sign comes from the balance delta.
func (p *Parser) parseTransactionRow(row geometry.Row, dateToken string, cols layout.Columns, runningBalance float64, periodEnd time.Time) (*parser.Entry, float64, error) {
	date, err := parser.ResolveShortDate(dateToken, periodEnd)
	if err != nil {
		return nil, runningBalance, fmt.Errorf("bad date token %q: %w", dateToken, err)
	}

	type number struct {
		value float64
		x     float64
		col   layout.Column
	}
	var (
		numbers   []number
		descParts []string
		datePart  = strings.Fields(dateToken)
		skipDate  = len(datePart)
	)

	for _, f := range row.Fragments {
		text := strings.TrimSpace(f.Text)
		if skipDate > 0 {
			// The date may arrive as one fragment ("05 Jan") or two.
			fields := strings.Fields(text)
			if len(fields) <= skipDate {
				skipDate -= len(fields)
				continue
			}
			text = strings.Join(fields[skipDate:], " ")
			skipDate = 0
		}
		if parser.IsAmount(text) {
			v, err := parser.ParseAmount(text)
			if err != nil {
				continue
			}
			numbers = append(numbers, number{value: v, x: f.X, col: cols.Classify(f.X)})
			continue
		}
		if text != "" {
			descParts = append(descParts, text)
		}
	}

	description := strings.TrimSpace(strings.Join(descParts, " "))
	if description == "" {
		return nil, runningBalance, fmt.Errorf("no description")
	}
	if len(numbers) == 0 {
		return nil, runningBalance, fmt.Errorf("no amounts")
	}

	var (
		amount     float64
		newBalance float64
		haveAmount bool
		haveSigned bool
		haveBal    bool
	)

	// Confident path: anchor column match decides amount sign and balance.
	for _, n := range numbers {
		switch n.col {
		case layout.ColumnWithdrawal:
			amount = -n.value
			haveAmount = true
			haveSigned = true
		case layout.ColumnDeposit:
			amount = n.value
			haveAmount = true
			haveSigned = true
		case layout.ColumnBalance:
			newBalance = n.value
			haveBal = true
		}
	}

	// Fallback: rightmost number is the balance, any remaining number the
	// amount. Sign comes from the balance-delta heuristic.
	if !haveBal {
		rightmost := numbers[len(numbers)-1]
		newBalance = rightmost.value
		haveBal = true
		if !haveAmount {
			for _, n := range numbers[:len(numbers)-1] {
				if n.col == layout.ColumnNone {
					amount = n.value
					haveAmount = true
					break
				}
			}
		}
	} else if !haveAmount {
		for _, n := range numbers {
			if n.col == layout.ColumnNone {
				amount = n.value
				haveAmount = true
				break
			}
		}
	}

	if !haveAmount {
		return nil, runningBalance, fmt.Errorf("no transaction amount")
	}
	if !haveSigned {
		// Balance-delta heuristic: new balance below the running balance
		// means money went out.
		if newBalance < runningBalance {
			amount = -abs(amount)
		} else {
			amount = abs(amount)
		}
	}

	entry, err := parser.NewEntry(date, description, amount, newBalance)
	if err != nil {
		return nil, runningBalance, err
	}
	return entry, newBalance, nil
}

// isDisclaimer reports whether a line is legal boilerplate, a page marker
// or letterhead. Beyond the fixed patterns, a long line whose non-ASCII
// ratio exceeds 30% is treated as disclaimer text (CJK legal footers).
func isDisclaimer(line string) bool {
	for _, p := range disclaimerPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	if len(line) > 20 {
		nonASCII := 0
		total := 0
		for _, r := range line {
			total++
			if r > 127 {
				nonASCII++
			}
		}
		if total > 0 && float64(nonASCII)/float64(total) > 0.3 {
			return true
		}
	}
	return false
}

func lastAmount(row geometry.Row) (float64, bool) {
	for i := len(row.Fragments) - 1; i >= 0; i-- {
		text := strings.TrimSpace(row.Fragments[i].Text)
		if parser.IsAmount(text) {
			v, err := parser.ParseAmount(text)
			if err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func detectCurrency(text string) string {
	if m := currencyPattern.FindString(text); m != "" {
		return m
	}
	return "SGD"
}

func detectAccountNumber(text string) string {
	if m := accountPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
