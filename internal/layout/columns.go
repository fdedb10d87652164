// Package layout detects the horizontal positions of a statement's numeric
// columns from its header row.
package layout

import (
	"log"
	"math"
	"strings"

	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
)

// Column identifies which numeric column a fragment belongs to.
type Column int

const (
	ColumnNone Column = iota
	ColumnWithdrawal
	ColumnDeposit
	ColumnBalance
)

func (c Column) String() string {
	switch c {
	case ColumnWithdrawal:
		return "withdrawal"
	case ColumnDeposit:
		return "deposit"
	case ColumnBalance:
		return "balance"
	default:
		return "none"
	}
}

// Fallback anchors tuned to the observed statement template, used when no
// header row names the columns. Degraded precision, never an error.
const (
	fallbackWithdrawalX = 330.0
	fallbackDepositX    = 420.0
	fallbackBalanceX    = 500.0

	// MatchThreshold is the maximum X distance at which a fragment is
	// confidently assigned to a column anchor.
	MatchThreshold = 40.0
)

// Columns holds the X anchors of the withdrawal, deposit and balance
// columns. Built once per statement, immutable afterward.
type Columns struct {
	WithdrawalX float64
	DepositX    float64
	BalanceX    float64
	FromHeader  bool
}

var (
	withdrawalLabels = []string{"withdrawal", "withdrawals", "debit", "money out"}
	depositLabels    = []string{"deposit", "deposits", "credit", "money in"}
	balanceLabels    = []string{"balance"}
)

// Detect scans the rows for a header naming both a withdrawal and a
// deposit column and records the matching fragments' X positions. When no
// such row exists it logs a warning and returns the fallback anchors;
// detection never fails.
func Detect(rows []geometry.Row) Columns {
	for _, row := range rows {
		lower := strings.ToLower(row.Text)
		if !containsAny(lower, withdrawalLabels) || !containsAny(lower, depositLabels) {
			continue
		}

		cols := Columns{
			WithdrawalX: fallbackWithdrawalX,
			DepositX:    fallbackDepositX,
			BalanceX:    fallbackBalanceX,
			FromHeader:  true,
		}
		for _, f := range row.Fragments {
			text := strings.ToLower(f.Text)
			switch {
			case containsAny(text, withdrawalLabels):
				cols.WithdrawalX = f.X
			case containsAny(text, depositLabels):
				cols.DepositX = f.X
			case containsAny(text, balanceLabels):
				cols.BalanceX = f.X
			}
		}
		return cols
	}

	log.Printf("WARN: no column header row found, using fallback column anchors")
	return Columns{
		WithdrawalX: fallbackWithdrawalX,
		DepositX:    fallbackDepositX,
		BalanceX:    fallbackBalanceX,
	}
}

// Classify assigns x to the nearest column anchor. Returns ColumnNone when
// no anchor lies within MatchThreshold. An exact tie between two anchors
// resolves to the leftmost column in scan order (withdrawal, deposit,
// balance); the tie case is a known approximation of the template.
func (c Columns) Classify(x float64) Column {
	best := ColumnNone
	bestDist := MatchThreshold
	anchors := []struct {
		col Column
		x   float64
	}{
		{ColumnWithdrawal, c.WithdrawalX},
		{ColumnDeposit, c.DepositX},
		{ColumnBalance, c.BalanceX},
	}
	for _, a := range anchors {
		d := math.Abs(x - a.x)
		if d < bestDist || (d == bestDist && best == ColumnNone) {
			best = a.col
			bestDist = d
		}
	}
	return best
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
