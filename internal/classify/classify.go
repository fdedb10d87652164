// Package classify assigns a transaction type and budget category to raw
// statement entries.
package classify

import (
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/rules"
)

// Transfer markers only apply to bank accounts: on a credit card the same
// wording describes a bill payment, which is already typed by sign.
var transferPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)funds (trf|transfer)`),
	regexp.MustCompile(`(?i)fast (payment|transfer)`),
	regexp.MustCompile(`(?i)\bpaynow\b`),
	regexp.MustCompile(`(?i)ibg (giro )?(transfer|trf)`),
	regexp.MustCompile(`(?i)transfer (to|from) (own|linked) account`),
}

var incomeKeywords = []string{
	"salary", "payroll", "bonus payment", "interest credit", "int credit",
	"dividend", "gst voucher", "cash rebate",
}

var investmentKeywords = []string{
	"srs", "cdp", "unit trust", "fundsupermart", "endowus", "syfe",
	"stashaway", "brokerage", "securities",
}

// Classifier resolves transaction type from description heuristics and
// category from the configured rules engine.
type Classifier struct {
	engine *rules.Engine
}

// New creates a classifier backed by the given rules engine.
func New(engine *rules.Engine) *Classifier {
	return &Classifier{engine: engine}
}

// Classify determines the transaction type. Order matters: transfer
// patterns (bank accounts only), then income keywords, then investment
// keywords, then the sign default.
func (c *Classifier) Classify(description string, amount float64, accountType domain.AccountType) domain.TxnType {
	desc := strings.ToLower(strings.TrimSpace(description))

	if accountType == domain.AccountTypeBank {
		for _, p := range transferPatterns {
			if p.MatchString(desc) {
				return domain.TxnTypeTransfer
			}
		}
	}
	for _, kw := range incomeKeywords {
		if strings.Contains(desc, kw) {
			return domain.TxnTypeIncome
		}
	}
	for _, kw := range investmentKeywords {
		if strings.Contains(desc, kw) {
			return domain.TxnTypeInvestment
		}
	}

	if amount >= 0 {
		return domain.TxnTypeIncome
	}
	return domain.TxnTypeExpense
}

// Categorize maps a description to a budget category via the rules
// engine. The second return reports whether any rule matched; unmatched
// descriptions fall back to CategoryOther.
func (c *Classifier) Categorize(description string) (domain.Category, bool) {
	if result, ok := c.engine.Match(description); ok {
		return result.Category, true
	}
	return domain.CategoryOther, false
}

// NormalizeSign is the single sign-consistency point: expenses are
// negative, every other type is positive, regardless of the sign the
// statement gave the raw amount.
func NormalizeSign(txnType domain.TxnType, amount float64) float64 {
	if txnType == domain.TxnTypeExpense {
		if amount > 0 {
			return -amount
		}
		return amount
	}
	if amount < 0 {
		return -amount
	}
	return amount
}
