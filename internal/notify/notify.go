// Package notify flags imported transactions that cross a spending
// threshold.
package notify

import (
	"fmt"
	"math"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/streaming"
)

// Notifier evaluates transactions against a debit threshold. A zero or
// negative threshold disables alerting.
type Notifier struct {
	threshold float64
}

// New creates a notifier that alerts on debits of at least threshold.
func New(threshold float64) *Notifier {
	return &Notifier{threshold: threshold}
}

// Enabled reports whether the notifier has an active threshold.
func (n *Notifier) Enabled() bool {
	return n.threshold > 0
}

// Evaluate checks one transaction. Transfers are excluded: moving money
// between own accounts is not spending.
func (n *Notifier) Evaluate(txn domain.Transaction) (streaming.AlertEvent, bool) {
	if !n.Enabled() || txn.Type == domain.TxnTypeTransfer {
		return streaming.AlertEvent{}, false
	}
	if txn.Amount >= 0 || math.Abs(txn.Amount) < n.threshold {
		return streaming.AlertEvent{}, false
	}
	return streaming.AlertEvent{
		AccountID:   txn.AccountID,
		Date:        txn.Date,
		Description: txn.Description,
		Amount:      txn.Amount,
		Threshold:   n.threshold,
		Message:     fmt.Sprintf("debit of %.2f on %s exceeds threshold %.2f", math.Abs(txn.Amount), txn.Date, n.threshold),
	}, true
}

// EvaluateAll returns alert events for every qualifying transaction.
func (n *Notifier) EvaluateAll(txns []domain.Transaction) []streaming.AlertEvent {
	if !n.Enabled() {
		return nil
	}
	var alerts []streaming.AlertEvent
	for _, txn := range txns {
		if alert, ok := n.Evaluate(txn); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}
