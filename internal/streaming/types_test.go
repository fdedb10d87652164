package streaming

import (
	"encoding/json"
	"testing"
)

func TestSSEEventMarshaling(t *testing.T) {
	event := NewStatementEvent(StatementEvent{
		AccountID:    "acc-uob-89-0",
		PeriodStart:  "2026-01-01",
		PeriodEnd:    "2026-01-31",
		Currency:     "SGD",
		Transactions: 12,
		Duplicates:   3,
	})

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal statement event: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}

	if result["type"] != string(EventTypeStatement) {
		t.Errorf("type = %v, want %s", result["type"], EventTypeStatement)
	}
	if result["timestamp"] == nil {
		t.Error("timestamp missing from marshaled event")
	}

	payload, ok := result["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data field is %T, want object", result["data"])
	}
	if payload["accountId"] != "acc-uob-89-0" {
		t.Errorf("data.accountId = %v, want acc-uob-89-0", payload["accountId"])
	}
	if payload["transactions"] != float64(12) {
		t.Errorf("data.transactions = %v, want 12", payload["transactions"])
	}
}

func TestTypedAccessors(t *testing.T) {
	alert := NewAlertEvent(AlertEvent{
		AccountID:   "acc-uob-89-0",
		Description: "FURNITURE WAREHOUSE",
		Amount:      -1200,
		Threshold:   500,
	})

	data, ok := alert.AlertData()
	if !ok {
		t.Fatal("AlertData() failed on an alert event")
	}
	if data.Amount != -1200 || data.Threshold != 500 {
		t.Errorf("AlertData() = %+v", data)
	}

	// Wrong-type accessors report false instead of zero values.
	if _, ok := alert.ProgressData(); ok {
		t.Error("ProgressData() succeeded on an alert event")
	}
	if _, ok := alert.StatementData(); ok {
		t.Error("StatementData() succeeded on an alert event")
	}
}

func TestEventConstructorsSetType(t *testing.T) {
	tests := []struct {
		name  string
		event SSEEvent
		want  EventType
	}{
		{"progress", NewProgressEvent(ProgressEvent{FileName: "jan.csv"}), EventTypeProgress},
		{"file", NewFileEvent(FileEvent{FileName: "jan.csv"}), EventTypeFile},
		{"statement", NewStatementEvent(StatementEvent{AccountID: "acc-uob-89-0"}), EventTypeStatement},
		{"transaction", NewTransactionEvent(TransactionEvent{Description: "GIRO SALARY"}), EventTypeTransaction},
		{"alert", NewAlertEvent(AlertEvent{Message: "large debit"}), EventTypeAlert},
		{"error", NewErrorEvent(ErrorEvent{Message: "no layout matched"}), EventTypeError},
		{"complete", NewCompleteEvent(map[string]int{"imported": 12}), EventTypeComplete},
		{"heartbeat", NewHeartbeatEvent(), EventTypeHeartbeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Type != tt.want {
				t.Errorf("event type = %s, want %s", tt.event.Type, tt.want)
			}
			if tt.event.Timestamp.IsZero() {
				t.Error("constructor left timestamp unset")
			}
		})
	}
}

func TestDataReturnsPayload(t *testing.T) {
	payload := FileEvent{
		ID:       "sess-0",
		FileName: "jan.csv",
		Status:   "completed",
	}
	event := NewFileEvent(payload)

	got, ok := event.Data().(FileEvent)
	if !ok {
		t.Fatalf("Data() returned %T, want FileEvent", event.Data())
	}
	if got.ID != payload.ID || got.FileName != payload.FileName || got.Status != payload.Status {
		t.Errorf("Data() = %+v, want %+v", got, payload)
	}
}
