// Package streaming delivers parse progress to connected clients over
// Server-Sent Events. One broadcaster exists per parse session; events
// are fan-out, best-effort except for terminal events.
package streaming

import (
	"encoding/json"
	"time"
)

// EventType represents the type of SSE event.
type EventType string

const (
	EventTypeSession     EventType = "session"
	EventTypeProgress    EventType = "progress"
	EventTypeFile        EventType = "file"
	EventTypeStatement   EventType = "statement"
	EventTypeTransaction EventType = "transaction"
	EventTypeAlert       EventType = "alert"
	EventTypeComplete    EventType = "complete"
	EventTypeError       EventType = "error"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// SSEEvent is one Server-Sent Event. The payload is private; use the
// typed accessors or Data().
type SSEEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	data      interface{}
}

// Data returns the untyped event payload.
func (e SSEEvent) Data() interface{} {
	return e.data
}

// MarshalJSON includes the private payload under "data".
func (e SSEEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType   `json:"type"`
		Timestamp time.Time   `json:"timestamp"`
		Data      interface{} `json:"data"`
	}{e.Type, e.Timestamp, e.data})
}

// SessionEvent reports a parse session state change.
type SessionEvent struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Stats       map[string]interface{} `json:"stats"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ProgressEvent reports parsing progress within a session.
type ProgressEvent struct {
	FileID     string  `json:"fileId"`
	FileName   string  `json:"fileName"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
}

// FileEvent reports a file entering or leaving the parse pipeline.
type FileEvent struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	FileName  string                 `json:"fileName"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// StatementEvent summarizes one parsed statement.
type StatementEvent struct {
	AccountID    string  `json:"accountId"`
	PeriodStart  string  `json:"periodStart"`
	PeriodEnd    string  `json:"periodEnd"`
	Currency     string  `json:"currency,omitempty"`
	Opening      float64 `json:"openingBalance"`
	Closing      float64 `json:"closingBalance"`
	Transactions int     `json:"transactions"`
	Duplicates   int     `json:"duplicates"`
	RowErrors    int     `json:"rowErrors"`
}

// TransactionEvent reports one imported transaction.
type TransactionEvent struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type,omitempty"`
	Category    string  `json:"category,omitempty"`
	Tag         string  `json:"tag,omitempty"`
}

// AlertEvent reports a transaction that crossed a notification threshold.
type AlertEvent struct {
	AccountID   string  `json:"accountId"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Threshold   float64 `json:"threshold"`
	Message     string  `json:"message"`
}

// ErrorEvent reports an error during parsing.
type ErrorEvent struct {
	Message string `json:"message"`
	FileID  string `json:"fileId,omitempty"`
}

func newEvent(t EventType, data interface{}) SSEEvent {
	return SSEEvent{Type: t, Timestamp: time.Now(), data: data}
}

// NewSessionEvent creates a session state event.
func NewSessionEvent(data SessionEvent) SSEEvent { return newEvent(EventTypeSession, data) }

// NewProgressEvent creates a progress event.
func NewProgressEvent(data ProgressEvent) SSEEvent { return newEvent(EventTypeProgress, data) }

// NewFileEvent creates a file event.
func NewFileEvent(data FileEvent) SSEEvent { return newEvent(EventTypeFile, data) }

// NewStatementEvent creates a statement summary event.
func NewStatementEvent(data StatementEvent) SSEEvent { return newEvent(EventTypeStatement, data) }

// NewTransactionEvent creates a transaction event.
func NewTransactionEvent(data TransactionEvent) SSEEvent { return newEvent(EventTypeTransaction, data) }

// NewAlertEvent creates a threshold alert event.
func NewAlertEvent(data AlertEvent) SSEEvent { return newEvent(EventTypeAlert, data) }

// NewErrorEvent creates an error event.
func NewErrorEvent(data ErrorEvent) SSEEvent { return newEvent(EventTypeError, data) }

// NewCompleteEvent creates a terminal completion event with arbitrary
// summary data.
func NewCompleteEvent(data interface{}) SSEEvent { return newEvent(EventTypeComplete, data) }

// NewHeartbeatEvent creates a keep-alive event.
func NewHeartbeatEvent() SSEEvent { return newEvent(EventTypeHeartbeat, nil) }

// SessionData returns the payload if this is a session event.
func (e SSEEvent) SessionData() (SessionEvent, bool) {
	d, ok := e.data.(SessionEvent)
	return d, ok
}

// ProgressData returns the payload if this is a progress event.
func (e SSEEvent) ProgressData() (ProgressEvent, bool) {
	d, ok := e.data.(ProgressEvent)
	return d, ok
}

// FileData returns the payload if this is a file event.
func (e SSEEvent) FileData() (FileEvent, bool) {
	d, ok := e.data.(FileEvent)
	return d, ok
}

// StatementData returns the payload if this is a statement event.
func (e SSEEvent) StatementData() (StatementEvent, bool) {
	d, ok := e.data.(StatementEvent)
	return d, ok
}

// TransactionData returns the payload if this is a transaction event.
func (e SSEEvent) TransactionData() (TransactionEvent, bool) {
	d, ok := e.data.(TransactionEvent)
	return d, ok
}

// AlertData returns the payload if this is an alert event.
func (e SSEEvent) AlertData() (AlertEvent, bool) {
	d, ok := e.data.(AlertEvent)
	return d, ok
}

// ErrorData returns the payload if this is an error event.
func (e SSEEvent) ErrorData() (ErrorEvent, bool) {
	d, ok := e.data.(ErrorEvent)
	return d, ok
}
