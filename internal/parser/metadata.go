package parser

import (
	"fmt"
	"time"
)

// Metadata contains context about the file being parsed.
// Extracted from directory structure: ~/statements/{institution}/{account}/file.ext
//
// Create instances using NewMetadata(filePath, detectedAt). Optional fields
// (institution, product, account number) can be set after construction.
//
// Empty Institution() or AccountNumber() means the file path didn't match
// the expected directory structure. This is not an error - the registry
// falls back to content-based detection and the default parser.
type Metadata struct {
	filePath      string
	institution   string // e.g. "uob"
	product       string // e.g. "bank", "card"
	accountNumber string
	detectedAt    time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the absolute file path
func (m *Metadata) FilePath() string {
	return m.filePath
}

// Institution returns the institution slug inferred from directory
// structure. Empty when the path didn't match the expected layout.
func (m *Metadata) Institution() string {
	return m.institution
}

// Product returns the product slug inferred from directory structure.
func (m *Metadata) Product() string {
	return m.product
}

// AccountNumber returns the account number inferred from directory
// structure. Empty when the path didn't match the expected layout.
func (m *Metadata) AccountNumber() string {
	return m.accountNumber
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}

// SetInstitution sets the institution slug
func (m *Metadata) SetInstitution(institution string) {
	m.institution = institution
}

// SetProduct sets the product slug
func (m *Metadata) SetProduct(product string) {
	m.product = product
}

// SetAccountNumber sets the account number
func (m *Metadata) SetAccountNumber(accountNumber string) {
	m.accountNumber = accountNumber
}
