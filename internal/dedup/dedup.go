// Package dedup provides transaction deduplication via SHA256 fingerprinting and state persistence.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

const (
	// CurrentVersion is the current state file format version
	CurrentVersion = 1
)

// State holds the fingerprint history across imports. An entry is
// admitted at most once per state: the first import records it, every
// later sighting is a duplicate.
type State struct {
	Version      int           `json:"version"`
	Metadata     StateMetadata `json:"metadata"`
	fingerprints map[string]*FingerprintRecord
}

// FingerprintRecord tracks a transaction fingerprint across multiple observations.
type FingerprintRecord struct {
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	Count         int       `json:"count"`
	TransactionID string    `json:"transactionId"`
}

// StateMetadata contains aggregate statistics about the state.
type StateMetadata struct {
	LastUpdated       time.Time `json:"lastUpdated"`
	TotalFingerprints int       `json:"totalFingerprints"`
}

// NewState creates an empty deduplication state with the current version.
func NewState() *State {
	return &State{
		Version:      CurrentVersion,
		fingerprints: make(map[string]*FingerprintRecord),
		Metadata: StateMetadata{
			LastUpdated: time.Now(),
		},
	}
}

// GenerateFingerprint creates a SHA256 hash of date, amount, and description.
// Format: SHA256("{date}|{amount}|{normalizedDescription}")
// Amount is formatted with 2 decimal places for consistency.
// Description is normalized: lowercase and trimmed.
func GenerateFingerprint(date string, amount float64, description string) string {
	normalizedDesc := strings.ToLower(strings.TrimSpace(description))
	input := fmt.Sprintf("%s|%.2f|%s", date, amount, normalizedDesc)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// IsDuplicate checks if a fingerprint exists in the state.
func (s *State) IsDuplicate(fingerprint string) bool {
	_, exists := s.fingerprints[fingerprint]
	return exists
}

// RecordTransaction records a transaction fingerprint in the state.
// If new: creates record with firstSeen=timestamp, count=1.
// If exists: updates lastSeen=timestamp, increments count.
func (s *State) RecordTransaction(fingerprint, transactionID string, timestamp time.Time) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if transactionID == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if record, exists := s.fingerprints[fingerprint]; exists {
		record.LastSeen = timestamp
		record.Count++
	} else {
		s.fingerprints[fingerprint] = &FingerprintRecord{
			FirstSeen:     timestamp,
			LastSeen:      timestamp,
			Count:         1,
			TransactionID: transactionID,
		}
	}

	return nil
}

// TotalFingerprints returns the number of distinct fingerprints recorded.
func (s *State) TotalFingerprints() int {
	return len(s.fingerprints)
}

// Lookup returns the record for a fingerprint, if present.
func (s *State) Lookup(fingerprint string) (*FingerprintRecord, bool) {
	record, ok := s.fingerprints[fingerprint]
	return record, ok
}

// Validate checks internal consistency of a loaded state.
func (s *State) Validate() error {
	if s.Version != CurrentVersion {
		return fmt.Errorf("unsupported state file version %d (current version: %d)", s.Version, CurrentVersion)
	}
	for fp, record := range s.fingerprints {
		if len(fp) != 64 {
			return fmt.Errorf("malformed fingerprint %q", fp)
		}
		if record == nil || record.Count < 1 {
			return fmt.Errorf("fingerprint %s has invalid record", fp)
		}
		if record.LastSeen.Before(record.FirstSeen) {
			return fmt.Errorf("fingerprint %s seen last before first", fp)
		}
	}
	return nil
}

// Filter splits entries into the ones not yet seen and a duplicate count.
// Kept entries are recorded in the state immediately, so a duplicate
// within the same batch is also skipped.
func Filter(entries []parser.Entry, state *State) (kept []parser.Entry, duplicates int) {
	now := time.Now()
	for _, entry := range entries {
		fp := GenerateFingerprint(entry.Date, entry.Amount, entry.Description)
		if state.IsDuplicate(fp) {
			duplicates++
			continue
		}
		// Entry ID assignment happens downstream; record the fingerprint
		// itself as a placeholder until the transform overwrites it.
		_ = state.RecordTransaction(fp, fp, now)
		kept = append(kept, entry)
	}
	return kept, duplicates
}

// stateJSON is the serialized shape of State.
type stateJSON struct {
	Version      int                           `json:"version"`
	Fingerprints map[string]*FingerprintRecord `json:"fingerprints"`
	Metadata     StateMetadata                 `json:"metadata"`
}

// MarshalJSON implements custom JSON marshaling for State
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(&stateJSON{
		Version:      s.Version,
		Fingerprints: s.fingerprints,
		Metadata:     s.Metadata,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for State
func (s *State) UnmarshalJSON(data []byte) error {
	var aux stateJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Version = aux.Version
	s.Metadata = aux.Metadata
	s.fingerprints = aux.Fingerprints
	if s.fingerprints == nil {
		s.fingerprints = make(map[string]*FingerprintRecord)
	}
	return nil
}

// LoadState loads a state file from disk.
// Returns os.IsNotExist error if file doesn't exist (caller should handle).
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err // Preserve os.IsNotExist for caller
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}

	return &state, nil
}

// SaveState atomically writes the state to disk.
// Uses atomic write pattern: write to temp file, then rename.
// Ensures parent directory exists.
func SaveState(state *State, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	state.Metadata.LastUpdated = time.Now()
	state.Metadata.TotalFingerprints = len(state.fingerprints)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
