package dedup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

func TestGenerateFingerprint(t *testing.T) {
	tests := []struct {
		name        string
		date        string
		amount      float64
		description string
	}{
		{"basic transaction", "2026-01-05", -45.60, "NETS PURCHASE"},
		{"positive amount", "2026-01-15", 1000.00, "Salary"},
		{"floating point rounding", "2026-01-15", -123.455, "Test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateFingerprint(tt.date, tt.amount, tt.description)

			// SHA256 = 64 hex chars
			if len(got) != 64 {
				t.Errorf("GenerateFingerprint() returned hash of length %d, want 64", len(got))
			}

			got2 := GenerateFingerprint(tt.date, tt.amount, tt.description)
			if got != got2 {
				t.Errorf("GenerateFingerprint() is not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestGenerateFingerprint_Normalization(t *testing.T) {
	// Case and surrounding whitespace in the description must not change
	// the fingerprint; different sources render the same transaction
	// differently.
	base := GenerateFingerprint("2026-01-05", -45.60, "NETS Purchase")
	if got := GenerateFingerprint("2026-01-05", -45.60, "nets purchase"); got != base {
		t.Error("fingerprint is case sensitive, want insensitive")
	}
	if got := GenerateFingerprint("2026-01-05", -45.60, "  NETS Purchase  "); got != base {
		t.Error("fingerprint sensitive to surrounding whitespace")
	}
	if got := GenerateFingerprint("2026-01-05", -45.6, "NETS Purchase"); got != base {
		t.Error("amount formatting not fixed to 2 decimals")
	}
}

func TestGenerateFingerprint_Uniqueness(t *testing.T) {
	fp1 := GenerateFingerprint("2026-01-05", -50.00, "Whole Foods")
	fp2 := GenerateFingerprint("2026-01-06", -50.00, "Whole Foods") // Different date
	fp3 := GenerateFingerprint("2026-01-05", -51.00, "Whole Foods") // Different amount
	fp4 := GenerateFingerprint("2026-01-05", -50.00, "Target")      // Different description

	seen := make(map[string]bool)
	for _, fp := range []string{fp1, fp2, fp3, fp4} {
		if seen[fp] {
			t.Errorf("Duplicate fingerprint detected: %s", fp)
		}
		seen[fp] = true
	}
}

func TestNewState(t *testing.T) {
	state := NewState()

	if state.Version != CurrentVersion {
		t.Errorf("NewState() version = %d, want %d", state.Version, CurrentVersion)
	}
	if state.fingerprints == nil {
		t.Error("NewState() fingerprints map is nil")
	}
	if state.TotalFingerprints() != 0 {
		t.Errorf("NewState() TotalFingerprints() = %d, want 0", state.TotalFingerprints())
	}
}

func TestRecordTransaction(t *testing.T) {
	state := NewState()
	fp := GenerateFingerprint("2026-01-05", -45.60, "NETS PURCHASE")
	now := time.Now()

	if state.IsDuplicate(fp) {
		t.Error("IsDuplicate() true for unrecorded fingerprint")
	}

	if err := state.RecordTransaction(fp, "txn-1", now); err != nil {
		t.Fatalf("RecordTransaction() error = %v", err)
	}
	if !state.IsDuplicate(fp) {
		t.Error("IsDuplicate() false after recording")
	}

	later := now.Add(time.Hour)
	if err := state.RecordTransaction(fp, "txn-1", later); err != nil {
		t.Fatalf("RecordTransaction() second error = %v", err)
	}

	record, ok := state.Lookup(fp)
	if !ok {
		t.Fatal("Lookup() missing record")
	}
	if record.Count != 2 {
		t.Errorf("record.Count = %d, want 2", record.Count)
	}
	if !record.LastSeen.Equal(later) {
		t.Errorf("record.LastSeen = %v, want %v", record.LastSeen, later)
	}
	if state.TotalFingerprints() != 1 {
		t.Errorf("TotalFingerprints() = %d, want 1", state.TotalFingerprints())
	}

	if err := state.RecordTransaction("", "txn-1", now); err == nil {
		t.Error("RecordTransaction() expected error for empty fingerprint")
	}
	if err := state.RecordTransaction(fp, "", now); err == nil {
		t.Error("RecordTransaction() expected error for empty transaction ID")
	}
}

func TestFilter(t *testing.T) {
	state := NewState()
	entries := []parser.Entry{
		{Date: "2026-01-05", Description: "NETS PURCHASE", Amount: -45.60},
		{Date: "2026-01-06", Description: "GIRO SALARY", Amount: 5000.00},
		// Same-batch duplicate of the first entry.
		{Date: "2026-01-05", Description: "nets purchase", Amount: -45.60},
	}

	kept, duplicates := Filter(entries, state)
	if len(kept) != 2 {
		t.Fatalf("Filter() kept %d entries, want 2", len(kept))
	}
	if duplicates != 1 {
		t.Errorf("Filter() duplicates = %d, want 1", duplicates)
	}

	// Re-filtering the same batch keeps nothing.
	kept, duplicates = Filter(entries, state)
	if len(kept) != 0 {
		t.Errorf("re-Filter() kept %d entries, want 0", len(kept))
	}
	if duplicates != 3 {
		t.Errorf("re-Filter() duplicates = %d, want 3", duplicates)
	}
}

func TestSaveLoadState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	state := NewState()
	fp := GenerateFingerprint("2026-01-05", -45.60, "NETS PURCHASE")
	if err := state.RecordTransaction(fp, "txn-1", time.Now()); err != nil {
		t.Fatalf("RecordTransaction() error = %v", err)
	}

	if err := SaveState(state, path); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if !loaded.IsDuplicate(fp) {
		t.Error("loaded state lost the recorded fingerprint")
	}
	if loaded.Metadata.TotalFingerprints != 1 {
		t.Errorf("Metadata.TotalFingerprints = %d, want 1", loaded.Metadata.TotalFingerprints)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "absent.json"))
	if !os.IsNotExist(err) {
		t.Errorf("LoadState() error = %v, want os.IsNotExist", err)
	}
}

func TestLoadStateBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "fingerprints": {}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Error("LoadState() expected error for unsupported version")
	}
}

func TestLoadStateCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(path); err == nil {
		t.Error("LoadState() expected error for corrupt file")
	}
}
