package registry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// mockParser implements parser.FileParser for testing
type mockParser struct {
	name         string
	canParseFunc func(string, []byte) bool
}

func (m *mockParser) Name() string {
	return m.name
}

func (m *mockParser) CanParse(path string, header []byte) bool {
	if m.canParseFunc != nil {
		return m.canParseFunc(path, header)
	}
	return false
}

func (m *mockParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Statement, error) {
	return nil, nil
}

func TestRegistry_New(t *testing.T) {
	reg, err := New()
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	if reg == nil {
		t.Fatal("New() returned nil registry")
	}

	// Built-in file parsers, in registration order.
	parsers := reg.ListParsers()
	want := []string{"csv", "ofx"}
	if len(parsers) != len(want) {
		t.Fatalf("Expected %d built-in parsers, got %d: %v", len(want), len(parsers), parsers)
	}
	for i, name := range want {
		if parsers[i] != name {
			t.Errorf("Parser %d: expected %q, got %q", i, name, parsers[i])
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := MustNew()
	initial := len(reg.ListParsers())

	testParser := &mockParser{name: "test-parser"}
	if err := reg.Register(testParser); err != nil {
		t.Fatalf("Failed to register parser: %v", err)
	}

	parsers := reg.ListParsers()
	if len(parsers) != initial+1 {
		t.Fatalf("Expected %d parsers after registration, got %d", initial+1, len(parsers))
	}
	if parsers[len(parsers)-1] != "test-parser" {
		t.Errorf("Expected parser name 'test-parser' last, got %q", parsers[len(parsers)-1])
	}
}

func TestRegistry_Register_NilParser(t *testing.T) {
	reg := MustNew()
	err := reg.Register(nil)
	if err == nil {
		t.Error("Expected error when registering nil parser")
	}
	if !strings.Contains(err.Error(), "cannot register nil parser") {
		t.Errorf("Expected 'cannot register nil parser' error, got: %v", err)
	}
}

func TestRegistry_Register_DuplicateName(t *testing.T) {
	reg := MustNew()

	err := reg.Register(&mockParser{name: "csv"})
	if err == nil {
		t.Error("Expected error when registering duplicate parser name")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Expected 'already registered' error, got: %v", err)
	}
}

func TestRegistry_FindParser(t *testing.T) {
	tests := []struct {
		name          string
		fileName      string
		fileContent   string
		expectParser  string
		expectError   bool
		errorContains string
	}{
		{
			name:         "OFX file detected",
			fileName:     "statement.ofx",
			fileContent:  "OFXHEADER:100\nDATA:OFXSGML\n<OFX></OFX>",
			expectParser: "ofx",
		},
		{
			name:         "CSV file detected",
			fileName:     "statement.csv",
			fileContent:  "Date,Description,Amount\n2026-01-01,Test,100.00",
			expectParser: "csv",
		},
		{
			name:          "No parser matches",
			fileName:      "notes.txt",
			fileContent:   "Some unknown format",
			expectError:   true,
			errorContains: "no parser found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), tt.fileName)
			if err := os.WriteFile(tmpFile, []byte(tt.fileContent), 0600); err != nil {
				t.Fatalf("Failed to create temp file: %v", err)
			}

			reg := MustNew()
			found, err := reg.FindParser(tmpFile)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing %q, got %q", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if found.Name() != tt.expectParser {
				t.Errorf("Expected parser %q, got %q", tt.expectParser, found.Name())
			}
		})
	}
}

func TestRegistry_FindParser_FirstMatchWins(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "anything.dat")
	if err := os.WriteFile(tmpFile, []byte("payload"), 0600); err != nil {
		t.Fatal(err)
	}

	reg := MustNew()
	accept := func(string, []byte) bool { return true }
	if err := reg.Register(&mockParser{name: "parser-1", canParseFunc: accept}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&mockParser{name: "parser-2", canParseFunc: accept}); err != nil {
		t.Fatal(err)
	}

	found, err := reg.FindParser(tmpFile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found.Name() != "parser-1" {
		t.Errorf("Expected first matching parser 'parser-1', got %q", found.Name())
	}
}

func TestRegistry_FindParser_MissingFile(t *testing.T) {
	reg := MustNew()
	_, err := reg.FindParser("/nonexistent/file.ofx")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to open file") {
		t.Errorf("Expected 'failed to open file' error, got: %v", err)
	}
}

func TestRegistry_FindParser_HeaderTruncation(t *testing.T) {
	tests := []struct {
		name       string
		fileSize   int
		expectRead int
	}{
		{"small file", 100, 100},
		{"large file", 1024, 512},
		{"exactly 512 bytes", 512, 512},
		{"empty file", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := make([]byte, tt.fileSize)
			for i := range content {
				content[i] = byte('A' + (i % 26))
			}
			tmpFile := filepath.Join(t.TempDir(), "test.dat")
			if err := os.WriteFile(tmpFile, content, 0600); err != nil {
				t.Fatal(err)
			}

			var receivedHeaderLen int
			reg := MustNew()
			if err := reg.Register(&mockParser{
				name: "test",
				canParseFunc: func(path string, header []byte) bool {
					receivedHeaderLen = len(header)
					return true
				},
			}); err != nil {
				t.Fatal(err)
			}

			if _, err := reg.FindParser(tmpFile); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if receivedHeaderLen != tt.expectRead {
				t.Errorf("Expected header length %d, got %d", tt.expectRead, receivedHeaderLen)
			}
		})
	}
}

func TestRegistry_RowParsersFor(t *testing.T) {
	reg := MustNew()

	tests := []struct {
		name      string
		account   domain.Account
		wantNames []string
		wantKnown bool
	}{
		{
			name:      "credit account gets card parser",
			account:   domain.Account{ID: "acc-uob-4421", Type: domain.AccountTypeCredit},
			wantNames: []string{"uob-card"},
			wantKnown: true,
		},
		{
			name:      "bank account gets bank chain",
			account:   domain.Account{ID: "acc-uob-89-0", Type: domain.AccountTypeBank},
			wantNames: []string{"uob-bank", "uob-bank-legacy"},
			wantKnown: true,
		},
		{
			name:      "unknown layout falls back to default chain",
			account:   domain.Account{ID: "acc-x", Type: domain.AccountTypeInvestment},
			wantNames: []string{"uob-bank", "uob-bank-legacy"},
			wantKnown: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsers, known := reg.RowParsersFor(tt.account)
			if known != tt.wantKnown {
				t.Errorf("RowParsersFor() known = %v, want %v", known, tt.wantKnown)
			}
			if len(parsers) != len(tt.wantNames) {
				t.Fatalf("RowParsersFor() returned %d parsers, want %d", len(parsers), len(tt.wantNames))
			}
			for i, want := range tt.wantNames {
				if parsers[i] == nil {
					t.Fatalf("RowParsersFor() parser %d is nil", i)
				}
				if parsers[i].Name() != want {
					t.Errorf("parser %d = %q, want %q", i, parsers[i].Name(), want)
				}
			}
		})
	}
}
