package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_Scan(t *testing.T) {
	// Test directory structure:
	// tmpDir/
	//   uob/
	//     one-account/
	//       123-456-789-0/
	//         statement.pdf
	//     one-card/
	//       statement.pdf
	//   dbs/
	//     export.csv
	//   loose/
	//     notes.txt
	//     data.json
	tmpDir := t.TempDir()

	bankDir := filepath.Join(tmpDir, "uob", "one-account", "123-456-789-0")
	require.NoError(t, os.MkdirAll(bankDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bankDir, "statement.pdf"), []byte("test"), 0644))

	cardDir := filepath.Join(tmpDir, "uob", "one-card")
	require.NoError(t, os.MkdirAll(cardDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cardDir, "statement.pdf"), []byte("test"), 0644))

	dbsDir := filepath.Join(tmpDir, "dbs")
	require.NoError(t, os.MkdirAll(dbsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dbsDir, "export.csv"), []byte("test"), 0644))

	looseDir := filepath.Join(tmpDir, "loose")
	require.NoError(t, os.MkdirAll(looseDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(looseDir, "notes.txt"), []byte("test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(looseDir, "data.json"), []byte("test"), 0644))

	scanner := New(tmpDir)
	results, err := scanner.Scan()
	require.NoError(t, err)
	assert.Len(t, results, 3, "should find 3 statement files")

	foundBank := false
	foundCard := false
	foundCSV := false
	for _, result := range results {
		switch {
		case result.Metadata.Product() == "one-account":
			foundBank = true
			assert.Equal(t, "uob", result.Metadata.Institution())
			assert.Equal(t, "123-456-789-0", result.Metadata.AccountNumber())
			assert.Contains(t, result.Path, "statement.pdf")

		case result.Metadata.Product() == "one-card":
			foundCard = true
			assert.Equal(t, "uob", result.Metadata.Institution())
			assert.Empty(t, result.Metadata.AccountNumber())

		case result.Metadata.Institution() == "dbs":
			foundCSV = true
			assert.Empty(t, result.Metadata.Product(), "file directly under institution")
			assert.Contains(t, result.Path, "export.csv")
		}

		assert.NotEmpty(t, result.Metadata.FilePath())
		assert.False(t, result.Metadata.DetectedAt().IsZero())
	}

	assert.True(t, foundBank, "should find bank statement")
	assert.True(t, foundCard, "should find card statement")
	assert.True(t, foundCSV, "should find CSV export")
}

func TestScanner_Scan_NonExistentDirectory(t *testing.T) {
	scanner := New("/nonexistent/directory/path")
	results, err := scanner.Scan()

	assert.Error(t, err, "should error on non-existent directory")
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "scan failed")
}

func TestScanner_Scan_EmptyDirectory(t *testing.T) {
	scanner := New(t.TempDir())
	results, err := scanner.Scan()

	require.NoError(t, err)
	assert.Empty(t, results, "should find no files in empty directory")
}

func TestExtractMetadata(t *testing.T) {
	scanner := New("/base")

	tests := []struct {
		name          string
		filePath      string
		institution   string
		product       string
		accountNumber string
	}{
		{
			name:          "full path with account number",
			filePath:      "/base/uob/one-account/123-456-789-0/statement.pdf",
			institution:   "uob",
			product:       "one-account",
			accountNumber: "123-456-789-0",
		},
		{
			name:        "path without account number",
			filePath:    "/base/uob/one-card/statement.pdf",
			institution: "uob",
			product:     "one-card",
		},
		{
			name:        "minimal path (institution only)",
			filePath:    "/base/dbs/export.csv",
			institution: "dbs",
		},
		{
			name:     "file at root",
			filePath: "/base/statement.ofx",
		},
		{
			name:        "underscores and case normalized",
			filePath:    "/base/UOB/One_Account/statement.pdf",
			institution: "uob",
			product:     "one-account",
		},
		{
			name:        "non-numeric third directory is not an account number",
			filePath:    "/base/uob/one-account/archive/statement.pdf",
			institution: "uob",
			product:     "one-account",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := scanner.extractMetadata(tt.filePath, "/base")
			require.NoError(t, err)

			assert.Equal(t, tt.filePath, meta.FilePath())
			assert.Equal(t, tt.institution, meta.Institution())
			assert.Equal(t, tt.product, meta.Product())
			assert.Equal(t, tt.accountNumber, meta.AccountNumber())
			assert.False(t, meta.DetectedAt().IsZero(), "DetectedAt should be set")
		})
	}
}

func TestIsStatementFile(t *testing.T) {
	scanner := New("")

	tests := []struct {
		path     string
		expected bool
	}{
		{"statement.pdf", true},
		{"statement.csv", true},
		{"statement.ofx", true},
		{"statement.qfx", true},
		{"STATEMENT.PDF", true},
		{"Statement.Qfx", true},
		{"document.txt", false},
		{"data.json", false},
		{"noextension", false},
		{"", false},
		{"/path/to/file.pdf", true},
		{"/path/to/file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, scanner.isStatementFile(tt.path))
		})
	}
}

func TestLooksLikeAccountNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"123-456-789-0", true},
		{"9876543210", true},
		{"0011", true},
		{"123", false}, // too few digits
		{"archive", false},
		{"2025-10", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, looksLikeAccountNumber(tt.input))
		})
	}
}

func TestExpandHome(t *testing.T) {
	scanner := New("")

	result, err := scanner.expandHome("~/statements")
	require.NoError(t, err)
	homeDir, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(homeDir, "statements"), result, "should expand ~ to home directory")

	result, err = scanner.expandHome("/absolute/path")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path", result, "should not modify absolute paths")

	result, err = scanner.expandHome("relative/path")
	require.NoError(t, err)
	assert.Equal(t, "relative/path", result, "should not modify relative paths")

	result, err = scanner.expandHome("~")
	require.NoError(t, err)
	assert.Equal(t, "~", result, "should not expand lone tilde")
}

func TestScanner_Scan_IgnoresDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	// A directory named like a statement file.
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "statement.pdf"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "real.pdf"), []byte("test"), 0644))

	scanner := New(tmpDir)
	results, err := scanner.Scan()

	require.NoError(t, err)
	assert.Len(t, results, 1, "should only find the file, not the directory")
	assert.Contains(t, results[0].Path, "real.pdf")
}
