// Package scanner walks a statement archive and finds parseable files.
// The directory layout carries routing information the files themselves
// lack: {root}/{institution}/{product}/{account?}/file.ext
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

// Scanner walks a directory tree and finds statement files.
type Scanner struct {
	rootDir string
}

// New creates a scanner for the given root directory.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is one found file with its path-derived metadata.
type ScanResult struct {
	Path     string
	Metadata *parser.Metadata
}

// Scan walks the directory tree and returns all statement files in walk
// order.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir, err := s.expandHome(s.rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	walkErr := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing %s: %w", path, err)
		}
		if info.IsDir() {
			return nil
		}
		if !s.isStatementFile(path) {
			return nil
		}

		meta, err := s.extractMetadata(path, rootDir)
		if err != nil {
			return fmt.Errorf("invalid metadata for %s: %w", path, err)
		}
		results = append(results, ScanResult{Path: path, Metadata: meta})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan failed: %w", walkErr)
	}

	return results, nil
}

// isStatementFile checks if the file is a known statement format.
func (s *Scanner) isStatementFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".csv", ".ofx", ".qfx":
		return true
	}
	return false
}

// extractMetadata parses the directory structure into routing metadata.
// Path structure: {root}/{institution}/{product}/{account?}/file.ext
// Missing components are left empty; the registry falls back to
// content-based detection and the default layout chain.
func (s *Scanner) extractMetadata(filePath, rootDir string) (*parser.Metadata, error) {
	meta, err := parser.NewMetadata(filePath, time.Now())
	if err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	// Last component is the file itself.
	if len(parts) >= 2 {
		meta.SetInstitution(normalizeSlug(parts[0]))
	}
	if len(parts) >= 3 {
		meta.SetProduct(normalizeSlug(parts[1]))
	}
	if len(parts) >= 4 && looksLikeAccountNumber(parts[2]) {
		meta.SetAccountNumber(parts[2])
	}

	return meta, nil
}

// normalizeSlug lowercases a directory name and converts underscores to
// dashes, so "One_Account" and "one-account" route identically.
func normalizeSlug(dirName string) string {
	return strings.ReplaceAll(strings.ToLower(dirName), "_", "-")
}

// looksLikeAccountNumber accepts digit strings with optional dash
// separators, e.g. "123-456-789-0".
func looksLikeAccountNumber(str string) bool {
	if str == "" {
		return false
	}
	digits := 0
	for _, r := range str {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '-':
		default:
			return false
		}
	}
	return digits >= 4
}

// expandHome expands a leading ~/ to the user's home directory.
func (s *Scanner) expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
