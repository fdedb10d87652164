// Package registry selects the right parser for each statement file. File
// formats (CSV, OFX) are detected by content sniffing; PDF layouts are
// selected from the owning account, since a PDF's bytes do not identify
// the institution's layout.
package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parsers/bankpdf"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parsers/cardpdf"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/bankparse/internal/parsers/ofx"
)

// Registry holds all registered parsers.
type Registry struct {
	fileParsers []parser.FileParser
	rowParsers  map[string]parser.RowParser
}

// New creates a registry with all built-in parsers.
func New() (*Registry, error) {
	r := &Registry{
		rowParsers: make(map[string]parser.RowParser),
	}
	for _, p := range []parser.FileParser{
		csv.NewParser(),
		ofx.NewParser(),
	} {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	for _, p := range []parser.RowParser{
		bankpdf.New(),
		bankpdf.NewLegacy(),
		cardpdf.New(),
	} {
		if err := r.RegisterRowParser(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew creates a registry with all built-in parsers, panicking on error.
// Registration of built-ins only fails on a programming error (duplicate
// name), so this is safe at startup.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return r
}

// Register adds a custom file parser (for extensibility).
func (r *Registry) Register(p parser.FileParser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	for _, existing := range r.fileParsers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("parser %q already registered", p.Name())
		}
	}
	r.fileParsers = append(r.fileParsers, p)
	return nil
}

// RegisterRowParser adds a PDF layout parser.
func (r *Registry) RegisterRowParser(p parser.RowParser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	if _, ok := r.rowParsers[p.Name()]; ok {
		return fmt.Errorf("parser %q already registered", p.Name())
	}
	r.rowParsers[p.Name()] = p
	return nil
}

// FindParser returns the best file parser for this file.
// Reads first 512 bytes for format detection via header inspection, which
// is sufficient for the magic numbers and headers of common financial
// formats (OFX, QFX, CSV).
func (r *Registry) FindParser(path string) (parser.FileParser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// EOF is OK: some statement files are shorter than 512 bytes. Parsers
	// receive whatever was read.
	header = header[:n]

	for _, p := range r.fileParsers {
		if p.CanParse(path, header) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser found for file: %s", path)
}

// RowParsersFor returns the PDF parsers to try for an account, in order.
// A later parser is only attempted when the one before it reports a
// structure error. The second return is false when the account did not
// match any known layout and the default bank chain was returned; callers
// should warn but proceed.
func (r *Registry) RowParsersFor(account domain.Account) ([]parser.RowParser, bool) {
	if account.Type == domain.AccountTypeCredit {
		return []parser.RowParser{r.rowParsers["uob-card"]}, true
	}
	if account.Type == domain.AccountTypeBank {
		return []parser.RowParser{r.rowParsers["uob-bank"], r.rowParsers["uob-bank-legacy"]}, true
	}
	return []parser.RowParser{r.rowParsers["uob-bank"], r.rowParsers["uob-bank-legacy"]}, false
}

// ListParsers returns the names of all registered file parsers.
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.fileParsers))
	for i, p := range r.fileParsers {
		names[i] = p.Name()
	}
	return names
}
