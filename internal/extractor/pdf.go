// Package extractor pulls positioned text fragments out of PDF statements.
// It never returns garbage: output that fails the readability gate is
// reported as an error so a scanned or custom-font PDF fails loudly instead
// of producing silent nonsense rows.
package extractor

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/rumor-ml/commons.systems/bankparse/internal/geometry"
)

// minTextLength is the smallest total extracted length considered a real
// statement. Anything shorter is an image-based or empty PDF.
const minTextLength = 50

// minReadableRatio gates extraction output. Identity-encoded fonts decode
// into high-codepoint garbage; readable statements are overwhelmingly ASCII.
const minReadableRatio = 0.6

// Extract reads a PDF file and returns the positioned fragments of each
// page. The fragments preserve the PDF coordinate space (Y grows bottom to
// top); row reconstruction is the geometry package's job.
func Extract(filePath string) ([]geometry.Page, error) {
	pages, err := extractWithLibrary(filePath)
	if err != nil {
		return nil, fmt.Errorf("pdf text extraction failed for %s: %w", filePath, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf %s has no pages", filePath)
	}
	if !isReadable(pages) {
		return nil, fmt.Errorf("no readable text in %s: the file may be image-based or use font encodings that cannot be decoded", filePath)
	}
	return pages, nil
}

// extractWithLibrary walks every page's content stream. The pdf library
// panics on some malformed files, so the panic is converted to an error.
func extractWithLibrary(filePath string) (pages []geometry.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		frags := mergeWords(page.Content().Text)
		if len(frags) == 0 {
			continue
		}
		pages = append(pages, geometry.Page{Number: i, Fragments: frags})
	}
	return pages, nil
}

// baselineTolerance is the Y distance within which glyphs count as sitting
// on the same baseline for word merging.
const baselineTolerance = 0.5

// mergeWords coalesces the text items of one content stream into word
// fragments. The pdf library emits one item per glyph, so adjacent items
// must be rejoined before row grouping or every word arrives shredded into
// single characters. A space glyph, a baseline change, or a horizontal gap
// wider than a word break ends the current fragment.
func mergeWords(items []pdf.Text) []geometry.Fragment {
	var frags []geometry.Fragment
	var cur geometry.Fragment
	var curEnd float64
	open := false

	flush := func() {
		if open && strings.TrimSpace(cur.Text) != "" {
			frags = append(frags, cur)
		}
		open = false
	}

	for _, t := range items {
		if strings.TrimSpace(t.S) == "" {
			flush()
			continue
		}
		gap := t.X - curEnd
		if open && math.Abs(t.Y-cur.Y) <= baselineTolerance && gap <= wordBreak(t.FontSize) {
			cur.Text += t.S
			curEnd = t.X + t.W
			continue
		}
		flush()
		cur = geometry.Fragment{Text: t.S, X: t.X, Y: t.Y}
		curEnd = t.X + t.W
		open = true
	}
	flush()
	return frags
}

// wordBreak returns the horizontal gap beyond which two glyphs belong to
// different words. Glyphs within a word abut (kerning keeps the gap near
// zero); a word space advances roughly a quarter em.
func wordBreak(fontSize float64) float64 {
	if fontSize <= 0 {
		return 1.0
	}
	return 0.3 * fontSize
}

// isReadable checks that the pages hold enough text and that it is mostly
// readable ASCII.
func isReadable(pages []geometry.Page) bool {
	total := 0
	readable := 0
	length := 0
	for _, p := range pages {
		for _, f := range p.Fragments {
			length += len(strings.TrimSpace(f.Text))
			for _, r := range f.Text {
				total++
				if isReadableRune(r) {
					readable++
				}
			}
		}
	}
	if length < minTextLength || total == 0 {
		return false
	}
	return float64(readable)/float64(total) > minReadableRatio
}

// isReadableRune uses a strict ASCII-leaning check. unicode.IsLetter is too
// broad: it matches the accented garbage that identity-encoded fonts decode
// into.
func isReadableRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(".,-/:;()'\"$£€%&@#!?+=*", r)
}
