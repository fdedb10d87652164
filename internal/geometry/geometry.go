// Package geometry reconstructs visual rows from positioned PDF text fragments.
package geometry

import (
	"math"
	"sort"
	"strings"
)

// Fragment is one positioned run of text from a PDF content stream.
// X grows left to right, Y grows bottom to top (PDF coordinate space).
type Fragment struct {
	Text string
	X    float64
	Y    float64
}

// Row is an ordered sequence of fragments sharing a (rounded) vertical
// position. Fragments are sorted ascending by X; Text is the denormalized
// joined view used by marker matching and the legacy text parser.
type Row struct {
	Fragments []Fragment
	Y         float64
	Text      string
}

// yTolerance is the bucket size for grouping fragments into rows. Sub-pixel
// jitter between glyph runs on the same baseline stays within one bucket.
const yTolerance = 2.0

// columnGap is the X distance between adjacent fragments above which the
// joined text gets an extra separator, so numeric columns don't run together.
const columnGap = 15.0

// GroupRows buckets the fragments of one page into visual rows.
// Rows are returned top to bottom (descending Y); fragments within a row
// are sorted left to right. Empty input yields an empty result.
func GroupRows(fragments []Fragment) []Row {
	buckets := make(map[int][]Fragment)
	for _, f := range fragments {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		key := int(math.Round(f.Y / yTolerance))
		buckets[key] = append(buckets[key], f)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		frags := buckets[k]
		sort.Slice(frags, func(i, j int) bool { return frags[i].X < frags[j].X })
		rows = append(rows, Row{
			Fragments: frags,
			Y:         frags[0].Y,
			Text:      joinFragments(frags),
		})
	}
	return rows
}

// joinFragments builds the row's text view, inserting a wide separator
// where the X gap suggests a column boundary.
func joinFragments(frags []Fragment) string {
	var b strings.Builder
	var prevEnd float64
	for i, f := range frags {
		if i > 0 {
			if f.X-prevEnd > columnGap {
				b.WriteString("  ")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(strings.TrimSpace(f.Text))
		prevEnd = f.X
	}
	return strings.TrimSpace(b.String())
}

// Page holds the fragments of a single PDF page.
type Page struct {
	Number    int
	Fragments []Fragment
}

// Stitch groups each page into rows and concatenates the row streams in
// page order. Continuation folding downstream runs over the stitched
// stream, so a description wrapped across a page break folds into its
// transaction as long as repeated page headers are suppressed by the
// parser's skip patterns.
func Stitch(pages []Page) []Row {
	var rows []Row
	for _, p := range pages {
		rows = append(rows, GroupRows(p.Fragments)...)
	}
	return rows
}

// JoinText returns the full joined text of the given rows, one row per
// line. Parsers use this for period and section-boundary markers.
func JoinText(rows []Row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.Text)
	}
	return strings.Join(lines, "\n")
}
