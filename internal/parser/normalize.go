package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Supported date shapes across statement formats.
var (
	dateSlash = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	dateISO   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dateText  = regexp.MustCompile(`(?i)^(\d{1,2})[\s-]+([A-Za-z]{3})[A-Za-z]*(?:[\s-]+(\d{2,4}))?$`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// NormalizeDate converts a date in any supported statement format
// (DD/MM/YYYY, YYYY-MM-DD, "DD Mon YYYY", "DD-Mon-YY") to the canonical
// YYYY-MM-DD string.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)

	if m := dateISO.FindStringSubmatch(s); m != nil {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "", fmt.Errorf("invalid date %q: %w", s, err)
		}
		return s, nil
	}

	if m := dateSlash.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		return formatYMD(year, time.Month(month), day, s)
	}

	if m := dateText.FindStringSubmatch(s); m != nil {
		if m[3] == "" {
			return "", fmt.Errorf("date %q has no year", s)
		}
		day, _ := strconv.Atoi(m[1])
		mon, ok := months[strings.ToLower(m[2])]
		if !ok {
			return "", fmt.Errorf("invalid month in date %q", s)
		}
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		return formatYMD(year, mon, day, s)
	}

	return "", fmt.Errorf("unrecognized date format %q", s)
}

// ResolveShortDate converts a yearless "DD Mon" token to YYYY-MM-DD using
// the statement period end as the year hint. A resolved date that lands
// after the period end belongs to the previous year (statements spanning
// a year boundary carry December dates in a January statement).
func ResolveShortDate(s string, periodEnd time.Time) (string, error) {
	m := dateText.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("unrecognized short date %q", s)
	}
	day, _ := strconv.Atoi(m[1])
	mon, ok := months[strings.ToLower(m[2])]
	if !ok {
		return "", fmt.Errorf("invalid month in date %q", s)
	}

	year := periodEnd.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		return formatYMD(year, mon, day, s)
	}

	date := time.Date(year, mon, day, 0, 0, 0, 0, time.UTC)
	if !periodEnd.IsZero() && date.After(periodEnd) {
		date = date.AddDate(-1, 0, 0)
	}
	return date.Format("2006-01-02"), nil
}

func formatYMD(year int, month time.Month, day int, orig string) (string, error) {
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject rollover (e.g. 31 Feb becomes 2/3 Mar)
	if date.Day() != day || date.Month() != month {
		return "", fmt.Errorf("invalid calendar date %q", orig)
	}
	return date.Format("2006-01-02"), nil
}

var amountChars = strings.NewReplacer(
	"$", "", "£", "", "€", "",
	"S$", "", ",", "", " ", "", " ", "",
)

// ParseAmount converts a statement amount string to a float. Handles
// currency symbols, thousands separators and parenthesized negatives
// ("( 50.00 )" means -50.00).
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(amountChars.Replace(s))
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty amount")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		v = -v
	}
	return v, nil
}

var numberToken = regexp.MustCompile(`^\(?-?[\d,]+\.\d{2}\)?$`)

// IsAmount reports whether the fragment text looks like a monetary amount.
func IsAmount(s string) bool {
	return numberToken.MatchString(strings.TrimSpace(s))
}
