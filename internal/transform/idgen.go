package transform

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SlugifyInstitution converts an institution name to a URL-safe slug.
// Examples: "United Overseas Bank" → "united-overseas-bank", "DBS Bank" → "dbs-bank"
func SlugifyInstitution(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("institution name cannot be empty")
	}

	// Normalize unicode (e.g., accented characters)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize institution name %q: %w", name, err)
	}
	if normalized == "" {
		return "", fmt.Errorf("institution name %q contains only non-displayable unicode characters", name)
	}

	slug := strings.ToLower(normalized)
	reg := regexp.MustCompile(`[^a-z0-9]+`)
	slug = reg.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "", fmt.Errorf("institution name %q contains no alphanumeric characters", name)
	}

	return slug, nil
}

// ExtractLast4 returns the last 4 characters of the account number.
// If the account number has fewer than 4 characters, returns the full number.
// Examples: "12345" → "2345", "123" → "123", "" → ""
func ExtractLast4(accountNumber string) string {
	if len(accountNumber) <= 4 {
		return accountNumber
	}
	return accountNumber[len(accountNumber)-4:]
}

// GenerateAccountID creates a deterministic account ID.
// Format: "acc-{institutionSlug}-{last4}"
// Common institution slugs are abbreviated for brevity; see abbreviateSlug.
// Example: GenerateAccountID("uob", "123-456-789-0") → "acc-uob-89-0"
func GenerateAccountID(institutionSlug, accountNumber string) string {
	last4 := ExtractLast4(accountNumber)
	abbrev := abbreviateSlug(institutionSlug)
	return fmt.Sprintf("acc-%s-%s", abbrev, last4)
}

// abbreviateSlug creates shorter versions of common institution names
func abbreviateSlug(slug string) string {
	abbreviations := map[string]string{
		"united-overseas-bank":               "uob",
		"development-bank-of-singapore":      "dbs",
		"oversea-chinese-banking-corp":       "ocbc",
		"oversea-chinese-banking-corporation": "ocbc",
	}
	if abbrev, ok := abbreviations[slug]; ok {
		return abbrev
	}
	return slug
}

// GenerateStatementID creates a deterministic statement ID.
// Format: "stmt-YYYY-MM-{accountID}"
// Example: GenerateStatementID(time.Date(2026, 1, ...), "acc-uob-89-0") → "stmt-2026-01-acc-uob-89-0"
func GenerateStatementID(periodStart time.Time, accountID string) string {
	return fmt.Sprintf("stmt-%04d-%02d-%s", periodStart.Year(), periodStart.Month(), accountID)
}

// GenerateTransactionID creates a deterministic transaction ID from the
// owning account and the entry's dedup fingerprint. The fingerprint prefix
// keeps IDs readable while staying collision-safe within an account.
func GenerateTransactionID(accountID, fingerprint string) string {
	if len(fingerprint) > 12 {
		fingerprint = fingerprint[:12]
	}
	return fmt.Sprintf("%s-%s", accountID, fingerprint)
}
