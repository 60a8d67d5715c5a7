// Package normalize cleans identifier, amount and date strings as they
// appear in bank statement exports before any further processing.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/qazaqfin/bankimport/internal/domain"
)

// Identifier strips all whitespace from an external account identifier and
// uppercases it. Statement exports routinely pad IIKs with spaces and NBSPs.
func Identifier(s string) string {
	return domain.NormalizeIdentifier(s)
}

// dateLayouts covers the date renderings seen across the supported exports.
// Order matters: the dot layouts are by far the most common.
var dateLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"02.01.06",
}

// Date parses a statement date in any supported layout, truncated to a
// calendar date. Returns ok=false for anything unparseable.
func Date(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Some exports append a time component ("05.01.2025 14:32").
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.DateOnly(t), true
		}
	}
	return time.Time{}, false
}

// Amount parses a statement amount string into a decimal. It tolerates
// thousands separators (space, NBSP, apostrophe), a comma decimal separator,
// and currency/unit noise around the number; all non-digit, non-separator
// characters are stripped first. Returns ok=false if no number remains.
//
// "1 234,56", "1234.56" and "1234,56" all parse to 1234.56.
func Amount(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case r == '\'' || unicode.IsSpace(r):
			// Thousands separators; dropped outright.
		default:
			// Currency codes, signs inside text and other noise.
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return decimal.Decimal{}, false
	}

	lastComma := strings.LastIndexByte(cleaned, ',')
	lastDot := strings.LastIndexByte(cleaned, '.')
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the rightmost is the decimal separator, the other
		// is grouping.
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			// Multiple commas can only be grouping.
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(cleaned, ".") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// PositiveAmount parses an amount and additionally requires it to be
// strictly positive, the common "is this a usable money field" test.
func PositiveAmount(s string) (decimal.Decimal, bool) {
	d, ok := Amount(s)
	if !ok || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}
