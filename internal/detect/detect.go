// Package detect decides which statement export format a file carries.
//
// Tabular detection works on the header row only and is deliberately
// heuristic: each provider's export is recognized by header vocabulary
// distinctive of it. Statements whose headers legitimately overlap across
// providers can misclassify; this is an accepted limitation of the
// heuristics, not something detection tries to outsmart.
package detect

import "strings"

// Format is the closed set of recognized statement formats.
type Format string

const (
	FormatForte        Format = "forte"
	FormatKaspi        Format = "kaspi"
	FormatOneCTabular  Format = "1c-tabular"
	FormatGeneric      Format = "generic"
	FormatOneCExchange Format = "1c-exchange"
)

// oneCMarkers are literal section markers unique to the 1C
// ClientBankExchange text format.
var oneCMarkers = []string{
	"1CClientBankExchange",
	"СекцияДокумент",
}

// IsOneCText reports whether raw text content is a 1C ClientBankExchange
// document. The marker check bypasses the tabular path entirely.
func IsOneCText(content string) bool {
	for _, m := range oneCMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// Tabular inspects the header row of a tabular input and returns exactly one
// format tag. It never fails: absence of any provider signature yields
// FormatGeneric.
func Tabular(header []string) Format {
	lowered := make([]string, len(header))
	for i, h := range header {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	has := func(substr string) bool {
		for _, h := range lowered {
			if strings.Contains(h, substr) {
				return true
			}
		}
		return false
	}

	// Forte exports come in two shapes: the full one carries the
	// valuation-date or KBE columns, the shorter one pairs the operation
	// date with a document-number column and a debit/credit split.
	forte := has("дата валютирования") ||
		(has("кбе") && has("дебет")) ||
		(has("дата операции") && has("номер документа") && (has("дебет") || has("кредит")))

	// Priority order mirrors how distinctive each signature is.
	switch {
	case forte:
		return FormatForte
	case has("детали платежа") || has("kaspi"):
		return FormatKaspi
	case has("номердокумента") || has("виддокумента"):
		return FormatOneCTabular
	default:
		return FormatGeneric
	}
}
