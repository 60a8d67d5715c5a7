// Package decode turns raw statement file bytes into text. 1C exchange
// files and older bank exports are routinely Windows-1251; newer ones are
// UTF-8, sometimes with a BOM.
package decode

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrUnreadable marks the only batch-fatal import failure: the input could
// not be decoded as text at all.
var ErrUnreadable = errors.New("file content is not readable text")

// Text decodes statement bytes as UTF-8, falling back to Windows-1251.
func Text(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnreadable)
	}

	// Strip a UTF-8 BOM if present.
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		b = b[3:]
	}

	if utf8.Valid(b) {
		s := string(b)
		if !looksTextual(s) {
			return "", fmt.Errorf("%w: binary content", ErrUnreadable)
		}
		return s, nil
	}

	decoded, _, err := transform.String(charmap.Windows1251.NewDecoder(), string(b))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if !looksTextual(decoded) {
		return "", fmt.Errorf("%w: binary content", ErrUnreadable)
	}
	return decoded, nil
}

// looksTextual rejects content dominated by control bytes, which survives
// both the UTF-8 check and the 1251 fallback (every byte is valid 1251).
func looksTextual(s string) bool {
	if s == "" {
		return false
	}
	control := 0
	total := 0
	for _, r := range s {
		total++
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if r < 0x20 || r == 0xFFFD {
			control++
		}
	}
	return control*10 < total
}

// Lines splits decoded statement text into lines, tolerating CRLF.
func Lines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
