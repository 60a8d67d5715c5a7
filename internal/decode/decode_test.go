package decode

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

func TestText_UTF8(t *testing.T) {
	got, err := Text([]byte("Оплата за услуги"))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "Оплата за услуги" {
		t.Errorf("Text() = %q", got)
	}
}

func TestText_BOM(t *testing.T) {
	got, err := Text([]byte("\xEF\xBB\xBF1CClientBankExchange"))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "1CClientBankExchange" {
		t.Errorf("Text() = %q", got)
	}
}

func TestText_Windows1251(t *testing.T) {
	encoded, _, err := transform.String(charmap.Windows1251.NewEncoder(), "СекцияДокумент=Платежное поручение")
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	got, err := Text([]byte(encoded))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "СекцияДокумент=Платежное поручение" {
		t.Errorf("Text() = %q", got)
	}
}

func TestText_Binary(t *testing.T) {
	_, err := Text([]byte{0x00, 0x01, 0x02, 0x03, 0x00, 0x01, 0x02, 0x03})
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("Text(binary) error = %v, want ErrUnreadable", err)
	}
}

func TestText_Empty(t *testing.T) {
	if _, err := Text(nil); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Text(nil) error = %v, want ErrUnreadable", err)
	}
}

func TestLines(t *testing.T) {
	got := Lines("a\r\nb\rc\nd")
	if strings.Join(got, "|") != "a|b|c|d" {
		t.Errorf("Lines() = %v", got)
	}
}
