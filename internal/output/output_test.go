package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/qazaqfin/bankimport/internal/importer"
)

func TestWriteReport(t *testing.T) {
	report := &importer.Report{
		File: "forte.csv", Format: "forte",
		Accepted: 2, DuplicatesPersisted: 1,
		AccountsTouched: []string{"Расчетный счет"},
	}

	var buf bytes.Buffer
	if err := WriteReport(report, &buf); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	var decoded importer.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Accepted != 2 || decoded.File != "forte.csv" {
		t.Errorf("round-trip = %+v", decoded)
	}
}

func TestWriteReport_NilReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReport(nil, &buf); err == nil {
		t.Fatal("WriteReport(nil) succeeded, want error")
	}
}

func TestWriteReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := &importer.Report{File: "x.csv", Format: "generic", Accepted: 1}

	if err := WriteReportToFile(report, path); err != nil {
		t.Fatalf("WriteReportToFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !json.Valid(data) {
		t.Error("file content is not valid JSON")
	}
}
