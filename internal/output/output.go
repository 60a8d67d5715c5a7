// Package output serializes import reports.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/qazaqfin/bankimport/internal/importer"
)

// WriteReport serializes a report to JSON with 2-space indentation.
func WriteReport(report *importer.Report, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}
	return nil
}

// WriteReportToFile writes a report to the given path, or to stdout when
// the path is empty.
func WriteReportToFile(report *importer.Report, path string) (err error) {
	if path == "" {
		return WriteReport(report, os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", path, closeErr)
		}
	}()

	if err = WriteReport(report, f); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
