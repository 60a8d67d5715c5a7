// Package ui renders import progress and summaries for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/qazaqfin/bankimport/internal/importer"
	"github.com/qazaqfin/bankimport/internal/parser"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Header prints a centered section header.
func Header(text string) {
	const width = 60
	headerColor.Println(strings.Repeat("=", width))
	headerColor.Println(center(text, width))
	headerColor.Println(strings.Repeat("=", width))
}

// Success prints a green status line.
func Success(format string, args ...interface{}) {
	successColor.Printf("✓ "+format+"\n", args...)
}

// Info prints a blue status line.
func Info(format string, args ...interface{}) {
	infoColor.Printf("  "+format+"\n", args...)
}

// Warning prints a yellow status line.
func Warning(format string, args ...interface{}) {
	warningColor.Printf("! "+format+"\n", args...)
}

// Error prints a red status line.
func Error(format string, args ...interface{}) {
	errorColor.Printf("✗ "+format+"\n", args...)
}

// Summary renders the human-readable outcome of one import.
func Summary(report *importer.Report) {
	Header(fmt.Sprintf("Import: %s (%s)", report.File, report.Format))

	if report.Accepted > 0 {
		Success("imported: %d", report.Accepted)
	} else {
		Info("imported: 0")
	}
	if report.SkippedNoAccount > 0 {
		Warning("skipped - no matching account: %d", report.SkippedNoAccount)
	}
	if d := report.Duplicates(); d > 0 {
		Info("skipped - duplicate: %d (batch %d, already stored %d)",
			d, report.DuplicatesBatch, report.DuplicatesPersisted)
	}
	for reason, count := range report.Skips {
		switch reason {
		case parser.SkipNoAccount, parser.SkipDuplicateBatch, parser.SkipDuplicatePersisted:
			continue
		}
		Info("skipped - %s: %d", reason, count)
	}

	if len(report.AccountsTouched) > 0 {
		Info("accounts: %s", strings.Join(report.AccountsTouched, ", "))
	}
	for _, notice := range report.MissingAccounts {
		Warning("unknown account %s (%s, %s) - create it and re-run the import",
			notice.RawID, notice.BankName, notice.Type)
	}
	for _, failure := range report.PersistFailures {
		Error("not persisted: %s", failure)
	}
}

func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	pad := (width - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}
