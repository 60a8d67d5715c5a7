// Package importer orchestrates a statement import end to end: decode,
// detect, parse, deduplicate, persist, report.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/decode"
	"github.com/qazaqfin/bankimport/internal/dedup"
	"github.com/qazaqfin/bankimport/internal/detect"
	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ledger"
	"github.com/qazaqfin/bankimport/internal/parser"
	"github.com/qazaqfin/bankimport/internal/parsers/onecexchange"
	"github.com/qazaqfin/bankimport/internal/parsers/tabular"
	"github.com/qazaqfin/bankimport/internal/resolve"
)

// Phase is the importer's coarse position in the batch state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseDetecting Phase = "detecting"
	PhaseParsing   Phase = "parsing"
	PhaseReporting Phase = "reporting"
)

// Report is the per-batch outcome handed back to the caller.
type Report struct {
	File   string        `json:"file"`
	Format detect.Format `json:"format"`

	Accepted            int `json:"accepted"`
	DuplicatesBatch     int `json:"duplicatesBatch"`
	DuplicatesPersisted int `json:"duplicatesPersisted"`
	SkippedNoAccount    int `json:"skippedNoAccount"`

	// Skips counts every skipped row by reason, duplicates included.
	Skips map[parser.SkipReason]int `json:"skips,omitempty"`

	// AccountsTouched holds the display names of accounts that received
	// at least one transaction, IdentifiersSeen the distinct raw
	// statement identifiers encountered.
	AccountsTouched []string `json:"accountsTouched,omitempty"`
	IdentifiersSeen []string `json:"identifiersSeen,omitempty"`

	// MissingAccounts carries the unresolved-identifier notices for the
	// caller's account-creation prompt.
	MissingAccounts []resolve.Notice `json:"missingAccounts,omitempty"`

	// PersistFailures lists transactions that parsed cleanly but could
	// not be written. Partial success is a normal outcome.
	PersistFailures []string `json:"persistFailures,omitempty"`
}

// Duplicates is the combined in-batch and persisted duplicate count.
func (r *Report) Duplicates() int {
	return r.DuplicatesBatch + r.DuplicatesPersisted
}

// Importer runs imports against one ledger store. Safe to reuse across
// batches: all per-run state lives in the run, not the Importer.
type Importer struct {
	store ledger.Store
	rules *categorize.Engine

	// AutoCreate permits creating accounts for unknown identifiers.
	AutoCreate bool
	// ActiveAccountID is the explicit target-account hint for tabular
	// formats.
	ActiveAccountID string
	// Verbose turns on per-row skip logging.
	Verbose bool

	phase Phase
}

// New creates an importer over the given store and categorization rules.
func New(store ledger.Store, rules *categorize.Engine) *Importer {
	return &Importer{store: store, rules: rules, phase: PhaseIdle}
}

// Phase reports the importer's current position in the batch lifecycle.
func (im *Importer) Phase() Phase {
	if im.phase == "" {
		return PhaseIdle
	}
	return im.phase
}

// ImportFile reads and imports a single statement file.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return im.Import(ctx, filepath.Base(path), data)
}

// Import runs one batch over raw file content. Row-level problems become
// skip counts in the report; the only batch-level failure is content that
// cannot be decoded or tokenized at all.
func (im *Importer) Import(ctx context.Context, name string, data []byte) (*Report, error) {
	im.phase = PhaseDetecting
	defer func() { im.phase = PhaseIdle }()

	content, err := decode.Text(data)
	if err != nil {
		return nil, fmt.Errorf("cannot import %s: %w", name, err)
	}

	report := &Report{File: name, Skips: make(map[parser.SkipReason]int)}

	run, err := im.newRun(ctx)
	if err != nil {
		return nil, err
	}

	im.phase = PhaseParsing
	if detect.IsOneCText(content) {
		report.Format = detect.FormatOneCExchange
		err = im.importText(ctx, content, run, report)
	} else {
		err = im.importTabular(ctx, content, run, report)
	}
	if err != nil {
		return report, err
	}

	im.phase = PhaseReporting
	finalize(report, run)
	return report, nil
}

// run bundles the session-scoped collaborators of one batch. They are
// discarded with the batch: reusing the created-set or the seen-set across
// imports would suppress legitimate accounts and transactions later.
type run struct {
	session *resolve.Session
	checker *dedup.Checker
	pctx    *parser.Context

	touched     map[string]bool
	identifiers map[string]bool
}

func (r *run) see(identifier string) {
	if identifier != "" {
		r.identifiers[identifier] = true
	}
}

func (im *Importer) newRun(ctx context.Context) (*run, error) {
	session, err := resolve.NewSession(ctx, im.store)
	if err != nil {
		return nil, err
	}
	existing, err := im.store.FindTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for duplicate checks: %w", err)
	}
	checker := dedup.NewChecker(existing)
	pctx, err := parser.NewContext(ctx, im.store, session, checker, im.rules)
	if err != nil {
		return nil, err
	}
	pctx.AutoCreate = im.AutoCreate
	pctx.ActiveAccountID = im.ActiveAccountID
	return &run{
		session:     session,
		checker:     checker,
		pctx:        pctx,
		touched:     make(map[string]bool),
		identifiers: make(map[string]bool),
	}, nil
}

func (im *Importer) importText(ctx context.Context, content string, r *run, report *Report) error {
	out, err := onecexchange.Parse(ctx, content, r.pctx)
	if err != nil {
		return err
	}
	report.MissingAccounts = append(report.MissingAccounts, out.Notices...)

	for _, res := range out.Results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Candidate == nil {
			r.see(res.Identifier)
			im.countSkip(report, res.Skip)
			continue
		}
		r.see(res.Candidate.AccountIIK)
		// The text parser already ran its candidates through the
		// duplicate checker; persist directly.
		im.persist(ctx, res.Candidate, r, report)
	}
	return nil
}

func (im *Importer) importTabular(ctx context.Context, content string, r *run, report *Report) error {
	header, rows, err := readRows(content)
	if err != nil {
		return fmt.Errorf("cannot import %s: %w", report.File, err)
	}

	format := detect.Tabular(header)
	report.Format = format

	results, err := tabular.Parse(ctx, format, rows, r.pctx)
	if err != nil {
		return err
	}

	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Candidate == nil {
			im.countSkip(report, res.Skip)
			continue
		}
		c := res.Candidate
		// Identifiers count as seen even when the row turns out to be a
		// duplicate.
		r.see(c.AccountIIK)
		switch r.checker.IsDuplicate(c.AccountID, c.DocumentNumber, c.Date, c.Amount) {
		case dedup.SourceBatch:
			im.countSkip(report, parser.SkipDuplicateBatch)
			continue
		case dedup.SourcePersisted:
			im.countSkip(report, parser.SkipDuplicatePersisted)
			continue
		}
		r.checker.Record(c.AccountID, c.DocumentNumber, c.Date, c.Amount)
		im.persist(ctx, c, r, report)
	}
	return nil
}

// persist validates and writes one accepted candidate. A write failure is
// recorded in the report and does not stop the batch.
func (im *Importer) persist(ctx context.Context, c *parser.Candidate, r *run, report *Report) {
	tx := c.Transaction()
	if err := tx.Validate(); err != nil {
		if im.Verbose {
			log.Printf("skipping invalid candidate (doc %s): %v", c.DocumentNumber, err)
		}
		im.countSkip(report, parser.SkipUnclassifiable)
		return
	}
	if err := im.store.AppendTransaction(ctx, tx); err != nil {
		log.Printf("ERROR: failed to persist transaction (doc %s): %v", c.DocumentNumber, err)
		report.PersistFailures = append(report.PersistFailures,
			fmt.Sprintf("doc %s on %s: %v", c.DocumentNumber, c.Date.Format(domain.DateFormat), err))
		return
	}

	report.Accepted++
	r.touched[c.AccountID] = true
	if c.ToAccountID != "" {
		r.touched[c.ToAccountID] = true
	}
}

func (im *Importer) countSkip(report *Report, reason parser.SkipReason) {
	if reason == parser.SkipNone {
		return
	}
	report.Skips[reason]++
	switch reason {
	case parser.SkipNoAccount:
		report.SkippedNoAccount++
	case parser.SkipDuplicateBatch:
		report.DuplicatesBatch++
	case parser.SkipDuplicatePersisted:
		report.DuplicatesPersisted++
	}
	if im.Verbose {
		log.Printf("skipped row: %s", reason)
	}
}

// finalize resolves the touched account IDs to display names and sorts the
// report's sets for stable output.
func finalize(report *Report, r *run) {
	names := make(map[string]string)
	for _, acc := range r.session.Accounts() {
		names[acc.ID] = acc.Name
	}
	for id := range r.touched {
		name := names[id]
		if name == "" {
			name = id
		}
		report.AccountsTouched = append(report.AccountsTouched, name)
	}
	sort.Strings(report.AccountsTouched)

	for id := range r.identifiers {
		report.IdentifiersSeen = append(report.IdentifiersSeen, id)
	}
	sort.Strings(report.IdentifiersSeen)
}

// readRows tokenizes CSV content into a lowercased header and row maps.
// The delimiter is sniffed from the header line: bank exports use either
// semicolons or commas.
func readRows(content string) ([]string, []parser.Row, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = sniffDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", decode.ErrUnreadable, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: file contains no records", decode.ErrUnreadable)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]parser.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, parser.NewRow(header, record))
	}
	return header, rows, nil
}

func sniffDelimiter(content string) rune {
	line, _, _ := strings.Cut(content, "\n")
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
