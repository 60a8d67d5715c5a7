// Package parser defines the shared types all per-format statement parsers
// produce and consume.
package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/dedup"
	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ledger"
	"github.com/qazaqfin/bankimport/internal/resolve"
)

// Row is one tabular record: a mapping from lowercased column header to the
// cell value. Spreadsheet/CSV decoding happens before the core sees it.
type Row map[string]string

// Get returns the value of the first column whose header contains any of
// the given substrings. Substrings are tried in order, so callers list the
// most specific header first. Header iteration is sorted to keep matches
// deterministic when several headers share a substring.
func (r Row) Get(substrings ...string) string {
	headers := make([]string, 0, len(r))
	for h := range r {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, want := range substrings {
		for _, header := range headers {
			if strings.Contains(header, want) {
				return strings.TrimSpace(r[header])
			}
		}
	}
	return ""
}

// Has reports whether any column header contains the substring.
func (r Row) Has(substr string) bool {
	for header := range r {
		if strings.Contains(header, substr) {
			return true
		}
	}
	return false
}

// NewRow builds a Row from a header and record slice, lowercasing and
// trimming headers.
func NewRow(header, record []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		if i >= len(record) {
			break
		}
		row[strings.ToLower(strings.TrimSpace(h))] = record[i]
	}
	return row
}

// Candidate is a parsed, not-yet-accepted transaction.
type Candidate struct {
	AccountID      string
	ToAccountID    string
	Amount         decimal.Decimal
	Type           domain.TransactionType
	Date           time.Time
	Currency       string
	CategoryID     string
	CounterpartyID string
	Comment        string
	DocumentNumber string
	AccountIIK     string
}

// Transaction converts the candidate into its accepted form.
func (c *Candidate) Transaction() domain.Transaction {
	return domain.Transaction{
		AccountID:      c.AccountID,
		ToAccountID:    c.ToAccountID,
		Amount:         c.Amount,
		Type:           c.Type,
		Date:           c.Date,
		Currency:       c.Currency,
		CategoryID:     c.CategoryID,
		CounterpartyID: c.CounterpartyID,
		Comment:        c.Comment,
		DocumentNumber: c.DocumentNumber,
		AccountIIK:     c.AccountIIK,
	}
}

// SkipReason says why a row or block produced no candidate. Skips are
// counted, never raised.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipNoAmount           SkipReason = "no-amount"
	SkipNoDate             SkipReason = "no-date"
	SkipAmbiguousDirection SkipReason = "ambiguous-direction"
	SkipNoCounterparty     SkipReason = "no-counterparty"
	SkipNoAccount          SkipReason = "no-account"
	SkipDuplicateBatch     SkipReason = "duplicate-batch"
	SkipDuplicatePersisted SkipReason = "duplicate-persisted"
	SkipUnclassifiable     SkipReason = "unclassifiable"
)

// Result is the per-row outcome: either a candidate or a skip reason.
// Identifier carries the raw statement identifier when it was read before
// the row got skipped, so reports still count it as seen.
type Result struct {
	Candidate  *Candidate
	Skip       SkipReason
	Identifier string
}

// Skipped builds a skip result.
func Skipped(reason SkipReason) Result {
	return Result{Skip: reason}
}

// Emitted builds a candidate result.
func Emitted(c *Candidate) Result {
	return Result{Candidate: c}
}

// Context carries the batch-scoped collaborators a parser needs: the ledger
// snapshot caches, the resolver session, the dedup checker and the
// categorizer. It is built fresh per import run and discarded with it.
type Context struct {
	Store      ledger.Store
	Session    *resolve.Session
	Dedup      *dedup.Checker
	Rules      *categorize.Engine
	AutoCreate bool

	// ActiveAccountID is the caller's explicit "attach rows to this
	// account" hint for tabular formats.
	ActiveAccountID string

	categories     []domain.Category
	counterparties []domain.Counterparty
}

// NewContext builds a parse context, snapshotting categories and
// counterparties for resolve-or-create matching.
func NewContext(ctx context.Context, store ledger.Store, session *resolve.Session, checker *dedup.Checker, rules *categorize.Engine) (*Context, error) {
	categories, err := store.FindCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	counterparties, err := store.FindCounterparties(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load counterparties: %w", err)
	}
	return &Context{
		Store:          store,
		Session:        session,
		Dedup:          checker,
		Rules:          rules,
		categories:     categories,
		counterparties: counterparties,
	}, nil
}

// EnsureCategory returns the category with the given name (case-insensitive
// match) or creates it with the direction-derived type and deterministic
// color.
func (pc *Context) EnsureCategory(ctx context.Context, name string, catType domain.CategoryType) (*domain.Category, error) {
	for i := range pc.categories {
		if strings.EqualFold(pc.categories[i].Name, name) {
			return &pc.categories[i], nil
		}
	}
	created, err := pc.Store.CreateCategory(ctx, domain.Category{
		Name:  name,
		Type:  catType,
		Color: categorize.ColorFor(catType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create category %q: %w", name, err)
	}
	pc.categories = append(pc.categories, *created)
	return created, nil
}

// EnsureCounterparty returns the counterparty with the given name
// (case-insensitive match) or creates one. Empty names yield no
// counterparty and no error.
func (pc *Context) EnsureCounterparty(ctx context.Context, name, cpType string) (*domain.Counterparty, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	for i := range pc.counterparties {
		if strings.EqualFold(pc.counterparties[i].Name, name) {
			return &pc.counterparties[i], nil
		}
	}
	created, err := pc.Store.CreateCounterparty(ctx, domain.Counterparty{Name: name, Type: cpType})
	if err != nil {
		return nil, fmt.Errorf("failed to create counterparty %q: %w", name, err)
	}
	pc.counterparties = append(pc.counterparties, *created)
	return created, nil
}

// FallbackAccount picks the account tabular candidates attach to: the
// explicit active-account hint if set, else the first bank account, else
// the first account of any type. Returns nil when the ledger has no
// accounts at all.
func (pc *Context) FallbackAccount() *domain.Account {
	accounts := pc.Session.Accounts()
	if pc.ActiveAccountID != "" {
		for i := range accounts {
			if accounts[i].ID == pc.ActiveAccountID {
				return &accounts[i]
			}
		}
	}
	for i := range accounts {
		if accounts[i].Type == domain.AccountTypeBank {
			return &accounts[i]
		}
	}
	if len(accounts) > 0 {
		return &accounts[0]
	}
	return nil
}
