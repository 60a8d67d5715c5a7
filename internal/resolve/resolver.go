// Package resolve maps statement-embedded account identifiers (IIK) to
// internal ledger accounts, auto-creating accounts on first encounter when
// permitted.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ledger"
	"github.com/qazaqfin/bankimport/internal/normalize"
)

// Notice is the structured missing-account signal returned instead of an
// account when the identifier cannot be resolved and auto-creation is not
// permitted. The caller uses it to drive an account-creation prompt.
type Notice struct {
	RawID    string
	BankName string
	Type     domain.AccountType
}

// bankInfo describes a provider inferred from an identifier prefix.
type bankInfo struct {
	name        string
	accountType domain.AccountType
}

// bankCodes maps the three-digit bank code of a KZ IBAN (characters 4..6 of
// the normalized identifier) to a provider. Unknown codes fall back to a
// generic "unknown bank / other" guess.
var bankCodes = map[string]bankInfo{
	"948": {"ForteBank", domain.AccountTypeBank},
	"722": {"Kaspi Bank", domain.AccountTypeBank},
	"601": {"Halyk Bank", domain.AccountTypeBank},
	"562": {"Банк ЦентрКредит", domain.AccountTypeBank},
	"998": {"Jusan Bank", domain.AccountTypeBank},
	"886": {"Kaspi Pay", domain.AccountTypeWallet},
}

var unknownBank = bankInfo{"Неизвестный банк", domain.AccountTypeOther}

// cashToken is never auto-created: cash accounts are user-managed.
const cashToken = "CASH"

// Session resolves identifiers against the ledger for the duration of one
// import run. Its caches (created-set, opening-balance hints) are owned by
// that run and must not be reused across runs: a stale created-set would
// suppress legitimate new accounts in a later, unrelated import.
type Session struct {
	store    ledger.Store
	accounts []domain.Account

	// created records every normalized identifier a creation attempt was
	// made for, successful or not. One attempt per identifier per session;
	// failed or unresolvable identifiers just return not-found afterwards.
	created map[string]string

	// opening carries document-level opening balance hints keyed by
	// normalized identifier, applied when that identifier's account is
	// auto-created later in the session.
	opening map[string]decimal.Decimal
}

// NewSession creates a resolver session with a fresh snapshot of the
// ledger's accounts.
func NewSession(ctx context.Context, store ledger.Store) (*Session, error) {
	accounts, err := store.FindAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	return &Session{
		store:    store,
		accounts: accounts,
		created:  make(map[string]string),
		opening:  make(map[string]decimal.Decimal),
	}, nil
}

// Accounts returns the session's current account snapshot.
func (s *Session) Accounts() []domain.Account {
	return s.accounts
}

// IsOurs reports whether the identifier belongs to a known ledger account.
func (s *Session) IsOurs(raw string) bool {
	return s.Lookup(raw) != nil
}

// Lookup finds an existing account by identifier: exact trimmed compare
// first, then normalized compare. Returns nil when no account matches.
func (s *Session) Lookup(raw string) *domain.Account {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	for i := range s.accounts {
		if strings.TrimSpace(s.accounts[i].AccountNumber) == trimmed {
			return &s.accounts[i]
		}
	}
	norm := normalize.Identifier(raw)
	for i := range s.accounts {
		if s.accounts[i].NormalizedNumber() == norm {
			return &s.accounts[i]
		}
	}
	return nil
}

// RecordOpeningBalance stores a document-level opening balance hint for the
// identifier, used if the account is auto-created later this session.
func (s *Session) RecordOpeningBalance(raw string, balance decimal.Decimal) {
	norm := normalize.Identifier(raw)
	if norm == "" {
		return
	}
	s.opening[norm] = balance
}

// GuessBank infers a display bank name and account type from the
// identifier's prefix.
func GuessBank(raw string) (string, domain.AccountType) {
	norm := normalize.Identifier(raw)
	if strings.HasPrefix(norm, "KZ") && len(norm) >= 7 {
		if info, ok := bankCodes[norm[4:7]]; ok {
			return info.name, info.accountType
		}
	}
	return unknownBank.name, unknownBank.accountType
}

// Resolve maps a raw identifier to an account. The result is ternary:
// a found (or newly created) account, a not-found notice, or a store error.
// The found/not-found distinction is load-bearing for the caller's
// user-interaction flow, so not-found is never an error.
//
// Resolving the same identifier twice in one session never creates two
// accounts.
func (s *Session) Resolve(ctx context.Context, raw string, autoCreate bool) (*domain.Account, *Notice, error) {
	if acc := s.Lookup(raw); acc != nil {
		return acc, nil, nil
	}

	norm := normalize.Identifier(raw)
	name, accType := GuessBank(raw)
	notice := &Notice{RawID: strings.TrimSpace(raw), BankName: name, Type: accType}

	if norm == "" {
		return nil, notice, nil
	}
	if _, attempted := s.created[norm]; attempted {
		// A creation attempt already ran this session; whatever its
		// outcome, a matching account would have been found by Lookup.
		return nil, notice, nil
	}
	if !autoCreate || norm == cashToken {
		return nil, notice, nil
	}

	// Record the attempt before it runs so a failure is not retried.
	s.created[norm] = ""

	acc := domain.Account{
		Name:          name,
		Type:          accType,
		Currency:      "KZT",
		AccountNumber: strings.TrimSpace(raw),
	}
	if balance, ok := s.opening[norm]; ok {
		acc.Balance = balance
	}

	created, err := s.store.CreateAccount(ctx, acc)
	if errors.Is(err, ledger.ErrDuplicateAccount) {
		// Another writer beat us to it; re-query and use theirs.
		return s.requery(ctx, raw, notice)
	}
	if err != nil {
		log.Printf("ERROR: failed to create account for %s: %v", notice.RawID, err)
		return nil, notice, nil
	}

	s.created[norm] = created.ID
	s.accounts = append(s.accounts, *created)
	return created, nil, nil
}

func (s *Session) requery(ctx context.Context, raw string, notice *Notice) (*domain.Account, *Notice, error) {
	accounts, err := s.store.FindAccounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to re-query accounts after create conflict: %w", err)
	}
	s.accounts = accounts
	if acc := s.Lookup(raw); acc != nil {
		return acc, nil, nil
	}
	return nil, notice, nil
}
