// Package domain defines the ledger entities shared by the import pipeline
// and the persistence stores.
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// AccountType represents the account type enum.
// Use ValidateAccountType to ensure validity before use.
type AccountType string

const (
	AccountTypeBank   AccountType = "bank"
	AccountTypeCash   AccountType = "cash"
	AccountTypeWallet AccountType = "wallet"
	AccountTypeCard   AccountType = "card"
	AccountTypeOther  AccountType = "other"
)

// CategoryType represents the category direction enum.
type CategoryType string

const (
	CategoryTypeIncome   CategoryType = "income"
	CategoryTypeExpense  CategoryType = "expense"
	CategoryTypeTransfer CategoryType = "transfer"
)

// TransactionType represents the transaction direction enum.
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

var (
	validAccountTypes = map[AccountType]struct{}{
		AccountTypeBank: {}, AccountTypeCash: {}, AccountTypeWallet: {},
		AccountTypeCard: {}, AccountTypeOther: {},
	}

	validCategoryTypes = map[CategoryType]struct{}{
		CategoryTypeIncome: {}, CategoryTypeExpense: {}, CategoryTypeTransfer: {},
	}

	validTransactionTypes = map[TransactionType]struct{}{
		TransactionIncome: {}, TransactionExpense: {}, TransactionTransfer: {},
	}
)

// Account is an internal ledger account. AccountNumber carries the external
// statement identifier (IIK/IBAN) and, when present, is unique after
// normalization across all accounts. Balance is mutated only by accepted
// transactions.
type Account struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	ParentID      string          `json:"parentId,omitempty"` // card accounts aggregated under a parent
}

// NormalizedNumber returns the account number with all whitespace stripped
// and uppercased, the form used for uniqueness and membership checks.
func (a *Account) NormalizedNumber() string {
	return NormalizeIdentifier(a.AccountNumber)
}

// NormalizeIdentifier strips all whitespace (including NBSP) from an external
// identifier and uppercases it.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Category is a transaction bucket. Color is a display hint, opaque here.
type Category struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Type  CategoryType `json:"type"`
	Color string       `json:"color"`
}

// Counterparty is a payer/payee. Type (supplier/client/partner) is opaque
// to the import core.
type Counterparty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

const (
	CounterpartyClient   = "client"
	CounterpartySupplier = "supplier"
	CounterpartyPartner  = "partner"
)

// DateFormat is the calendar format used for statement dates and dedup keys.
const DateFormat = "02.01.2006"

// Transaction is an accepted ledger transaction. ToAccountID is set only for
// transfers. AccountIIK retains the raw statement identifier that resolved
// the account, for reporting.
type Transaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	ToAccountID    string          `json:"toAccountId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransactionType `json:"type"`
	Date           time.Time       `json:"date"`
	Currency       string          `json:"currency"`
	CategoryID     string          `json:"categoryId"`
	CounterpartyID string          `json:"counterpartyId,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	DocumentNumber string          `json:"documentNumber,omitempty"`
	AccountIIK     string          `json:"accountIIK,omitempty"`
}

// Validate checks transaction invariants before persistence.
func (t *Transaction) Validate() error {
	if t.AccountID == "" {
		return fmt.Errorf("transaction account ID cannot be empty")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative, got %s", t.Amount)
	}
	if !ValidateTransactionType(t.Type) {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	if t.Type == TransactionTransfer && t.ToAccountID == "" {
		return fmt.Errorf("transfer requires a destination account")
	}
	if t.Type != TransactionTransfer && t.ToAccountID != "" {
		return fmt.Errorf("destination account is only valid for transfers")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	return nil
}

// DateOnly truncates t to a calendar date, discarding any time component.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewAccount creates a validated account. AccountNumber is optional only for
// cash-type accounts.
func NewAccount(id, name string, accountType AccountType, currency, accountNumber string) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("account name cannot be empty")
	}
	if !ValidateAccountType(accountType) {
		return nil, fmt.Errorf("invalid account type: %s", accountType)
	}
	if accountNumber == "" && accountType != AccountTypeCash {
		return nil, fmt.Errorf("account number is required for %s accounts", accountType)
	}

	return &Account{
		ID:            id,
		Name:          name,
		Type:          accountType,
		Balance:       decimal.Zero,
		Currency:      currency,
		AccountNumber: accountNumber,
	}, nil
}

// NewCategory creates a validated category.
func NewCategory(id, name string, categoryType CategoryType, color string) (*Category, error) {
	if id == "" {
		return nil, fmt.Errorf("category ID cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("category name cannot be empty")
	}
	if !ValidateCategoryType(categoryType) {
		return nil, fmt.Errorf("invalid category type: %s", categoryType)
	}

	return &Category{ID: id, Name: name, Type: categoryType, Color: color}, nil
}

// NewCounterparty creates a validated counterparty.
func NewCounterparty(id, name, cpType string) (*Counterparty, error) {
	if id == "" {
		return nil, fmt.Errorf("counterparty ID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("counterparty name cannot be empty")
	}
	return &Counterparty{ID: id, Name: name, Type: cpType}, nil
}

// ValidateAccountType checks if the account type is valid.
func ValidateAccountType(t AccountType) bool {
	_, ok := validAccountTypes[t]
	return ok
}

// ValidateCategoryType checks if the category type is valid.
func ValidateCategoryType(t CategoryType) bool {
	_, ok := validCategoryTypes[t]
	return ok
}

// ValidateTransactionType checks if the transaction type is valid.
func ValidateTransactionType(t TransactionType) bool {
	_, ok := validTransactionTypes[t]
	return ok
}
