// Package ledger defines the persistent store contract the import core
// depends on, plus the built-in store implementations.
package ledger

import (
	"context"
	"errors"

	"github.com/qazaqfin/bankimport/internal/domain"
)

// ErrDuplicateAccount is returned by CreateAccount when another account
// already carries the same normalized account number. The resolver treats
// it as a recoverable race: re-query and use the existing account.
var ErrDuplicateAccount = errors.New("account number already exists")

// Store is the external ledger collaborator. Implementations persist
// accounts, categories, counterparties and transactions; this core only
// reads them and appends.
type Store interface {
	FindAccounts(ctx context.Context) ([]domain.Account, error)
	// CreateAccount persists a new account and returns it with an ID
	// assigned. Returns ErrDuplicateAccount on a normalized account-number
	// conflict.
	CreateAccount(ctx context.Context, acc domain.Account) (*domain.Account, error)

	FindCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, cat domain.Category) (*domain.Category, error)

	FindCounterparties(ctx context.Context) ([]domain.Counterparty, error)
	CreateCounterparty(ctx context.Context, cp domain.Counterparty) (*domain.Counterparty, error)

	FindTransactions(ctx context.Context) ([]domain.Transaction, error)
	// AppendTransaction persists an accepted transaction and applies its
	// balance effect to the involved account(s).
	AppendTransaction(ctx context.Context, tx domain.Transaction) error
}
