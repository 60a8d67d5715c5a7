package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/qazaqfin/bankimport/internal/domain"
)

// MemoryStore is an in-memory Store. It backs tests and the default CLI
// session.
type MemoryStore struct {
	mu             sync.Mutex
	accounts       []domain.Account
	categories     []domain.Category
	counterparties []domain.Counterparty
	transactions   []domain.Transaction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FindAccounts returns a defensive copy of all accounts.
func (s *MemoryStore) FindAccounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Account(nil), s.accounts...), nil
}

// CreateAccount persists a new account, enforcing normalized account-number
// uniqueness.
func (s *MemoryStore) CreateAccount(ctx context.Context, acc domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc.AccountNumber != "" {
		norm := acc.NormalizedNumber()
		for _, existing := range s.accounts {
			if existing.NormalizedNumber() == norm {
				return nil, fmt.Errorf("account %s: %w", acc.AccountNumber, ErrDuplicateAccount)
			}
		}
	}

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	s.accounts = append(s.accounts, acc)
	created := acc
	return &created, nil
}

// FindCategories returns a defensive copy of all categories.
func (s *MemoryStore) FindCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Category(nil), s.categories...), nil
}

// CreateCategory persists a new category.
func (s *MemoryStore) CreateCategory(ctx context.Context, cat domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	s.categories = append(s.categories, cat)
	created := cat
	return &created, nil
}

// FindCounterparties returns a defensive copy of all counterparties.
func (s *MemoryStore) FindCounterparties(ctx context.Context) ([]domain.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Counterparty(nil), s.counterparties...), nil
}

// CreateCounterparty persists a new counterparty.
func (s *MemoryStore) CreateCounterparty(ctx context.Context, cp domain.Counterparty) (*domain.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.counterparties = append(s.counterparties, cp)
	created := cp
	return &created, nil
}

// FindTransactions returns a defensive copy of all transactions.
func (s *MemoryStore) FindTransactions(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Transaction(nil), s.transactions...), nil
}

// AppendTransaction persists a transaction and applies its balance effect.
func (s *MemoryStore) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.transactions = append(s.transactions, tx)
	s.applyBalance(tx)
	return nil
}

func (s *MemoryStore) applyBalance(tx domain.Transaction) {
	for i := range s.accounts {
		switch s.accounts[i].ID {
		case tx.AccountID:
			switch tx.Type {
			case domain.TransactionIncome:
				s.accounts[i].Balance = s.accounts[i].Balance.Add(tx.Amount)
			case domain.TransactionExpense, domain.TransactionTransfer:
				s.accounts[i].Balance = s.accounts[i].Balance.Sub(tx.Amount)
			}
		case tx.ToAccountID:
			if tx.Type == domain.TransactionTransfer {
				s.accounts[i].Balance = s.accounts[i].Balance.Add(tx.Amount)
			}
		}
	}
}
