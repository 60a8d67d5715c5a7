// Package firestore provides a Firestore-backed ledger store for deployments
// where the ledger lives in Google Cloud.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ledger"
)

const (
	collAccounts       = "accounts"
	collCategories     = "categories"
	collCounterparties = "counterparties"
	collTransactions   = "transactions"
)

// Store wraps a Firestore client with ledger-specific operations. It
// implements ledger.Store.
type Store struct {
	client    *firestore.Client
	projectID string
}

// accountDoc mirrors domain.Account with Firestore-friendly field types.
// Amounts are stored as decimal strings to avoid float drift.
type accountDoc struct {
	ID            string    `firestore:"id"`
	Name          string    `firestore:"name"`
	Type          string    `firestore:"type"`
	Balance       string    `firestore:"balance"`
	Currency      string    `firestore:"currency"`
	AccountNumber string    `firestore:"accountNumber"`
	NormalizedNum string    `firestore:"accountNumberNorm"`
	ParentID      string    `firestore:"parentId"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type categoryDoc struct {
	ID        string    `firestore:"id"`
	Name      string    `firestore:"name"`
	Type      string    `firestore:"type"`
	Color     string    `firestore:"color"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type counterpartyDoc struct {
	ID        string    `firestore:"id"`
	Name      string    `firestore:"name"`
	Type      string    `firestore:"type"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type transactionDoc struct {
	ID             string    `firestore:"id"`
	AccountID      string    `firestore:"accountId"`
	ToAccountID    string    `firestore:"toAccountId"`
	Amount         string    `firestore:"amount"`
	Type           string    `firestore:"type"`
	Date           string    `firestore:"date"` // YYYY-MM-DD
	Currency       string    `firestore:"currency"`
	CategoryID     string    `firestore:"categoryId"`
	CounterpartyID string    `firestore:"counterpartyId"`
	Comment        string    `firestore:"comment"`
	DocumentNumber string    `firestore:"documentNumber"`
	AccountIIK     string    `firestore:"accountIIK"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// NewStore creates a Firestore-backed store. credentialsFile may be empty,
// in which case Application Default Credentials are used.
func NewStore(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Store{client: client, projectID: projectID}, nil
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// FindAccounts retrieves all accounts.
func (s *Store) FindAccounts(ctx context.Context) ([]domain.Account, error) {
	iter := s.client.Collection(collAccounts).Documents(ctx)
	defer iter.Stop()

	var accounts []domain.Account
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts: %w", err)
		}
		var doc accountDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode account %s: %w", snap.Ref.ID, err)
		}
		balance, err := decimal.NewFromString(doc.Balance)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for account %s: %w", doc.ID, err)
		}
		accounts = append(accounts, domain.Account{
			ID: doc.ID, Name: doc.Name, Type: domain.AccountType(doc.Type),
			Balance: balance, Currency: doc.Currency,
			AccountNumber: doc.AccountNumber, ParentID: doc.ParentID,
		})
	}
	return accounts, nil
}

// CreateAccount persists a new account. The normalized account-number
// uniqueness check runs inside a Firestore transaction.
func (s *Store) CreateAccount(ctx context.Context, acc domain.Account) (*domain.Account, error) {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	norm := acc.NormalizedNumber()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if norm != "" {
			q := s.client.Collection(collAccounts).Where("accountNumberNorm", "==", norm).Limit(1)
			docs, err := tx.Documents(q).GetAll()
			if err != nil {
				return fmt.Errorf("failed to check account number: %w", err)
			}
			if len(docs) > 0 {
				return fmt.Errorf("account %s: %w", acc.AccountNumber, ledger.ErrDuplicateAccount)
			}
		}
		return tx.Set(s.client.Collection(collAccounts).Doc(acc.ID), accountDoc{
			ID: acc.ID, Name: acc.Name, Type: string(acc.Type),
			Balance: acc.Balance.String(), Currency: acc.Currency,
			AccountNumber: acc.AccountNumber, NormalizedNum: norm,
			ParentID: acc.ParentID, CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	created := acc
	return &created, nil
}

// FindCategories retrieves all categories.
func (s *Store) FindCategories(ctx context.Context) ([]domain.Category, error) {
	iter := s.client.Collection(collCategories).Documents(ctx)
	defer iter.Stop()

	var cats []domain.Category
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate categories: %w", err)
		}
		var doc categoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode category %s: %w", snap.Ref.ID, err)
		}
		cats = append(cats, domain.Category{
			ID: doc.ID, Name: doc.Name, Type: domain.CategoryType(doc.Type), Color: doc.Color,
		})
	}
	return cats, nil
}

// CreateCategory persists a new category.
func (s *Store) CreateCategory(ctx context.Context, cat domain.Category) (*domain.Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	_, err := s.client.Collection(collCategories).Doc(cat.ID).Set(ctx, categoryDoc{
		ID: cat.ID, Name: cat.Name, Type: string(cat.Type), Color: cat.Color, CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	created := cat
	return &created, nil
}

// FindCounterparties retrieves all counterparties.
func (s *Store) FindCounterparties(ctx context.Context) ([]domain.Counterparty, error) {
	iter := s.client.Collection(collCounterparties).Documents(ctx)
	defer iter.Stop()

	var cps []domain.Counterparty
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate counterparties: %w", err)
		}
		var doc counterpartyDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode counterparty %s: %w", snap.Ref.ID, err)
		}
		cps = append(cps, domain.Counterparty{ID: doc.ID, Name: doc.Name, Type: doc.Type})
	}
	return cps, nil
}

// CreateCounterparty persists a new counterparty.
func (s *Store) CreateCounterparty(ctx context.Context, cp domain.Counterparty) (*domain.Counterparty, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	_, err := s.client.Collection(collCounterparties).Doc(cp.ID).Set(ctx, counterpartyDoc{
		ID: cp.ID, Name: cp.Name, Type: cp.Type, CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create counterparty: %w", err)
	}
	created := cp
	return &created, nil
}

// FindTransactions retrieves all transactions, newest first.
func (s *Store) FindTransactions(ctx context.Context) ([]domain.Transaction, error) {
	iter := s.client.Collection(collTransactions).OrderBy("date", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var txs []domain.Transaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions: %w", err)
		}
		var doc transactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode transaction %s: %w", snap.Ref.ID, err)
		}
		tx, err := docToTransaction(doc)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

// AppendTransaction persists a transaction and applies its balance effect
// atomically.
func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	deltas := map[string]decimal.Decimal{}
	switch tx.Type {
	case domain.TransactionIncome:
		deltas[tx.AccountID] = tx.Amount
	case domain.TransactionExpense:
		deltas[tx.AccountID] = tx.Amount.Neg()
	case domain.TransactionTransfer:
		deltas[tx.AccountID] = tx.Amount.Neg()
		deltas[tx.ToAccountID] = deltas[tx.ToAccountID].Add(tx.Amount)
	}

	return s.client.RunTransaction(ctx, func(ctx context.Context, fsTx *firestore.Transaction) error {
		// Firestore requires all reads before any write in a transaction.
		balances := map[string]decimal.Decimal{}
		for accountID := range deltas {
			snap, err := fsTx.Get(s.client.Collection(collAccounts).Doc(accountID))
			if err != nil {
				return fmt.Errorf("failed to load account %s: %w", accountID, err)
			}
			var doc accountDoc
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("failed to decode account %s: %w", accountID, err)
			}
			balance, err := decimal.NewFromString(doc.Balance)
			if err != nil {
				return fmt.Errorf("corrupt balance for account %s: %w", accountID, err)
			}
			balances[accountID] = balance
		}

		for accountID, delta := range deltas {
			err := fsTx.Update(s.client.Collection(collAccounts).Doc(accountID), []firestore.Update{
				{Path: "balance", Value: balances[accountID].Add(delta).String()},
			})
			if err != nil {
				return err
			}
		}

		return fsTx.Set(s.client.Collection(collTransactions).Doc(tx.ID), transactionDoc{
			ID: tx.ID, AccountID: tx.AccountID, ToAccountID: tx.ToAccountID,
			Amount: tx.Amount.String(), Type: string(tx.Type),
			Date: tx.Date.Format("2006-01-02"), Currency: tx.Currency,
			CategoryID: tx.CategoryID, CounterpartyID: tx.CounterpartyID,
			Comment: tx.Comment, DocumentNumber: tx.DocumentNumber,
			AccountIIK: tx.AccountIIK, CreatedAt: time.Now(),
		})
	})
}

func docToTransaction(doc transactionDoc) (*domain.Transaction, error) {
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", doc.ID, err)
	}
	date, err := time.Parse("2006-01-02", doc.Date)
	if err != nil {
		return nil, fmt.Errorf("corrupt date for transaction %s: %w", doc.ID, err)
	}
	return &domain.Transaction{
		ID: doc.ID, AccountID: doc.AccountID, ToAccountID: doc.ToAccountID,
		Amount: amount, Type: domain.TransactionType(doc.Type), Date: date,
		Currency: doc.Currency, CategoryID: doc.CategoryID,
		CounterpartyID: doc.CounterpartyID, Comment: doc.Comment,
		DocumentNumber: doc.DocumentNumber, AccountIIK: doc.AccountIIK,
	}, nil
}
