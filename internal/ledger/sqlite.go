package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/qazaqfin/bankimport/internal/domain"
)

// SQLiteStore is a Store backed by a local SQLite database. Amounts are
// stored as decimal strings to avoid float drift.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	balance TEXT NOT NULL DEFAULT '0',
	currency TEXT NOT NULL DEFAULT '',
	account_number TEXT NOT NULL DEFAULT '',
	account_number_norm TEXT NOT NULL DEFAULT '',
	parent_id TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_number_norm
	ON accounts(account_number_norm) WHERE account_number_norm != '';

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS counterparties (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	to_account_id TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL,
	type TEXT NOT NULL,
	date TEXT NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT '',
	counterparty_id TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	document_number TEXT NOT NULL DEFAULT '',
	account_iik TEXT NOT NULL DEFAULT ''
);
`

// OpenSQLite opens (and initializes) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindAccounts returns all accounts.
func (s *SQLiteStore) FindAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, balance, currency, account_number, parent_id FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &balance, &a.Currency, &a.AccountNumber, &a.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for account %s: %w", a.ID, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateAccount persists a new account, enforcing normalized account-number
// uniqueness via the partial unique index.
func (s *SQLiteStore) CreateAccount(ctx context.Context, acc domain.Account) (*domain.Account, error) {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	norm := acc.NormalizedNumber()
	if norm != "" {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM accounts WHERE account_number_norm = ?`, norm).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to check account number: %w", err)
		}
		if count > 0 {
			return nil, fmt.Errorf("account %s: %w", acc.AccountNumber, ErrDuplicateAccount)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, type, balance, currency, account_number, account_number_norm, parent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Name, string(acc.Type), acc.Balance.String(), acc.Currency,
		acc.AccountNumber, norm, acc.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	created := acc
	return &created, nil
}

// FindCategories returns all categories.
func (s *SQLiteStore) FindCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, color FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CreateCategory persists a new category.
func (s *SQLiteStore) CreateCategory(ctx context.Context, cat domain.Category) (*domain.Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, type, color) VALUES (?, ?, ?, ?)`,
		cat.ID, cat.Name, string(cat.Type), cat.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}
	created := cat
	return &created, nil
}

// FindCounterparties returns all counterparties.
func (s *SQLiteStore) FindCounterparties(ctx context.Context) ([]domain.Counterparty, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type FROM counterparties`)
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparties: %w", err)
	}
	defer rows.Close()

	var cps []domain.Counterparty
	for rows.Next() {
		var cp domain.Counterparty
		if err := rows.Scan(&cp.ID, &cp.Name, &cp.Type); err != nil {
			return nil, fmt.Errorf("failed to scan counterparty: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// CreateCounterparty persists a new counterparty.
func (s *SQLiteStore) CreateCounterparty(ctx context.Context, cp domain.Counterparty) (*domain.Counterparty, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO counterparties (id, name, type) VALUES (?, ?, ?)`,
		cp.ID, cp.Name, cp.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to insert counterparty: %w", err)
	}
	created := cp
	return &created, nil
}

// FindTransactions returns all transactions.
func (s *SQLiteStore) FindTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, to_account_id, amount, type, date, currency,
		        category_id, counterparty_id, comment, document_number, account_iik
		 FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var amount, date string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.ToAccountID, &amount, &t.Type, &date,
			&t.Currency, &t.CategoryID, &t.CounterpartyID, &t.Comment, &t.DocumentNumber, &t.AccountIIK); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for transaction %s: %w", t.ID, err)
		}
		t.Date, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("corrupt date for transaction %s: %w", t.ID, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// AppendTransaction persists a transaction and applies its balance effect
// within one database transaction.
func (s *SQLiteStore) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, to_account_id, amount, type, date, currency,
		                           category_id, counterparty_id, comment, document_number, account_iik)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, tx.ToAccountID, tx.Amount.String(), string(tx.Type),
		tx.Date.Format("2006-01-02"), tx.Currency, tx.CategoryID, tx.CounterpartyID,
		tx.Comment, tx.DocumentNumber, tx.AccountIIK)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Balances are decimal strings, so the arithmetic happens in Go.
	apply := func(accountID string, delta decimal.Decimal) error {
		var current string
		if err := dbTx.QueryRowContext(ctx,
			`SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&current); err != nil {
			return err
		}
		balance, err := decimal.NewFromString(current)
		if err != nil {
			return fmt.Errorf("corrupt balance for account %s: %w", accountID, err)
		}
		_, err = dbTx.ExecContext(ctx,
			`UPDATE accounts SET balance = ? WHERE id = ?`, balance.Add(delta).String(), accountID)
		return err
	}
	switch tx.Type {
	case domain.TransactionIncome:
		err = apply(tx.AccountID, tx.Amount)
	case domain.TransactionExpense:
		err = apply(tx.AccountID, tx.Amount.Neg())
	case domain.TransactionTransfer:
		if err = apply(tx.AccountID, tx.Amount.Neg()); err == nil {
			err = apply(tx.ToAccountID, tx.Amount)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	return dbTx.Commit()
}
