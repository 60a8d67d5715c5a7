// Package dedup rejects transactions that duplicate one already accepted in
// the current batch or already present in the persisted ledger.
package dedup

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qazaqfin/bankimport/internal/domain"
)

// Source says where a duplicate hit came from.
type Source int

const (
	SourceNone Source = iota
	SourceBatch
	SourcePersisted
)

// epsilon absorbs rounding differences between exports of the same
// transaction: amounts closer than 0.01 are considered equal.
var epsilon = decimal.NewFromFloat(0.01)

// Checker tracks the composite identity of persisted and in-batch
// transactions. The composite key is accountID + trimmed document number
// (absent treated as empty) + calendar date; amounts within a key bucket are
// compared with the epsilon rule.
//
// When the document number is absent the match falls back to
// accountID+date+amount only, against every known transaction of that
// account and day regardless of its document number. That weaker rule can
// falsely merge two legitimately distinct same-day transactions of
// identical amount; the behavior is preserved deliberately, since
// tightening it would change accepted-transaction counts.
type Checker struct {
	persisted      map[string][]decimal.Decimal
	batch          map[string][]decimal.Decimal
	persistedByDay map[string][]decimal.Decimal
	batchByDay     map[string][]decimal.Decimal
}

// NewChecker seeds a checker with the persisted ledger transactions. The
// in-batch set starts empty and is owned exclusively by one import run.
func NewChecker(existing []domain.Transaction) *Checker {
	c := &Checker{
		persisted:      make(map[string][]decimal.Decimal),
		batch:          make(map[string][]decimal.Decimal),
		persistedByDay: make(map[string][]decimal.Decimal),
		batchByDay:     make(map[string][]decimal.Decimal),
	}
	for _, tx := range existing {
		k := key(tx.AccountID, tx.DocumentNumber, tx.Date)
		c.persisted[k] = append(c.persisted[k], tx.Amount)
		d := dayKey(tx.AccountID, tx.Date)
		c.persistedByDay[d] = append(c.persistedByDay[d], tx.Amount)
	}
	return c
}

// IsDuplicate reports whether the candidate matches an in-batch or persisted
// transaction. In-batch hits are reported first.
func (c *Checker) IsDuplicate(accountID, documentNumber string, date time.Time, amount decimal.Decimal) Source {
	if strings.TrimSpace(documentNumber) == "" {
		d := dayKey(accountID, date)
		if containsAmount(c.batchByDay[d], amount) {
			return SourceBatch
		}
		if containsAmount(c.persistedByDay[d], amount) {
			return SourcePersisted
		}
		return SourceNone
	}

	k := key(accountID, documentNumber, date)
	if containsAmount(c.batch[k], amount) {
		return SourceBatch
	}
	if containsAmount(c.persisted[k], amount) {
		return SourcePersisted
	}
	return SourceNone
}

// Record adds an accepted candidate to the in-batch set so later candidates
// in the same batch are checked against it.
func (c *Checker) Record(accountID, documentNumber string, date time.Time, amount decimal.Decimal) {
	k := key(accountID, documentNumber, date)
	c.batch[k] = append(c.batch[k], amount)
	d := dayKey(accountID, date)
	c.batchByDay[d] = append(c.batchByDay[d], amount)
}

func key(accountID, documentNumber string, date time.Time) string {
	return accountID + "|" + strings.TrimSpace(documentNumber) + "|" + date.Format(domain.DateFormat)
}

func dayKey(accountID string, date time.Time) string {
	return accountID + "|" + date.Format(domain.DateFormat)
}

func containsAmount(amounts []decimal.Decimal, amount decimal.Decimal) bool {
	for _, a := range amounts {
		if a.Sub(amount).Abs().LessThan(epsilon) {
			return true
		}
	}
	return false
}
