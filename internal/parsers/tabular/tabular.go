// Package tabular parses the row-based statement exports: Forte, Kaspi,
// 1C tabular, and the generic fallback layout.
package tabular

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/detect"
	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/normalize"
	"github.com/qazaqfin/bankimport/internal/parser"
)

// columns describes where a format keeps each field. Header names are
// substring-matched against lowercased column headers, most specific first.
type columns struct {
	date         []string
	debit        []string
	credit       []string
	amount       []string // single signed amount, used when debit/credit absent
	counterparty []string
	payer        []string // formats with distinct payer/receiver columns
	receiver     []string
	purpose      []string
	document     []string
	currency     []string
}

// formatSpec binds a detected format tag to its column layout and the
// display label used for its category buckets.
type formatSpec struct {
	label string
	cols  columns
}

var specs = map[detect.Format]formatSpec{
	detect.FormatForte: {
		label: "Forte",
		cols: columns{
			date:         []string{"дата операции", "дата"},
			debit:        []string{"дебет"},
			credit:       []string{"кредит"},
			counterparty: []string{"контрагент", "корреспондент"},
			purpose:      []string{"назначение платежа", "назначение"},
			document:     []string{"номер документа", "№ документа"},
			currency:     []string{"валюта"},
		},
	},
	detect.FormatKaspi: {
		label: "Kaspi",
		cols: columns{
			date:         []string{"дата операции", "дата"},
			debit:        []string{"дебет", "расход"},
			credit:       []string{"кредит", "приход"},
			amount:       []string{"сумма"},
			counterparty: []string{"контрагент", "наименование"},
			purpose:      []string{"детали платежа", "назначение"},
			document:     []string{"номер документа", "№"},
			currency:     []string{"валюта"},
		},
	},
	detect.FormatOneCTabular: {
		label: "1С",
		cols: columns{
			date:     []string{"датадокумента", "дата"},
			debit:    []string{"суммарасход", "дебет"},
			credit:   []string{"суммаприход", "кредит"},
			amount:   []string{"суммадокумента", "сумма"},
			payer:    []string{"плательщик"},
			receiver: []string{"получатель"},
			purpose:  []string{"назначениеплатежа", "назначение"},
			document: []string{"номердокумента", "номер"},
			currency: []string{"валюта"},
		},
	},
	detect.FormatGeneric: {
		label: "выписка",
		cols: columns{
			date:         []string{"дата", "date"},
			debit:        []string{"дебет", "debit"},
			credit:       []string{"кредит", "credit"},
			amount:       []string{"сумма", "amount"},
			counterparty: []string{"контрагент", "counterparty", "payee"},
			purpose:      []string{"назначение", "purpose", "описание", "description"},
			document:     []string{"номер", "document", "reference"},
			currency:     []string{"валюта", "currency"},
		},
	},
}

// Parse handles all rows of a tabular statement in the given format,
// returning one Result per row. Non-transaction rows (totals, headers
// repeated mid-file, decorations) come back as silent skips.
func Parse(ctx context.Context, format detect.Format, rows []parser.Row, pctx *parser.Context) ([]parser.Result, error) {
	spec, ok := specs[format]
	if !ok {
		spec = specs[detect.FormatGeneric]
	}

	results := make([]parser.Result, 0, len(rows))
	for _, row := range rows {
		res, err := parseRow(ctx, spec, row, pctx)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func parseRow(ctx context.Context, spec formatSpec, row parser.Row, pctx *parser.Context) (parser.Result, error) {
	date, ok := normalize.Date(row.Get(spec.cols.date...))
	if !ok {
		return parser.Skipped(parser.SkipNoDate), nil
	}

	amount, txType, skip := classify(spec.cols, row)
	if skip != parser.SkipNone {
		return parser.Skipped(skip), nil
	}

	account := pctx.FallbackAccount()
	if account == nil {
		return parser.Skipped(parser.SkipNoAccount), nil
	}

	purpose := row.Get(spec.cols.purpose...)
	counterpartyName := counterpartyFor(spec.cols, row, txType)

	categoryName := bucketName(spec.label, txType)
	if categorize.IsSalary(purpose) {
		categoryName = categorize.SalaryCategory
	}
	category, err := pctx.EnsureCategory(ctx, categoryName, domain.CategoryType(txType))
	if err != nil {
		return parser.Result{}, err
	}

	cpType := domain.CounterpartyClient
	if txType == domain.TransactionExpense {
		cpType = domain.CounterpartySupplier
	}
	counterparty, err := pctx.EnsureCounterparty(ctx, counterpartyName, cpType)
	if err != nil {
		return parser.Result{}, err
	}

	currency := row.Get(spec.cols.currency...)
	if currency == "" {
		currency = account.Currency
	}
	if currency == "" {
		currency = "KZT"
	}

	candidate := &parser.Candidate{
		AccountID:      account.ID,
		Amount:         amount,
		Type:           txType,
		Date:           date,
		Currency:       currency,
		CategoryID:     category.ID,
		Comment:        purpose,
		DocumentNumber: row.Get(spec.cols.document...),
		AccountIIK:     account.AccountNumber,
	}
	if counterparty != nil {
		candidate.CounterpartyID = counterparty.ID
	}
	return parser.Emitted(candidate), nil
}

// classify derives the amount and direction from debit/credit columns when
// the format has them, falling back to the sign of a single amount column.
func classify(cols columns, row parser.Row) (decimal.Decimal, domain.TransactionType, parser.SkipReason) {
	debitRaw := row.Get(cols.debit...)
	creditRaw := row.Get(cols.credit...)
	debit, hasDebit := normalize.PositiveAmount(debitRaw)
	credit, hasCredit := normalize.PositiveAmount(creditRaw)

	switch {
	case hasDebit && hasCredit:
		// Both sides filled: direction is ambiguous.
		return decimal.Decimal{}, "", parser.SkipAmbiguousDirection
	case hasDebit:
		return debit, domain.TransactionExpense, parser.SkipNone
	case hasCredit:
		return credit, domain.TransactionIncome, parser.SkipNone
	case debitRaw != "" && creditRaw != "":
		// Both columns present but neither holds a positive amount
		// (typically both zero): equally ambiguous.
		return decimal.Decimal{}, "", parser.SkipAmbiguousDirection
	}

	// No usable debit/credit. If those columns exist but are both empty or
	// zero, the row carries no money movement.
	if len(cols.amount) == 0 {
		return decimal.Decimal{}, "", parser.SkipNoAmount
	}
	signed, ok := normalize.Amount(row.Get(cols.amount...))
	if !ok || signed.IsZero() {
		return decimal.Decimal{}, "", parser.SkipNoAmount
	}
	if signed.IsNegative() {
		return signed.Neg(), domain.TransactionExpense, parser.SkipNone
	}
	return signed, domain.TransactionIncome, parser.SkipNone
}

// counterpartyFor picks the name from the field opposite the direction of
// the money: the payer for income, the receiver for expense. Formats with a
// single counterparty column use it for both directions.
func counterpartyFor(cols columns, row parser.Row, txType domain.TransactionType) string {
	if len(cols.payer) > 0 || len(cols.receiver) > 0 {
		if txType == domain.TransactionIncome {
			return row.Get(cols.payer...)
		}
		return row.Get(cols.receiver...)
	}
	return row.Get(cols.counterparty...)
}

// bucketName scopes the auto-category to the direction and source format.
func bucketName(label string, txType domain.TransactionType) string {
	if txType == domain.TransactionIncome {
		return "Поступления (" + label + ")"
	}
	return "Списания (" + label + ")"
}
