// Package onecexchange parses the 1CClientBankExchange text format: a flat
// key=value file with per-payment document sections.
package onecexchange

import (
	"context"
	"strings"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/decode"
	"github.com/qazaqfin/bankimport/internal/dedup"
	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/normalize"
	"github.com/qazaqfin/bankimport/internal/parser"
	"github.com/qazaqfin/bankimport/internal/resolve"
)

const (
	sectionStart = "СекцияДокумент"
	sectionEnd   = "КонецДокумента"

	keyAccount        = "РасчСчет"
	keyOpeningBalance = "НачальныйОстаток"
	keyNumber         = "Номер"
	keyDate           = "Дата"
	keyAmount         = "Сумма"
	keyPayerAccount   = "ПлательщикСчет"
	keyPayerName      = "Плательщик"
	keyPayeeAccount   = "ПолучательСчет"
	keyPayeeName      = "Получатель"
	keyPurpose        = "НазначениеПлатежа"
)

// block is one parsed document section: key=value pairs, with repeated
// purpose lines joined.
type block map[string]string

func (b block) get(keys ...string) string {
	for _, k := range keys {
		if v, ok := b[k]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Outcome is the text parser's result: per-block outcomes, the
// missing-account notices collected while resolving, and the running
// duplicate counter the format tracks itself.
type Outcome struct {
	Results    []parser.Result
	Notices    []resolve.Notice
	Duplicates int
}

// Parse processes a full exchange document. Candidates come back already
// deduplicated and recorded against the batch seen-set, so the caller must
// not run them through the checker again.
func Parse(ctx context.Context, content string, pctx *parser.Context) (*Outcome, error) {
	header, blocks := split(content)

	// The file-level account is authoritative: whichever side of a
	// document carries it is ours even if the ledger has no such account
	// yet. The opening balance hint has to land before any resolution so
	// an auto-created account starts with it.
	ourRaw := header.get(keyAccount)
	ourNorm := normalize.Identifier(ourRaw)
	if balanceRaw := header.get(keyOpeningBalance); balanceRaw != "" && ourRaw != "" {
		if balance, ok := normalize.Amount(balanceRaw); ok {
			pctx.Session.RecordOpeningBalance(ourRaw, balance)
		}
	}

	out := &Outcome{}
	noticed := make(map[string]bool)
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, notice, err := parseBlock(ctx, b, ourNorm, pctx)
		if err != nil {
			return nil, err
		}
		if notice != nil {
			norm := normalize.Identifier(notice.RawID)
			if !noticed[norm] {
				noticed[norm] = true
				out.Notices = append(out.Notices, *notice)
			}
		}
		switch res.Skip {
		case parser.SkipDuplicateBatch, parser.SkipDuplicatePersisted:
			out.Duplicates++
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

// split separates the file-level header fields from the document sections.
// Lines outside any section feed the header; repeated purpose keys inside a
// section are concatenated.
func split(content string) (block, []block) {
	header := make(block)
	var blocks []block
	var current block

	for _, line := range decode.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == sectionStart:
			current = make(block)
		case key == sectionEnd:
			if current != nil {
				blocks = append(blocks, current)
			}
			current = nil
		case current != nil:
			assign(current, key, value)
		default:
			assign(header, key, value)
		}
	}
	return header, blocks
}

func assign(b block, key, value string) {
	if strings.HasPrefix(key, keyPurpose) {
		if existing := b[keyPurpose]; existing != "" && value != "" {
			b[keyPurpose] = existing + " " + value
			return
		}
		if value != "" {
			b[keyPurpose] = value
		}
		return
	}
	if _, ok := b[key]; !ok {
		b[key] = value
	}
}

func parseBlock(ctx context.Context, b block, ourNorm string, pctx *parser.Context) (parser.Result, *resolve.Notice, error) {
	date, ok := normalize.Date(b.get(keyDate))
	if !ok {
		return parser.Skipped(parser.SkipNoDate), nil, nil
	}
	amount, ok := normalize.PositiveAmount(b.get(keyAmount))
	if !ok {
		return parser.Skipped(parser.SkipNoAmount), nil, nil
	}

	payerIIK := b.get(keyPayerAccount)
	payeeIIK := b.get(keyPayeeAccount)
	payerName := b.get(keyPayerName+"1", keyPayerName)
	payeeName := b.get(keyPayeeName+"1", keyPayeeName)

	// The file-level account, when present, decides which side is ours
	// outright. Membership testing only applies without it: testing the
	// ledger here would reclassify a once-imported document as a transfer
	// after its counterparty account got auto-created, and re-imports
	// must stay idempotent.
	var payerOurs, payeeOurs bool
	if ourNorm != "" {
		payerOurs = normalize.Identifier(payerIIK) == ourNorm
		payeeOurs = normalize.Identifier(payeeIIK) == ourNorm
	} else {
		payerOurs = pctx.Session.IsOurs(payerIIK)
		payeeOurs = pctx.Session.IsOurs(payeeIIK)
	}

	purpose := b.get(keyPurpose)
	docNumber := b.get(keyNumber)

	var (
		txType       domain.TransactionType
		ourIIK       string
		otherIIK     string
		counterparty string
	)
	switch {
	case payerOurs && payeeOurs:
		txType = domain.TransactionTransfer
		ourIIK = payerIIK
	case payerOurs:
		txType = domain.TransactionExpense
		ourIIK, otherIIK = payerIIK, payeeIIK
		counterparty = payeeName
	case payeeOurs:
		txType = domain.TransactionIncome
		ourIIK, otherIIK = payeeIIK, payerIIK
		counterparty = payerName
	default:
		return parser.Skipped(parser.SkipUnclassifiable), nil, nil
	}

	if txType != domain.TransactionTransfer && counterparty == "" {
		return parser.Skipped(parser.SkipNoCounterparty), nil, nil
	}

	account, notice, err := pctx.Session.Resolve(ctx, ourIIK, pctx.AutoCreate)
	if err != nil {
		return parser.Result{}, nil, err
	}
	if account == nil {
		return parser.Result{Skip: parser.SkipNoAccount, Identifier: strings.TrimSpace(ourIIK)}, notice, nil
	}

	var toAccount *domain.Account
	if txType == domain.TransactionTransfer {
		toAccount, notice, err = pctx.Session.Resolve(ctx, payeeIIK, pctx.AutoCreate)
		if err != nil {
			return parser.Result{}, nil, err
		}
		if toAccount == nil {
			return parser.Result{Skip: parser.SkipNoAccount, Identifier: strings.TrimSpace(ourIIK)}, notice, nil
		}
	} else if otherIIK != "" {
		// Best-effort: give the counterparty's identifier an account too,
		// so transfers between the two become recognizable later. Failure
		// here does not block the transaction.
		if _, _, err := pctx.Session.Resolve(ctx, otherIIK, pctx.AutoCreate); err != nil {
			return parser.Result{}, nil, err
		}
	}

	switch pctx.Dedup.IsDuplicate(account.ID, docNumber, date, amount) {
	case dedup.SourceBatch:
		return parser.Result{Skip: parser.SkipDuplicateBatch, Identifier: strings.TrimSpace(ourIIK)}, nil, nil
	case dedup.SourcePersisted:
		return parser.Result{Skip: parser.SkipDuplicatePersisted, Identifier: strings.TrimSpace(ourIIK)}, nil, nil
	}

	categoryName := pctx.Rules.Match(purpose)
	if txType == domain.TransactionTransfer {
		categoryName = categorize.TransferCategory
	}
	category, err := pctx.EnsureCategory(ctx, categoryName, domain.CategoryType(txType))
	if err != nil {
		return parser.Result{}, nil, err
	}

	cpType := domain.CounterpartyClient
	if txType == domain.TransactionExpense {
		cpType = domain.CounterpartySupplier
	}
	cp, err := pctx.EnsureCounterparty(ctx, counterparty, cpType)
	if err != nil {
		return parser.Result{}, nil, err
	}

	currency := account.Currency
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
		DocumentNumber: docNumber,
		AccountIIK:     strings.TrimSpace(ourIIK),
	}
	if toAccount != nil {
		candidate.ToAccountID = toAccount.ID
	}
	if cp != nil {
		candidate.CounterpartyID = cp.ID
	}

	pctx.Dedup.Record(account.ID, docNumber, date, amount)
	return parser.Emitted(candidate), nil, nil
}
