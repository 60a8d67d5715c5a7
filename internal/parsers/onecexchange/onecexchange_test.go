package onecexchange

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/dedup"
	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ledger"
	"github.com/qazaqfin/bankimport/internal/normalize"
	"github.com/qazaqfin/bankimport/internal/parser"
	"github.com/qazaqfin/bankimport/internal/resolve"
)

const ourIIK = "KZ877220000002222222"

func newContext(t *testing.T, store ledger.Store, autoCreate bool) *parser.Context {
	t.Helper()
	ctx := context.Background()
	session, err := resolve.NewSession(ctx, store)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	rules, err := categorize.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	existing, err := store.FindTransactions(ctx)
	if err != nil {
		t.Fatalf("FindTransactions() error = %v", err)
	}
	pctx, err := parser.NewContext(ctx, store, session, dedup.NewChecker(existing), rules)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	pctx.AutoCreate = autoCreate
	return pctx
}

func storeWithOurAccount(t *testing.T) ledger.Store {
	t.Helper()
	store := ledger.NewMemoryStore()
	_, err := store.CreateAccount(context.Background(), domain.Account{
		Name: "Расчетный счет", Type: domain.AccountTypeBank,
		Currency: "KZT", AccountNumber: ourIIK,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return store
}

func doc(blocks ...string) string {
	var b strings.Builder
	b.WriteString("1CClientBankExchange\n")
	b.WriteString("ВерсияФормата=1.02\n")
	b.WriteString("РасчСчет=" + ourIIK + "\n")
	for _, block := range blocks {
		b.WriteString("СекцияДокумент=Платежное поручение\n")
		b.WriteString(block)
		b.WriteString("КонецДокумента\n")
	}
	b.WriteString("КонецФайла\n")
	return b.String()
}

const incomeBlock = `Номер=17
Дата=05.01.2025
Сумма=50000,00
ПлательщикСчет=KZ949480000001111111
Плательщик1=ТОО Ромашка
ПолучательСчет=KZ877220000002222222
Получатель1=ИП Наше
НазначениеПлатежа=Оплата за услуги мониторинга
`

const expenseBlock = `Номер=18
Дата=06.01.2025
Сумма=12000,00
ПлательщикСчет=KZ877220000002222222
Плательщик1=ИП Наше
ПолучательСчет=KZ998980000003333333
Получатель1=ТОО Поставщик
НазначениеПлатежа=Оплата по договору аренды
`

func TestParse_IncomeExpenseTransferClassification(t *testing.T) {
	ctx := context.Background()
	store := storeWithOurAccount(t)
	second, err := store.CreateAccount(ctx, domain.Account{
		Name: "Второй счет", Type: domain.AccountTypeBank,
		Currency: "KZT", AccountNumber: "KZ601000000004444444",
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	pctx := newContext(t, store, false)

	transferBlock := `Номер=19
Дата=07.01.2025
Сумма=300000,00
ПлательщикСчет=KZ877220000002222222
Плательщик1=ИП Наше
ПолучательСчет=KZ601000000004444444
Получатель1=ИП Наше
НазначениеПлатежа=Пополнение счета
`

	// No file-level account: classification runs on ledger membership.
	var b strings.Builder
	b.WriteString("1CClientBankExchange\n")
	for _, block := range []string{incomeBlock, expenseBlock, transferBlock} {
		b.WriteString("СекцияДокумент=Платежное поручение\n")
		b.WriteString(block)
		b.WriteString("КонецДокумента\n")
	}

	out, err := Parse(ctx, b.String(), pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(out.Results))
	}

	income := out.Results[0].Candidate
	if income == nil || income.Type != domain.TransactionIncome {
		t.Errorf("block 0 = %+v, want income", out.Results[0])
	}
	expense := out.Results[1].Candidate
	if expense == nil || expense.Type != domain.TransactionExpense {
		t.Errorf("block 1 = %+v, want expense", out.Results[1])
	}
	transfer := out.Results[2].Candidate
	if transfer == nil || transfer.Type != domain.TransactionTransfer {
		t.Fatalf("block 2 = %+v, want transfer", out.Results[2])
	}
	if transfer.ToAccountID != second.ID {
		t.Errorf("transfer to = %s, want %s", transfer.ToAccountID, second.ID)
	}

	// Transfers bypass keyword matching.
	cats, _ := store.FindCategories(ctx)
	var transferCat string
	for _, c := range cats {
		if c.ID == transfer.CategoryID {
			transferCat = c.Name
		}
	}
	if transferCat != categorize.TransferCategory {
		t.Errorf("transfer category = %q, want %q", transferCat, categorize.TransferCategory)
	}
}

func TestParse_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	store := storeWithOurAccount(t)
	pctx := newContext(t, store, true)

	out, err := Parse(ctx, doc(incomeBlock), pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c := out.Results[0].Candidate
	if c == nil {
		t.Fatalf("block skipped: %s", out.Results[0].Skip)
	}
	if c.Type != domain.TransactionIncome || c.Amount.String() != "50000" {
		t.Errorf("candidate = type %s amount %s", c.Type, c.Amount)
	}
	if c.Date.Format(domain.DateFormat) != "05.01.2025" {
		t.Errorf("date = %s", c.Date)
	}
	if c.DocumentNumber != "17" {
		t.Errorf("document = %q", c.DocumentNumber)
	}

	// Payer account auto-created with the Forte guess.
	accounts, _ := store.FindAccounts(ctx)
	var payer *domain.Account
	for i := range accounts {
		if accounts[i].AccountNumber == "KZ949480000001111111" {
			payer = &accounts[i]
		}
	}
	if payer == nil {
		t.Fatal("payer account was not auto-created")
	}
	if payer.Name != "ForteBank" || payer.Type != domain.AccountTypeBank {
		t.Errorf("payer account = %q/%s", payer.Name, payer.Type)
	}

	// Category came from the keyword bucket, not the fallback.
	cats, _ := store.FindCategories(ctx)
	var catName string
	for _, cat := range cats {
		if cat.ID == c.CategoryID {
			catName = cat.Name
		}
	}
	if catName != "Оплата от клиента" {
		t.Errorf("category = %q, want keyword bucket", catName)
	}

	cps, _ := store.FindCounterparties(ctx)
	if len(cps) != 1 || cps[0].Name != "ТОО Ромашка" {
		t.Errorf("counterparties = %+v", cps)
	}

	// The same document again is suppressed in-batch.
	out2, err := Parse(ctx, doc(incomeBlock), pctx)
	if err != nil {
		t.Fatalf("Parse() #2 error = %v", err)
	}
	if out2.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", out2.Duplicates)
	}
	if out2.Results[0].Skip != parser.SkipDuplicateBatch {
		t.Errorf("skip = %s, want %s", out2.Results[0].Skip, parser.SkipDuplicateBatch)
	}
}

func TestParse_PersistedDuplicate(t *testing.T) {
	ctx := context.Background()
	store := storeWithOurAccount(t)
	accounts, _ := store.FindAccounts(ctx)
	existing := domain.Transaction{
		AccountID: accounts[0].ID, Amount: decimal.RequireFromString("50000"),
		Type: domain.TransactionIncome, Currency: "KZT",
		DocumentNumber: "17",
	}
	existing.Date, _ = normalize.Date("05.01.2025")
	if err := store.AppendTransaction(ctx, existing); err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}

	pctx := newContext(t, store, true)
	out, err := Parse(ctx, doc(incomeBlock), pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if out.Results[0].Skip != parser.SkipDuplicatePersisted {
		t.Errorf("skip = %s, want %s", out.Results[0].Skip, parser.SkipDuplicatePersisted)
	}
	if out.Results[0].Identifier != ourIIK {
		t.Errorf("identifier = %q, want %q", out.Results[0].Identifier, ourIIK)
	}
	if out.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", out.Duplicates)
	}
}

func TestParse_MissingAccountSignaling(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore() // empty ledger
	pctx := newContext(t, store, false)

	// Two blocks on the same unknown account: one notice, not two.
	out, err := Parse(ctx, doc(incomeBlock, incomeBlock), pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for i, res := range out.Results {
		if res.Candidate != nil {
			t.Errorf("block %d emitted a candidate", i)
		}
		if res.Skip != parser.SkipNoAccount {
			t.Errorf("block %d skip = %s, want %s", i, res.Skip, parser.SkipNoAccount)
		}
	}
	if len(out.Notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(out.Notices))
	}
	if out.Notices[0].RawID != ourIIK {
		t.Errorf("notice id = %q, want %q", out.Notices[0].RawID, ourIIK)
	}
	if out.Notices[0].BankName != "Kaspi Bank" {
		t.Errorf("notice bank = %q", out.Notices[0].BankName)
	}
}

func TestParse_OpeningBalanceHint(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	pctx := newContext(t, store, true)

	content := "1CClientBankExchange\n" +
		"РасчСчет=" + ourIIK + "\n" +
		"НачальныйОстаток=150000,00\n" +
		"СекцияДокумент=Платежное поручение\n" +
		incomeBlock +
		"КонецДокумента\n"

	out, err := Parse(ctx, content, pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if out.Results[0].Candidate == nil {
		t.Fatalf("block skipped: %s", out.Results[0].Skip)
	}

	accounts, _ := store.FindAccounts(ctx)
	var ours *domain.Account
	for i := range accounts {
		if accounts[i].AccountNumber == ourIIK {
			ours = &accounts[i]
		}
	}
	if ours == nil {
		t.Fatal("our account was not auto-created")
	}
	if !ours.Balance.Equal(decimal.RequireFromString("150000")) {
		t.Errorf("opening balance = %s, want 150000", ours.Balance)
	}
}

func TestParse_SkipRules(t *testing.T) {
	ctx := context.Background()
	store := storeWithOurAccount(t)
	pctx := newContext(t, store, false)

	noCounterparty := `Номер=20
Дата=08.01.2025
Сумма=100,00
ПлательщикСчет=KZ949480000001111111
ПолучательСчет=KZ877220000002222222
НазначениеПлатежа=перевод
`
	neitherOurs := `Номер=21
Дата=08.01.2025
Сумма=100,00
ПлательщикСчет=KZ949480000009999999
Плательщик1=A
ПолучательСчет=KZ949480000008888888
Получатель1=B
`
	noDate := "Номер=22\nСумма=100,00\n"
	noAmount := "Номер=23\nДата=08.01.2025\n"

	out, err := Parse(ctx, doc(noCounterparty, neitherOurs, noDate, noAmount), pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []parser.SkipReason{
		parser.SkipNoCounterparty,
		parser.SkipUnclassifiable,
		parser.SkipNoDate,
		parser.SkipNoAmount,
	}
	for i, w := range want {
		if out.Results[i].Skip != w {
			t.Errorf("block %d skip = %s, want %s", i, out.Results[i].Skip, w)
		}
	}
	if len(out.Notices) != 0 {
		t.Errorf("notices = %+v, want none", out.Notices)
	}
}

func TestParse_MultilinePurposeJoined(t *testing.T) {
	ctx := context.Background()
	store := storeWithOurAccount(t)
	pctx := newContext(t, store, false)

	blockText := `Номер=24
Дата=09.01.2025
Сумма=700,00
ПлательщикСчет=KZ949480000001111111
Плательщик1=ТОО Ромашка
ПолучательСчет=KZ877220000002222222
НазначениеПлатежа=Оплата за услуги
НазначениеПлатежа1=мониторинга объектов
`
	out, err := Parse(ctx, doc(blockText), pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c := out.Results[0].Candidate
	if c == nil {
		t.Fatalf("block skipped: %s", out.Results[0].Skip)
	}
	if c.Comment != "Оплата за услуги мониторинга объектов" {
		t.Errorf("comment = %q", c.Comment)
	}
}

func TestParse_CRLFLineEndings(t *testing.T) {
	ctx := context.Background()
	store := storeWithOurAccount(t)
	pctx := newContext(t, store, false)

	content := strings.ReplaceAll(doc(incomeBlock), "\n", "\r\n")
	out, err := Parse(ctx, content, pctx)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(out.Results))
	}
	c := out.Results[0].Candidate
	if c == nil {
		t.Fatalf("block skipped: %s", out.Results[0].Skip)
	}
	if c.Type != domain.TransactionIncome || c.Amount.String() != "50000" {
		t.Errorf("parsed = %s %s", c.Type, c.Amount)
	}
}
