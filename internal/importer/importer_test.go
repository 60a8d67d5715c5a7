package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/qazaqfin/bankimport/internal/categorize"
	"github.com/qazaqfin/bankimport/internal/detect"
	"github.com/qazaqfin/bankimport/internal/domain"
	"github.com/qazaqfin/bankimport/internal/ledger"
	"github.com/qazaqfin/bankimport/internal/parser"
)

const textDocument = `1CClientBankExchange
ВерсияФормата=1.02
РасчСчет=KZ877220000002222222
СекцияДокумент=Платежное поручение
Номер=17
Дата=05.01.2025
Сумма=50000,00
ПлательщикСчет=KZ949480000001111111
Плательщик1=ТОО Ромашка
ПолучательСчет=KZ877220000002222222
Получатель1=ИП Наше
НазначениеПлатежа=Оплата за услуги мониторинга
КонецДокумента
КонецФайла
`

const forteCSV = "Дата операции;Номер документа;Дебет;Кредит;Контрагент;Назначение платежа\n" +
	"05.01.2025;17;;50 000,00;ТОО Ромашка;Оплата за услуги мониторинга\n" +
	"06.01.2025;18;12 500,50;;ТОО Поставщик;Оплата по договору\n" +
	"ИТОГО;;;;;\n"

func newImporter(t *testing.T, store ledger.Store) *Importer {
	t.Helper()
	rules, err := categorize.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	return New(store, rules)
}

func seedAccount(t *testing.T, store ledger.Store, number string) *domain.Account {
	t.Helper()
	acc, err := store.CreateAccount(context.Background(), domain.Account{
		Name: "Расчетный счет", Type: domain.AccountTypeBank,
		Currency: "KZT", AccountNumber: number,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return acc
}

func TestImport_TextDocumentIdempotent(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	seedAccount(t, store, "KZ877220000002222222")

	im := newImporter(t, store)
	im.AutoCreate = true

	report, err := im.Import(ctx, "statement.txt", []byte(textDocument))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Format != detect.FormatOneCExchange {
		t.Errorf("format = %s", report.Format)
	}
	if report.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", report.Accepted)
	}
	if len(report.AccountsTouched) != 1 || report.AccountsTouched[0] != "Расчетный счет" {
		t.Errorf("accounts touched = %v", report.AccountsTouched)
	}
	if len(report.IdentifiersSeen) != 1 {
		t.Errorf("identifiers seen = %v", report.IdentifiersSeen)
	}

	txs, _ := store.FindTransactions(ctx)
	if len(txs) != 1 {
		t.Fatalf("persisted %d transactions, want 1", len(txs))
	}
	if txs[0].Type != domain.TransactionIncome || txs[0].Amount.String() != "50000" {
		t.Errorf("persisted = %s %s", txs[0].Type, txs[0].Amount)
	}

	// Second run of the identical file: everything is a persisted
	// duplicate.
	again, err := im.Import(ctx, "statement.txt", []byte(textDocument))
	if err != nil {
		t.Fatalf("Import() #2 error = %v", err)
	}
	if again.Accepted != 0 {
		t.Errorf("second run accepted = %d, want 0", again.Accepted)
	}
	if again.Duplicates() != 1 || again.DuplicatesPersisted != 1 {
		t.Errorf("second run duplicates = %d/%d", again.DuplicatesBatch, again.DuplicatesPersisted)
	}
	// The account identifier counts as seen even when every block is a
	// duplicate.
	if len(again.IdentifiersSeen) != 1 || again.IdentifiersSeen[0] != "KZ877220000002222222" {
		t.Errorf("second run identifiers seen = %v", again.IdentifiersSeen)
	}
}

func TestImport_ForteCSV(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	seedAccount(t, store, "KZ877220000002222222")

	im := newImporter(t, store)
	report, err := im.Import(ctx, "forte.csv", []byte(forteCSV))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Format != detect.FormatForte {
		t.Errorf("format = %s, want forte", report.Format)
	}
	if report.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", report.Accepted)
	}
	// The totals row has no date.
	if report.Skips[parser.SkipNoDate] != 1 {
		t.Errorf("skips = %v", report.Skips)
	}

	// Same file again: both rows are persisted duplicates.
	again, err := im.Import(ctx, "forte.csv", []byte(forteCSV))
	if err != nil {
		t.Fatalf("Import() #2 error = %v", err)
	}
	if again.Accepted != 0 || again.DuplicatesPersisted != 2 {
		t.Errorf("second run = accepted %d, persisted dups %d", again.Accepted, again.DuplicatesPersisted)
	}
	if len(again.IdentifiersSeen) != 1 {
		t.Errorf("second run identifiers seen = %v", again.IdentifiersSeen)
	}
}

func TestImport_InBatchDuplicateRow(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	seedAccount(t, store, "KZ877220000002222222")

	doubled := "Дата операции;Номер документа;Дебет;Кредит;Контрагент;Назначение платежа\n" +
		"05.01.2025;17;;50 000,00;ТОО Ромашка;Оплата\n" +
		"05.01.2025;17;;50 000,00;ТОО Ромашка;Оплата\n"

	im := newImporter(t, store)
	report, err := im.Import(ctx, "forte.csv", []byte(doubled))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Accepted != 1 || report.DuplicatesBatch != 1 {
		t.Errorf("accepted = %d, batch dups = %d", report.Accepted, report.DuplicatesBatch)
	}
}

func TestImport_MissingAccountNotice(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	im := newImporter(t, store) // auto-create off
	report, err := im.Import(ctx, "statement.txt", []byte(textDocument))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Accepted != 0 {
		t.Errorf("accepted = %d, want 0", report.Accepted)
	}
	if report.SkippedNoAccount != 1 {
		t.Errorf("skipped no-account = %d, want 1", report.SkippedNoAccount)
	}
	if len(report.MissingAccounts) != 1 {
		t.Fatalf("missing accounts = %v", report.MissingAccounts)
	}
	if report.MissingAccounts[0].RawID != "KZ877220000002222222" {
		t.Errorf("notice id = %q", report.MissingAccounts[0].RawID)
	}
}

func TestImport_UnreadableContent(t *testing.T) {
	store := ledger.NewMemoryStore()
	im := newImporter(t, store)

	binary := []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x00, 0x00, 0x00, 0x00}
	if _, err := im.Import(context.Background(), "blob.bin", binary); err == nil {
		t.Fatal("Import() of binary content succeeded, want error")
	}
}

// phaseStore snapshots the importer's phase at every transaction write.
type phaseStore struct {
	ledger.Store
	im   *Importer
	seen []Phase
}

func (s *phaseStore) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	s.seen = append(s.seen, s.im.Phase())
	return s.Store.AppendTransaction(ctx, tx)
}

func TestImport_PhaseLifecycle(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewMemoryStore()
	seedAccount(t, inner, "KZ877220000002222222")

	wrapped := &phaseStore{Store: inner}
	im := newImporter(t, wrapped)
	wrapped.im = im
	im.AutoCreate = true

	if im.Phase() != PhaseIdle {
		t.Errorf("phase before import = %s, want %s", im.Phase(), PhaseIdle)
	}

	if _, err := im.Import(ctx, "statement.txt", []byte(textDocument)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if len(wrapped.seen) == 0 {
		t.Fatal("no transaction writes observed")
	}
	for _, p := range wrapped.seen {
		if p != PhaseParsing {
			t.Errorf("phase during write = %s, want %s", p, PhaseParsing)
		}
	}
	if im.Phase() != PhaseIdle {
		t.Errorf("phase after import = %s, want %s", im.Phase(), PhaseIdle)
	}
}

// brokenStore accepts everything except transaction writes.
type brokenStore struct {
	ledger.Store
}

func (b *brokenStore) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	return errors.New("write refused")
}

func TestImport_PersistFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewMemoryStore()
	seedAccount(t, inner, "KZ877220000002222222")

	im := newImporter(t, &brokenStore{Store: inner})
	report, err := im.Import(ctx, "forte.csv", []byte(forteCSV))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Accepted != 0 {
		t.Errorf("accepted = %d, want 0", report.Accepted)
	}
	if len(report.PersistFailures) != 2 {
		t.Errorf("persist failures = %v", report.PersistFailures)
	}
}

func TestImport_CommaDelimitedGeneric(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	seedAccount(t, store, "KZ877220000002222222")

	content := "date,amount,counterparty,purpose\n" +
		"05.01.2025,-250.00,Shop,groceries\n"

	im := newImporter(t, store)
	report, err := im.Import(ctx, "export.csv", []byte(content))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Format != detect.FormatGeneric {
		t.Errorf("format = %s, want generic", report.Format)
	}
	if report.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", report.Accepted)
	}
	txs, _ := store.FindTransactions(ctx)
	if len(txs) != 1 || txs[0].Type != domain.TransactionExpense {
		t.Errorf("persisted = %+v", txs)
	}
}
