package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/storage"
)

const statementHeader = "Date,Time,Description,Withdrawal,Deposit,Outstanding Balance,Note\n"

type fixture struct {
	svc         *ImportService
	ledger      *ledger.MemoryRepository
	categories  *categorization.Service
	corrections *corrections.MemoryStore
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, repo ledger.Repository, opts ...Option) *fixture {
	t.Helper()

	seed, err := categorization.DefaultSeed()
	require.NoError(t, err)
	search, err := categorization.NewSearchIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = search.Close() })

	txs := ledger.NewMemoryRepository()
	if repo == nil {
		repo = txs
	}
	store := corrections.NewMemoryStore()
	cats := categorization.NewService(
		categorization.NewMemoryRepository(txs.CategoryReferences),
		store,
		categorization.NewEngine(nil, testLogger()),
		seed, search, 0, testLogger(),
	)

	return &fixture{
		svc:         NewImportService(repo, cats, store, nil, testLogger(), opts...),
		ledger:      txs,
		categories:  cats,
		corrections: store,
	}
}

func statement(rows ...string) []byte {
	return []byte(statementHeader + strings.Join(rows, "\n") + "\n")
}

func TestImport_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := statement(
		"01/03/2024,09:15,ATM,500.00,,9500.00,zq-unmatched-1",
		"02/03/2024,10:00,TRANSFER,,3000.00,12500.00,",
		"03/03/2024,11:30,POS,120.50,,12379.50,zq-unmatched-2",
	)

	first, err := f.svc.Import(ctx, "march.csv", data)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalRows)
	assert.Equal(t, 3, first.ValidRows)
	assert.Equal(t, 3, first.Inserted)
	assert.Zero(t, first.Updated)
	assert.Zero(t, first.Failed)

	second, err := f.svc.Import(ctx, "march.csv", data)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 3, second.Updated)
	assert.Equal(t, 3, f.ledger.Len())
}

func TestImport_RejectedRowsAreCounted(t *testing.T) {
	f := newFixture(t, nil)
	data := statement(
		"01/03/2024,,ATM,500.00,,9500.00,",
		"not a date,,ATM,1,,1,",
		"02/03/2024,,ATM,0,0,9500.00,",
		"03/03/2024,,ATM,abc,,9500.00,",
	)

	summary, err := f.svc.Import(context.Background(), "march.csv", data)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalRows)
	assert.Equal(t, 1, summary.ValidRows)
	assert.Equal(t, 1, summary.Inserted)
	assert.Zero(t, summary.Failed)
}

func TestImport_UnmatchedFallsBackToSentinel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Import(ctx, "march.csv", statement("01/03/2024,,,42.00,,100.00,zq-nothing-matches"))
	require.NoError(t, err)

	names, err := f.categories.CategoryNames(ctx)
	require.NoError(t, err)
	txs, err := f.ledger.List(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].CategoryID)
	assert.Equal(t, categorization.Sentinel, names[*txs[0].CategoryID])
}

func TestImport_ChartColumnWins(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	data := []byte("Date,Withdrawal,Balance,Note,chart\n01/03/2024,42.00,100.00,zq,ค่าเดินทาง\n")

	_, err := f.svc.Import(ctx, "march.csv", data)
	require.NoError(t, err)

	names, err := f.categories.CategoryNames(ctx)
	require.NoError(t, err)
	txs, err := f.ledger.List(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "ค่าเดินทาง", names[*txs[0].CategoryID])
}

func TestImport_FileErrors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Import(context.Background(), "statement.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, parser.ErrUnsupportedFileType)

	_, err = f.svc.Import(context.Background(), "statement.csv", []byte(statementHeader))
	assert.ErrorIs(t, err, parser.ErrEmptyFile)
	assert.Zero(t, f.ledger.Len())
}

type failingRepo struct {
	*ledger.MemoryRepository
	err error
}

func (r *failingRepo) Upsert(context.Context, *ledger.Transaction) (ledger.Outcome, error) {
	return 0, r.err
}

func TestImport_ErrorsAreCapped(t *testing.T) {
	repo := &failingRepo{MemoryRepository: ledger.NewMemoryRepository(), err: errors.New("connection reset")}
	f := newFixture(t, repo, WithMaxErrors(3))

	rows := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		rows = append(rows, fmt.Sprintf("%02d/03/2024,,,%d.00,,1000.00,", i, i))
	}

	summary, err := f.svc.Import(context.Background(), "march.csv", statement(rows...))
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Failed)
	require.Len(t, summary.Errors, 3)
	assert.Equal(t, "row 2: connection reset", summary.Errors[0])
	assert.Zero(t, summary.Inserted)
}

func TestPreview(t *testing.T) {
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := newFixture(t, nil, WithArchive(archive))

	data := statement(
		"01/03/2024,09:15,ATM,500.00,,9500.00,zq-unmatched",
		"bad,,,,,,",
		"02/03/2024,10:00,TRANSFER,,3000.00,12500.00,",
	)
	result, err := f.svc.Preview(context.Background(), "march.csv", data)
	require.NoError(t, err)

	assert.Equal(t, parser.FileTypeCSV, result.FileType)
	assert.Equal(t, 3, result.Stats.TotalRows)
	assert.Equal(t, 2, result.Stats.ValidRows)
	require.Len(t, result.Previews, 2)
	assert.Zero(t, f.ledger.Len())

	first := result.Previews[0]
	assert.Equal(t, 2, first.Transaction.Line)
	assert.Equal(t, categorization.Sentinel, first.AICategory)
	assert.Equal(t, categorization.ConfidenceLow, first.AIConfidence)
	assert.Equal(t, first.AICategory, first.SelectedCategory)

	deposit := result.Previews[1]
	assert.Equal(t, categorization.DepositCategory, deposit.AICategory)
	assert.Equal(t, categorization.SourceDeposit, deposit.Source)
	assert.Equal(t, 4, deposit.Transaction.Line)

	require.NotNil(t, result.ArchiveID)
	info, err := archive.GetInfo(context.Background(), *result.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, "march.csv", info.Name)
}

func TestPreview_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.Preview(ctx, "march.csv", statement("01/03/2024,,,1.00,,1.00,"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Previews)
}

func TestSaveReviewed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Preview(ctx, "march.csv", statement(
		"01/03/2024,09:15,ATM,500.00,,9500.00,ร้านกาแฟหน้าออฟฟิศ",
		"02/03/2024,10:00,POS,80.00,,9420.00,",
	))
	require.NoError(t, err)
	require.Len(t, result.Previews, 2)

	previews := result.Previews
	previews[0].SelectedCategory = "ค่ากาแฟ"
	previews[1].SelectedCategory = "ค่าจอดรถ"

	summary, err := f.svc.SaveReviewed(ctx, previews)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.CorrectionsLearned)

	learned, err := f.corrections.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, learned, 1)
	assert.Equal(t, "ร้านกาแฟหน้าออฟฟิศ", learned[0].Note)
	assert.Equal(t, "ค่ากาแฟ", learned[0].UserCategory)

	names, err := f.categories.CategoryNames(ctx)
	require.NoError(t, err)
	txs, err := f.ledger.List(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	got := map[string]bool{}
	for _, tx := range txs {
		got[names[*tx.CategoryID]] = true
	}
	assert.True(t, got["ค่ากาแฟ"])
	assert.True(t, got["ค่าจอดรถ"])

	again, err := f.svc.SaveReviewed(ctx, previews)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Updated)
	assert.Equal(t, 2, f.ledger.Len())
}

func TestSaveReviewed_BlankSelectionUsesSuggestion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	w := decimal.RequireFromString("10")

	summary, err := f.svc.SaveReviewed(ctx, []Preview{{
		Transaction: StatementLine{Line: 2, Date: reviewedDate, Withdrawal: &w, Balance: decimal.RequireFromString("90")},
		AICategory:  "",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Zero(t, summary.CorrectionsLearned)

	txs, err := f.ledger.List(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	names, err := f.categories.CategoryNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, categorization.Sentinel, names[*txs[0].CategoryID])
	assert.NotEqual(t, uuid.Nil, txs[0].ID)
}

var reviewedDate = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func TestSaveReviewed_RejectsInvalidLines(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	negative := decimal.RequireFromString("-50")
	zero := decimal.Zero
	valid := decimal.RequireFromString("10")

	summary, err := f.svc.SaveReviewed(ctx, []Preview{
		{Transaction: StatementLine{Line: 2, Date: reviewedDate, Balance: decimal.RequireFromString("90")}},
		{Transaction: StatementLine{Line: 3, Date: reviewedDate, Withdrawal: &negative, Balance: decimal.RequireFromString("91")}},
		{Transaction: StatementLine{Line: 4, Date: reviewedDate, Withdrawal: &zero, Deposit: &zero, Balance: decimal.RequireFromString("92")}},
		{Transaction: StatementLine{Line: 5, Withdrawal: &valid, Balance: decimal.RequireFromString("93")}},
		{Transaction: StatementLine{Line: 6, Date: reviewedDate, Withdrawal: &zero, Deposit: &valid, Balance: decimal.RequireFromString("103")}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 4, summary.Failed)
	assert.Equal(t, 1, summary.ValidRows)
	assert.Equal(t, []string{
		"row 2: " + ErrLineNoAmount.Error(),
		"row 3: " + ErrLineNoAmount.Error(),
		"row 4: " + ErrLineNoAmount.Error(),
		"row 5: " + ErrLineNoDate.Error(),
	}, summary.Errors)
	assert.Equal(t, 1, f.ledger.Len())
}

func TestSaveReviewed_FailedRowLearnsNothing(t *testing.T) {
	repo := &failingRepo{MemoryRepository: ledger.NewMemoryRepository(), err: errors.New("connection reset")}
	f := newFixture(t, repo)
	ctx := context.Background()
	w := decimal.RequireFromString("500")
	note := "ร้านกาแฟหน้าออฟฟิศ"

	summary, err := f.svc.SaveReviewed(ctx, []Preview{{
		Transaction:      StatementLine{Line: 2, Date: reviewedDate, Withdrawal: &w, Balance: decimal.RequireFromString("9500"), Note: &note},
		AICategory:       categorization.Sentinel,
		SelectedCategory: "ค่ากาแฟ",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.CorrectionsLearned)

	learned, err := f.corrections.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, learned)
}
