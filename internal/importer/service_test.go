package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/config"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/repository"
	"github.com/rpattn/tabimport/internal/repository/memstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store repository.Store, runner *extract.Runner) *Service {
	return NewService(store, nil, runner, quietLogger(), config.DefaultImportConfig())
}

func seedSellables(t *testing.T, store repository.Store, prices map[string]float64) {
	t.Helper()
	for name, price := range prices {
		_, err := store.Entities().Create(context.Background(),
			domain.NewEntity(domain.KindSellable, "name:"+extract.NormalizeKey(name), name, map[string]any{"price": price}))
		require.NoError(t, err)
	}
}

func orderCSV(lines ...string) Request {
	return Request{
		Name:     "orders",
		FileName: "orders.csv",
		Data:     strings.NewReader("Order,Product,Qty,Price\n" + strings.Join(lines, "\n") + "\n"),
		Mapping:  orderMapping(),
	}
}

func batchOf(t *testing.T, store repository.Store, res domain.Result) domain.ImportBatch {
	t.Helper()
	require.NotNil(t, res.Data.BatchID)
	b, err := store.Batches().GetByID(context.Background(), *res.Data.BatchID)
	require.NoError(t, err)
	return b
}

func countKind(t *testing.T, store repository.Store, kind domain.EntityKind) int {
	t.Helper()
	n, err := store.Entities().CountByKind(context.Background(), kind)
	require.NoError(t, err)
	return n
}

func TestImportOrdersEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5, "Mocha": 5})
	svc := newTestService(store, nil)

	var phases []string
	opts := svc.Options()
	opts.Progress = func(p Progress) { phases = append(phases, p.Phase) }

	res := svc.ImportFromFile(ctx, orderCSV(
		"SO-1,Latte,2,",
		"SO-1,Mocha,1,5.25",
		"SO-2,Latte,1,4.50",
	), opts)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.BatchCompleted, res.Data.Status)
	assert.Equal(t, 3, res.Data.SuccessfulRows)
	assert.Equal(t, 0, res.Data.FailedRows)
	assert.Equal(t, 2, res.Data.EntityCounts["order_created"])
	assert.Equal(t, 3, res.Data.EntityCounts["order_item_created"])
	assert.Equal(t, 2, res.Data.EntityCounts["journal_entry_created"])
	assert.Equal(t, []string{PhaseParsing, PhaseValidating, PhaseTransactions, PhaseAccounting, PhaseComplete}, phases)

	order, err := store.Entities().FindByNaturalKey(ctx, domain.KindOrder, "order:so-1")
	require.NoError(t, err)
	total, _ := order.FloatProperty("total")
	assert.Equal(t, 14.25, total)
	lines, _ := order.FloatProperty("line_count")
	assert.Equal(t, 2.0, lines)

	journal, err := store.Entities().FindByNaturalKey(ctx, domain.KindJournalEntry, "journal:order:"+order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, AccountReceivable, journal.StringProperty("debit_account"))
	assert.Equal(t, AccountRevenue, journal.StringProperty("credit_account"))
	amount, _ := journal.FloatProperty("amount")
	assert.Equal(t, 14.25, amount)

	stored := batchOf(t, store, res)
	assert.Equal(t, domain.BatchCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestImportAbortsAboveErrorThreshold(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	res := svc.ImportFromFile(context.Background(), orderCSV(
		"SO-1,Latte,0,1",
		"SO-2,Latte,1,1",
		"SO-3,Latte,-2,1",
	), svc.Options())
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "Validation failed")
	assert.Equal(t, domain.BatchFailed, res.Data.Status)

	assert.Zero(t, countKind(t, store, domain.KindOrder))
	assert.Zero(t, countKind(t, store, domain.KindOrderItem))

	stored := batchOf(t, store, res)
	assert.Equal(t, domain.BatchFailed, stored.Status)
	errs, err := svc.Errors(context.Background(), stored.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, errs, 2)
	assert.True(t, stored.CanRollback())
}

func TestImportZeroToleranceFailsOnOneInvalidRow(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	lines := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		qty := 1
		if i == 7 {
			qty = 0
		}
		lines = append(lines, fmt.Sprintf("SO-%d,Latte,%d,4.5", i, qty))
	}
	opts := svc.Options()
	opts.MaxErrorPercentage = 0

	res := svc.ImportFromFile(context.Background(), orderCSV(lines...), opts)
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "Validation failed")
	assert.Equal(t, domain.BatchFailed, batchOf(t, store, res).Status)
	assert.Zero(t, countKind(t, store, domain.KindOrder))
}

func TestImportRejectsNegativeErrorPercentage(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, nil)

	opts := svc.Options()
	opts.MaxErrorPercentage = -1
	res := svc.ImportFromFile(context.Background(), orderCSV("SO-1,Latte,1,4.5"), opts)
	require.False(t, res.Success)
	assert.Contains(t, res.Errors[0], "max error percentage")

	batches, err := store.Batches().List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestImportCapsStoredErrorsButCountsAll(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	cfg := config.DefaultImportConfig()
	cfg.MaxStoredErrors = 3
	svc := NewService(store, nil, nil, quietLogger(), cfg)

	opts := svc.Options()
	opts.MaxErrorPercentage = 100
	opts.GenerateAccounting = false
	res := svc.ImportFromFile(ctx, orderCSV(
		"SO-1,Latte,1,4.5",
		"SO-2,Unknown A,1,4.5",
		"SO-3,Unknown B,1,4.5",
		"SO-4,Latte,1,4.5",
		"SO-5,Unknown C,1,4.5",
		"SO-6,Unknown D,1,4.5",
		"SO-7,Unknown E,1,4.5",
		"SO-8,Latte,1,4.5",
	), opts)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 5, res.Data.FailedRows)

	stored, err := store.Errors().CountByBatch(ctx, *res.Data.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored)

	require.NotNil(t, res.Data.ErrorSummary)
	assert.Equal(t, 5, res.Data.ErrorSummary.Total)
	assert.Len(t, res.Data.ErrorSummary.Samples, domain.MaxErrorSamples)
}

// panickingStore panics inside every transaction.
type panickingStore struct {
	*memstore.Store
}

func (p *panickingStore) WithTx(context.Context, func(tx repository.Store) error) error {
	panic("disk on fire")
}

func TestImportPanicBecomesFailedBatch(t *testing.T) {
	store := &panickingStore{Store: memstore.New()}
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	res := svc.ImportFromFile(context.Background(), orderCSV("SO-1,Latte,1,4.5"), svc.Options())
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "disk on fire")
	assert.Equal(t, domain.BatchFailed, batchOf(t, store, res).Status)
}

func TestImportIsolatesFailingRows(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	var lines []string
	for i := 0; i < 1000; i++ {
		product := "Latte"
		if i%20 == 0 {
			product = "Unknown Drink"
		}
		lines = append(lines, fmt.Sprintf("SO-%d,%s,1,4.50", i, product))
	}
	opts := svc.Options()
	opts.BatchSize = 100
	opts.GenerateAccounting = false

	res := svc.ImportFromFile(context.Background(), orderCSV(lines...), opts)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, domain.BatchCompleted, res.Data.Status)
	assert.Equal(t, 1000, res.Data.ProcessedRows)
	assert.Equal(t, 950, res.Data.SuccessfulRows)
	assert.Equal(t, 50, res.Data.FailedRows)
	assert.Equal(t, 950, countKind(t, store, domain.KindOrder))
	assert.Equal(t, 950, countKind(t, store, domain.KindOrderItem))

	require.NotNil(t, res.Data.ErrorSummary)
	assert.Equal(t, 50, res.Data.ErrorSummary.ByType[domain.ErrorEntityCreation])

	errs, err := svc.Errors(context.Background(), *res.Data.BatchID, 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, "sellable", errs[0].FieldName)
	assert.Contains(t, errs[0].Message, "Sellable not found: Unknown Drink")
	assert.Equal(t, "Unknown Drink", errs[0].RowData["Product"])
}

// flakyStore fails the commit of its failOn-th top-level transaction.
type flakyStore struct {
	*memstore.Store
	failOn int
	calls  int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	f.calls++
	call := f.calls
	return f.Store.WithTx(ctx, func(tx repository.Store) error {
		if err := fn(tx); err != nil {
			return err
		}
		if call == f.failOn {
			return errors.New("connection reset during commit")
		}
		return nil
	})
}

func TestImportChunkFailureLosesOnlyThatChunk(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), failOn: 2}
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	opts := svc.Options()
	opts.BatchSize = 2
	opts.SkipMasterData = true
	opts.GenerateAccounting = false

	res := svc.ImportFromFile(context.Background(), orderCSV(
		"SO-1,Latte,1,1", "SO-2,Latte,1,1",
		"SO-3,Latte,1,1", "SO-4,Latte,1,1",
		"SO-5,Latte,1,1", "SO-6,Latte,1,1",
	), opts)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 6, res.Data.ProcessedRows)
	assert.Equal(t, 4, res.Data.SuccessfulRows)
	assert.Equal(t, 2, res.Data.FailedRows)
	assert.Equal(t, 4, countKind(t, store, domain.KindOrder))

	for _, key := range []string{"order:so-3", "order:so-4"} {
		_, err := store.Entities().FindByNaturalKey(context.Background(), domain.KindOrder, key)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	errs, err := svc.Errors(context.Background(), *res.Data.BatchID, 10, 0)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, domain.SeverityCritical, e.Severity)
		assert.Contains(t, e.Message, "connection reset during commit")
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	opts := svc.Options()
	opts.DryRun = true
	opts.MaxErrorPercentage = 60
	res := svc.ImportFromFile(context.Background(), orderCSV("SO-1,Latte,1,1", "SO-2,Latte,0,1"), opts)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, true, res.Data.Extra["dry_run"])
	require.NotNil(t, res.Data.Validation)
	assert.Equal(t, 1, res.Data.Validation.RowsWithErrors)

	assert.Zero(t, countKind(t, store, domain.KindOrder))
	batches, err := store.Batches().List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestResumeSkipsProcessedRows(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	opts := svc.Options()
	opts.ResumeFromRow = 2
	res := svc.ImportFromFile(context.Background(), orderCSV("SO-1,Latte,1,1", "SO-2,Latte,1,1", "SO-3,Latte,1,1"), opts)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 3, res.Data.ProcessedRows)
	assert.Equal(t, 1, res.Data.SuccessfulRows)
	assert.Equal(t, 1, countKind(t, store, domain.KindOrder))
	_, err := store.Entities().FindByNaturalKey(context.Background(), domain.KindOrder, "order:so-3")
	assert.NoError(t, err)
}

func TestImportWithMasterDataExtraction(t *testing.T) {
	store := memstore.New()
	runner := extract.NewRunner(quietLogger(), extract.NewCatalogExtractor(), extract.NewCustomerExtractor())
	svc := newTestService(store, runner)

	req := Request{
		FileName: "sales.csv",
		Data: strings.NewReader("Order,Product,Qty,Price\n" +
			"SO-1,Latte Sm,1,3.50\n" +
			"SO-1,Latte Lg,1,4.50\n" +
			"SO-2,Mocha,2,5.00\n"),
		Mapping: orderMapping(),
	}
	res := svc.ImportFromFile(context.Background(), req, svc.Options())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 3, res.Data.SuccessfulRows)
	assert.Positive(t, countKind(t, store, domain.KindSellable))
	assert.Equal(t, 3, countKind(t, store, domain.KindOrderItem))
}

func TestImportRejectsUnsupportedFile(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, nil)
	res := svc.ImportFromFile(context.Background(), Request{FileName: "a.pdf", Data: strings.NewReader("x")}, svc.Options())
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to parse file")
	assert.Equal(t, domain.BatchFailed, batchOf(t, store, res).Status)
}

func TestImportPurchasesPostsPayables(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.Entities().Create(ctx, domain.NewEntity(domain.KindVendor, "name:acme foods", "Acme Foods", nil))
	require.NoError(t, err)
	_, err = store.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "sku:bn-1", "Beans", map[string]any{"unit_cost": 8.0}))
	require.NoError(t, err)
	svc := newTestService(store, nil)

	m := domain.NewImportMapping("purchases", "purchase_item", []domain.FieldMapping{
		{Column: "PO", TargetField: "purchase_number"},
		{Column: "Vendor", TargetField: "vendor"},
		{Column: "SKU", TargetField: "sku"},
		{Column: "Qty", TargetField: "quantity", Transformation: &domain.Transformation{Type: "extract_quantity"}},
	})
	res := svc.ImportFromFile(ctx, Request{
		FileName: "po.csv",
		Data:     strings.NewReader("PO,Vendor,SKU,Qty\nPO-7,Acme Foods,BN-1,3 kg\n"),
		Mapping:  m,
	}, svc.Options())
	require.True(t, res.Success, res.Message)

	purchase, err := store.Entities().FindByNaturalKey(ctx, domain.KindPurchase, "purchase:po-7")
	require.NoError(t, err)
	total, _ := purchase.FloatProperty("total")
	assert.Equal(t, 24.0, total)

	journal, err := store.Entities().FindByNaturalKey(ctx, domain.KindJournalEntry, "journal:purchase:"+purchase.ID.String())
	require.NoError(t, err)
	assert.Equal(t, AccountInventory, journal.StringProperty("debit_account"))
	assert.Equal(t, AccountPayable, journal.StringProperty("credit_account"))
}

func TestRollbackKeepsExternallyReferencedEntities(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(store, nil)

	m := domain.NewImportMapping("items", "item", []domain.FieldMapping{
		{Column: "name", TargetField: "name"},
		{Column: "sku", TargetField: "sku"},
	})
	res := svc.ImportFromFile(ctx, Request{
		FileName: "items.csv",
		Data:     strings.NewReader("name,sku\nBeans,B1\nMilk,M1\n"),
		Mapping:  m,
	}, svc.Options())
	require.True(t, res.Success, res.Message)
	batchID := *res.Data.BatchID

	beans, err := store.Entities().FindByNaturalKey(ctx, domain.KindItem, "sku:b1")
	require.NoError(t, err)
	target, err := store.Entities().Create(ctx, domain.NewEntity(domain.KindStockTarget, "", "Beans par level", map[string]any{"min": 5.0}))
	require.NoError(t, err)
	require.NoError(t, store.Entities().AddReference(ctx, domain.EntityReference{FromID: target.ID, ToID: beans.ID, Relation: "targets"}))

	rb := svc.Rollback(ctx, batchID)
	require.True(t, rb.Success, rb.Message)
	assert.Equal(t, domain.BatchRolledBack, rb.Data.Status)
	assert.Equal(t, 1, rb.Data.Deleted[domain.KindItem])
	assert.Equal(t, 1, rb.Data.Extra["skipped"].(map[domain.EntityKind]int)[domain.KindItem])

	_, err = store.Entities().GetByID(ctx, beans.ID)
	assert.NoError(t, err)
	_, err = store.Entities().FindByNaturalKey(ctx, domain.KindItem, "sku:m1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	again := svc.Rollback(ctx, batchID)
	assert.False(t, again.Success)
}

func TestRollbackRefusesPendingBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(store, nil)

	batch := domain.NewImportBatch("pending", "a.csv", "")
	require.NoError(t, store.Batches().Create(ctx, *batch))

	rb := svc.Rollback(ctx, batch.ID)
	require.False(t, rb.Success)
	assert.Contains(t, rb.Message, "pending")

	stored, err := store.Batches().GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchPending, stored.Status)
}

func TestRollbackRemovesOrdersAndJournals(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	res := svc.ImportFromFile(ctx, orderCSV("SO-1,Latte,1,4.5", "SO-2,Latte,2,4.5"), svc.Options())
	require.True(t, res.Success, res.Message)

	rb := svc.Rollback(ctx, *res.Data.BatchID)
	require.True(t, rb.Success, rb.Message)
	assert.Equal(t, 2, rb.Data.Deleted[domain.KindJournalEntry])
	assert.Equal(t, 2, rb.Data.Deleted[domain.KindOrder])
	assert.Equal(t, 2, rb.Data.Deleted[domain.KindOrderItem])
	assert.Equal(t, 1, countKind(t, store, domain.KindSellable))
	assert.Zero(t, countKind(t, store, domain.KindOrder))
}

func TestStatusAndUnknownBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	svc := newTestService(store, nil)

	res := svc.ImportFromFile(ctx, orderCSV("SO-1,Latte,1,4.5"), svc.Options())
	require.True(t, res.Success, res.Message)

	status := svc.Status(ctx, *res.Data.BatchID)
	require.True(t, status.Success)
	assert.Equal(t, domain.BatchCompleted, status.Data.Status)
	assert.True(t, status.Data.CanRollback)
	assert.Equal(t, "orders", status.Data.Extra["name"])
	assert.Equal(t, 100.0, status.Data.ProgressPercent)

	missing := svc.Status(ctx, uuid.New())
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Message, "not found")
}

func TestPreviewDoesNotWrite(t *testing.T) {
	store := memstore.New()
	svc := newTestService(store, extract.NewRunner(quietLogger(), extract.NewCatalogExtractor()))

	res := svc.Preview(context.Background(), orderCSV("SO-1,Latte,2,4.50", "SO-2,Mocha,x,5", "SO-3,Tea,1,3"), 2)
	require.True(t, res.Success, res.Message)
	require.Len(t, res.Data.Preview, 2)
	assert.Equal(t, 3, res.Data.TotalRows)
	assert.Equal(t, 2.0, res.Data.Preview[0]["fields"].(map[string]any)["quantity"])
	assert.NotEmpty(t, res.Data.Preview[1]["errors"])
	assert.Equal(t, true, res.Data.Extra["supported"])
	assert.Contains(t, res.Data.Extra, "master_data")

	assert.Zero(t, countKind(t, store, domain.KindSellable))
	batches, err := store.Batches().List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestSaveMappingReplacesByName(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memstore.New(), nil)

	first := orderMapping()
	require.NoError(t, svc.SaveMapping(ctx, first))
	second := orderMapping()
	second.DefaultValues["status"] = "open"
	require.NoError(t, svc.SaveMapping(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := svc.Mapping(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "open", got.DefaultValues["status"])

	all, err := svc.Mappings(ctx, "order_item")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.Mapping(ctx, "missing")
	assert.ErrorIs(t, err, ErrMappingNotFound)
	assert.Error(t, svc.SaveMapping(ctx, &domain.ImportMapping{}))
}
