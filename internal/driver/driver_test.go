package driver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
	"github.com/veerababumanyam/tallywarehouse/internal/tally"
	"github.com/veerababumanyam/tallywarehouse/internal/warehouse"
)

// fakeClient returns a fixed voucher count per day requested, letting tests
// assert on exactly which windows the driver asked for.
type fakeClient struct {
	voucherXMLByDay map[string]string
	masterXML       string
	requestedWindows [][2]string
}

func (f *fakeClient) FetchVouchers(ctx context.Context, from, to time.Time, company string) (string, error) {
	f.requestedWindows = append(f.requestedWindows, [2]string{from.Format("2006-01-02"), to.Format("2006-01-02")})

	var out string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out += f.voucherXMLByDay[d.Format("2006-01-02")]
	}
	return "<ENVELOPE><BODY><DATA><COLLECTION>" + out + "</COLLECTION></DATA></BODY></ENVELOPE>", nil
}

func (f *fakeClient) FetchMasters(ctx context.Context, kind tally.MasterKind, company string) (string, error) {
	return f.masterXML, nil
}

func voucherXML(guid, date string) string {
	return fmt.Sprintf(`<VOUCHER>
  <GUID>%s</GUID>
  <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
  <DATE>%s</DATE>
  <PARTYLEDGERNAME>Test Party</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Item</STOCKITEMNAME>
    <AMOUNT>100.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
</VOUCHER>`, guid, date)
}

// fakeRepo is an in-memory stand-in for warehouse.Repo.
type fakeRepo struct {
	invoices    map[string]*warehouse.InvoiceHeader
	receipts    map[string]*warehouse.Receipt
	checkpoints map[string]warehouse.Checkpoint
	allocations map[string][]warehouse.BillAllocationRow
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		invoices:    make(map[string]*warehouse.InvoiceHeader),
		receipts:    make(map[string]*warehouse.Receipt),
		checkpoints: make(map[string]warehouse.Checkpoint),
		allocations: make(map[string][]warehouse.BillAllocationRow),
	}
}

func (f *fakeRepo) WithStreamLock(ctx context.Context, stream string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRepo) UpsertInvoice(ctx context.Context, h *warehouse.InvoiceHeader, customer *warehouse.CustomerDim, lines []warehouse.InvoiceLine) error {
	f.invoices[h.VoucherKey] = h
	return nil
}

func (f *fakeRepo) UpsertReceipt(ctx context.Context, r *warehouse.Receipt) error {
	f.receipts[r.VoucherKey] = r
	return nil
}

func (f *fakeRepo) InsertBillAllocations(ctx context.Context, voucherKey string, allocations []warehouse.BillAllocationRow) error {
	f.allocations[voucherKey] = allocations
	return nil
}

func (f *fakeRepo) BulkUpsertLedgerGroups(ctx context.Context, groups []warehouse.LedgerGroupDim) error { return nil }
func (f *fakeRepo) BulkUpsertStockGroups(ctx context.Context, groups []warehouse.StockGroupDim) error   { return nil }
func (f *fakeRepo) BulkUpsertUOMs(ctx context.Context, uoms []warehouse.UOMDim) error                    { return nil }
func (f *fakeRepo) BulkUpsertItems(ctx context.Context, items []warehouse.ItemDim) error                 { return nil }
func (f *fakeRepo) ReplaceOpeningBills(ctx context.Context, bills []warehouse.OpeningBillRow) error      { return nil }

func (f *fakeRepo) AllBillMovements(ctx context.Context) ([]warehouse.OpeningBillRow, []warehouse.BillAllocationRow, error) {
	return nil, nil, nil
}

func (f *fakeRepo) ReplaceBillReceivableFacts(ctx context.Context, asOf time.Time, facts []warehouse.BillReceivableFact) error {
	return nil
}

func (f *fakeRepo) ReadCheckpoint(ctx context.Context, stream string) (warehouse.Checkpoint, error) {
	return f.checkpoints[stream], nil
}

func (f *fakeRepo) WriteCheckpoint(ctx context.Context, cp warehouse.Checkpoint) error {
	f.checkpoints[cp.Stream] = cp
	return nil
}

func (f *fakeRepo) IsVoucherLoaded(ctx context.Context, voucherKey string) (bool, error) {
	_, ok := f.invoices[voucherKey]
	return ok, nil
}

func testETLConfig() config.ETLConfig {
	return config.ETLConfig{
		IncrementalStream: "invoices",
		BatchDays:         15,
		BatchPause:        time.Millisecond,
	}
}

// TestRunBackfillBatchesAcrossDays verifies that a 3-day range split across
// day-by-day windows loads every voucher exactly once, 37+28+9=74 rows.
func TestRunBackfillBatchesAcrossDays(t *testing.T) {
	byDay := map[string]string{}
	total := 0
	dayCounts := map[string]int{"2026-07-01": 37, "2026-07-02": 28, "2026-07-03": 9}
	for day, n := range dayCounts {
		var x string
		for i := 0; i < n; i++ {
			x += voucherXML(fmt.Sprintf("%s-%d", day, i), day)
		}
		byDay[day] = x
		total += n
	}

	client := &fakeClient{voucherXMLByDay: byDay}
	repo := newFakeRepo()
	cfg := testETLConfig()
	cfg.BatchDays = 1 // force one window per day so each day is a separate fetch

	d := New(client, repo, nil, cfg, "Acme Distributors")

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)

	count, err := d.RunBackfill(context.Background(), from, to, false)
	require.NoError(t, err)
	assert.Equal(t, total, count)
	assert.Equal(t, total, len(repo.invoices))
	assert.Len(t, client.requestedWindows, 3)
}

func TestRunBackfillDryRunDoesNotWrite(t *testing.T) {
	byDay := map[string]string{"2026-07-01": voucherXML("guid-1", "2026-07-01")}
	client := &fakeClient{voucherXMLByDay: byDay}
	repo := newFakeRepo()
	d := New(client, repo, nil, testETLConfig(), "Acme Distributors")

	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	count, err := d.RunBackfill(context.Background(), day, day, true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, repo.invoices, "dry run must not write any rows")
}

func TestRunBackfillDoesNotTouchCheckpoint(t *testing.T) {
	byDay := map[string]string{"2026-07-01": voucherXML("guid-1", "2026-07-01")}
	client := &fakeClient{voucherXMLByDay: byDay}
	repo := newFakeRepo()
	repo.checkpoints["invoices"] = warehouse.Checkpoint{Stream: "invoices", LastRunAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	d := New(client, repo, nil, testETLConfig(), "Acme Distributors")
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err := d.RunBackfill(context.Background(), day, day, false)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), repo.checkpoints["invoices"].LastRunAt,
		"backfill must never advance the incremental checkpoint")
}

func TestRunIncrementalAdvancesCheckpoint(t *testing.T) {
	today := time.Now().UTC().Format("2006-01-02")
	byDay := map[string]string{today: voucherXML("guid-today", today)}
	client := &fakeClient{voucherXMLByDay: byDay}
	repo := newFakeRepo()

	d := New(client, repo, nil, testETLConfig(), "Acme Distributors")
	err := d.RunIncremental(context.Background())
	require.NoError(t, err)

	assert.False(t, repo.checkpoints["invoices"].LastRunAt.IsZero())
}

// TestUpsertVoucherRoutesReceiptAndPaymentDistinctly covers the invariant
// that every voucher type gets a header row, but only Receipt vouchers also
// get a row in the narrower receipt table.
func TestUpsertVoucherRoutesReceiptAndPaymentDistinctly(t *testing.T) {
	receiptXML := `<VOUCHER>
  <GUID>guid-receipt</GUID>
  <VOUCHERTYPENAME>Receipt</VOUCHERTYPENAME>
  <DATE>2026-07-01</DATE>
  <PARTYLEDGERNAME>Acme Retail</PARTYLEDGERNAME>
</VOUCHER>`
	paymentXML := `<VOUCHER>
  <GUID>guid-payment</GUID>
  <VOUCHERTYPENAME>Payment</VOUCHERTYPENAME>
  <DATE>2026-07-01</DATE>
  <PARTYLEDGERNAME>Acme Retail</PARTYLEDGERNAME>
</VOUCHER>`

	client := &fakeClient{voucherXMLByDay: map[string]string{"2026-07-01": receiptXML + paymentXML}}
	repo := newFakeRepo()
	d := New(client, repo, nil, testETLConfig(), "Acme Distributors")

	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	count, err := d.ClearAndReload(context.Background(), day, day)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Contains(t, repo.invoices, "guid-receipt", "every voucher type gets a header row")
	assert.Contains(t, repo.invoices, "guid-payment", "every voucher type gets a header row")
	assert.Contains(t, repo.receipts, "guid-receipt", "Receipt vouchers mirror into the receipt table")
	assert.NotContains(t, repo.receipts, "guid-payment", "Payment vouchers must not land in the receipt table")
}

func TestClearAndReloadWritesBillAllocations(t *testing.T) {
	xml := `<VOUCHER>
  <GUID>guid-bill</GUID>
  <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
  <DATE>2026-07-01</DATE>
  <PARTYLEDGERNAME>Acme Retail</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Item</STOCKITEMNAME>
    <AMOUNT>1000.00</AMOUNT>
    <ACCOUNTINGALLOCATIONS.LIST>
      <BILLALLOCATIONS.LIST>
        <NAME>INV-1</NAME>
        <AMOUNT>1000.00</AMOUNT>
        <BILLTYPE>New Ref</BILLTYPE>
      </BILLALLOCATIONS.LIST>
    </ACCOUNTINGALLOCATIONS.LIST>
  </ALLINVENTORYENTRIES.LIST>
</VOUCHER>`
	client := &fakeClient{voucherXMLByDay: map[string]string{"2026-07-01": xml}}
	repo := newFakeRepo()
	d := New(client, repo, nil, testETLConfig(), "Acme Distributors")

	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	count, err := d.ClearAndReload(context.Background(), day, day)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Contains(t, repo.allocations, "guid-bill")
	assert.Len(t, repo.allocations["guid-bill"], 1)
}
