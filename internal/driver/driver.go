// Package driver implements the date-windowed orchestration that sits
// between the Tally source client and the warehouse writer: incremental
// syncs driven by a persisted checkpoint, explicit backfills over a date
// range, and a clear-and-reload that re-upserts every voucher in a range.
// Clear-and-reload deletes no rows: rows already in the warehouse for the
// range that the source no longer returns are left in place.
//
// Usage:
//
//	d := driver.New(client, repo, logger, cfg.ETL, cfg.Tally.Company)
//	if err := d.RunIncremental(ctx); err != nil {
//	    log.Fatal("incremental sync failed:", err)
//	}
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
	"github.com/veerababumanyam/tallywarehouse/internal/tally"
	"github.com/veerababumanyam/tallywarehouse/internal/warehouse"
)

// sourceClient is the subset of *tally.Client the driver needs, so tests can
// substitute a fake without standing up an HTTP server.
type sourceClient interface {
	FetchVouchers(ctx context.Context, from, to time.Time, company string) (string, error)
	FetchMasters(ctx context.Context, kind tally.MasterKind, company string) (string, error)
}

// warehouseWriter is the subset of *warehouse.Repo the driver needs.
type warehouseWriter interface {
	WithStreamLock(ctx context.Context, stream string, fn func(ctx context.Context) error) error
	UpsertInvoice(ctx context.Context, h *warehouse.InvoiceHeader, customer *warehouse.CustomerDim, lines []warehouse.InvoiceLine) error
	UpsertReceipt(ctx context.Context, r *warehouse.Receipt) error
	InsertBillAllocations(ctx context.Context, voucherKey string, allocations []warehouse.BillAllocationRow) error
	BulkUpsertLedgerGroups(ctx context.Context, groups []warehouse.LedgerGroupDim) error
	BulkUpsertStockGroups(ctx context.Context, groups []warehouse.StockGroupDim) error
	BulkUpsertUOMs(ctx context.Context, uoms []warehouse.UOMDim) error
	BulkUpsertItems(ctx context.Context, items []warehouse.ItemDim) error
	ReplaceOpeningBills(ctx context.Context, bills []warehouse.OpeningBillRow) error
	AllBillMovements(ctx context.Context) ([]warehouse.OpeningBillRow, []warehouse.BillAllocationRow, error)
	ReplaceBillReceivableFacts(ctx context.Context, asOf time.Time, facts []warehouse.BillReceivableFact) error
	ReadCheckpoint(ctx context.Context, stream string) (warehouse.Checkpoint, error)
	WriteCheckpoint(ctx context.Context, cp warehouse.Checkpoint) error
	IsVoucherLoaded(ctx context.Context, voucherKey string) (bool, error)
}

// Driver owns date-window sizing and client-side date filtering for every
// sync mode.
type Driver struct {
	client  sourceClient
	repo    warehouseWriter
	logger  *slog.Logger
	cfg     config.ETLConfig
	company string
}

// New builds a Driver.
func New(client sourceClient, repo warehouseWriter, logger *slog.Logger, cfg config.ETLConfig, company string) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		client:  client,
		repo:    repo,
		logger:  logger,
		cfg:     cfg,
		company: company,
	}
}

// RunIncremental loads vouchers since the last checkpoint through today.
// The checkpoint advances only on success.
func (d *Driver) RunIncremental(ctx context.Context) error {
	return d.repo.WithStreamLock(ctx, d.cfg.IncrementalStream, func(ctx context.Context) error {
		cp, err := d.repo.ReadCheckpoint(ctx, d.cfg.IncrementalStream)
		if err != nil {
			return fmt.Errorf("driver: failed to read checkpoint: %w", err)
		}

		from := fiscalYearStart(time.Now())
		if !cp.LastRunAt.IsZero() {
			// A 1-day overlap absorbs vouchers posted on or before the last
			// run that Tally only surfaced after the fact.
			from = cp.LastRunAt.AddDate(0, 0, -1)
		}
		to := time.Now()

		count, err := d.loadVoucherWindow(ctx, from, to)
		if err != nil {
			return err
		}

		d.logger.Info("incremental sync complete",
			slog.String("stream", d.cfg.IncrementalStream),
			slog.Time("from", from), slog.Time("to", to),
			slog.Int("voucher_count", count),
		)

		return d.repo.WriteCheckpoint(ctx, warehouse.Checkpoint{
			Stream:    d.cfg.IncrementalStream,
			LastRunAt: to,
		})
	})
}

// RunBackfill loads vouchers over [from, to], batching into BatchDays-sized
// windows with a pause between batches. Unlike RunIncremental, the
// checkpoint is never touched: backfills are explicit operator actions and
// must not perturb the incremental cursor.
func (d *Driver) RunBackfill(ctx context.Context, from, to time.Time, dryRun bool) (int, error) {
	var total int
	err := d.repo.WithStreamLock(ctx, d.cfg.IncrementalStream, func(ctx context.Context) error {
		for batchStart := from; !batchStart.After(to); batchStart = batchStart.AddDate(0, 0, d.cfg.BatchDays) {
			batchEnd := batchStart.AddDate(0, 0, d.cfg.BatchDays-1)
			if batchEnd.After(to) {
				batchEnd = to
			}

			var count int
			var err error
			if dryRun {
				count, err = d.previewVoucherWindow(ctx, batchStart, batchEnd)
			} else {
				count, err = d.loadVoucherWindow(ctx, batchStart, batchEnd)
			}
			if err != nil {
				return fmt.Errorf("driver: backfill batch %s..%s failed: %w",
					batchStart.Format("2006-01-02"), batchEnd.Format("2006-01-02"), err)
			}
			total += count

			d.logger.Info("backfill batch complete",
				slog.String("from", batchStart.Format("2006-01-02")),
				slog.String("to", batchEnd.Format("2006-01-02")),
				slog.Int("voucher_count", count),
				slog.Bool("dry_run", dryRun),
			)

			if batchEnd.Before(to) && d.cfg.BatchPause > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(d.cfg.BatchPause):
				}
			}
		}
		return nil
	})
	return total, err
}

// ClearAndReload is RunBackfill with upstream data treated as authoritative
// for the window: every voucher in range is re-upserted regardless of
// whether it was previously loaded. Since all writes here are upserts keyed
// on voucher_key, this is functionally RunBackfill with dryRun=false; the
// distinct entrypoint exists so operators can invoke it explicitly when
// recovering from suspected data corruption.
func (d *Driver) ClearAndReload(ctx context.Context, from, to time.Time) (int, error) {
	return d.RunBackfill(ctx, from, to, false)
}

// SyncMasters fetches and upserts ledger/group, stock group, unit, and item
// masters in one pass.
func (d *Driver) SyncMasters(ctx context.Context) error {
	return d.repo.WithStreamLock(ctx, "masters", func(ctx context.Context) error {
		raw, err := d.client.FetchMasters(ctx, tally.MasterKindAll, d.company)
		if err != nil {
			return fmt.Errorf("driver: failed to fetch masters: %w", err)
		}

		ledgerGroups, warns, err := tally.ParseLedgerGroups(raw)
		if err != nil {
			return fmt.Errorf("driver: failed to parse ledger/group masters: %w", err)
		}
		d.logWarnings("ledger_groups", warns)
		if err := d.repo.BulkUpsertLedgerGroups(ctx, toLedgerGroupDims(ledgerGroups)); err != nil {
			return err
		}

		stockGroups, warns, err := tally.ParseStockGroups(raw)
		if err != nil {
			return fmt.Errorf("driver: failed to parse stock group masters: %w", err)
		}
		d.logWarnings("stock_groups", warns)
		if err := d.repo.BulkUpsertStockGroups(ctx, toStockGroupDims(stockGroups)); err != nil {
			return err
		}

		units, warns, err := tally.ParseUnits(raw)
		if err != nil {
			return fmt.Errorf("driver: failed to parse unit masters: %w", err)
		}
		d.logWarnings("units", warns)
		if err := d.repo.BulkUpsertUOMs(ctx, toUOMDims(units)); err != nil {
			return err
		}

		items, warns, err := tally.ParseItems(raw)
		if err != nil {
			return fmt.Errorf("driver: failed to parse item masters: %w", err)
		}
		d.logWarnings("items", warns)
		if err := d.repo.BulkUpsertItems(ctx, toItemDims(items)); err != nil {
			return err
		}

		openingBills, warns, err := tally.ParseOpeningBills(raw)
		if err != nil {
			return fmt.Errorf("driver: failed to parse opening bills: %w", err)
		}
		d.logWarnings("opening_bills", warns)
		return d.repo.ReplaceOpeningBills(ctx, toOpeningBillRows(openingBills))
	})
}

// ReconcileBills runs the receivables reconciler over everything currently
// loaded and replaces the fact table. It takes no direct dependency on the
// source client — it's a pure second pass over already loaded data.
func (d *Driver) ReconcileBills(ctx context.Context, asOf time.Time) (int, error) {
	var count int
	err := d.repo.WithStreamLock(ctx, "reconcile", func(ctx context.Context) error {
		openings, allocations, err := d.repo.AllBillMovements(ctx)
		if err != nil {
			return fmt.Errorf("driver: failed to read bill movements: %w", err)
		}

		facts := warehouse.Reconcile(openings, allocations, asOf)
		count = len(facts)
		return d.repo.ReplaceBillReceivableFacts(ctx, asOf, facts)
	})
	return count, err
}

// loadVoucherWindow fetches, parses, and upserts vouchers for [from, to],
// applying a client-side date filter since some Tally builds return rows
// slightly outside the requested window.
func (d *Driver) loadVoucherWindow(ctx context.Context, from, to time.Time) (int, error) {
	raw, err := d.client.FetchVouchers(ctx, from, to, d.company)
	if err != nil {
		return 0, fmt.Errorf("driver: failed to fetch vouchers %s..%s: %w",
			from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}

	vouchers, warns, err := tally.ParseVouchers(raw)
	if err != nil {
		return 0, fmt.Errorf("driver: failed to parse vouchers: %w", err)
	}
	d.logWarnings("vouchers", warns)

	count := 0
	for _, v := range vouchers {
		if v.Date.Before(dateOnly(from)) || v.Date.After(dateOnly(to)) {
			continue
		}

		if err := d.upsertVoucher(ctx, v); err != nil {
			d.logger.Error("failed to write voucher, skipping",
				slog.String("voucher_key", v.VoucherKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		count++
	}

	return count, nil
}

// previewVoucherWindow fetches and parses a window without writing, used by
// dry-run backfills to report what would change.
func (d *Driver) previewVoucherWindow(ctx context.Context, from, to time.Time) (int, error) {
	raw, err := d.client.FetchVouchers(ctx, from, to, d.company)
	if err != nil {
		return 0, fmt.Errorf("driver: failed to fetch vouchers %s..%s: %w",
			from.Format("2006-01-02"), to.Format("2006-01-02"), err)
	}

	vouchers, warns, err := tally.ParseVouchers(raw)
	if err != nil {
		return 0, fmt.Errorf("driver: failed to parse vouchers: %w", err)
	}
	d.logWarnings("vouchers (dry run)", warns)

	count := 0
	for _, v := range vouchers {
		if v.Date.Before(dateOnly(from)) || v.Date.After(dateOnly(to)) {
			continue
		}
		loaded, err := d.repo.IsVoucherLoaded(ctx, v.VoucherKey)
		if err != nil {
			return count, err
		}
		d.logger.Info("dry run voucher",
			slog.String("voucher_key", v.VoucherKey),
			slog.Bool("already_loaded", loaded),
			slog.Float64("total", v.Total),
		)
		count++
	}
	return count, nil
}

func (d *Driver) upsertVoucher(ctx context.Context, v tally.Voucher) error {
	header := &warehouse.InvoiceHeader{
		VoucherKey:   v.VoucherKey,
		VoucherType:  v.VoucherType,
		VoucherNo:    v.VoucherNo,
		Date:         v.Date,
		Subtotal:     v.Subtotal,
		Tax:          v.Tax,
		RoundOff:     v.RoundOff,
		Total:        v.Total,
		IsCreditNote: v.IsCreditNote,
	}
	customer := &warehouse.CustomerDim{
		Name:    v.PartyName,
		GSTIN:   v.PartyGSTIN,
		Pincode: v.PartyPincode,
		City:    v.PartyCity,
	}
	lines := make([]warehouse.InvoiceLine, 0, len(v.Lines))
	for _, l := range v.Lines {
		lines = append(lines, warehouse.InvoiceLine{
			ItemName: l.ItemOrLedgerName,
			Quantity: l.Quantity,
			Rate:     l.Rate,
			Basic:    l.Basic,
			Amount:   l.Amount,
		})
	}

	if err := d.repo.UpsertInvoice(ctx, header, customer, lines); err != nil {
		return err
	}

	// Every voucher type gets a header row above; Receipt vouchers
	// additionally mirror into the cashflow-focused receipt table. Payment
	// vouchers do not — the receipt table is receipts only.
	if v.VoucherType == "Receipt" {
		if err := d.repo.UpsertReceipt(ctx, &warehouse.Receipt{
			VoucherKey:   v.VoucherKey,
			VoucherType:  v.VoucherType,
			VoucherNo:    v.VoucherNo,
			Date:         v.Date,
			CustomerName: v.PartyName,
			Amount:       v.Total,
		}); err != nil {
			return err
		}
	}

	if len(v.BillAllocations) > 0 {
		rows := make([]warehouse.BillAllocationRow, 0, len(v.BillAllocations))
		for _, ba := range v.BillAllocations {
			rows = append(rows, warehouse.BillAllocationRow{
				LedgerName:   ba.LedgerName,
				BillName:     ba.Name,
				Amount:       ba.Amount,
				BillType:     ba.BillType,
				CreditPeriod: ba.CreditPeriod,
				VoucherDate:  v.Date,
			})
		}
		return d.repo.InsertBillAllocations(ctx, v.VoucherKey, rows)
	}

	return nil
}

func (d *Driver) logWarnings(context string, warns []tally.ParseWarning) {
	for _, w := range warns {
		d.logger.Warn("parse warning", slog.String("stream", context), slog.String("detail", w.String()))
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// fiscalYearStart returns April 1 of the fiscal year containing t (the
// Indian fiscal year runs April-March), the default incremental window
// start when no checkpoint has been written yet.
func fiscalYearStart(t time.Time) time.Time {
	year := t.Year()
	if t.Month() < time.April {
		year--
	}
	return time.Date(year, time.April, 1, 0, 0, 0, 0, t.Location())
}

func toLedgerGroupDims(in []tally.LedgerGroup) []warehouse.LedgerGroupDim {
	out := make([]warehouse.LedgerGroupDim, 0, len(in))
	for _, g := range in {
		out = append(out, warehouse.LedgerGroupDim{GUID: g.GUID, Name: g.Name, ParentName: g.ParentName, IsGroup: g.IsGroup})
	}
	return out
}

func toStockGroupDims(in []tally.StockGroup) []warehouse.StockGroupDim {
	out := make([]warehouse.StockGroupDim, 0, len(in))
	for _, g := range in {
		out = append(out, warehouse.StockGroupDim{GUID: g.GUID, Name: g.Name, ParentName: g.ParentName})
	}
	return out
}

func toUOMDims(in []tally.UOM) []warehouse.UOMDim {
	out := make([]warehouse.UOMDim, 0, len(in))
	for _, u := range in {
		out = append(out, warehouse.UOMDim{GUID: u.GUID, Name: u.Name, Symbol: u.Symbol})
	}
	return out
}

func toItemDims(in []tally.Item) []warehouse.ItemDim {
	out := make([]warehouse.ItemDim, 0, len(in))
	for _, it := range in {
		out = append(out, warehouse.ItemDim{GUID: it.GUID, Name: it.Name, GroupName: it.GroupName, BaseUnit: it.BaseUnit, HSNCode: it.HSNCode})
	}
	return out
}

func toOpeningBillRows(in []tally.OpeningBill) []warehouse.OpeningBillRow {
	out := make([]warehouse.OpeningBillRow, 0, len(in))
	for _, b := range in {
		out = append(out, warehouse.OpeningBillRow{LedgerName: b.LedgerName, BillName: b.BillName, Amount: b.Amount, BillType: b.BillType, CreditPeriod: b.CreditPeriod})
	}
	return out
}
