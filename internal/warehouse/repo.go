// Package warehouse provides the repository layer for the relational
// analytics warehouse that the Tally ETL pipeline writes into. It implements
// idempotent upsert operations keyed on voucher_key / natural master keys
// rather than surrogate per-row identity, so re-running any stream is safe.
//
// Usage:
//
//	repo, err := warehouse.NewRepo(ctx, cfg.Database, logger)
//	if err != nil {
//	    log.Fatal("failed to open warehouse:", err)
//	}
//	defer repo.Close()
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
)

// Repo provides database operations for the data warehouse.
type Repo struct {
	db     *PostgresPool
	logger *slog.Logger
}

// NewRepo opens a connection pool for the warehouse database.
func NewRepo(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := NewPostgresPoolWithConfig(ctx, &PoolConfig{
		DSN:               databaseDSN(cfg),
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		MaxConnIdleTime:   cfg.MaxConnIdleTime,
		HealthCheckPeriod: cfg.HealthCheckPeriod,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	return &Repo{db: pool, logger: logger}, nil
}

// databaseDSN mirrors config.Config.DatabaseDSN's precedence (explicit URL
// wins) so the warehouse package doesn't need to import the full Config type.
func databaseDSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)
}

// Close releases the connection pool.
func (r *Repo) Close() {
	r.db.Close()
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// ExecuteInTx runs fn inside a transaction, rolling back on any error and on
// panic. Each voucher's customer/header/lines rows are written in a single
// transaction so a failure mid-voucher never leaves a partially-written row
// set; its receipt and bill-allocation rows are written afterwards, outside
// that transaction.
func (r *Repo) ExecuteInTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("warehouse: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("warehouse: failed to commit transaction: %w", err)
	}
	return nil
}

// WithStreamLock serializes fn against any other process holding the same
// named lock, using a Postgres session-level advisory lock keyed on the
// stream name's FNV hash. Opening-bill loading, voucher loading, and
// reconciliation all take a stream lock so two runs never interleave writes
// against the same stream, without a separate coordination store.
func (r *Repo) WithStreamLock(ctx context.Context, stream string, fn func(ctx context.Context) error) error {
	conn, err := r.db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("warehouse: failed to acquire connection for lock: %w", err)
	}
	defer conn.Release()

	h := fnv.New64a()
	h.Write([]byte(stream))
	key := int64(h.Sum64())

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return fmt.Errorf("warehouse: failed to acquire advisory lock for %s: %w", stream, err)
	}
	defer conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", key)

	return fn(ctx)
}

// UpsertCustomer inserts or updates a customer (party ledger) dimension row,
// keyed on name since Tally parties rarely carry a stable GUID across
// exports. Stores the customer's surrogate id in c.CustomerID.
func (r *Repo) UpsertCustomer(ctx context.Context, c *CustomerDim) error {
	query := `
		INSERT INTO customer_dim (name, gstin, pincode, city)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			gstin = COALESCE(NULLIF(EXCLUDED.gstin, ''), customer_dim.gstin),
			pincode = COALESCE(NULLIF(EXCLUDED.pincode, ''), customer_dim.pincode),
			city = COALESCE(NULLIF(EXCLUDED.city, ''), customer_dim.city)
		RETURNING customer_id
	`
	return r.db.pool.QueryRow(ctx, query, c.Name, c.GSTIN, c.Pincode, c.City).Scan(&c.CustomerID)
}

// upsertCustomerTx is UpsertCustomer run on an existing transaction, used by
// UpsertInvoice to guarantee the customer row exists before the FK-bearing
// invoice row is written.
func upsertCustomerTx(ctx context.Context, tx pgx.Tx, c *CustomerDim) error {
	query := `
		INSERT INTO customer_dim (name, gstin, pincode, city)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			gstin = COALESCE(NULLIF(EXCLUDED.gstin, ''), customer_dim.gstin),
			pincode = COALESCE(NULLIF(EXCLUDED.pincode, ''), customer_dim.pincode),
			city = COALESCE(NULLIF(EXCLUDED.city, ''), customer_dim.city)
		RETURNING customer_id
	`
	return tx.QueryRow(ctx, query, c.Name, c.GSTIN, c.Pincode, c.City).Scan(&c.CustomerID)
}

// UpsertInvoice writes an invoice header, its customer dimension row, and
// its line items in one transaction. Lines are replaced wholesale
// (delete-then-insert) since a re-fetched voucher's line count can change
// between runs.
func (r *Repo) UpsertInvoice(ctx context.Context, h *InvoiceHeader, customer *CustomerDim, lines []InvoiceLine) error {
	return r.ExecuteInTx(ctx, func(tx pgx.Tx) error {
		if err := upsertCustomerTx(ctx, tx, customer); err != nil {
			return fmt.Errorf("warehouse: failed to upsert customer %s: %w", customer.Name, err)
		}
		h.CustomerName = customer.Name

		query := `
			INSERT INTO invoice_header (
				voucher_key, voucher_type, voucher_no, voucher_date,
				customer_id, subtotal, tax, round_off, total, is_credit_note
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (voucher_key) DO UPDATE SET
				voucher_type = EXCLUDED.voucher_type,
				voucher_no = EXCLUDED.voucher_no,
				voucher_date = EXCLUDED.voucher_date,
				customer_id = EXCLUDED.customer_id,
				subtotal = EXCLUDED.subtotal,
				tax = EXCLUDED.tax,
				round_off = EXCLUDED.round_off,
				total = EXCLUDED.total,
				is_credit_note = EXCLUDED.is_credit_note
			RETURNING invoice_id
		`
		if err := tx.QueryRow(ctx, query,
			h.VoucherKey, h.VoucherType, h.VoucherNo, h.Date,
			customer.CustomerID, h.Subtotal, h.Tax, h.RoundOff, h.Total, h.IsCreditNote,
		).Scan(&h.InvoiceID); err != nil {
			return fmt.Errorf("warehouse: failed to upsert invoice %s: %w", h.VoucherKey, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM invoice_line WHERE invoice_id = $1`, h.InvoiceID); err != nil {
			return fmt.Errorf("warehouse: failed to clear invoice lines for %s: %w", h.VoucherKey, err)
		}

		allocateLineTax(h.Tax, lines)

		batch := &pgx.Batch{}
		lineQuery := `
			INSERT INTO invoice_line (invoice_id, line_no, item_name, quantity, rate, basic, line_tax, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for i := range lines {
			lines[i].InvoiceID = h.InvoiceID
			lines[i].LineNo = i + 1
			batch.Queue(lineQuery, h.InvoiceID, lines[i].LineNo, lines[i].ItemName,
				lines[i].Quantity, lines[i].Rate, lines[i].Basic, lines[i].LineTax, lines[i].Amount)
		}

		if batch.Len() > 0 {
			results := tx.SendBatch(ctx, batch)
			defer results.Close()
			for i := 0; i < batch.Len(); i++ {
				if _, err := results.Exec(); err != nil {
					return fmt.Errorf("warehouse: failed to insert invoice line %d for %s: %w", i+1, h.VoucherKey, err)
				}
			}
		}

		return nil
	})
}

// allocateLineTax distributes a voucher's total tax across its lines in
// proportion to each line's basic amount, with the last line absorbing the
// rounding residual so the line-tax sum matches the voucher tax exactly.
func allocateLineTax(totalTax float64, lines []InvoiceLine) {
	if len(lines) == 0 || totalTax == 0 {
		return
	}

	var basicSum float64
	for _, l := range lines {
		basicSum += l.Basic
	}
	if basicSum == 0 {
		return
	}

	var allocated float64
	for i := range lines {
		share := round2(lines[i].Basic / basicSum * totalTax)
		lines[i].LineTax = share
		allocated += share
	}

	residual := round2(totalTax - allocated)
	if residual != 0 {
		lines[len(lines)-1].LineTax = round2(lines[len(lines)-1].LineTax + residual)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// UpsertReceipt inserts or updates a receipt row. The driver calls it for
// Receipt vouchers only.
func (r *Repo) UpsertReceipt(ctx context.Context, rec *Receipt) error {
	query := `
		INSERT INTO receipt (voucher_key, voucher_type, voucher_no, voucher_date, customer_name, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (voucher_key) DO UPDATE SET
			voucher_type = EXCLUDED.voucher_type,
			voucher_no = EXCLUDED.voucher_no,
			voucher_date = EXCLUDED.voucher_date,
			customer_name = EXCLUDED.customer_name,
			amount = EXCLUDED.amount
		RETURNING receipt_id
	`
	return r.db.pool.QueryRow(ctx, query,
		rec.VoucherKey, rec.VoucherType, rec.VoucherNo, rec.Date, rec.CustomerName, rec.Amount,
	).Scan(&rec.ReceiptID)
}

// BulkUpsertLedgerGroups upserts ledger/group master rows, keyed on name. A
// non-empty GUID is stored on the row but is not used to match existing
// rows.
func (r *Repo) BulkUpsertLedgerGroups(ctx context.Context, groups []LedgerGroupDim) error {
	if len(groups) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO ledger_group_dim (guid, name, parent_name, is_group)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			guid = COALESCE(NULLIF(EXCLUDED.guid, ''), ledger_group_dim.guid),
			parent_name = EXCLUDED.parent_name,
			is_group = EXCLUDED.is_group
		RETURNING group_id
	`
	for _, g := range groups {
		batch.Queue(query, g.GUID, g.Name, g.ParentName, g.IsGroup)
	}

	results := r.db.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i, g := range groups {
		if err := results.QueryRow().Scan(&g.GroupID); err != nil {
			return fmt.Errorf("warehouse: failed to upsert ledger/group %d/%d (%s): %w", i+1, len(groups), g.Name, err)
		}
	}
	return nil
}

// BulkUpsertStockGroups upserts stock group hierarchy rows.
func (r *Repo) BulkUpsertStockGroups(ctx context.Context, groups []StockGroupDim) error {
	if len(groups) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO stock_group_dim (guid, name, parent_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			guid = COALESCE(NULLIF(EXCLUDED.guid, ''), stock_group_dim.guid),
			parent_name = EXCLUDED.parent_name
		RETURNING group_id
	`
	for _, g := range groups {
		batch.Queue(query, g.GUID, g.Name, g.ParentName)
	}

	results := r.db.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i, g := range groups {
		if err := results.QueryRow().Scan(&g.GroupID); err != nil {
			return fmt.Errorf("warehouse: failed to upsert stock group %d/%d (%s): %w", i+1, len(groups), g.Name, err)
		}
	}
	return nil
}

// BulkUpsertUOMs upserts unit-of-measure rows.
func (r *Repo) BulkUpsertUOMs(ctx context.Context, uoms []UOMDim) error {
	if len(uoms) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO uom_dim (guid, name, symbol)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			guid = COALESCE(NULLIF(EXCLUDED.guid, ''), uom_dim.guid),
			symbol = EXCLUDED.symbol
		RETURNING uom_id
	`
	for _, u := range uoms {
		batch.Queue(query, u.GUID, u.Name, u.Symbol)
	}

	results := r.db.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i, u := range uoms {
		if err := results.QueryRow().Scan(&u.UOMID); err != nil {
			return fmt.Errorf("warehouse: failed to upsert unit %d/%d (%s): %w", i+1, len(uoms), u.Name, err)
		}
	}
	return nil
}

// BulkUpsertItems upserts stock item dimension rows.
func (r *Repo) BulkUpsertItems(ctx context.Context, items []ItemDim) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO item_dim (guid, name, group_name, base_unit, hsn_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			guid = COALESCE(NULLIF(EXCLUDED.guid, ''), item_dim.guid),
			group_name = EXCLUDED.group_name,
			base_unit = EXCLUDED.base_unit,
			hsn_code = COALESCE(NULLIF(EXCLUDED.hsn_code, ''), item_dim.hsn_code)
		RETURNING item_id
	`
	for _, it := range items {
		batch.Queue(query, it.GUID, it.Name, it.GroupName, it.BaseUnit, it.HSNCode)
	}

	results := r.db.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i, it := range items {
		if err := results.QueryRow().Scan(&it.ItemID); err != nil {
			return fmt.Errorf("warehouse: failed to upsert item %d/%d (%s): %w", i+1, len(items), it.Name, err)
		}
	}
	return nil
}

// ReplaceOpeningBills clears and reloads the opening-bill staging rows for a
// full resync. Opening bills are a full-replace input, not an incremental
// one: they're read once per reconciliation run.
func (r *Repo) ReplaceOpeningBills(ctx context.Context, bills []OpeningBillRow) error {
	return r.ExecuteInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM opening_bill`); err != nil {
			return fmt.Errorf("warehouse: failed to clear opening bills: %w", err)
		}

		batch := &pgx.Batch{}
		query := `
			INSERT INTO opening_bill (ledger_name, bill_name, amount, bill_type, credit_period)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, b := range bills {
			batch.Queue(query, b.LedgerName, b.BillName, b.Amount, b.BillType, b.CreditPeriod)
		}

		if batch.Len() > 0 {
			results := tx.SendBatch(ctx, batch)
			defer results.Close()
			for i := 0; i < batch.Len(); i++ {
				if _, err := results.Exec(); err != nil {
					return fmt.Errorf("warehouse: failed to insert opening bill %d/%d: %w", i+1, batch.Len(), err)
				}
			}
		}
		return nil
	})
}

// InsertBillAllocations appends raw bill movements extracted from vouchers.
// Existing rows for the same voucher are replaced so reprocessing a voucher
// (e.g. during backfill) doesn't double-count its movements.
func (r *Repo) InsertBillAllocations(ctx context.Context, voucherKey string, allocations []BillAllocationRow) error {
	return r.ExecuteInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM bill_allocation WHERE voucher_key = $1`, voucherKey); err != nil {
			return fmt.Errorf("warehouse: failed to clear bill allocations for %s: %w", voucherKey, err)
		}

		if len(allocations) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		query := `
			INSERT INTO bill_allocation (ledger_name, bill_name, amount, bill_type, credit_period, voucher_date, voucher_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for _, a := range allocations {
			batch.Queue(query, a.LedgerName, a.BillName, a.Amount, a.BillType, a.CreditPeriod, a.VoucherDate, voucherKey)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("warehouse: failed to insert bill allocation %d/%d for %s: %w", i+1, batch.Len(), voucherKey, err)
			}
		}
		return nil
	})
}

// AllBillMovements returns every opening bill and raw bill allocation row,
// the input set the reconciler aggregates over.
func (r *Repo) AllBillMovements(ctx context.Context) ([]OpeningBillRow, []BillAllocationRow, error) {
	var openings []OpeningBillRow
	rows, err := r.db.pool.Query(ctx, `SELECT ledger_name, bill_name, amount, bill_type, credit_period FROM opening_bill`)
	if err != nil {
		return nil, nil, fmt.Errorf("warehouse: failed to read opening bills: %w", err)
	}
	for rows.Next() {
		var b OpeningBillRow
		if err := rows.Scan(&b.LedgerName, &b.BillName, &b.Amount, &b.BillType, &b.CreditPeriod); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("warehouse: failed to scan opening bill: %w", err)
		}
		openings = append(openings, b)
	}
	rows.Close()

	var allocations []BillAllocationRow
	rows, err = r.db.pool.Query(ctx, `SELECT ledger_name, bill_name, amount, bill_type, credit_period, voucher_date, voucher_key FROM bill_allocation`)
	if err != nil {
		return nil, nil, fmt.Errorf("warehouse: failed to read bill allocations: %w", err)
	}
	for rows.Next() {
		var a BillAllocationRow
		if err := rows.Scan(&a.LedgerName, &a.BillName, &a.Amount, &a.BillType, &a.CreditPeriod, &a.VoucherDate, &a.VoucherKey); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("warehouse: failed to scan bill allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	rows.Close()

	return openings, allocations, nil
}

// ReplaceBillReceivableFacts clears and reloads the reconciled aging facts,
// since the reconciler always recomputes the full set rather than an
// incremental delta.
func (r *Repo) ReplaceBillReceivableFacts(ctx context.Context, asOf time.Time, facts []BillReceivableFact) error {
	return r.ExecuteInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM bill_receivable_fact`); err != nil {
			return fmt.Errorf("warehouse: failed to clear bill receivable facts: %w", err)
		}

		batch := &pgx.Batch{}
		query := `
			INSERT INTO bill_receivable_fact (ledger_name, bill_name, original, adjusted, pending, due_date, aging_bucket, as_of_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for _, f := range facts {
			batch.Queue(query, f.LedgerName, f.BillName, f.Original, f.Adjusted, f.Pending, f.DueDate, f.AgingBucket, asOf)
		}

		if batch.Len() > 0 {
			results := tx.SendBatch(ctx, batch)
			defer results.Close()
			for i := 0; i < batch.Len(); i++ {
				if _, err := results.Exec(); err != nil {
					return fmt.Errorf("warehouse: failed to insert bill receivable fact %d/%d: %w", i+1, batch.Len(), err)
				}
			}
		}
		return nil
	})
}

// ReadCheckpoint returns the persisted cursor for a stream, or a zero-value
// Checkpoint if one has never been written.
func (r *Repo) ReadCheckpoint(ctx context.Context, stream string) (Checkpoint, error) {
	var cp Checkpoint
	cp.Stream = stream
	query := `SELECT last_run_at, last_voucher_at FROM checkpoint WHERE stream = $1`
	err := r.db.pool.QueryRow(ctx, query, stream).Scan(&cp.LastRunAt, &cp.LastVoucherAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cp, nil
		}
		return cp, fmt.Errorf("warehouse: failed to read checkpoint for %s: %w", stream, err)
	}
	return cp, nil
}

// WriteCheckpoint persists the cursor for a stream.
func (r *Repo) WriteCheckpoint(ctx context.Context, cp Checkpoint) error {
	query := `
		INSERT INTO checkpoint (stream, last_run_at, last_voucher_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_voucher_at = EXCLUDED.last_voucher_at
	`
	_, err := r.db.pool.Exec(ctx, query, cp.Stream, cp.LastRunAt, cp.LastVoucherAt)
	if err != nil {
		return fmt.Errorf("warehouse: failed to write checkpoint for %s: %w", cp.Stream, err)
	}
	return nil
}

// StartRunLog appends a new run_log row in "running" state and returns its id.
func (r *Repo) StartRunLog(ctx context.Context, stream string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `
		INSERT INTO run_log (stream, started_at, status)
		VALUES ($1, NOW(), 'running')
		RETURNING run_id
	`
	err := r.db.pool.QueryRow(ctx, query, stream).Scan(&id)
	if err != nil {
		return id, fmt.Errorf("warehouse: failed to start run log for %s: %w", stream, err)
	}
	return id, nil
}

// FinishRunLog closes out a run_log row with its terminal status.
func (r *Repo) FinishRunLog(ctx context.Context, runID uuid.UUID, status string, rowCount int, errText string) error {
	query := `
		UPDATE run_log
		SET ended_at = NOW(), status = $2, row_count = $3, error_text = $4
		WHERE run_id = $1
	`
	_, err := r.db.pool.Exec(ctx, query, runID, status, rowCount, errText)
	if err != nil {
		return fmt.Errorf("warehouse: failed to finish run log %s: %w", runID, err)
	}
	return nil
}

// GetTableStats returns a row count for an arbitrary warehouse table.
func (r *Repo) GetTableStats(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{table}.Sanitize())
	if err := r.db.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("warehouse: failed to get table stats for %s: %w", table, err)
	}
	return count, nil
}

// IsVoucherLoaded checks whether a voucher_key already has an invoice or
// receipt row, used by dry-run backfill reporting.
func (r *Repo) IsVoucherLoaded(ctx context.Context, voucherKey string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(SELECT 1 FROM invoice_header WHERE voucher_key = $1)
		OR EXISTS(SELECT 1 FROM receipt WHERE voucher_key = $1)
	`
	if err := r.db.pool.QueryRow(ctx, query, voucherKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("warehouse: failed to check voucher existence for %s: %w", voucherKey, err)
	}
	return exists, nil
}
