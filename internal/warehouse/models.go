package warehouse

import (
	"time"

	"github.com/google/uuid"
)

// CustomerDim is a party (debtor/creditor ledger) dimension row.
type CustomerDim struct {
	CustomerID uuid.UUID
	Name       string
	GSTIN      string
	Pincode    string
	City       string
}

// LedgerGroupDim is a ledger/group hierarchy dimension row.
type LedgerGroupDim struct {
	GroupID    uuid.UUID
	GUID       string
	Name       string
	ParentName string
	IsGroup    bool
}

// StockGroupDim is a stock group hierarchy dimension row.
type StockGroupDim struct {
	GroupID    uuid.UUID
	GUID       string
	Name       string
	ParentName string
}

// UOMDim is a unit-of-measure dimension row.
type UOMDim struct {
	UOMID  uuid.UUID
	GUID   string
	Name   string
	Symbol string
}

// ItemDim is a stock item dimension row.
type ItemDim struct {
	ItemID    uuid.UUID
	GUID      string
	Name      string
	GroupName string
	BaseUnit  string
	HSNCode   string
}

// InvoiceHeader is one voucher's header row, the anchor for its InvoiceLine
// rows.
type InvoiceHeader struct {
	InvoiceID    uuid.UUID
	VoucherKey   string
	VoucherType  string
	VoucherNo    string
	Date         time.Time
	CustomerName string
	Subtotal     float64
	Tax          float64
	RoundOff     float64
	Total        float64
	IsCreditNote bool
}

// InvoiceLine is one line item under an invoice, with tax allocated
// proportionally to its basic amount.
type InvoiceLine struct {
	LineID      uuid.UUID
	InvoiceID   uuid.UUID
	LineNo      int
	ItemName    string
	Quantity    float64
	Rate        float64
	Basic       float64
	LineTax     float64
	Amount      float64
}

// Receipt is a Receipt voucher row, mirrored from the voucher's header row
// into a cashflow-focused table that carries no line items. Payment vouchers
// get no Receipt row.
type Receipt struct {
	ReceiptID    uuid.UUID
	VoucherKey   string
	VoucherType  string
	VoucherNo    string
	Date         time.Time
	CustomerName string
	Amount       float64
}

// OpeningBillRow is a carried-forward outstanding bill at ledger opening,
// the seed input to the reconciler.
type OpeningBillRow struct {
	LedgerName   string
	BillName     string
	Amount       float64
	BillType     string
	CreditPeriod int
}

// BillAllocationRow is a raw bill movement extracted from a voucher. This
// staging table has no abstract-schema counterpart; it exists so the
// reconciler can run as an independent second pass over already-loaded data
// rather than depending on the voucher loader's in-memory state.
type BillAllocationRow struct {
	AllocationID uuid.UUID
	LedgerName   string
	BillName     string
	Amount       float64
	BillType     string
	CreditPeriod int
	VoucherDate  time.Time
	VoucherKey   string
}

// BillReceivableFact is one reconciled outstanding-bill row.
type BillReceivableFact struct {
	FactID          uuid.UUID
	LedgerName      string
	BillName        string
	Original        float64
	Adjusted        float64
	Pending         float64
	DueDate         *time.Time
	AgingBucket     string
	AsOfDate        time.Time
}

// Checkpoint persists the incremental cursor for a stream.
type Checkpoint struct {
	Stream        string
	LastRunAt     time.Time
	LastVoucherAt *time.Time
}

// RunLog is one append-only ETL run record.
type RunLog struct {
	RunID     uuid.UUID
	Stream    string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    string
	RowCount  int
	ErrorText string
}

// Aging buckets for bill receivable facts.
const (
	AgingNoDueDate = "No Due Date"
	AgingNotDue    = "Not Due"
	Aging0To30     = "0-30 Days"
	Aging31To60    = "31-60 Days"
	Aging61To90    = "61-90 Days"
	Aging90Plus    = "90+ Days"
)

// AgingBucket classifies days-overdue into one of the six buckets above. A
// nil dueDate (no credit period known) is always "No Due Date".
func AgingBucket(asOf time.Time, dueDate *time.Time) string {
	if dueDate == nil {
		return AgingNoDueDate
	}

	days := int(asOf.Sub(*dueDate).Hours() / 24)
	switch {
	case days < 0:
		return AgingNotDue
	case days <= 30:
		return Aging0To30
	case days <= 60:
		return Aging31To60
	case days <= 90:
		return Aging61To90
	default:
		return Aging90Plus
	}
}
