package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReconcileScenario exercises the case where a ledger's opening balance
// and a same-window New Ref allocation both name the same bill: opening
// balance -50000 for (Acme, BILL-1); New Ref -100000 dated 2025-06-01 with a
// 30-day credit period; two Agst Ref entries +40000 and +30000 dated
// 2025-07-15. The New Ref reconstructs the bill's original amount on its
// own, so the opening residual it superseded must not also be folded in:
// original=100000.00, adjusted=70000.00, pending=30000.00, due_date=2025-07-01.
func TestReconcileScenario(t *testing.T) {
	openings := []OpeningBillRow{
		{LedgerName: "Acme", BillName: "BILL-1", Amount: -50000.00, BillType: "New Ref"},
	}
	allocations := []BillAllocationRow{
		{
			LedgerName:   "Acme",
			BillName:     "BILL-1",
			Amount:       -100000.00,
			BillType:     "New Ref",
			CreditPeriod: 30,
			VoucherDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			VoucherKey:   "inv-bill-1-key",
		},
		{
			LedgerName:  "Acme",
			BillName:    "BILL-1",
			Amount:      40000.00,
			BillType:    "Agst Ref",
			VoucherDate: time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
			VoucherKey:  "receipt-key-1",
		},
		{
			LedgerName:  "Acme",
			BillName:    "BILL-1",
			Amount:      30000.00,
			BillType:    "Agst Ref",
			VoucherDate: time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
			VoucherKey:  "receipt-key-2",
		},
	}

	asOf := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	facts := Reconcile(openings, allocations, asOf)
	require.Len(t, facts, 1)

	f := facts[0]
	assert.Equal(t, "Acme", f.LedgerName)
	assert.Equal(t, "BILL-1", f.BillName)
	assert.Equal(t, 100000.00, f.Original)
	assert.Equal(t, 70000.00, f.Adjusted)
	assert.Equal(t, 30000.00, f.Pending)
	require.NotNil(t, f.DueDate)
	assert.Equal(t, "2025-07-01", f.DueDate.Format("2006-01-02"))
	assert.Equal(t, Aging31To60, f.AgingBucket)
}

func TestReconcileDropsFullyAdjustedBills(t *testing.T) {
	allocations := []BillAllocationRow{
		{LedgerName: "Beta Corp", BillName: "INV-1", Amount: 5000, BillType: "New Ref", VoucherDate: time.Now()},
		{LedgerName: "Beta Corp", BillName: "INV-1", Amount: 5000, BillType: "Agst Ref", VoucherDate: time.Now()},
	}
	facts := Reconcile(nil, allocations, time.Now())
	assert.Empty(t, facts, "fully settled bills must not appear in the reconciled output")
}

func TestReconcileCombinesOpeningBalancesAndAllocations(t *testing.T) {
	openings := []OpeningBillRow{
		{LedgerName: "Gamma Traders", BillName: "OB-1", Amount: 20000, BillType: "New Ref", CreditPeriod: 30},
	}
	allocations := []BillAllocationRow{
		{LedgerName: "Gamma Traders", BillName: "OB-1", Amount: 15000, BillType: "Agst Ref", VoucherDate: time.Now()},
	}
	facts := Reconcile(openings, allocations, time.Now())
	require.Len(t, facts, 1)
	assert.Equal(t, 20000.00, facts[0].Original)
	assert.Equal(t, 15000.00, facts[0].Adjusted)
	assert.Equal(t, 5000.00, facts[0].Pending)
}

func TestAgingBucketNoDueDate(t *testing.T) {
	assert.Equal(t, AgingNoDueDate, AgingBucket(time.Now(), nil))
}

func TestAgingBucketNotDue(t *testing.T) {
	due := time.Now().AddDate(0, 0, 10)
	assert.Equal(t, AgingNotDue, AgingBucket(time.Now(), &due))
}
