package warehouse

import (
	"sort"
	"time"
)

// Reconcile implements the receivables reconciliation algorithm: for every
// (ledger, bill) pair seen across the opening balances and the raw bill
// allocations, aggregate New Ref/Advance amounts into original,
// Agst Ref/On Account amounts into adjusted, and derive pending = original -
// adjusted. A due date is computed from the earliest New Ref/Advance
// movement's date plus its credit period, when a credit period is known.
// Bills that net to zero or below the reporting threshold are dropped.
func Reconcile(openings []OpeningBillRow, allocations []BillAllocationRow, asOf time.Time) []BillReceivableFact {
	type billKey struct {
		ledger string
		bill   string
	}

	type accumulator struct {
		openingOriginal float64 // opening_bill rows tagged New Ref/Advance
		allocOriginal   float64 // transactional rows tagged New Ref/Advance
		hasAllocNewRef  bool
		rawOpening      float64 // every opening_bill amount for the key, signed, regardless of tag
		adjusted        float64
		earliestRef     *time.Time
		creditDays      int
	}

	acc := make(map[billKey]*accumulator)

	get := func(ledger, bill string) *accumulator {
		k := billKey{ledger, bill}
		a, ok := acc[k]
		if !ok {
			a = &accumulator{}
			acc[k] = a
		}
		return a
	}

	for _, o := range openings {
		a := get(o.LedgerName, o.BillName)
		a.rawOpening += o.Amount
		switch o.BillType {
		case "New Ref", "Advance":
			a.openingOriginal += absAmount(o.Amount)
			if o.CreditPeriod > a.creditDays {
				a.creditDays = o.CreditPeriod
			}
		case "Agst Ref", "On Account":
			a.adjusted += absAmount(o.Amount)
		}
	}

	for _, m := range allocations {
		a := get(m.LedgerName, m.BillName)
		switch m.BillType {
		case "New Ref", "Advance":
			a.allocOriginal += absAmount(m.Amount)
			a.hasAllocNewRef = true
			if a.earliestRef == nil || m.VoucherDate.Before(*a.earliestRef) {
				t := m.VoucherDate
				a.earliestRef = &t
			}
			if m.CreditPeriod > a.creditDays {
				a.creditDays = m.CreditPeriod
			}
		case "Agst Ref", "On Account":
			a.adjusted += absAmount(m.Amount)
		}
	}

	facts := make([]BillReceivableFact, 0, len(acc))
	for k, a := range acc {
		// A New Ref/Advance movement seen during the window reconstructs the
		// bill's original amount on its own; the opening residual it
		// superseded must not also be added in, or the bill is double
		// counted. Absent such a movement, fall back to whatever the opening
		// snapshot itself carried, reconstructing from the raw balance plus
		// adjustments only when the opening row carried no New Ref/Advance
		// tag at all.
		var original float64
		switch {
		case a.hasAllocNewRef:
			original = a.allocOriginal
		case a.openingOriginal != 0:
			original = a.openingOriginal
		default:
			original = absAmount(a.rawOpening) + a.adjusted
		}

		pending := original - a.adjusted
		if pending <= 0.01 {
			continue
		}

		var dueDate *time.Time
		if a.earliestRef != nil && a.creditDays > 0 {
			d := a.earliestRef.AddDate(0, 0, a.creditDays)
			dueDate = &d
		}

		facts = append(facts, BillReceivableFact{
			LedgerName:  k.ledger,
			BillName:    k.bill,
			Original:    round2(original),
			Adjusted:    round2(a.adjusted),
			Pending:     round2(pending),
			DueDate:     dueDate,
			AgingBucket: AgingBucket(asOf, dueDate),
			AsOfDate:    asOf,
		})
	}

	sort.Slice(facts, func(i, j int) bool {
		if facts[i].LedgerName != facts[j].LedgerName {
			return facts[i].LedgerName < facts[j].LedgerName
		}
		return facts[i].BillName < facts[j].BillName
	})

	return facts
}

func absAmount(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
