package tally

import (
	"fmt"
	"math"
	"testing"
)

// approxEqual reports whether a and b are within a currency-rounding
// tolerance of each other, matching the 0.01 tolerance the warehouse
// invariants allow for derived tax/total amounts.
func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 0.01
}

// TestParseVouchersInventoryAndLedger covers a sales voucher carrying
// inventory, a bill allocation, and a party ledger line all at once: the
// party ledger amount (matched by LEDGERNAME against PARTYLEDGERNAME) must
// win over the bill allocation amount, recovering the tax that the
// inventory-only total misses: subtotal=100000.00, tax=18000.00,
// total=118000.00.
func TestParseVouchersInventoryAndLedger(t *testing.T) {
	xmlDoc := `<ENVELOPE><BODY><DATA><COLLECTION>
<VOUCHER>
  <GUID>abcd-1234</GUID>
  <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
  <VOUCHERNUMBER>S-101</VOUCHERNUMBER>
  <DATE>20251011</DATE>
  <PARTYLEDGERNAME>Acme Distributors</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Widget A</STOCKITEMNAME>
    <RATE>1000/Nos</RATE>
    <AMOUNT>100000.00</AMOUNT>
    <ACTUALQTY>100 Nos</ACTUALQTY>
  </ALLINVENTORYENTRIES.LIST>
  <LEDGERENTRIES.LIST>
    <LEDGERNAME>Acme Distributors</LEDGERNAME>
    <AMOUNT>118000.00</AMOUNT>
    <BILLALLOCATIONS.LIST>
      <NAME>BILL-1</NAME>
      <AMOUNT>-118000.00</AMOUNT>
      <BILLTYPE>New Ref</BILLTYPE>
    </BILLALLOCATIONS.LIST>
  </LEDGERENTRIES.LIST>
</VOUCHER>
</COLLECTION></DATA></BODY></ENVELOPE>`

	vouchers, warnings, err := ParseVouchers(xmlDoc)
	if err != nil {
		t.Fatalf("ParseVouchers error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(vouchers) != 1 {
		t.Fatalf("expected 1 voucher, got %d", len(vouchers))
	}

	v := vouchers[0]
	if v.Subtotal != 100000.00 {
		t.Errorf("subtotal = %v, want 100000.00", v.Subtotal)
	}
	if v.Tax != 18000.00 {
		t.Errorf("tax = %v, want 18000.00", v.Tax)
	}
	if v.Total != 118000.00 {
		t.Errorf("total = %v, want 118000.00", v.Total)
	}
	if v.VoucherKey != "abcd-1234" {
		t.Errorf("voucher key = %q, want GUID to be used first", v.VoucherKey)
	}
	if len(v.BillAllocations) != 1 || v.BillAllocations[0].Name != "BILL-1" {
		t.Errorf("expected one BILL-1 allocation, got %+v", v.BillAllocations)
	}
}

// TestParseVouchersCreditNoteNegatesAmounts verifies that credit notes and
// sales returns always carry negative economic amounts regardless of the
// sign the source exported them with.
func TestParseVouchersCreditNoteNegatesAmounts(t *testing.T) {
	xmlDoc := `<ENVELOPE><BODY><DATA><COLLECTION>
<VOUCHER>
  <GUID>guid-s2</GUID>
  <VOUCHERTYPENAME>Credit Note</VOUCHERTYPENAME>
  <VOUCHERNUMBER>CN-2001</VOUCHERNUMBER>
  <DATE>20260702</DATE>
  <PARTYLEDGERNAME>Acme Retail</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Widget A</STOCKITEMNAME>
    <AMOUNT>5000.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
  <ALLLEDGERENTRIES.LIST>
    <LEDGERNAME>Output CGST</LEDGERNAME>
    <AMOUNT>450.00</AMOUNT>
  </ALLLEDGERENTRIES.LIST>
</VOUCHER>
</COLLECTION></DATA></BODY></ENVELOPE>`

	vouchers, _, err := ParseVouchers(xmlDoc)
	if err != nil {
		t.Fatalf("ParseVouchers error: %v", err)
	}
	v := vouchers[0]
	if v.Subtotal >= 0 {
		t.Errorf("credit note subtotal must be negative, got %v", v.Subtotal)
	}
	if v.Total >= 0 {
		t.Errorf("credit note total must be negative, got %v", v.Total)
	}
	if v.Lines[0].Amount >= 0 {
		t.Errorf("credit note line amount must be negative, got %v", v.Lines[0].Amount)
	}
}

// TestParseVouchersMissingBillAllocationUsesLedgerTotal covers the variant
// export shape with no bill allocation at all: inventory total 78559.29
// against a party ledger line of -92700.00. The matched ledger amount still
// wins over the inventory-only total, recovering tax=14140.71.
func TestParseVouchersMissingBillAllocationUsesLedgerTotal(t *testing.T) {
	xmlDoc := `<ENVELOPE><BODY><DATA><COLLECTION>
<VOUCHER>
  <GUID>guid-s3</GUID>
  <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
  <VOUCHERNUMBER>INV-3001</VOUCHERNUMBER>
  <DATE>20260703</DATE>
  <PARTYLEDGERNAME>Beta Corp</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Gadget B</STOCKITEMNAME>
    <AMOUNT>78559.29</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
  <LEDGERENTRIES.LIST>
    <LEDGERNAME>Beta Corp</LEDGERNAME>
    <AMOUNT>-92700.00</AMOUNT>
  </LEDGERENTRIES.LIST>
</VOUCHER>
</COLLECTION></DATA></BODY></ENVELOPE>`

	vouchers, _, err := ParseVouchers(xmlDoc)
	if err != nil {
		t.Fatalf("ParseVouchers error: %v", err)
	}
	v := vouchers[0]
	if !approxEqual(v.Subtotal, 78559.29) {
		t.Errorf("subtotal = %v, want 78559.29", v.Subtotal)
	}
	if !approxEqual(v.Total, 92700.00) {
		t.Errorf("total = %v, want 92700.00", v.Total)
	}
	if !approxEqual(v.Tax, 14140.71) {
		t.Errorf("tax = %v, want 14140.71", v.Tax)
	}
}

// TestVoucherKeyDistinctByRemoteID verifies that vouchers lacking GUID but
// carrying distinct RemoteIDs must not collide.
func TestVoucherKeyDistinctByRemoteID(t *testing.T) {
	xmlDoc := `<ENVELOPE><BODY><DATA><COLLECTION>
<VOUCHER>
  <REMOTEID>remote-1</REMOTEID>
  <VOUCHERTYPENAME>Payment</VOUCHERTYPENAME>
  <DATE>20260704</DATE>
  <PARTYLEDGERNAME>Gamma Traders</PARTYLEDGERNAME>
</VOUCHER>
<VOUCHER>
  <REMOTEID>remote-2</REMOTEID>
  <VOUCHERTYPENAME>Payment</VOUCHERTYPENAME>
  <DATE>20260704</DATE>
  <PARTYLEDGERNAME>Gamma Traders</PARTYLEDGERNAME>
</VOUCHER>
</COLLECTION></DATA></BODY></ENVELOPE>`

	vouchers, _, err := ParseVouchers(xmlDoc)
	if err != nil {
		t.Fatalf("ParseVouchers error: %v", err)
	}
	if len(vouchers) != 2 {
		t.Fatalf("expected 2 vouchers, got %d", len(vouchers))
	}
	if vouchers[0].VoucherKey == vouchers[1].VoucherKey {
		t.Fatalf("voucher keys must be distinct: both = %q", vouchers[0].VoucherKey)
	}
	if vouchers[0].VoucherKey != "remote-1" || vouchers[1].VoucherKey != "remote-2" {
		t.Errorf("expected RemoteID to be promoted into the key slot, got %q and %q",
			vouchers[0].VoucherKey, vouchers[1].VoucherKey)
	}
}

// TestVoucherKeyFallsBackToHash verifies that vouchers with no GUID,
// RemoteID, or voucher number get a hash-fallback key prefixed with
// type/date/party#, and that two such vouchers differing only in amount get
// distinct keys.
func TestVoucherKeyFallsBackToHash(t *testing.T) {
	xmlDoc := `<ENVELOPE><BODY><DATA><COLLECTION>
<VOUCHER>
  <VOUCHERTYPENAME>Journal</VOUCHERTYPENAME>
  <DATE>20260705</DATE>
  <PARTYLEDGERNAME>Delta Inc</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Misc</STOCKITEMNAME>
    <AMOUNT>1000.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
</VOUCHER>
<VOUCHER>
  <VOUCHERTYPENAME>Journal</VOUCHERTYPENAME>
  <DATE>20260705</DATE>
  <PARTYLEDGERNAME>Delta Inc</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Misc</STOCKITEMNAME>
    <AMOUNT>2000.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
</VOUCHER>
</COLLECTION></DATA></BODY></ENVELOPE>`

	vouchers, _, err := ParseVouchers(xmlDoc)
	if err != nil {
		t.Fatalf("ParseVouchers error: %v", err)
	}
	if vouchers[0].VoucherKey == vouchers[1].VoucherKey {
		t.Errorf("distinct amounts must hash to distinct keys, both = %q", vouchers[0].VoucherKey)
	}
	for _, v := range vouchers {
		want := fmt.Sprintf("%s/%s/%s#", v.VoucherType, v.Date.Format("2006-01-02"), v.PartyName)
		if len(v.VoucherKey) <= len(want) || v.VoucherKey[:len(want)] != want {
			t.Errorf("hash fallback key %q does not have expected prefix %q", v.VoucherKey, want)
		}
	}
}

func TestParseVouchersWarnsOnAmountlessRecordWithoutAbortingBatch(t *testing.T) {
	xmlDoc := `<ENVELOPE><BODY><DATA><COLLECTION>
<VOUCHER>
  <GUID>guid-ok</GUID>
  <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
  <DATE>20260706</DATE>
  <PARTYLEDGERNAME>Epsilon LLC</PARTYLEDGERNAME>
  <ALLINVENTORYENTRIES.LIST>
    <STOCKITEMNAME>Item</STOCKITEMNAME>
    <AMOUNT>500.00</AMOUNT>
  </ALLINVENTORYENTRIES.LIST>
</VOUCHER>
<VOUCHER>
  <GUID>guid-no-amounts</GUID>
  <VOUCHERTYPENAME>Journal</VOUCHERTYPENAME>
  <DATE>20260706</DATE>
  <PARTYLEDGERNAME>Zeta Co</PARTYLEDGERNAME>
</VOUCHER>
</COLLECTION></DATA></BODY></ENVELOPE>`

	vouchers, warnings, err := ParseVouchers(xmlDoc)
	if err != nil {
		t.Fatalf("ParseVouchers error: %v", err)
	}
	if len(vouchers) != 2 {
		t.Fatalf("expected both vouchers to parse (case E logs a warning, doesn't drop), got %d", len(vouchers))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning for the amount-less voucher, got %d: %v", len(warnings), warnings)
	}
}
