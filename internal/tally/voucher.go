package tally

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Voucher is the normalized record produced by ParseVouchers: one row per
// source VOUCHER element, carrying everything downstream upsert/reconcile
// logic needs without re-walking the XML.
type Voucher struct {
	VoucherKey   string
	GUID         string
	RemoteID     string
	VoucherType  string
	VoucherNo    string
	Date         time.Time
	PartyName    string
	PartyGSTIN   string
	PartyPincode string
	PartyCity    string

	Subtotal float64
	Tax      float64
	RoundOff float64
	Total    float64

	IsCreditNote bool

	Lines            []VoucherLine
	BillAllocations  []BillAllocation
}

// VoucherLine is one inventory or ledger entry line within a voucher.
type VoucherLine struct {
	ItemOrLedgerName string
	Quantity         float64
	Rate             float64
	Amount           float64
	Basic            float64
	Tax              float64
}

// BillAllocation is one BILLALLOCATIONS.LIST entry, carrying the bill
// reference information the receivables reconciler needs.
type BillAllocation struct {
	Name          string
	Amount        float64
	BillType      string // "New Ref", "Agst Ref", "Advance", "On Account"
	CreditPeriod  int
	LedgerName    string
}

// rawVoucherEnvelope is the shape ParseVouchers unmarshals into: a collection of
// VOUCHER elements nested under ENVELOPE/BODY/DATA/COLLECTION/VOUCHER, which
// is how Tally's XML export nests report data regardless of report name.
type rawVoucherEnvelope struct {
	XMLName xml.Name `xml:"ENVELOPE"`
	Body    struct {
		Data struct {
			Collection struct {
				Vouchers []rawVoucher `xml:"VOUCHER"`
			} `xml:"COLLECTION"`
		} `xml:"DATA"`
	} `xml:"BODY"`
}

type rawVoucher struct {
	GUID            string `xml:"GUID"`
	RemoteID        string `xml:"REMOTEID"`
	VchType         string `xml:"VOUCHERTYPENAME"`
	VchNumber       string `xml:"VOUCHERNUMBER"`
	Date            string `xml:"DATE"`
	PartyLedgerName string `xml:"PARTYLEDGERNAME"`
	BasicBuyerAddr  string `xml:"BASICBUYERADDRESS"`
	PartyGSTIN      string `xml:"PARTYGSTIN"`
	Amount          string `xml:"AMOUNT"`

	AllInventoryEntries []rawInventoryEntry `xml:"ALLINVENTORYENTRIES.LIST"`
	LedgerEntries       []rawLedgerEntry    `xml:"LEDGERENTRIES.LIST"`
	AllLedgerEntries    []rawLedgerEntry    `xml:"ALLLEDGERENTRIES.LIST"`
}

type rawInventoryEntry struct {
	StockItemName string  `xml:"STOCKITEMNAME"`
	Rate          string  `xml:"RATE"`
	Amount        string  `xml:"AMOUNT"`
	ActualQty     string  `xml:"ACTUALQTY"`
	BillAllocs    []rawBillAllocation `xml:"ACCOUNTINGALLOCATIONS.LIST>BILLALLOCATIONS.LIST"`
}

type rawLedgerEntry struct {
	LedgerName string              `xml:"LEDGERNAME"`
	Amount     string              `xml:"AMOUNT"`
	IsDeemed   string              `xml:"ISDEEMEDPOSITIVE"`
	BillAllocs []rawBillAllocation `xml:"BILLALLOCATIONS.LIST"`
}

type rawBillAllocation struct {
	Name         string `xml:"NAME"`
	Amount       string `xml:"AMOUNT"`
	BillType     string `xml:"BILLTYPE"`
	CreditPeriod string `xml:"BILLCREDITPERIOD"`
}

// creditNoteMarkers are voucher type names treated as credit notes / sales
// returns / debit notes for the purpose of sign normalization.
var creditNoteMarkers = []string{"credit note", "sales return", "debit note"}

// singleLedgerTagTypes are the voucher types whose party ledger line is
// exported under LEDGERENTRIES.LIST (single "R"). Every other voucher type
// (receipts, payments, journals) carries it under ALLLEDGERENTRIES.LIST
// instead. Picking the wrong tag for a given voucher type finds no line and
// silently yields zero tax, so this choice is keyed off VCHTYPE, never off
// which tag happens to be non-empty in the document.
var singleLedgerTagTypes = []string{
	"invoice", "sales", "credit note", "sales return",
	"purchase", "purchase return", "debit note",
}

// partyLedgerPrefixLen is the fallback comparison length when a ledger line's
// name doesn't match the party name exactly (truncated display names in some
// exports).
const partyLedgerPrefixLen = 15

// ParseVouchers extracts Voucher records from a Voucher Register export
// document. Every VOUCHER element of a well-formed document yields a record;
// an unparsable date or a voucher with no resolvable amount is reported as a
// warning and the record is kept. A document that is not well-formed XML
// fails as a whole with an error; no individual VOUCHER is skipped.
func ParseVouchers(responseXML string) ([]Voucher, []ParseWarning, error) {
	var env rawVoucherEnvelope
	if err := xml.Unmarshal([]byte(responseXML), &env); err != nil {
		return nil, nil, fmt.Errorf("tally: unparsable voucher response: %w", err)
	}

	vouchers := make([]Voucher, 0, len(env.Body.Data.Collection.Vouchers))
	var warnings []ParseWarning

	for i, raw := range env.Body.Data.Collection.Vouchers {
		v, warns, err := parseOneVoucher(raw)
		if err != nil {
			warnings = append(warnings, ParseWarning{
				Context: fmt.Sprintf("voucher %d", i),
				Reason:  err.Error(),
			})
			continue
		}
		warnings = append(warnings, warns...)
		vouchers = append(vouchers, v)
	}

	return vouchers, warnings, nil
}

func parseOneVoucher(raw rawVoucher) (Voucher, []ParseWarning, error) {
	var warnings []ParseWarning

	date, err := ParseTallyDate(raw.Date)
	if err != nil {
		// Fall back to today rather than dropping the voucher.
		date = time.Now().UTC()
		warnings = append(warnings, ParseWarning{
			Context: fmt.Sprintf("voucher %s %s", raw.VchType, raw.VchNumber),
			Reason:  fmt.Sprintf("unparsable date %q, defaulted to today", raw.Date),
		})
	}

	v := Voucher{
		GUID:        strings.TrimSpace(raw.GUID),
		RemoteID:    strings.TrimSpace(raw.RemoteID),
		VoucherType: strings.TrimSpace(raw.VchType),
		VoucherNo:   strings.TrimSpace(raw.VchNumber),
		Date:        date,
		PartyName:   strings.TrimSpace(raw.PartyLedgerName),
		PartyGSTIN:  strings.TrimSpace(raw.PartyGSTIN),
	}
	v.PartyPincode, v.PartyCity = extractAddressParts(raw.BasicBuyerAddr)
	v.IsCreditNote = matchesAny(v.VoucherType, creditNoteMarkers)

	// The party ledger line lives under LEDGERENTRIES.LIST for invoice-like
	// voucher types and under ALLLEDGERENTRIES.LIST for everything else. The
	// choice is keyed off VCHTYPE, not off which tag happens to carry data.
	ledgerEntries := raw.AllLedgerEntries
	if matchesExactly(v.VoucherType, singleLedgerTagTypes) {
		ledgerEntries = raw.LedgerEntries
	}

	hasInventory := len(raw.AllInventoryEntries) > 0

	var inventoryTotal, billAllocTotal float64
	var billAllocSeen bool

	for _, inv := range raw.AllInventoryEntries {
		amt := parseAmount(inv.Amount)
		inventoryTotal += amt
		v.Lines = append(v.Lines, VoucherLine{
			ItemOrLedgerName: strings.TrimSpace(inv.StockItemName),
			Rate:             parseAmount(inv.Rate),
			Amount:           amt,
			Quantity:         parseQuantity(inv.ActualQty),
			Basic:            amt,
		})
		for _, ba := range inv.BillAllocs {
			billAllocTotal += parseAmount(ba.Amount)
			billAllocSeen = true
			v.BillAllocations = append(v.BillAllocations, toBillAllocation(ba, ""))
		}
	}

	// The party ledger amount is the one line within ledgerEntries whose
	// LEDGERNAME matches PARTYLEDGERNAME — not a sum over every line in the
	// list, and not a keyword guess at which lines are "tax" or "round off".
	ledgerAmt, hasLedgerAmt := resolvePartyLedgerAmount(ledgerEntries, v.PartyName)

	for _, led := range ledgerEntries {
		name := strings.TrimSpace(led.LedgerName)
		for _, ba := range led.BillAllocs {
			billAllocTotal += parseAmount(ba.Amount)
			billAllocSeen = true
			v.BillAllocations = append(v.BillAllocations, toBillAllocation(ba, name))
		}
	}

	// Amount-resolution cases A-E: derive subtotal/total from whichever of
	// inventory/party-ledger/bill-allocation amounts are present.
	switch {
	case hasInventory && (hasLedgerAmt || billAllocSeen):
		// Case A: inventory gives the line-item subtotal; the party ledger
		// line (preferred) or the bill allocation carries the total.
		v.Subtotal = inventoryTotal
		if hasLedgerAmt {
			v.Total = absFloat(ledgerAmt)
		} else {
			v.Total = billAllocTotal
		}
	case hasLedgerAmt:
		// Case B: no inventory breakdown; the party ledger line is the
		// entire economic content of the voucher.
		v.Subtotal = absFloat(ledgerAmt)
		v.Total = absFloat(ledgerAmt)
	case billAllocSeen:
		// Case C: neither inventory nor a matched party ledger line; fall
		// back to the bill allocation amount.
		v.Subtotal = billAllocTotal
		v.Total = billAllocTotal
	case hasInventory:
		// Case D: the Tally export variant where bill allocation is
		// structurally empty; inventory is the only signal.
		v.Subtotal = inventoryTotal
		v.Total = inventoryTotal
	default:
		// Case E: nothing to resolve from; fall back to the voucher header
		// AMOUNT and flag it.
		headerAmt := absFloat(parseAmount(raw.Amount))
		v.Subtotal = headerAmt
		v.Total = headerAmt
		warnings = append(warnings, ParseWarning{
			Context: fmt.Sprintf("voucher %s %s", v.VoucherType, v.VoucherNo),
			Reason:  "no inventory, ledger, or bill allocation amounts found (case E)",
		})
	}

	v.Tax = v.Total - v.Subtotal

	if v.IsCreditNote {
		v.Subtotal = normalizeCreditSign(v.Subtotal)
		v.Tax = normalizeCreditSign(v.Tax)
		v.RoundOff = normalizeCreditSign(v.RoundOff)
		v.Total = normalizeCreditSign(v.Total)
		for i := range v.Lines {
			v.Lines[i].Amount = normalizeCreditSign(v.Lines[i].Amount)
			v.Lines[i].Basic = normalizeCreditSign(v.Lines[i].Basic)
		}
	}

	v.VoucherKey = deriveVoucherKey(v)

	return v, warnings, nil
}

// normalizeCreditSign enforces that credit notes, sales returns and debit
// notes always carry negative economic amounts in the warehouse, regardless
// of the sign
// Tally exported them with.
func normalizeCreditSign(amount float64) float64 {
	return -absFloat(amount)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func parseQuantity(raw string) float64 {
	s := strings.TrimSpace(raw)
	if idx := strings.IndexAny(s, " "); idx != -1 {
		s = s[:idx]
	}
	return parseAmount(s)
}

func toBillAllocation(ba rawBillAllocation, ledgerName string) BillAllocation {
	cp := 0
	if ba.CreditPeriod != "" {
		cp = int(parseAmount(ba.CreditPeriod))
	}
	return BillAllocation{
		Name:         strings.TrimSpace(ba.Name),
		Amount:       parseAmount(ba.Amount),
		BillType:     strings.TrimSpace(ba.BillType),
		CreditPeriod: cp,
		LedgerName:   ledgerName,
	}
}

func matchesAny(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// matchesExactly reports whether s, case-insensitively, equals one of
// candidates — used for the voucher-type-aware ledger tag choice, where a
// Contains match would wrongly pull in unrelated types (e.g. "Purchase
// Order" matching "Purchase").
func matchesExactly(s string, candidates []string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, c := range candidates {
		if lower == c {
			return true
		}
	}
	return false
}

// resolvePartyLedgerAmount finds the ledger entry whose LEDGERNAME matches
// party, case-insensitively, with a 15-character-prefix fallback for
// exports that truncate ledger names. Returns the matched entry's amount and
// whether a match was found at all.
func resolvePartyLedgerAmount(entries []rawLedgerEntry, party string) (float64, bool) {
	for _, e := range entries {
		if matchesPartyLedger(e.LedgerName, party) {
			return parseAmount(e.Amount), true
		}
	}
	return 0, false
}

// matchesPartyLedger reports whether ledgerName identifies the same ledger
// as party: an exact case-insensitive match, or, failing that, a match on
// the first partyLedgerPrefixLen characters (some exports truncate long
// ledger display names).
func matchesPartyLedger(ledgerName, party string) bool {
	a := strings.ToLower(strings.TrimSpace(ledgerName))
	b := strings.ToLower(strings.TrimSpace(party))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) >= partyLedgerPrefixLen && len(b) >= partyLedgerPrefixLen {
		return a[:partyLedgerPrefixLen] == b[:partyLedgerPrefixLen]
	}
	return false
}

// extractAddressParts pulls a trailing 6-digit PIN code and a city out of a
// free-text address block. The city is the rest of the PIN code's line when
// that is non-empty, else the line before it. Best-effort: many
// addresses won't match and both return values come back empty.
func extractAddressParts(address string) (pincode, city string) {
	lines := strings.Split(address, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			if len(f) == 6 && isAllDigits(f) {
				pincode = f
				rest := strings.TrimSpace(strings.Replace(line, f, "", 1))
				rest = strings.Trim(rest, " ,-")
				if rest != "" {
					city = rest
				} else if i > 0 {
					city = strings.TrimSpace(lines[i-1])
				}
				return pincode, city
			}
		}
	}
	return "", ""
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// deriveVoucherKey implements the identity derivation order: GUID, then
// RemoteID promoted into the GUID slot, then the natural key
// (type/number/date/party) if a voucher number is present, and finally a
// hash fallback. The order must never change — a regression test guards
// RemoteID promotion not colliding with the hash fallback.
func deriveVoucherKey(v Voucher) string {
	if v.GUID != "" {
		return v.GUID
	}
	if v.RemoteID != "" {
		return v.RemoteID
	}
	if v.VoucherNo != "" {
		return fmt.Sprintf("%s/%s/%s/%s", v.VoucherType, v.VoucherNo, v.Date.Format("2006-01-02"), v.PartyName)
	}
	return hashVoucherKey(v)
}

func hashVoucherKey(v Voucher) string {
	basis := fmt.Sprintf("%s|%s|%s|%.2f", v.VoucherType, v.Date.Format("2006-01-02"), v.PartyName, v.Total)
	sum := sha1.Sum([]byte(basis))
	return fmt.Sprintf("%s/%s/%s#%s", v.VoucherType, v.Date.Format("2006-01-02"), v.PartyName, hex.EncodeToString(sum[:])[:16])
}
