package tally

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// LedgerGroup is a normalized ledger/group master record.
type LedgerGroup struct {
	GUID       string
	Name       string
	ParentName string
	IsGroup    bool
	OpeningBalance float64
}

// StockGroup is a normalized stock group master record.
type StockGroup struct {
	GUID       string
	Name       string
	ParentName string
}

// Item is a normalized stock item master record.
type Item struct {
	GUID        string
	Name        string
	GroupName   string
	BaseUnit    string
	HSNCode     string
	OpeningQty  float64
	OpeningRate float64
}

// UOM is a normalized unit-of-measure master record.
type UOM struct {
	GUID   string
	Name   string
	Symbol string
}

// OpeningBill is one outstanding bill carried forward at ledger opening, the
// seed input to the receivables reconciler.
type OpeningBill struct {
	LedgerName   string
	BillName     string
	Amount       float64
	BillType     string
	CreditPeriod int
}

type rawMasterEnvelope struct {
	XMLName xml.Name `xml:"ENVELOPE"`
	Body    struct {
		Data struct {
			Collection struct {
				Ledgers     []rawLedgerMaster     `xml:"LEDGER"`
				Groups      []rawGroupMaster      `xml:"GROUP"`
				StockGroups []rawStockGroupMaster `xml:"STOCKGROUP"`
				StockItems  []rawStockItemMaster  `xml:"STOCKITEM"`
				Units       []rawUnitMaster       `xml:"UNIT"`
			} `xml:"COLLECTION"`
		} `xml:"DATA"`
	} `xml:"BODY"`
}

type rawLedgerMaster struct {
	GUID              string              `xml:"GUID"`
	Name              string              `xml:"NAME"`
	Parent            string              `xml:"PARENT"`
	OpeningBalance    string              `xml:"OPENINGBALANCE"`
	BillAllocations   []rawBillAllocation `xml:"BILLALLOCATIONS.LIST"`
}

type rawGroupMaster struct {
	GUID   string `xml:"GUID"`
	Name   string `xml:"NAME"`
	Parent string `xml:"PARENT"`
}

type rawStockGroupMaster struct {
	GUID   string `xml:"GUID"`
	Name   string `xml:"NAME"`
	Parent string `xml:"PARENT"`
}

type rawStockItemMaster struct {
	GUID         string `xml:"GUID"`
	Name         string `xml:"NAME"`
	Parent       string `xml:"PARENT"`
	BaseUnits    string `xml:"BASEUNITS"`
	HSNCode      string `xml:"GSTHSNNAME"`
	HSNCodeAlt   string `xml:"HSNCODE"`
	OpeningQty   string `xml:"OPENINGBALANCE"`
	OpeningRate  string `xml:"OPENINGRATE"`
}

type rawUnitMaster struct {
	GUID   string `xml:"GUID"`
	Name   string `xml:"NAME"`
	Symbol string `xml:"ORIGINALNAME"`
}

// ParseLedgerGroups extracts ledger and group master records. Groups without
// a parent name are hierarchy roots.
func ParseLedgerGroups(responseXML string) ([]LedgerGroup, []ParseWarning, error) {
	env, err := unmarshalMasters(responseXML)
	if err != nil {
		return nil, nil, err
	}

	var out []LedgerGroup
	for _, g := range env.Body.Data.Collection.Groups {
		out = append(out, LedgerGroup{
			GUID:       strings.TrimSpace(g.GUID),
			Name:       strings.TrimSpace(g.Name),
			ParentName: strings.TrimSpace(g.Parent),
			IsGroup:    true,
		})
	}
	for _, l := range env.Body.Data.Collection.Ledgers {
		out = append(out, LedgerGroup{
			GUID:           strings.TrimSpace(l.GUID),
			Name:           strings.TrimSpace(l.Name),
			ParentName:     strings.TrimSpace(l.Parent),
			IsGroup:        false,
			OpeningBalance: parseAmount(l.OpeningBalance),
		})
	}

	return out, nil, nil
}

// ParseOpeningBills extracts per-ledger opening bill allocations, the seed
// rows for the receivables reconciler.
func ParseOpeningBills(responseXML string) ([]OpeningBill, []ParseWarning, error) {
	env, err := unmarshalMasters(responseXML)
	if err != nil {
		return nil, nil, err
	}

	var out []OpeningBill
	var warnings []ParseWarning
	for _, l := range env.Body.Data.Collection.Ledgers {
		name := strings.TrimSpace(l.Name)
		for _, ba := range l.BillAllocations {
			b := toBillAllocation(ba, name)
			if b.Name == "" {
				warnings = append(warnings, ParseWarning{
					Context: fmt.Sprintf("ledger %s opening bill", name),
					Reason:  "bill allocation missing NAME, skipped",
				})
				continue
			}
			out = append(out, OpeningBill{
				LedgerName:   name,
				BillName:     b.Name,
				Amount:       b.Amount,
				BillType:     b.BillType,
				CreditPeriod: b.CreditPeriod,
			})
		}
	}

	return out, warnings, nil
}

// ParseStockGroups extracts stock group master records.
func ParseStockGroups(responseXML string) ([]StockGroup, []ParseWarning, error) {
	env, err := unmarshalMasters(responseXML)
	if err != nil {
		return nil, nil, err
	}

	var out []StockGroup
	for _, g := range env.Body.Data.Collection.StockGroups {
		out = append(out, StockGroup{
			GUID:       strings.TrimSpace(g.GUID),
			Name:       strings.TrimSpace(g.Name),
			ParentName: strings.TrimSpace(g.Parent),
		})
	}
	return out, nil, nil
}

// ParseUnits extracts unit-of-measure master records.
func ParseUnits(responseXML string) ([]UOM, []ParseWarning, error) {
	env, err := unmarshalMasters(responseXML)
	if err != nil {
		return nil, nil, err
	}

	var out []UOM
	for _, u := range env.Body.Data.Collection.Units {
		out = append(out, UOM{
			GUID:   strings.TrimSpace(u.GUID),
			Name:   strings.TrimSpace(u.Name),
			Symbol: strings.TrimSpace(u.Symbol),
		})
	}
	return out, nil, nil
}

// ParseItems extracts stock item master records. HSN code resolution
// prefers GSTHSNNAME (the latest-wins GST master field) and falls back to
// the legacy HSNCODE field only when it's empty.
func ParseItems(responseXML string) ([]Item, []ParseWarning, error) {
	env, err := unmarshalMasters(responseXML)
	if err != nil {
		return nil, nil, err
	}

	var out []Item
	for _, si := range env.Body.Data.Collection.StockItems {
		hsn := strings.TrimSpace(si.HSNCode)
		if hsn == "" {
			hsn = strings.TrimSpace(si.HSNCodeAlt)
		}

		out = append(out, Item{
			GUID:        strings.TrimSpace(si.GUID),
			Name:        strings.TrimSpace(si.Name),
			GroupName:   strings.TrimSpace(si.Parent),
			BaseUnit:    strings.TrimSpace(si.BaseUnits),
			HSNCode:     hsn,
			OpeningQty:  parseQuantity(si.OpeningQty),
			OpeningRate: parseAmount(si.OpeningRate),
		})
	}
	return out, nil, nil
}

func unmarshalMasters(responseXML string) (*rawMasterEnvelope, error) {
	var env rawMasterEnvelope
	if err := xml.Unmarshal([]byte(responseXML), &env); err != nil {
		return nil, fmt.Errorf("tally: unparsable master response: %w", err)
	}
	return &env, nil
}
