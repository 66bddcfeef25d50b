// Package ingest decodes the output of the external recognition service
// into a receipt. The service is loose with types (numbers may arrive as
// strings, fields may be missing), so decoding is tolerant: unreadable
// numerics default to zero rather than failing the whole receipt.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallyprep/tallyprep/internal/model"
	"github.com/tallyprep/tallyprep/internal/receipt"
)

type scannedItem struct {
	Name      string     `json:"name"`
	Quantity  looseValue `json:"quantity"`
	UnitPrice looseValue `json:"unitPrice"`
	Total     looseValue `json:"total"`
}

type scannedReceipt struct {
	Items []scannedItem `json:"items"`
	Total looseValue    `json:"total"`
}

// looseValue decodes a decimal that may arrive as a JSON number, a numeric
// string, null, or garbage the OCR could not read.
type looseValue struct {
	value decimal.Decimal
	ok    bool
}

func (v *looseValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		// Unreadable value; leave it zero for the user to correct.
		return nil
	}
	v.value = d
	v.ok = true
	return nil
}

// ParseItems decodes a recognition dump into a receipt with derived totals
// computed.
func ParseItems(r io.Reader) (*model.Receipt, error) {
	var scanned scannedReceipt
	dec := json.NewDecoder(r)
	if err := dec.Decode(&scanned); err != nil {
		return nil, fmt.Errorf("failed to decode scanned items: %w", err)
	}

	rec := model.NewReceipt()
	for _, raw := range scanned.Items {
		name := strings.TrimSpace(raw.Name)
		if name == "" || name == "???" {
			continue
		}

		item := model.LineItem{
			ID:          rec.AssignID(),
			RawName:     name,
			Quantity:    raw.Quantity.value,
			UnitPrice:   raw.UnitPrice.value,
			MatchStatus: model.StatusUnmatched,
		}

		// A scanned total that disagrees with quantity x price is kept as an
		// override; the receipt image wins until the user says otherwise.
		if raw.Total.ok {
			derived := item.Quantity.Mul(item.UnitPrice)
			if !derived.Sub(raw.Total.value).Abs().LessThan(receipt.Epsilon) {
				item.LineTotal = raw.Total.value
				item.TotalOverridden = true
			}
		}

		rec.Items = append(rec.Items, item)
	}

	if scanned.Total.ok {
		rec.DeclaredTotal = scanned.Total.value
	}

	receipt.Recompute(rec)
	return rec, nil
}
