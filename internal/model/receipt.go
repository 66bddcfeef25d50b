package model

import "github.com/shopspring/decimal"

// Receipt owns the ordered line items of one purchase plus its totals.
// Item order is display order only; items are addressed by ID, and IDs are
// never reused within a receipt even after deletes.
type Receipt struct {
	Items               []LineItem
	DeclaredTotal       decimal.Decimal
	ComputedTotal       decimal.Decimal
	ReconciliationDelta decimal.Decimal
	NextID              int
}

// NewReceipt creates an empty receipt with ID assignment starting at 1.
func NewReceipt() *Receipt {
	return &Receipt{NextID: 1}
}

// AssignID hands out the next monotonic line item ID.
func (r *Receipt) AssignID() int {
	id := r.NextID
	r.NextID++
	return id
}

// Item returns a pointer to the line item with the given ID, or nil.
func (r *Receipt) Item(id int) *LineItem {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i]
		}
	}
	return nil
}
