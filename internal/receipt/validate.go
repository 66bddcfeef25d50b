package receipt

import (
	"fmt"

	"github.com/tallyprep/tallyprep/internal/model"
)

// Validate performs a structural check of a receipt: at least one item,
// unique IDs, and no negative amounts. It reports the first problem found.
func Validate(r *model.Receipt) error {
	if len(r.Items) == 0 {
		return fmt.Errorf("receipt has no line items")
	}

	seen := make(map[int]bool, len(r.Items))
	for i := range r.Items {
		item := &r.Items[i]
		if seen[item.ID] {
			return fmt.Errorf("duplicate line item ID %d", item.ID)
		}
		seen[item.ID] = true

		if item.ID >= r.NextID {
			return fmt.Errorf("line item ID %d was never assigned", item.ID)
		}
		if item.Quantity.IsNegative() {
			return fmt.Errorf("line item %d has negative quantity", item.ID)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("line item %d has negative unit price", item.ID)
		}
		if item.LineTotal.IsNegative() {
			return fmt.Errorf("line item %d has negative total", item.ID)
		}
	}

	return nil
}
