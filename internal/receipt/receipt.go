// Package receipt implements mutation and validation of receipt line items.
// All mutations recompute derived totals synchronously, so a receipt is
// always internally consistent between actions.
package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallyprep/tallyprep/internal/common"
	"github.com/tallyprep/tallyprep/internal/model"
)

// Epsilon is the smallest currency unit; a receipt is balanced when the
// reconciliation delta is strictly below it.
var Epsilon = decimal.NewFromFloat(0.01)

// Field identifies an editable line item field.
type Field string

// Editable fields.
const (
	FieldName     Field = "name"
	FieldQuantity Field = "quantity"
	FieldPrice    Field = "price"
	FieldTotal    Field = "total"
)

// Recompute recalculates derived values: line totals for non-overridden
// items, the computed total, and the reconciliation delta.
func Recompute(r *model.Receipt) {
	computed := decimal.Zero
	for i := range r.Items {
		item := &r.Items[i]
		if !item.TotalOverridden {
			item.LineTotal = item.Quantity.Mul(item.UnitPrice)
		}
		computed = computed.Add(item.LineTotal)
	}
	r.ComputedTotal = computed
	r.ReconciliationDelta = r.DeclaredTotal.Sub(computed)
}

// IsBalanced reports whether the declared total agrees with the computed
// total within Epsilon.
func IsBalanced(r *model.Receipt) bool {
	return r.ReconciliationDelta.Abs().LessThan(Epsilon)
}

// AddItem appends an empty line item and returns its ID.
func AddItem(r *model.Receipt) int {
	id := r.AssignID()
	r.Items = append(r.Items, model.LineItem{
		ID:          id,
		MatchStatus: model.StatusUnmatched,
	})
	Recompute(r)
	return id
}

// RemoveItem deletes the line item with the given ID and recomputes totals.
func RemoveItem(r *model.Receipt, id int) error {
	for i := range r.Items {
		if r.Items[i].ID == id {
			r.Items = append(r.Items[:i], r.Items[i+1:]...)
			Recompute(r)
			return nil
		}
	}
	return fmt.Errorf("line item %d: %w", id, common.ErrItemNotFound)
}

// UpdateField sets one field of a line item from raw user input. Numeric
// fields must parse as non-negative decimals; a parse failure leaves the
// receipt unchanged. Setting the total directly marks it overridden and
// excludes it from recomputation until ResetLineTotal.
func UpdateField(r *model.Receipt, id int, field Field, value string) error {
	item := r.Item(id)
	if item == nil {
		return fmt.Errorf("line item %d: %w", id, common.ErrItemNotFound)
	}

	switch field {
	case FieldName:
		name := strings.TrimSpace(value)
		if name == "" {
			return fmt.Errorf("name must not be empty: %w", common.ErrInvalidValue)
		}
		item.RawName = name
	case FieldQuantity:
		d, err := ParseAmount(value)
		if err != nil {
			return err
		}
		item.Quantity = d
	case FieldPrice:
		d, err := ParseAmount(value)
		if err != nil {
			return err
		}
		item.UnitPrice = d
	case FieldTotal:
		d, err := ParseAmount(value)
		if err != nil {
			return err
		}
		item.LineTotal = d
		item.TotalOverridden = true
	default:
		return fmt.Errorf("unknown field %q: %w", field, common.ErrInvalidValue)
	}

	Recompute(r)
	return nil
}

// ResetLineTotal clears a manual line total override so the total derives
// from quantity and price again.
func ResetLineTotal(r *model.Receipt, id int) error {
	item := r.Item(id)
	if item == nil {
		return fmt.Errorf("line item %d: %w", id, common.ErrItemNotFound)
	}
	item.TotalOverridden = false
	Recompute(r)
	return nil
}

// SetDeclaredTotal sets the declared grand total from raw user input.
func SetDeclaredTotal(r *model.Receipt, value string) error {
	d, err := ParseAmount(value)
	if err != nil {
		return err
	}
	r.DeclaredTotal = d
	Recompute(r)
	return nil
}

// AutoCalculateTotal sets the declared total to the computed total,
// clearing any reconciliation delta.
func AutoCalculateTotal(r *model.Receipt) {
	r.DeclaredTotal = r.ComputedTotal
	Recompute(r)
}

// ParseAmount parses a non-negative decimal from user input.
func ParseAmount(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("empty value: %w", common.ErrInvalidValue)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number: %w", value, common.ErrInvalidValue)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%q is negative: %w", value, common.ErrInvalidValue)
	}
	return d, nil
}
