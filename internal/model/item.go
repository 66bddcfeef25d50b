// Package model defines the core domain models used throughout the application.
package model

import "github.com/shopspring/decimal"

// MatchStatus indicates how a line item was matched against the catalog.
type MatchStatus string

// Match status constants.
const (
	StatusUnmatched       MatchStatus = "UNMATCHED"
	StatusAutoMatched     MatchStatus = "AUTO_MATCHED"
	StatusManuallyMatched MatchStatus = "MANUALLY_MATCHED"
	StatusRejected        MatchStatus = "REJECTED"
)

// Manual reports whether the status was set by an explicit user decision.
// Manual decisions are sticky: automatic matching never overwrites them.
func (s MatchStatus) Manual() bool {
	return s == StatusManuallyMatched || s == StatusRejected
}

// LineItem represents a single purchased product entry on a receipt.
type LineItem struct {
	RawName          string
	MatchedCatalogID string
	MatchStatus      MatchStatus
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	LineTotal        decimal.Decimal
	MatchScore       float64
	ID               int
	TotalOverridden  bool
}
