// Package export turns a finalized, matched receipt into external artifacts.
package export

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tallyprep/tallyprep/internal/catalog"
	"github.com/tallyprep/tallyprep/internal/model"
)

// Row is one exported line item in destination-neutral form.
type Row struct {
	ItemName         string
	MatchedCatalogID string
	MatchedName      string
	MatchStatus      model.MatchStatus
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	LineTotal        decimal.Decimal
	SimilarityScore  float64
}

// Summary aggregates the receipt for trailing report rows.
type Summary struct {
	DeclaredTotal       decimal.Decimal
	ComputedTotal       decimal.Decimal
	ReconciliationDelta decimal.Decimal
	ItemCount           int
	AutoMatched         int
	ManuallyMatched     int
	Rejected            int
	Unmatched           int
}

// Exporter writes rows to an external destination.
type Exporter interface {
	Export(ctx context.Context, rows []Row, summary Summary) error
}

// BuildRows flattens a receipt into export rows, resolving matched catalog
// names from the snapshot. A nil snapshot leaves matched names empty.
func BuildRows(r *model.Receipt, snapshot *catalog.Snapshot) ([]Row, Summary) {
	rows := make([]Row, 0, len(r.Items))
	summary := Summary{
		DeclaredTotal:       r.DeclaredTotal,
		ComputedTotal:       r.ComputedTotal,
		ReconciliationDelta: r.ReconciliationDelta,
		ItemCount:           len(r.Items),
	}

	for i := range r.Items {
		item := &r.Items[i]
		row := Row{
			ItemName:         item.RawName,
			MatchedCatalogID: item.MatchedCatalogID,
			MatchStatus:      item.MatchStatus,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			LineTotal:        item.LineTotal,
			SimilarityScore:  item.MatchScore,
		}
		if snapshot != nil && item.MatchedCatalogID != "" {
			if entry, ok := snapshot.Lookup(item.MatchedCatalogID); ok {
				row.MatchedName = entry.CanonicalName
			}
		}
		rows = append(rows, row)

		switch item.MatchStatus {
		case model.StatusAutoMatched:
			summary.AutoMatched++
		case model.StatusManuallyMatched:
			summary.ManuallyMatched++
		case model.StatusRejected:
			summary.Rejected++
		case model.StatusUnmatched:
			summary.Unmatched++
		}
	}

	return rows, summary
}
