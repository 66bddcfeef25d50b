package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/tallyprep/tallyprep/internal/common"
)

// CSVExporter writes receipt rows to a local CSV file.
type CSVExporter struct {
	Path string
}

// NewCSVExporter creates a CSV exporter writing to the given path.
func NewCSVExporter(path string) *CSVExporter {
	return &CSVExporter{Path: path}
}

// Export implements the Exporter interface. Summary rows are omitted so the
// file stays machine-readable.
func (e *CSVExporter) Export(_ context.Context, rows []Row, _ Summary) error {
	f, err := os.Create(e.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)

	header := []string{"item", "matched_ingredient", "catalog_id", "quantity",
		"unit_price", "line_total", "match_status", "similarity"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}

	for _, row := range rows {
		record := []string{
			row.ItemName,
			row.MatchedName,
			row.MatchedCatalogID,
			row.Quantity.String(),
			row.UnitPrice.String(),
			row.LineTotal.String(),
			string(row.MatchStatus),
			strconv.FormatFloat(row.SimilarityScore, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("%w: %v", common.ErrExportFailed, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}

	return nil
}
