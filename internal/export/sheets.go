package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/tallyprep/tallyprep/internal/common"
)

// SheetsConfig holds Google Sheets destination settings.
type SheetsConfig struct {
	ServiceAccountPath string
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	SpreadsheetID      string
	SpreadsheetName    string
	SheetName          string
	RetryAttempts      int
	RetryDelay         time.Duration
}

// DefaultSheetsConfig returns sensible defaults.
func DefaultSheetsConfig() SheetsConfig {
	return SheetsConfig{
		SpreadsheetName: "Receipt Export",
		SheetName:       "Receipt",
		RetryAttempts:   3,
		RetryDelay:      1 * time.Second,
	}
}

// Validate checks that some authentication method is configured.
func (c *SheetsConfig) Validate() error {
	if c.ServiceAccountPath == "" && (c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "") {
		return fmt.Errorf("%w: need a service account path or oauth client credentials", common.ErrMissingConfig)
	}
	return nil
}

// SheetsExporter writes receipt rows to a Google Sheets spreadsheet.
type SheetsExporter struct {
	service *sheets.Service
	logger  *slog.Logger
	config  SheetsConfig
}

// NewSheetsExporter creates a Google Sheets exporter.
func NewSheetsExporter(ctx context.Context, config SheetsConfig, logger *slog.Logger) (*SheetsExporter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsExporter{
		config:  config,
		service: service,
		logger:  logger,
	}, nil
}

// Export implements the Exporter interface. Failures never corrupt the
// in-memory receipt; the caller may simply retry.
func (e *SheetsExporter) Export(ctx context.Context, rows []Row, summary Summary) error {
	e.logger.Info("starting sheets export", "rows", len(rows))

	spreadsheetID, err := e.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}

	values := prepareValues(rows, summary)

	retryOpts := common.RetryOptions{
		MaxAttempts:  e.config.RetryAttempts,
		InitialDelay: e.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		if clearErr := e.clearSheet(ctx, spreadsheetID); clearErr != nil {
			return clearErr
		}
		return e.writeValues(ctx, spreadsheetID, values)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrExportFailed, err)
	}

	e.logger.Info("sheets export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(values))

	return nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config SheetsConfig) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		oauthConfig := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = oauthConfig.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet gets an existing spreadsheet or creates a new one.
func (e *SheetsExporter) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if e.config.SpreadsheetID != "" {
		if _, err := e.service.Spreadsheets.Get(e.config.SpreadsheetID).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", e.config.SpreadsheetID, err)
		}
		return e.config.SpreadsheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title: e.config.SpreadsheetName,
		},
		Sheets: []*sheets.Sheet{
			{
				Properties: &sheets.SheetProperties{
					Title: e.config.SheetName,
				},
			},
		},
	}

	created, err := e.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	e.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, nil
}

// clearSheet clears all data from the sheet.
func (e *SheetsExporter) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := e.service.Spreadsheets.Values.Clear(spreadsheetID, "A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// writeValues writes all rows in one batch update.
func (e *SheetsExporter) writeValues(ctx context.Context, spreadsheetID string, values [][]any) error {
	valueRange := &sheets.ValueRange{Values: values}
	_, err := e.service.Spreadsheets.Values.Update(spreadsheetID, "A1", valueRange).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

// prepareValues flattens rows and summary into sheet values.
func prepareValues(rows []Row, summary Summary) [][]any {
	values := make([][]any, 0, len(rows)+9)

	values = append(values, []any{
		"Item", "Matched Ingredient", "Catalog ID", "Quantity", "Unit Price",
		"Line Total", "Match Status", "Similarity",
	})

	for _, row := range rows {
		values = append(values, []any{
			row.ItemName,
			row.MatchedName,
			row.MatchedCatalogID,
			row.Quantity.String(),
			row.UnitPrice.String(),
			row.LineTotal.String(),
			string(row.MatchStatus),
			fmt.Sprintf("%.2f", row.SimilarityScore),
		})
	}

	values = append(values,
		[]any{},
		[]any{"Declared Total", summary.DeclaredTotal.String()},
		[]any{"Computed Total", summary.ComputedTotal.String()},
		[]any{"Delta", summary.ReconciliationDelta.String()},
		[]any{"Auto Matched", summary.AutoMatched},
		[]any{"Manually Matched", summary.ManuallyMatched},
		[]any{"Rejected", summary.Rejected},
		[]any{"Unmatched", summary.Unmatched},
	)

	return values
}
