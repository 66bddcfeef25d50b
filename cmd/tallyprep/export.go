package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyprep/tallyprep/internal/config"
	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/matching"
)

func exportCmd() *cobra.Command {
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <items.json>",
		Short: "Auto-match a recognition dump and export it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			provider, source, err := initCatalog()
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer func() { _ = source.Close() }()

			snapshot, err := provider.Snapshot(ctx)
			if err != nil {
				return err
			}

			rec, err := loadReceipt(args[0])
			if err != nil {
				return fmt.Errorf("failed to load recognition dump: %w", err)
			}

			matcher := matching.NewEngine(config.MatchingConfig())
			matcher.MatchAll(rec, snapshot.Entries())

			exporter, err := initExporter(ctx, format, outPath)
			if err != nil {
				return err
			}

			rows, summary := export.BuildRows(rec, snapshot)
			if err := exporter.Export(ctx, rows, summary); err != nil {
				return err
			}

			fmt.Printf("exported %d rows\n", len(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "export destination (sheets, csv)")
	cmd.Flags().StringVar(&outPath, "out", "receipt.csv", "csv output path")

	return cmd
}
