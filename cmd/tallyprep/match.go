package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tallyprep/tallyprep/internal/config"
	"github.com/tallyprep/tallyprep/internal/export"
	"github.com/tallyprep/tallyprep/internal/matching"
	"github.com/tallyprep/tallyprep/internal/receipt"
	"github.com/tallyprep/tallyprep/internal/render"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <items.json>",
		Short: "Auto-match a recognition dump against the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, source, err := initCatalog()
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer func() { _ = source.Close() }()

			snapshot, err := provider.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			rec, err := loadReceipt(args[0])
			if err != nil {
				return fmt.Errorf("failed to load recognition dump: %w", err)
			}

			matcher := matching.NewEngine(config.MatchingConfig())

			bar := progressbar.Default(int64(len(rec.Items)), "matching")
			for i := range rec.Items {
				matcher.MatchItem(&rec.Items[i], snapshot.Entries())
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			_, summary := export.BuildRows(rec, snapshot)
			fmt.Printf("\n%d items: %s auto matched, %s unmatched\n",
				summary.ItemCount,
				render.SuccessStyle.Render(fmt.Sprintf("%d", summary.AutoMatched)),
				render.ErrorStyle.Render(fmt.Sprintf("%d", summary.Unmatched)))
			fmt.Printf("computed total %s\n", rec.ComputedTotal.String())
			if !receipt.IsBalanced(rec) {
				fmt.Printf("declared total %s differs by %s\n",
					rec.DeclaredTotal.String(),
					render.ErrorStyle.Render(rec.ReconciliationDelta.String()))
			}
			return nil
		},
	}

	return cmd
}
