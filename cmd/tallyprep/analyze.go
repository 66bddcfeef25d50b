package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyprep/tallyprep/internal/render"
)

func analyzeCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "analyze <items.json>",
		Short: "Load a recognition dump and print the receipt overview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, source, err := initCatalog()
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer func() { _ = source.Close() }()

			rec, err := loadReceipt(args[0])
			if err != nil {
				return fmt.Errorf("failed to load recognition dump: %w", err)
			}

			dispatcher, store := initDispatcher(provider, nil)
			defer store.Stop()

			resp, err := dispatcher.StartSession(cmd.Context(), user, rec)
			if err != nil {
				return err
			}

			fmt.Print(render.Terminal(resp.Render))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "local", "session key to create")

	return cmd
}
