package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tallyprep/tallyprep/internal/model"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the ingredient catalog",
	}

	cmd.AddCommand(catalogListCmd())
	cmd.AddCommand(catalogRefreshCmd())
	cmd.AddCommand(catalogImportCmd())

	return cmd
}

func catalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, source, err := initCatalog()
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer func() { _ = source.Close() }()

			snapshot, err := provider.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			for _, entry := range snapshot.Entries() {
				line := fmt.Sprintf("%-12s %s", entry.ID, entry.CanonicalName)
				if entry.Unit != "" {
					line += fmt.Sprintf(" (%s)", entry.Unit)
				}
				fmt.Println(line)
			}
			fmt.Printf("%d entries\n", snapshot.Len())
			return nil
		},
	}
}

func catalogRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch the catalog, bypassing the cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, source, err := initCatalog()
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer func() { _ = source.Close() }()

			snapshot, err := provider.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("catalog refreshed: %d entries\n", snapshot.Len())
			return nil
		},
	}
}

func catalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <entries.csv>",
		Short: "Replace the catalog from a CSV of id,name,unit,category,priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, source, err := initCatalog()
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer func() { _ = source.Close() }()

			entries, err := readCatalogCSV(args[0])
			if err != nil {
				return err
			}

			if err := source.ReplaceAll(cmd.Context(), entries); err != nil {
				return err
			}

			fmt.Printf("imported %d catalog entries\n", len(entries))
			return nil
		},
	}
}

func readCatalogCSV(path string) ([]model.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var entries []model.CatalogEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog csv: %w", err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("catalog row needs at least id and name, got %v", record)
		}

		entry := model.CatalogEntry{
			ID:            record[0],
			CanonicalName: record[1],
		}
		if len(record) > 2 {
			entry.Unit = record[2]
		}
		if len(record) > 3 {
			entry.Category = record[3]
		}
		if len(record) > 4 && record[4] != "" {
			priority, err := strconv.Atoi(record[4])
			if err != nil {
				return nil, fmt.Errorf("priority %q is not a number: %w", record[4], err)
			}
			entry.Priority = priority
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
