package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
)

func newMigrateCmd() *cobra.Command {
	var dbBaseDir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing Catalog tables and indexes under --db-basedir",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := catalog.Open(dbBaseDir)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer func() { _ = store.Close() }()

			fmt.Fprintf(cmd.OutOrStdout(), "catalog schema up to date at %s\n", store.DBPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbBaseDir, "db-basedir", "/data/db", "Catalog base directory (same as DB_BASEDIR)")

	return cmd
}
