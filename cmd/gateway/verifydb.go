package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mathiser/inference-server-dicom-node/internal/persistence/sqlite"
)

func newVerifyDBCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "verify-db <path-to-database.db>",
		Short: "Check the Catalog's SQLite file for structural corruption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "quick" && mode != "full" {
				return fmt.Errorf("invalid --mode %q: must be \"quick\" or \"full\"", mode)
			}

			problems, err := sqlite.VerifyIntegrity(args[0], mode)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}

			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}

			for _, p := range problems {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return fmt.Errorf("database failed %s integrity check with %d issue(s)", mode, len(problems))
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "quick", "check depth: \"quick\" or \"full\"")

	return cmd
}
