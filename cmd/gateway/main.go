// Package main is the composition root for the inference-server DICOM
// gateway: it wires the SCP Receiver, Coordinator, and ops surface
// together under the spf13/cobra "serve" subcommand, plus two
// maintenance subcommands ("verify-db", "migrate") for operating the
// Catalog outside of a running gateway process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Inference-server DICOM routing gateway",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVerifyDBCmd())
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
