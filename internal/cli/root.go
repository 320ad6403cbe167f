// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reviewseed",
		Short: "reviewseed - batch importer for the review sites' catalogs",
		Long: `reviewseed loads the book catalog and the hospital/clinic catalog into the
review sites' database. Imports are idempotent: records are upserted on their
natural key in batches, each batch in its own transaction.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewImportCmd(), NewBootstrapCmd())

	return rootCmd
}
