package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/reviewseed/internal/config"
	"github.com/BartekS5/reviewseed/pkg/logger"
)

func NewBootstrapCmd() *cobra.Command {
	var sink string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the tables and indexes the importer and the review sites need",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			opts := &ImportOptions{Sink: sink}
			if err := opts.validate(); err != nil {
				return err
			}
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.Close()

			loader, closeSink, err := openSink(c.Context(), cfg, opts, config.BooksJob(""))
			if err != nil {
				return err
			}
			defer closeSink()

			if err := loader.Bootstrap(c.Context()); err != nil {
				logger.Error("bootstrap failed", "sink", sink, "error", err)
				return err
			}
			logger.Info("schema ready", "sink", sink)
			return nil
		},
	}

	cmd.Flags().StringVar(&sink, "sink", SinkSQL, "Destination: sql or mongo")
	return cmd
}
