package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/reviewseed/internal/config"
	"github.com/BartekS5/reviewseed/pkg/models"
)

const (
	SinkSQL   = "sql"
	SinkMongo = "mongo"
)

type ImportOptions struct {
	BatchSize   int
	DryRun      bool
	Sink        string
	Timeout     time.Duration
	FeedTimeout time.Duration
}

func (o *ImportOptions) validate() error {
	if o.BatchSize < 0 {
		return fmt.Errorf("%w: --batch-size must be positive", config.ErrConfiguration)
	}
	if o.Sink != SinkSQL && o.Sink != SinkMongo {
		return fmt.Errorf("%w: --sink must be %s or %s, got %q", config.ErrConfiguration, SinkSQL, SinkMongo, o.Sink)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("%w: --timeout must not be negative", config.ErrConfiguration)
	}
	if o.FeedTimeout < 0 {
		return fmt.Errorf("%w: --feed-timeout must not be negative", config.ErrConfiguration)
	}
	return nil
}

func NewImportCmd() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import records into the review database",
	}

	cmd.PersistentFlags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Records per batch transaction (default IMPORT_BATCH_SIZE or 50)")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "Validate and preview records without writing")
	cmd.PersistentFlags().StringVar(&opts.Sink, "sink", SinkSQL, "Destination: sql or mongo")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Timeout of a single batch write")
	cmd.PersistentFlags().DurationVar(&opts.FeedTimeout, "feed-timeout", 0, "Timeout of a single feed request (default the job's timeout_sec or 30s)")

	cmd.AddCommand(newBooksCmd(opts), newFacilitiesCmd(opts), newRunCmd(opts))
	return cmd
}

func newBooksCmd(opts *ImportOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "books",
		Short: "Import the book catalog from a CSV file (insert or replace)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c, opts, func(*config.Config) (models.ImportJob, error) {
				return config.BooksJob(file), nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", config.DefaultBooksFile, "Path to the books CSV (isbn,title,author,year)")
	return cmd
}

func newFacilitiesCmd(opts *ImportOptions) *cobra.Command {
	var (
		url        string
		category   string
		pageSize   int
		maxRecords int
	)

	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Import hospitals and clinics from the open-data feed (insert or ignore)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c, opts, func(cfg *config.Config) (models.ImportJob, error) {
				if url == "" {
					url = cfg.FeedURL
				}
				job := config.FacilitiesJob(url, category)
				if pageSize > 0 {
					job.Source.PageSize = pageSize
				}
				job.Source.MaxRecords = maxRecords
				return job, config.ValidateJob(&job)
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Feed endpoint (default FACILITY_FEED_URL)")
	cmd.Flags().StringVar(&category, "category", "", "Only fetch features of this category")
	cmd.Flags().IntVar(&pageSize, "page-size", config.DefaultFeedPageSize, "Features requested per page")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "Stop after this many features (0 = all)")
	return cmd
}

func newRunCmd(opts *ImportOptions) *cobra.Command {
	var (
		jobsFile string
		jobName  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an import job defined in a job file",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c, opts, func(*config.Config) (models.ImportJob, error) {
				jobs, err := config.LoadJobs(jobsFile)
				if err != nil {
					return models.ImportJob{}, err
				}
				job, ok := jobs.Find(jobName)
				if !ok {
					return models.ImportJob{}, fmt.Errorf("%w: could not find job '%s' in %s", config.ErrConfiguration, jobName, jobsFile)
				}
				return *job, nil
			})
		},
	}

	cmd.Flags().StringVarP(&jobsFile, "jobs", "j", "configs/jobs.yaml", "Path to the job file")
	cmd.Flags().StringVarP(&jobName, "job", "n", "", "Name of the job to run")
	cmd.MarkFlagRequired("job")
	return cmd
}
