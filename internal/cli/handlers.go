package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/reviewseed/internal/config"
	"github.com/BartekS5/reviewseed/internal/etl"
	"github.com/BartekS5/reviewseed/pkg/database"
	"github.com/BartekS5/reviewseed/pkg/logger"
	"github.com/BartekS5/reviewseed/pkg/models"
)

type jobFunc func(cfg *config.Config) (models.ImportJob, error)

// setup loads the environment configuration and starts logging.
func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: opening log file: %w", config.ErrConfiguration, err)
	}
	return cfg, nil
}

func runImport(cmd *cobra.Command, opts *ImportOptions, resolve jobFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return err
	}
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	job, err := resolve(cfg)
	if err != nil {
		logger.Error("invalid import job", "error", err)
		return err
	}
	table, err := models.TableFor(job.Kind)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	normalizer, err := etl.NormalizerFor(job.Kind)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	var loader etl.Loader
	if !opts.DryRun {
		l, closeSink, err := openSink(ctx, cfg, opts, job)
		if err != nil {
			logger.Error("sink unavailable", "sink", opts.Sink, "error", err)
			return err
		}
		defer closeSink()
		if err := l.Bootstrap(ctx); err != nil {
			logger.Error("schema bootstrap failed", "error", err)
			return err
		}
		loader = l
	}

	extractor, err := openSource(job, table, opts)
	if err != nil {
		logger.Error("source unavailable", "job", job.Name, "error", err)
		return err
	}
	defer extractor.Close()

	pipeline := etl.NewPipeline(job.Name, extractor, normalizer, loader, job.Policy, batchSize(opts, job, cfg))
	pipeline.PageSize = job.Source.PageSize
	pipeline.RequireWrites = job.RequireWrites
	pipeline.DryRun = opts.DryRun
	var preview *etl.Preview
	if opts.DryRun {
		preview = etl.NewPreview(table)
		pipeline.Preview = preview.Add
	}

	summary, runErr := pipeline.Run(ctx)
	summary.Log()
	if preview != nil && preview.Len() > 0 {
		if _, err := preview.WriteTo(cmd.OutOrStdout()); err != nil {
			logger.Warn("writing preview failed", "error", err)
		}
	}

	notifiers, closeNotifiers := newNotifiers(cfg)
	defer closeNotifiers()
	etl.NotifyAll(context.WithoutCancel(ctx), summary, notifiers...)

	return runErr
}

// batchSize picks the flag, then the job file, then IMPORT_BATCH_SIZE.
func batchSize(opts *ImportOptions, job models.ImportJob, cfg *config.Config) int {
	switch {
	case opts.BatchSize > 0:
		return opts.BatchSize
	case job.BatchSize > 0:
		return job.BatchSize
	default:
		return cfg.BatchSize
	}
}

// feedTimeout picks --feed-timeout, then the job's timeout_sec.
func feedTimeout(opts *ImportOptions, job models.ImportJob) time.Duration {
	if opts.FeedTimeout > 0 {
		return opts.FeedTimeout
	}
	if job.Source.TimeoutSec > 0 {
		return time.Duration(job.Source.TimeoutSec) * time.Second
	}
	return config.DefaultFeedTimeoutSec * time.Second
}

func openSource(job models.ImportJob, table models.Table, opts *ImportOptions) (etl.Extractor, error) {
	src := job.Source
	switch src.Type {
	case models.SourceCSV:
		return etl.NewCSVExtractor(src.Path, table.Columns)
	case models.SourceFeed:
		feed := etl.NewFeedExtractor(src.URL, src.Category, feedTimeout(opts, job))
		feed.Params = src.Params
		feed.MaxRecords = src.MaxRecords
		return feed, nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", config.ErrConfiguration, config.ErrUnknownSourceType, src.Type)
	}
}

// openSink connects to the configured sink and returns a loader for the
// job's table together with a function releasing the connection.
func openSink(ctx context.Context, cfg *config.Config, opts *ImportOptions, job models.ImportJob) (etl.Loader, func(), error) {
	table, err := models.TableFor(job.Kind)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	switch opts.Sink {
	case SinkMongo:
		if err := cfg.RequireMongo(); err != nil {
			return nil, nil, err
		}
		client, err := database.ConnectMongo(ctx, cfg.MongoURL, cfg.RetryPolicy())
		if err != nil {
			return nil, nil, err
		}
		loader := etl.NewMongoLoader(client, cfg.MongoDatabase, table, job.Policy)
		if opts.Timeout > 0 {
			loader.Timeout = opts.Timeout
		}
		return loader, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}, nil

	default:
		if err := cfg.RequireSQL(); err != nil {
			return nil, nil, err
		}
		dialect, err := database.DialectFor(cfg.Driver)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		dsn, err := database.NormalizeDSN(cfg.Driver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		db, err := database.ConnectSQL(ctx, cfg.Driver, dsn, cfg.RetryPolicy())
		if err != nil {
			return nil, nil, err
		}
		loader := etl.NewSQLLoader(db, dialect, table, job.Policy)
		if opts.Timeout > 0 {
			loader.Timeout = opts.Timeout
		}
		return loader, func() { db.Close() }, nil
	}
}

func newNotifiers(cfg *config.Config) ([]etl.Notifier, func()) {
	var (
		notifiers []etl.Notifier
		amqp      *etl.AMQPNotifier
	)
	if cfg.RabbitMQURL != "" {
		amqp = etl.NewAMQPNotifier(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		notifiers = append(notifiers, amqp)
	}
	if cfg.PushgatewayURL != "" {
		notifiers = append(notifiers, etl.NewMetricsPusher(cfg.PushgatewayURL))
	}
	return notifiers, func() {
		if amqp != nil {
			amqp.Close()
		}
	}
}
