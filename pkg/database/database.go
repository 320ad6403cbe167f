package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/BartekS5/reviewseed/pkg/logger"
)

var (
	// ErrConnection is returned once every connection attempt has failed.
	ErrConnection = errors.New("database connection failed")
	// ErrSchema is returned when bootstrap DDL cannot be applied.
	ErrSchema = errors.New("schema bootstrap failed")
)

// RetryPolicy bounds connection acquisition.
type RetryPolicy struct {
	Attempts    int
	Delay       time.Duration
	PingTimeout time.Duration
	Clock       clock.Clock
}

// DefaultRetryPolicy is three attempts five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 5 * time.Second, PingTimeout: 5 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts < 1 {
		p.Attempts = def.Attempts
	}
	if p.Delay <= 0 {
		p.Delay = def.Delay
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = def.PingTimeout
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	return p
}

// withRetry runs connect until it succeeds or the policy is exhausted.
func withRetry(ctx context.Context, what string, policy RetryPolicy, connect func() error) error {
	policy = policy.withDefaults()
	err := retry.Call(retry.CallArgs{
		Func: connect,
		NotifyFunc: func(err error, attempt int) {
			logger.Warn("connection attempt failed", "target", what, "attempt", attempt, "of", policy.Attempts, "error", err)
		},
		Attempts: policy.Attempts,
		Delay:    policy.Delay,
		Clock:    policy.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if cause := retry.LastError(err); cause != nil {
		err = cause
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrConnection, what, policy.Attempts, err)
}

// ConnectSQL opens and pings a database/sql pool, retrying per policy.
func ConnectSQL(ctx context.Context, driver, dsn string, policy RetryPolicy) (*sql.DB, error) {
	policy = policy.withDefaults()
	var db *sql.DB
	err := withRetry(ctx, driver, policy, func() error {
		conn, err := sql.Open(driver, dsn)
		if err != nil {
			return fmt.Errorf("error opening SQL database: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, policy.PingTimeout)
		defer cancel()
		if err := conn.PingContext(pingCtx); err != nil {
			conn.Close()
			return fmt.Errorf("error connecting to SQL database (ping failed): %w", err)
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	// One logical session per run.
	db.SetMaxOpenConns(1)
	logger.Info("connected to SQL database", "driver", driver)
	return db, nil
}

// ConnectMongo creates a client and pings the primary, retrying per policy.
func ConnectMongo(ctx context.Context, uri string, policy RetryPolicy) (*mongo.Client, error) {
	policy = policy.withDefaults()
	var client *mongo.Client
	err := withRetry(ctx, "mongodb", policy, func() error {
		connectCtx, cancel := context.WithTimeout(ctx, 2*policy.PingTimeout)
		defer cancel()

		c, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
		if err != nil {
			return fmt.Errorf("error creating MongoDB client: %w", err)
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, policy.PingTimeout)
		defer pingCancel()
		if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
			disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer disconnectCancel()
			_ = c.Disconnect(disconnectCtx)
			return fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("connected to MongoDB")
	return client, nil
}
