// Package config handles loading of environment settings and job files
// for the importer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/reviewseed/pkg/database"
)

// ErrConfiguration marks a fatal configuration problem detected before any I/O.
var ErrConfiguration = errors.New("configuration error")

// DefaultFeedURL is the open-data hospitals and clinics feed.
const DefaultFeedURL = "https://data.calgary.ca/resource/x34e-bcjz.geojson"

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	DatabaseURL string
	Driver      string

	MongoURL      string
	MongoDatabase string

	ConnectAttempts int
	ConnectDelay    time.Duration

	BatchSize int
	FeedURL   string

	LogLevel string
	LogFile  string

	RabbitMQURL    string
	RabbitMQQueue  string
	PushgatewayURL string
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Driver:         strings.TrimSpace(os.Getenv("DB_DRIVER")),
		MongoURL:       strings.TrimSpace(os.Getenv("MONGO_URL")),
		MongoDatabase:  getEnv("MONGO_DATABASE", "reviewseed"),
		FeedURL:        getEnv("FACILITY_FEED_URL", DefaultFeedURL),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:  getEnv("RABBITMQ_QUEUE", "import_runs"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	var err error
	if cfg.ConnectAttempts, err = getEnvAsInt("DB_CONNECT_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.ConnectDelay, err = getEnvAsDuration("DB_CONNECT_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getEnvAsInt("IMPORT_BATCH_SIZE", 50); err != nil {
		return nil, err
	}

	if cfg.ConnectAttempts < 1 {
		return nil, fmt.Errorf("%w: DB_CONNECT_ATTEMPTS must be at least 1", ErrConfiguration)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("%w: IMPORT_BATCH_SIZE must be at least 1", ErrConfiguration)
	}
	return cfg, nil
}

// RequireSQL checks the settings a relational sink needs and fills in Driver.
func (c *Config) RequireSQL() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL environment variable not set", ErrConfiguration)
	}
	if c.Driver == "" {
		driver, err := database.DriverFor(c.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		c.Driver = driver
	}
	if _, err := database.DialectFor(c.Driver); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

// RequireMongo checks the settings the Mongo sink needs.
func (c *Config) RequireMongo() error {
	if c.MongoURL == "" {
		return fmt.Errorf("%w: MONGO_URL environment variable not set", ErrConfiguration)
	}
	return nil
}

// RetryPolicy turns the connection settings into a database retry policy.
func (c *Config) RetryPolicy() database.RetryPolicy {
	policy := database.DefaultRetryPolicy()
	policy.Attempts = c.ConnectAttempts
	policy.Delay = c.ConnectDelay
	return policy
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer: %q", ErrConfiguration, key, value)
	}
	return n, nil
}

// getEnvAsDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration: %q", ErrConfiguration, key, value)
	}
	return d, nil
}
