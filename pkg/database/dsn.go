package database

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DriverFor infers the database/sql driver from a DATABASE_URL.
func DriverFor(databaseURL string) (string, error) {
	lower := strings.ToLower(databaseURL)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "pgx", nil
	case strings.HasPrefix(lower, "sqlserver://"):
		return "sqlserver", nil
	case strings.HasPrefix(lower, "mysql://"):
		return "mysql", nil
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"),
		lower == ":memory:", strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("cannot infer driver from DATABASE_URL; set DB_DRIVER")
	}
}

// NormalizeDSN rewrites URL-style connection strings into the form the driver expects.
func NormalizeDSN(driver, raw string) (string, error) {
	switch driver {
	case "mysql":
		if !strings.HasPrefix(strings.ToLower(raw), "mysql://") {
			return raw, nil
		}
		return mysqlDSN(raw)
	case "sqlite3":
		return strings.TrimPrefix(raw, "sqlite://"), nil
	default:
		return raw, nil
	}
}

func mysqlDSN(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mysql URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true

	q := u.Query()
	if len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	return cfg.FormatDSN(), nil
}
