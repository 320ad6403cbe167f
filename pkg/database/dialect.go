package database

import (
	"fmt"
	"strings"

	"github.com/BartekS5/reviewseed/pkg/models"
)

// Dialect is the SQL flavour spoken by a driver.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
	SQLite    Dialect = "sqlite"
)

// DialectFor maps a registered database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

// MaxParams is the number of bind parameters one statement may carry.
func (d Dialect) MaxParams() int {
	switch d {
	case SQLServer:
		return 2100 - 1
	case SQLite:
		return 32766
	default:
		return 65535
	}
}

// MaxRows is how many rows of width columns fit into one statement.
func (d Dialect) MaxRows(width int) int {
	if width < 1 {
		return 1
	}
	return max(1, d.MaxParams()/width)
}

func (d Dialect) placeholder(n int) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("$%d", n)
	case SQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// valueRows renders "(p1, p2), (p3, p4)" for rows x width parameters.
func (d Dialect) valueRows(rows, width int) string {
	var sb strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.placeholder(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// UpsertSQL builds one multi-row upsert for rows records of table t.
// Arguments are the records' Values flattened in row order.
func (d Dialect) UpsertSQL(t models.Table, policy models.Policy, rows int) (string, error) {
	if rows < 1 {
		return "", fmt.Errorf("upsert needs at least one row")
	}
	if len(t.Columns) == 0 || t.Key == "" {
		return "", fmt.Errorf("table %q has no columns or key", t.Name)
	}
	update := t.NonKeyColumns()
	if len(update) == 0 {
		policy = models.PolicyIgnore
	}

	cols := strings.Join(t.Columns, ", ")
	values := d.valueRows(rows, len(t.Columns))

	switch d {
	case Postgres, SQLite:
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) ", t.Name, cols, values, t.Key)
		if policy == models.PolicyIgnore {
			return q + "DO NOTHING", nil
		}
		return q + "DO UPDATE SET " + assignments(update, "%[1]s = EXCLUDED.%[1]s"), nil

	case MySQL:
		if policy == models.PolicyIgnore {
			return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES %s", t.Name, cols, values), nil
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON DUPLICATE KEY UPDATE %s",
			t.Name, cols, values, assignments(update, "%[1]s = VALUES(%[1]s)")), nil

	case SQLServer:
		var sb strings.Builder
		fmt.Fprintf(&sb, "MERGE INTO %s WITH (HOLDLOCK) AS target USING (VALUES %s) AS source (%s) ON target.%s = source.%s",
			t.Name, values, cols, t.Key, t.Key)
		if policy == models.PolicyReplace {
			sb.WriteString(" WHEN MATCHED THEN UPDATE SET ")
			sb.WriteString(assignments(update, "%[1]s = source.%[1]s"))
		}
		fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", cols, prefixed(t.Columns, "source."))
		return sb.String(), nil

	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}
}

func assignments(cols []string, format string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf(format, c)
	}
	return strings.Join(parts, ", ")
}

func prefixed(cols []string, prefix string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = prefix + c
	}
	return strings.Join(parts, ", ")
}
