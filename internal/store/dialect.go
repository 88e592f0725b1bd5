package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Supported drivers.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
)

// dialect captures the few places where the SQL differs between engines.
type dialect struct {
	name       string
	driverName string // database/sql driver registered by the import
	migrations []string

	// dayExpr renders a UTC calendar day ("YYYY-MM-DD") from a timestamp column.
	dayExpr func(col string) string
	// limitClause renders a trailing row limit; sqlserver uses OFFSET/FETCH.
	limitClause func(n int) string
	// duplicateColumn reports whether a migration error is a re-applied ALTER.
	duplicateColumn func(err error) bool
}

func dialectFor(driver string) (*dialect, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite, "sqlite3":
		return &dialect{
			name:            DriverSQLite,
			driverName:      "sqlite",
			migrations:      sqliteMigrations,
			dayExpr:         func(col string) string { return "date(" + col + ")" },
			limitClause:     limitN,
			duplicateColumn: containsAny("duplicate column"),
		}, nil
	case DriverPostgres, "postgresql", "pgx":
		return &dialect{
			name:            DriverPostgres,
			driverName:      "pgx",
			migrations:      postgresMigrations,
			dayExpr:         func(col string) string { return "to_char(" + col + " AT TIME ZONE 'UTC', 'YYYY-MM-DD')" },
			limitClause:     limitN,
			duplicateColumn: containsAny("already exists"),
		}, nil
	case DriverMySQL, "mariadb":
		return &dialect{
			name:            DriverMySQL,
			driverName:      "mysql",
			migrations:      mysqlMigrations,
			dayExpr:         func(col string) string { return "DATE_FORMAT(" + col + ", '%Y-%m-%d')" },
			limitClause:     limitN,
			duplicateColumn: containsAny("Duplicate column", "Duplicate key name"),
		}, nil
	case DriverSQLServer, "mssql":
		return &dialect{
			name:            DriverSQLServer,
			driverName:      "sqlserver",
			migrations:      sqlserverMigrations,
			dayExpr:         func(col string) string { return "CONVERT(char(10), " + col + ", 23)" },
			limitClause:     func(n int) string { return fmt.Sprintf(" OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n) },
			duplicateColumn: containsAny("Column names in each table must be unique"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func (d *dialect) normalizeDSN(opts Options) (string, error) {
	switch d.name {
	case DriverSQLite:
		if opts.DSN != "" && opts.DataDir == "" {
			return opts.DSN, nil
		}
		return sqliteDSN(opts.DataDir)
	case DriverMySQL:
		return mysqlDSN(opts.DSN)
	default:
		if opts.DSN == "" {
			return "", fmt.Errorf("%s: dsn is required", d.name)
		}
		return opts.DSN, nil
	}
}

func limitN(n int) string { return fmt.Sprintf(" LIMIT %d", n) }

func containsAny(needles ...string) func(error) bool {
	return func(err error) bool {
		for _, n := range needles {
			if strings.Contains(err.Error(), n) {
				return true
			}
		}
		return false
	}
}

// insertReturningID inserts one row and returns its generated id.
func (d *dialect) insertReturningID(ctx context.Context, q sqlx.ExtContext, table string, cols []string, args ...any) (int64, error) {
	colList := strings.Join(cols, ", ")
	params := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	var query string
	switch d.name {
	case DriverMySQL:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, colList, params)
		res, err := q.ExecContext(ctx, q.Rebind(query), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	case DriverSQLServer:
		query = fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.id VALUES (%s)", table, colList, params)
	default:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", table, colList, params)
	}

	var id int64
	if err := q.QueryRowxContext(ctx, q.Rebind(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Atomic window increment
// ---------------------------------------------------------------------------

// upsertReturningSQL covers SQLite (3.35+) and PostgreSQL.
const upsertReturningSQL = `INSERT INTO rate_limit_windows (api_key_id, window_start, request_count)
	VALUES (?, ?, 1)
	ON CONFLICT (api_key_id, window_start)
	DO UPDATE SET request_count = rate_limit_windows.request_count + 1
	RETURNING request_count`

// mysqlUpsertSQL stashes the post-increment count in the connection-scoped
// LAST_INSERT_ID so it can be read back without a second row lookup.
const mysqlUpsertSQL = `INSERT INTO rate_limit_windows (api_key_id, window_start, request_count)
	VALUES (?, ?, LAST_INSERT_ID(1))
	ON DUPLICATE KEY UPDATE request_count = LAST_INSERT_ID(request_count + 1)`

// sqlserverMergeSQL holds a range lock for the duration of the MERGE so two
// first requests in a window cannot both take the insert branch.
const sqlserverMergeSQL = `MERGE rate_limit_windows WITH (HOLDLOCK) AS t
	USING (SELECT ? AS api_key_id, ? AS window_start) AS s
	ON t.api_key_id = s.api_key_id AND t.window_start = s.window_start
	WHEN MATCHED THEN UPDATE SET t.request_count = t.request_count + 1
	WHEN NOT MATCHED THEN INSERT (api_key_id, window_start, request_count)
		VALUES (s.api_key_id, s.window_start, 1)
	OUTPUT inserted.request_count;`
