package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	d, err := dialectFor(driver)
	if err != nil {
		t.Fatalf("dialectFor(%q): %v", driver, err)
	}
	s, err := New(sqlx.NewDb(db, d.driverName), driver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		s.Close()
	})
	return s, mock
}

func TestIncrementWindowMySQL(t *testing.T) {
	s, mock := newMockStore(t, DriverMySQL)
	window := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE request_count = LAST_INSERT_ID(request_count + 1)")).
		WithArgs(int64(5), window).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT LAST_INSERT_ID()")).
		WillReturnRows(sqlmock.NewRows([]string{"LAST_INSERT_ID()"}).AddRow(17))

	got, err := s.IncrementWindow(context.Background(), 5, window)
	if err != nil {
		t.Fatalf("IncrementWindow: %v", err)
	}
	if got != 17 {
		t.Errorf("got count %d, want 17", got)
	}
}

func TestIncrementWindowPostgres(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectQuery(`(?s)VALUES \(\$1, \$2, 1\)\s+ON CONFLICT \(api_key_id, window_start\).+RETURNING request_count`).
		WithArgs(int64(5), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}).AddRow(3))

	got, err := s.IncrementWindow(context.Background(), 5, time.Now())
	if err != nil {
		t.Fatalf("IncrementWindow: %v", err)
	}
	if got != 3 {
		t.Errorf("got count %d, want 3", got)
	}
}

func TestIncrementWindowSQLServer(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLServer)

	mock.ExpectQuery(`(?s)MERGE rate_limit_windows WITH \(HOLDLOCK\).+SELECT @p1 AS api_key_id, @p2 AS window_start.+OUTPUT inserted.request_count`).
		WithArgs(int64(9), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}).AddRow(1))

	got, err := s.IncrementWindow(context.Background(), 9, time.Now())
	if err != nil {
		t.Fatalf("IncrementWindow: %v", err)
	}
	if got != 1 {
		t.Errorf("got count %d, want 1", got)
	}
}

func TestIncrementWindowError(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)
	boom := errors.New("connection reset")

	mock.ExpectQuery("INSERT INTO rate_limit_windows").WillReturnError(boom)

	if _, err := s.IncrementWindow(context.Background(), 1, time.Now()); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped %v", err, boom)
	}
}

func TestInsertReturningIDPerDialect(t *testing.T) {
	t.Run("mysql uses LastInsertId", func(t *testing.T) {
		s, mock := newMockStore(t, DriverMySQL)
		mock.ExpectExec(`INSERT INTO accounts \(name, is_active, created_at\) VALUES \(\?, \?, \?\)$`).
			WillReturnResult(sqlmock.NewResult(11, 1))
		id, err := s.dialect.insertReturningID(context.Background(), s.db, "accounts",
			[]string{"name", "is_active", "created_at"}, "a", true, time.Now())
		if err != nil || id != 11 {
			t.Errorf("got (%d, %v), want (11, nil)", id, err)
		}
	})

	t.Run("sqlserver uses OUTPUT", func(t *testing.T) {
		s, mock := newMockStore(t, DriverSQLServer)
		mock.ExpectQuery(`INSERT INTO accounts \(name\) OUTPUT INSERTED.id VALUES \(@p1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		id, err := s.dialect.insertReturningID(context.Background(), s.db, "accounts", []string{"name"}, "a")
		if err != nil || id != 12 {
			t.Errorf("got (%d, %v), want (12, nil)", id, err)
		}
	})

	t.Run("postgres uses RETURNING", func(t *testing.T) {
		s, mock := newMockStore(t, DriverPostgres)
		mock.ExpectQuery(`INSERT INTO accounts \(name\) VALUES \(\$1\) RETURNING id`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(13))
		id, err := s.dialect.insertReturningID(context.Background(), s.db, "accounts", []string{"name"}, "a")
		if err != nil || id != 13 {
			t.Errorf("got (%d, %v), want (13, nil)", id, err)
		}
	})
}

func TestListUsageLimitClause(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLServer)
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.ListUsage(context.Background(), 3, 5); err != nil {
		t.Fatalf("ListUsage: %v", err)
	}
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"", "sqlite", "postgres", "pgx", "mysql", "sqlserver", "mssql"} {
		if _, err := dialectFor(name); err != nil {
			t.Errorf("dialectFor(%q): %v", name, err)
		}
	}
	if _, err := dialectFor("oracle"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("dialectFor(oracle) = %v, want ErrUnsupportedDriver", err)
	}
}

func TestMySQLDSNNormalised(t *testing.T) {
	dsn, err := mysqlDSN("user:pass@tcp(db:3306)/keygate")
	if err != nil {
		t.Fatalf("mysqlDSN: %v", err)
	}
	for _, want := range []string{"parseTime=true", "clientFoundRows=true"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %s", dsn, want)
		}
	}
}

func TestDayExpr(t *testing.T) {
	tests := map[string]string{
		DriverSQLite:    "date(created_at)",
		DriverPostgres:  "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
		DriverMySQL:     "DATE_FORMAT(created_at, '%Y-%m-%d')",
		DriverSQLServer: "CONVERT(char(10), created_at, 23)",
	}
	for driver, want := range tests {
		d, _ := dialectFor(driver)
		if got := d.dayExpr("created_at"); got != want {
			t.Errorf("%s dayExpr = %q, want %q", driver, got, want)
		}
	}
}

func TestMigrationsCreateEveryTable(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverPostgres, DriverMySQL, DriverSQLServer} {
		n, err := MigrationCount(driver)
		if err != nil || n == 0 {
			t.Fatalf("MigrationCount(%s) = %d, %v", driver, n, err)
		}
		d, _ := dialectFor(driver)
		all := strings.Join(d.migrations, "\n")
		for _, table := range Tables {
			if !strings.Contains(all, "TABLE "+table+" (") && !strings.Contains(all, "EXISTS "+table+" (") {
				t.Errorf("%s migrations do not create %s", driver, table)
			}
		}
	}
	if _, err := MigrationCount("oracle"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("MigrationCount(oracle) = %v, want ErrUnsupportedDriver", err)
	}
}
