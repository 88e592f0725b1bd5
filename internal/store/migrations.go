package store

import (
	"context"
	"fmt"
)

// Migrate creates the gateway tables if they do not exist. Statements are
// idempotent; re-applied column additions are ignored.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range s.dialect.migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			if s.dialect.duplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Tables lists the tables every dialect's migrations create.
var Tables = []string{"accounts", "api_keys", "rate_limit_windows", "api_key_usage_logs"}

// MigrationCount reports how many migration statements a driver applies.
func MigrationCount(driver string) (int, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return 0, err
	}
	return len(d.migrations), nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_by INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		permissions TEXT NOT NULL DEFAULT '[]',
		rate_limit INTEGER NOT NULL DEFAULT 1000,
		expires_at DATETIME,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_used_at DATETIME,
		request_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_account ON api_keys(account_id)`,

	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		api_key_id INTEGER NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		window_start DATETIME NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, window_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_start ON rate_limit_windows(window_start)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key_id INTEGER NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		error_message TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_key_created ON api_key_usage_logs(api_key_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_created ON api_key_usage_logs(created_at)`,

	// v2: distinguish client aborts from completed requests
	`ALTER TABLE api_key_usage_logs ADD COLUMN outcome TEXT NOT NULL DEFAULT 'completed'`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_by BIGINT NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		permissions TEXT NOT NULL DEFAULT '[]',
		rate_limit INTEGER NOT NULL DEFAULT 1000,
		expires_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_at TIMESTAMPTZ,
		request_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_account ON api_keys(account_id)`,

	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		api_key_id BIGINT NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		window_start TIMESTAMPTZ NOT NULL,
		request_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, window_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_start ON rate_limit_windows(window_start)`,

	`CREATE TABLE IF NOT EXISTS api_key_usage_logs (
		id BIGSERIAL PRIMARY KEY,
		api_key_id BIGINT NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		response_time_ms BIGINT NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_key_created ON api_key_usage_logs(api_key_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_created ON api_key_usage_logs(created_at)`,

	`ALTER TABLE api_key_usage_logs ADD COLUMN IF NOT EXISTS outcome TEXT NOT NULL DEFAULT 'completed'`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		account_id BIGINT NOT NULL,
		created_by BIGINT NOT NULL DEFAULT 0,
		name VARCHAR(255) NOT NULL,
		key_hash CHAR(64) NOT NULL,
		key_prefix VARCHAR(32) NOT NULL,
		permissions TEXT NOT NULL,
		rate_limit INT NOT NULL DEFAULT 1000,
		expires_at DATETIME(6) NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		last_used_at DATETIME(6) NULL,
		request_count BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_api_keys_hash (key_hash),
		KEY idx_api_keys_account (account_id),
		CONSTRAINT fk_api_keys_account FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		api_key_id BIGINT NOT NULL,
		window_start DATETIME(6) NOT NULL,
		request_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, window_start),
		KEY idx_rate_limit_windows_start (window_start),
		CONSTRAINT fk_windows_key FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS api_key_usage_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		api_key_id BIGINT NOT NULL,
		endpoint VARCHAR(512) NOT NULL,
		method VARCHAR(16) NOT NULL,
		status_code INT NOT NULL,
		response_time_ms BIGINT NOT NULL DEFAULT 0,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		error_message TEXT NULL,
		outcome VARCHAR(16) NOT NULL DEFAULT 'completed',
		created_at DATETIME(6) NOT NULL,
		KEY idx_usage_logs_key_created (api_key_id, created_at),
		KEY idx_usage_logs_created (created_at),
		CONSTRAINT fk_usage_key FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

var sqlserverMigrations = []string{
	`IF OBJECT_ID(N'accounts', N'U') IS NULL
	CREATE TABLE accounts (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(255) NOT NULL,
		is_active BIT NOT NULL DEFAULT 1,
		created_at DATETIME2 NOT NULL
	)`,

	`IF OBJECT_ID(N'api_keys', N'U') IS NULL
	CREATE TABLE api_keys (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_by BIGINT NOT NULL DEFAULT 0,
		name NVARCHAR(255) NOT NULL,
		key_hash CHAR(64) NOT NULL UNIQUE,
		key_prefix NVARCHAR(32) NOT NULL,
		permissions NVARCHAR(MAX) NOT NULL,
		rate_limit INT NOT NULL DEFAULT 1000,
		expires_at DATETIME2 NULL,
		is_active BIT NOT NULL DEFAULT 1,
		last_used_at DATETIME2 NULL,
		request_count BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME2 NOT NULL,
		updated_at DATETIME2 NOT NULL,
		INDEX idx_api_keys_account (account_id)
	)`,

	`IF OBJECT_ID(N'rate_limit_windows', N'U') IS NULL
	CREATE TABLE rate_limit_windows (
		api_key_id BIGINT NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		window_start DATETIME2 NOT NULL,
		request_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, window_start),
		INDEX idx_rate_limit_windows_start (window_start)
	)`,

	`IF OBJECT_ID(N'api_key_usage_logs', N'U') IS NULL
	CREATE TABLE api_key_usage_logs (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		api_key_id BIGINT NOT NULL REFERENCES api_keys(id) ON DELETE CASCADE,
		endpoint NVARCHAR(512) NOT NULL,
		method NVARCHAR(16) NOT NULL,
		status_code INT NOT NULL,
		response_time_ms BIGINT NOT NULL DEFAULT 0,
		ip_address NVARCHAR(64) NOT NULL DEFAULT '',
		user_agent NVARCHAR(512) NOT NULL DEFAULT '',
		error_message NVARCHAR(MAX) NULL,
		outcome NVARCHAR(16) NOT NULL DEFAULT 'completed',
		created_at DATETIME2 NOT NULL,
		INDEX idx_usage_logs_key_created (api_key_id, created_at),
		INDEX idx_usage_logs_created (created_at)
	)`,
}
