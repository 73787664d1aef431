package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Krixium/scalable-server/internal/ingest/config"
)

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS ls_run (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT    NOT NULL,
		window_ms     REAL    NOT NULL,
		suppress_zero INTEGER NOT NULL DEFAULT 0,
		files         INTEGER NOT NULL DEFAULT 0,
		records       INTEGER NOT NULL DEFAULT 0,
		windows       INTEGER NOT NULL DEFAULT 0,
		log_start     TEXT,
		log_end       TEXT,
		status        TEXT    NOT NULL DEFAULT 'running',
		created_at    TEXT    NOT NULL,
		finished_at   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ls_total (
		run_id INTEGER NOT NULL REFERENCES ls_run(id) ON DELETE CASCADE,
		file   TEXT    NOT NULL,
		class  TEXT    NOT NULL,
		value  INTEGER NOT NULL,
		PRIMARY KEY (run_id, file, class)
	)`,
	`CREATE TABLE IF NOT EXISTS ls_window (
		run_id       INTEGER NOT NULL REFERENCES ls_run(id) ON DELETE CASCADE,
		file         TEXT    NOT NULL,
		class        TEXT    NOT NULL,
		window_start REAL    NOT NULL,
		value        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ls_window_run_file ON ls_window (run_id, file, class)`,
	`CREATE TABLE IF NOT EXISTS ls_case_delay (
		run_id    INTEGER NOT NULL REFERENCES ls_run(id) ON DELETE CASCADE,
		case_name TEXT    NOT NULL,
		mean      REAL    NOT NULL,
		PRIMARY KEY (run_id, case_name)
	)`,
}

var mysqlDDL = []string{
	`CREATE TABLE IF NOT EXISTS ls_run (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		window_ms     DOUBLE       NOT NULL,
		suppress_zero TINYINT(1)   NOT NULL DEFAULT 0,
		files         INT          NOT NULL DEFAULT 0,
		records       BIGINT       NOT NULL DEFAULT 0,
		windows       BIGINT       NOT NULL DEFAULT 0,
		log_start     VARCHAR(32),
		log_end       VARCHAR(32),
		status        VARCHAR(16)  NOT NULL DEFAULT 'running',
		created_at    VARCHAR(32)  NOT NULL,
		finished_at   VARCHAR(32)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ls_total (
		run_id BIGINT       NOT NULL,
		file   VARCHAR(512) NOT NULL,
		class  VARCHAR(16)  NOT NULL,
		value  BIGINT       NOT NULL,
		PRIMARY KEY (run_id, file(255), class)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ls_window (
		run_id       BIGINT       NOT NULL,
		file         VARCHAR(512) NOT NULL,
		class        VARCHAR(16)  NOT NULL,
		window_start DOUBLE       NOT NULL,
		value        BIGINT       NOT NULL,
		KEY ls_window_run_file (run_id, file(255), class)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ls_case_delay (
		run_id    BIGINT       NOT NULL,
		case_name VARCHAR(255) NOT NULL,
		mean      DOUBLE       NOT NULL,
		PRIMARY KEY (run_id, case_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Bootstrap creates any missing tables for driver.
func Bootstrap(ctx context.Context, conn *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case config.DriverSQLite:
		stmts = sqliteDDL
	case config.DriverMySQL:
		stmts = mysqlDDL
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	for _, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	return nil
}
