package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Krixium/scalable-server/internal/ingest/config"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Open connects to the configured driver. A sqlite database gets its
// tables created on open; MySQL is expected to be provisioned (see Bootstrap).
func Open(cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return openMySQL(cfg)
	case config.DriverSQLite:
		return OpenSQLite(cfg.SQLitePath, cfg.QueryTimeout)
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
}

func openMySQL(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLDB,
		int(cfg.ConnectTimeout.Seconds()),
		int(cfg.QueryTimeout.Seconds()),
		int(cfg.QueryTimeout.Seconds()),
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool tuning
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "SET time_zone = '+00:00'"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set session time_zone UTC failed: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) a sqlite file and bootstraps the schema.
func OpenSQLite(path string, timeout time.Duration) (*sql.DB, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := Bootstrap(ctx, db, config.DriverSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
