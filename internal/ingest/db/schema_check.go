package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Krixium/scalable-server/internal/ingest/config"
)

// CurrentSchema returns the selected MySQL database (DATABASE()).
func CurrentSchema(ctx context.Context, conn *sql.DB) (string, error) {
	var s sql.NullString
	if err := conn.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&s); err != nil {
		return "", err
	}
	if !s.Valid || s.String == "" {
		return "", errors.New("no database selected")
	}
	return s.String, nil
}

// CheckRequiredTables returns the tables from the list that do not exist.
// schema is ignored for sqlite.
func CheckRequiredTables(ctx context.Context, conn *sql.DB, driver, schema string, tables []string) ([]string, error) {
	missing := make([]string, 0, len(tables))
	for _, t := range tables {
		ok, err := tableExists(ctx, conn, driver, schema, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

func tableExists(ctx context.Context, conn *sql.DB, driver, schema, table string) (bool, error) {
	var (
		q    string
		args []any
	)
	if driver == config.DriverSQLite {
		q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
		args = []any{table}
	} else {
		q = `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = ? AND table_name = ?
			LIMIT 1
		`
		args = []any{schema, table}
	}
	var c int
	if err := conn.QueryRowContext(ctx, q, args...).Scan(&c); err != nil {
		return false, err
	}
	return c > 0, nil
}
