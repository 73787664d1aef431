package lock

import (
	"context"
	"database/sql"

	"github.com/Krixium/scalable-server/internal/ingest/config"
)

// Get takes a named advisory lock. sqlite has no GET_LOCK; its single
// writer connection already serialises ingests, so the lock is always granted.
func Get(ctx context.Context, db *sql.DB, driver, key string, timeoutSeconds int) (bool, error) {
	if driver != config.DriverMySQL {
		return true, nil
	}
	var res sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", key, timeoutSeconds).Scan(&res); err != nil {
		return false, err
	}
	return res.Valid && res.Int64 == 1, nil
}

func Release(ctx context.Context, db *sql.DB, driver, key string) error {
	if driver != config.DriverMySQL {
		return nil
	}
	_, err := db.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", key)
	return err
}
