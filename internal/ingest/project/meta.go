package project

import (
	"context"
	"database/sql"
	"time"

	"github.com/Krixium/scalable-server/internal/ingest/util"
)

// Run statuses stored in ls_run.status.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// RunMeta is one row of ls_run.
type RunMeta struct {
	ID           int64
	Name         string
	WindowMs     float64
	SuppressZero bool
	Files        int
	Records      int64
	Windows      int64
	LogStart     time.Time
	LogEnd       time.Time
	Status       string
}

// CreateRun inserts a running ls_run row and returns its id.
func CreateRun(ctx context.Context, db *sql.DB, name string, windowMs float64, suppress bool) (int64, error) {
	const q = `
		INSERT INTO ls_run (name, window_ms, suppress_zero, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := db.ExecContext(ctx, q, name, windowMs, boolInt(suppress), StatusRunning, util.FormatDB(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateRunMeta records what a finished ingest wrote and marks the run with status.
func UpdateRunMeta(ctx context.Context, db *sql.DB, m RunMeta) error {
	const q = `
		UPDATE ls_run
		SET
			files       = ?,
			records     = ?,
			windows     = ?,
			log_start   = ?,
			log_end     = ?,
			status      = ?,
			finished_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, q,
		m.Files, m.Records, m.Windows,
		nullString(util.FormatDB(m.LogStart)), nullString(util.FormatDB(m.LogEnd)),
		m.Status, util.FormatDB(time.Now()), m.ID,
	)
	return err
}

// MarkFailed sets status=failed for id.
func MarkFailed(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE ls_run SET status = ?, finished_at = ? WHERE id = ?`,
		StatusFailed, util.FormatDB(time.Now()), id)
	return err
}

// GetRun loads one ls_run row.
func GetRun(ctx context.Context, db *sql.DB, id int64) (RunMeta, error) {
	const q = `
		SELECT id, name, window_ms, suppress_zero, files, records, windows,
		       COALESCE(log_start, ''), COALESCE(log_end, ''), status
		FROM ls_run
		WHERE id = ?
	`
	var (
		m          RunMeta
		suppress   int
		start, end string
	)
	err := db.QueryRowContext(ctx, q, id).Scan(
		&m.ID, &m.Name, &m.WindowMs, &suppress, &m.Files, &m.Records, &m.Windows, &start, &end, &m.Status,
	)
	if err != nil {
		return RunMeta{}, err
	}
	m.SuppressZero = suppress != 0
	m.LogStart, _ = util.ParseDB(start)
	m.LogEnd, _ = util.ParseDB(end)
	return m, nil
}

// LatestRunID returns the newest finished run, for re-plotting from the database.
func LatestRunID(ctx context.Context, db *sql.DB) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM ls_run WHERE status = ? ORDER BY id DESC LIMIT 1`, StatusDone,
	).Scan(&id)
	return id, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
