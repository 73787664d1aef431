package writer

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
)

type FilePayload struct {
	RunID  int64
	File   string
	Result *aggregators.Result
	Chunk  int
}

// InsertFile replaces everything stored for (run, file) with p.Result in one transaction.
func InsertFile(ctx context.Context, db *sql.DB, p FilePayload) error {
	if p.Result == nil {
		return fmt.Errorf("insert %s: nil result", p.File)
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ls_total WHERE run_id=? AND file=?", p.RunID, p.File); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM ls_window WHERE run_id=? AND file=?", p.RunID, p.File); err != nil {
			return err
		}

		totals := make([][]any, 0, aggregators.NumClasses)
		var windows [][]any
		for _, c := range aggregators.Classes {
			totals = append(totals, []any{p.RunID, p.File, c.String(), p.Result.Totals.Get(c)})
			for _, pt := range p.Result.SeriesOf(c) {
				windows = append(windows, []any{p.RunID, p.File, c.String(), pt.WindowStart, pt.Value})
			}
		}
		if err := chunkedExec(ctx, tx, "ls_total",
			[]string{"run_id", "file", "class", "value"}, totals, p.Chunk); err != nil {
			return fmt.Errorf("ls_total: %w", err)
		}
		if err := chunkedExec(ctx, tx, "ls_window",
			[]string{"run_id", "file", "class", "window_start", "value"}, windows, p.Chunk); err != nil {
			return fmt.Errorf("ls_window: %w", err)
		}
		return nil
	})
}

type DelayPayload struct {
	RunID int64
	Means map[string]float64
}

// InsertCaseDelays replaces the per-case means stored for the run.
func InsertCaseDelays(ctx context.Context, db *sql.DB, p DelayPayload) error {
	names := make([]string, 0, len(p.Means))
	for k := range p.Means {
		names = append(names, k)
	}
	sort.Strings(names)

	rows := make([][]any, 0, len(names))
	for _, n := range names {
		rows = append(rows, []any{p.RunID, n, p.Means[n]})
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ls_case_delay WHERE run_id=?", p.RunID); err != nil {
			return err
		}
		return chunkedExec(ctx, tx, "ls_case_delay", []string{"run_id", "case_name", "mean"}, rows, defaultChunk)
	})
}

// LoadResult reads back what InsertFile stored. Windows, Records and Skipped
// are not stored per file and come back zero.
func LoadResult(ctx context.Context, db *sql.DB, runID int64, file string) (aggregators.Result, error) {
	var res aggregators.Result

	rows, err := db.QueryContext(ctx,
		"SELECT class, value FROM ls_total WHERE run_id=? AND file=?", runID, file)
	if err != nil {
		return res, err
	}
	found := false
	for rows.Next() {
		var (
			name string
			v    int64
		)
		if err := rows.Scan(&name, &v); err != nil {
			rows.Close()
			return res, err
		}
		c, err := aggregators.ParseClass(name)
		if err != nil {
			rows.Close()
			return res, err
		}
		found = true
		var k aggregators.Counters
		switch c {
		case aggregators.ClassNew:
			k.New = v
		case aggregators.ClassSend:
			k.Send = v
		case aggregators.ClassSendBytes:
			k.SendBytes = v
		case aggregators.ClassReceive:
			k.Receive = v
		case aggregators.ClassReceiveBytes:
			k.ReceiveBytes = v
		}
		res.Totals.Add(k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}
	if !found {
		return res, sql.ErrNoRows
	}

	wrows, err := db.QueryContext(ctx,
		"SELECT class, window_start, value FROM ls_window WHERE run_id=? AND file=? ORDER BY class, window_start",
		runID, file)
	if err != nil {
		return res, err
	}
	defer wrows.Close()
	for wrows.Next() {
		var (
			name string
			pt   aggregators.SeriesPoint
		)
		if err := wrows.Scan(&name, &pt.WindowStart, &pt.Value); err != nil {
			return res, err
		}
		c, err := aggregators.ParseClass(name)
		if err != nil {
			return res, err
		}
		res.Series[c] = append(res.Series[c], pt)
	}
	return res, wrows.Err()
}

// LoadCaseDelays returns the per-case means stored for the run.
func LoadCaseDelays(ctx context.Context, db *sql.DB, runID int64) (map[string]float64, error) {
	rows, err := db.QueryContext(ctx, "SELECT case_name, mean FROM ls_case_delay WHERE run_id=?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var (
			name string
			mean float64
		)
		if err := rows.Scan(&name, &mean); err != nil {
			return nil, err
		}
		out[name] = mean
	}
	return out, rows.Err()
}

// RunFiles lists the log files stored for the run, sorted.
func RunFiles(ctx context.Context, db *sql.DB, runID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT DISTINCT file FROM ls_total WHERE run_id=? ORDER BY file", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
