package csvx

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Krixium/scalable-server/internal/csvin"
	"github.com/Krixium/scalable-server/internal/iox"
	"github.com/Krixium/scalable-server/internal/record"
)

// ReadRecords parses every server log in files, in order, keeping only
// records with a known event. Malformed and unknown lines are counted in
// dbg (which may be nil) and skipped.
func ReadRecords(ctx context.Context, files []string, allowShortNew bool, dbg *DebugInfo) ([]record.LogRecord, error) {
	var out []record.LogRecord
	for _, path := range files {
		recs, err := readFile(ctx, path, allowShortNew, dbg)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readFile(ctx context.Context, path string, allowShortNew bool, dbg *DebugInfo) ([]record.LogRecord, error) {
	in, err := iox.OpenAuto(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	var out []record.LogRecord
	r := csvin.New(in, csvin.Options{AllowShortNew: allowShortNew})
	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if dbg != nil {
			dbg.TotalRead++
		}
		if err != nil {
			var ue *record.UnknownEventError
			var me *record.MalformedRecordError
			switch {
			case errors.As(err, &ue):
				if dbg != nil {
					dbg.SkipUnknown++
				}
			case errors.As(err, &me):
				if dbg != nil {
					dbg.SkipMalformed++
				}
			default:
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			dbg.note(r.Line(), err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
