package csvx

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Krixium/scalable-server/internal/csvin"
	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/iox"
	"github.com/Krixium/scalable-server/internal/record"
)

// DebugInfo collects skip statistics for one file.
type DebugInfo struct {
	PrintFirstN   int // keep at most this many bad-line messages in FirstBad
	TotalRead     int64
	SkipMalformed int64
	SkipUnknown   int64
	FirstBad      []string
}

func (d *DebugInfo) note(line int64, err error) {
	if d == nil {
		return
	}
	if len(d.FirstBad) < d.PrintFirstN {
		d.FirstBad = append(d.FirstBad, fmt.Sprintf("line %d: %v", line, err))
	}
}

// StreamOptions configures StreamAndAggregate.
type StreamOptions struct {
	Window        aggregators.Options
	AllowShortNew bool
	// Strict aborts on the first malformed line instead of skipping it.
	Strict bool
	// OnUnknown, if set, sees every record whose event token was not recognised.
	OnUnknown func(line int64, rec record.LogRecord)
}

// checkEvery is how many lines pass between context checks.
const checkEvery = 4096

// StreamAndAggregate reads one server log and runs a single aggregation pass over it.
// Malformed lines are skipped (or fatal with Strict). Unknown events never reach
// the aggregator, so their timestamps cannot trip the ordering check, but they
// are counted in Result.Records and Result.Skipped. An out-of-order record
// aborts the pass.
func StreamAndAggregate(ctx context.Context, path string, opt StreamOptions, dbg *DebugInfo) (aggregators.Result, error) {
	agg, err := aggregators.New(opt.Window)
	if err != nil {
		return aggregators.Result{}, err
	}

	in, err := iox.OpenAuto(path)
	if err != nil {
		return aggregators.Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	var unknown int64
	r := csvin.New(in, csvin.Options{AllowShortNew: opt.AllowShortNew})
	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return aggregators.Result{}, err
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
				unknown++
				if dbg != nil {
					dbg.SkipUnknown++
				}
				dbg.note(r.Line(), err)
				if opt.OnUnknown != nil {
					opt.OnUnknown(r.Line(), ue.Record)
				}
				continue
			case errors.As(err, &me):
				if opt.Strict {
					return aggregators.Result{}, fmt.Errorf("%s line %d: %w", path, r.Line(), err)
				}
				if dbg != nil {
					dbg.SkipMalformed++
				}
				dbg.note(r.Line(), err)
				continue
			default:
				return aggregators.Result{}, fmt.Errorf("read %s: %w", path, err)
			}
		}

		if err := agg.Add(rec); err != nil {
			return aggregators.Result{}, fmt.Errorf("%s line %d: %w", path, r.Line(), err)
		}
	}
	res := agg.Finish()
	res.Records += unknown
	res.Skipped += unknown
	return res, nil
}
