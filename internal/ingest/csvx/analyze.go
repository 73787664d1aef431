package csvx

import (
	"errors"
	"io"

	"github.com/Krixium/scalable-server/internal/csvin"
	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/iox"
	"github.com/Krixium/scalable-server/internal/record"
)

// LogStats describes a server log without aggregating it.
type LogStats struct {
	Lines     int64 // non-blank lines
	Records   int64 // lines that parsed into a known event
	Malformed int64
	Unknown   int64
	Events    map[record.Event]int64

	MinTS float64
	MaxTS float64

	// Regressions counts records older than an earlier record in the file.
	// FirstRegressionLine is 0 when the file is fully ordered.
	Regressions         int64
	FirstRegressionLine int64
	MaxRegressionMs     float64

	// OutOfOrder counts records older than the open window's start at the
	// configured width, i.e. the records the aggregate stage would reject.
	OutOfOrder          int64
	FirstOutOfOrderLine int64
}

// AnalyzeOptions configures AnalyzeLog.
type AnalyzeOptions struct {
	AllowShortNew bool
	WindowMs      float64 // width used for the out-of-order check
}

// Ordered reports whether timestamps never decrease.
func (s *LogStats) Ordered() bool { return s.Regressions == 0 }

// Aggregatable reports whether every record lands at or after the open
// window's start. Jitter inside a window is allowed.
func (s *LogStats) Aggregatable() bool { return s.OutOfOrder == 0 }

// SpanMs is the distance between the earliest and latest timestamps.
func (s *LogStats) SpanMs() float64 {
	if s.Records == 0 {
		return 0
	}
	return s.MaxTS - s.MinTS
}

// AnalyzeLog makes one pass over path collecting LogStats. Records are also
// replayed through a windowed aggregator so that OutOfOrder matches what
// StreamAndAggregate would reject.
func AnalyzeLog(path string, opt AnalyzeOptions) (*LogStats, error) {
	agg, err := aggregators.New(aggregators.Options{WindowWidthMs: opt.WindowMs})
	if err != nil {
		return nil, err
	}
	in, err := iox.OpenAuto(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	stats := &LogStats{Events: make(map[record.Event]int64)}
	var (
		haveTS bool
		prev   float64 // running maximum
	)

	r := csvin.New(in, csvin.Options{AllowShortNew: opt.AllowShortNew})
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		stats.Lines++
		if err != nil {
			var ue *record.UnknownEventError
			var me *record.MalformedRecordError
			switch {
			case errors.As(err, &ue):
				stats.Unknown++
			case errors.As(err, &me):
				stats.Malformed++
			default:
				return nil, err
			}
			continue
		}
		stats.Records++
		stats.Events[rec.Event]++

		if err := agg.Add(rec); err != nil {
			var oe *aggregators.OutOfOrderError
			if !errors.As(err, &oe) {
				return nil, err
			}
			stats.OutOfOrder++
			if stats.FirstOutOfOrderLine == 0 {
				stats.FirstOutOfOrderLine = r.Line()
			}
		}

		ts := rec.TimestampMs
		if !haveTS {
			stats.MinTS, stats.MaxTS, prev = ts, ts, ts
			haveTS = true
			continue
		}
		if ts < stats.MinTS {
			stats.MinTS = ts
		}
		if ts > stats.MaxTS {
			stats.MaxTS = ts
		}
		if ts < prev {
			stats.Regressions++
			if stats.FirstRegressionLine == 0 {
				stats.FirstRegressionLine = r.Line()
			}
			if d := prev - ts; d > stats.MaxRegressionMs {
				stats.MaxRegressionMs = d
			}
		} else {
			prev = ts
		}
	}
	return stats, nil
}
