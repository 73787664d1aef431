package verifier

import (
	"context"
	"strconv"

	"github.com/Krixium/scalable-server/internal/batch"
	"github.com/Krixium/scalable-server/internal/csvout"
	"github.com/Krixium/scalable-server/internal/ingest/csvx"
	"github.com/Krixium/scalable-server/internal/iox"
	"github.com/Krixium/scalable-server/internal/record"
	"github.com/Krixium/scalable-server/internal/schema"
)

type Result struct {
	File  string
	Stats *csvx.LogStats // nil when Err is set
	Err   error
}

// OK reports whether the file can be aggregated as-is at the verified window
// width: readable, no record older than its open window, at least one record.
// Strict ordering is reported separately through Stats.Ordered.
func (r Result) OK() bool {
	return r.Err == nil && r.Stats != nil && r.Stats.Records > 0 && r.Stats.Aggregatable()
}

// VerifyLogs analyses every file in parallel with progress channel.
// Results come back in input order; a failing file never stops the others.
func VerifyLogs(ctx context.Context, files []string, workers int, opt csvx.AnalyzeOptions, progress chan<- int) []Result {
	outcomes := batch.Run(ctx, files, workers, func(_ context.Context, path string) (*csvx.LogStats, error) {
		return csvx.AnalyzeLog(path, opt)
	}, progress)

	results := make([]Result, len(outcomes))
	for i, o := range outcomes {
		results[i] = Result{File: o.Input, Stats: o.Value, Err: o.Err}
		if o.Err != nil {
			results[i].Stats = nil
		}
	}
	return results
}

// WriteResultsCSV writes one schema.VerifyColumns row per result.
func WriteResultsCSV(outPath string, results []Result) error {
	f, err := iox.CreateAuto(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := csvout.New(f)
	if err := w.WriteHeader(schema.VerifyHeader()); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.WriteRow(row(r)); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func row(r Result) []string {
	out := make([]string, len(schema.VerifyColumns))
	out[0] = r.File
	if r.Err != nil || r.Stats == nil {
		if r.Err != nil {
			out[len(out)-1] = r.Err.Error()
		}
		return out
	}
	s := r.Stats
	i64 := func(v int64) string { return strconv.FormatInt(v, 10) }
	f64 := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}
	copy(out[1:], []string{
		i64(s.Lines),
		i64(s.Records),
		i64(s.Malformed),
		i64(s.Unknown),
		i64(s.Events[record.EventNew]),
		i64(s.Events[record.EventSend]),
		i64(s.Events[record.EventReceive]),
		f64(s.MinTS),
		f64(s.MaxTS),
		f64(s.SpanMs()),
		b(s.Ordered()),
		i64(s.Regressions),
		i64(s.FirstRegressionLine),
		f64(s.MaxRegressionMs),
		b(s.Aggregatable()),
		i64(s.OutOfOrder),
		i64(s.FirstOutOfOrderLine),
		"",
	})
	return out
}
