package aggregators

import (
	"errors"
	"fmt"
	"math"

	"github.com/Krixium/scalable-server/internal/record"
)

// DefaultWindowMs is the one-second bucket the servers' plots were drawn with.
const DefaultWindowMs = 1000.0

var ErrInvalidWidth = errors.New("window width must be a positive finite number of milliseconds")

// ErrNonFiniteTimestamp is returned by Add for a NaN or infinite timestamp.
var ErrNonFiniteTimestamp = errors.New("record timestamp must be finite")

// OutOfOrderError is returned when a record is older than the current window start.
type OutOfOrderError struct {
	TimestampMs float64
	WindowStart float64
	Index       int64 // 0-based position of the record in the pass
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("record %d out of order: timestamp %.3f is before window start %.3f", e.Index, e.TimestampMs, e.WindowStart)
}

// Progress is handed to Options.OnProgress.
type Progress struct {
	Records     int64
	Windows     int64
	WindowStart float64
}

// Options configures one aggregation pass.
//
// With SuppressZeroWindows set, a series point is appended only when its
// value is nonzero; totals are unaffected either way.
type Options struct {
	WindowWidthMs       float64
	SuppressZeroWindows bool

	// OnProgress, if set, is called every ProgressEvery records (every record when <= 0).
	OnProgress    func(Progress)
	ProgressEvery int64

	// OnSkip, if set, is called for every record with an unknown event.
	OnSkip func(record.LogRecord)
}

// Aggregator buckets an ordered record stream into fixed-width tumbling windows.
// It is not safe for concurrent use; one Aggregator serves one pass.
type Aggregator struct {
	opt Options

	started bool
	done    bool
	origin  float64 // timestamp of the first record
	index   int64   // current window is [origin+index*W, origin+(index+1)*W)
	cur     Counters

	res Result
}

// New validates opt and returns an empty Aggregator.
func New(opt Options) (*Aggregator, error) {
	w := opt.WindowWidthMs
	if !(w > 0) || math.IsInf(w, 0) {
		return nil, ErrInvalidWidth
	}
	return &Aggregator{opt: opt}, nil
}

// WindowStart returns the watermark: the start of the currently open window.
func (a *Aggregator) WindowStart() float64 {
	return a.origin + float64(a.index)*a.opt.WindowWidthMs
}

// Add consumes one record. A record older than the current window start
// yields *OutOfOrderError and leaves the Aggregator untouched.
func (a *Aggregator) Add(r record.LogRecord) error {
	if a.done {
		return errors.New("aggregator already finished")
	}
	if math.IsNaN(r.TimestampMs) || math.IsInf(r.TimestampMs, 0) {
		return ErrNonFiniteTimestamp
	}
	if !a.started {
		a.started = true
		a.origin = r.TimestampMs
	}
	if start := a.WindowStart(); r.TimestampMs < start {
		return &OutOfOrderError{TimestampMs: r.TimestampMs, WindowStart: start, Index: a.res.Records}
	}

	a.advance(r.TimestampMs)
	a.res.Records++

	switch r.Event {
	case record.EventNew:
		a.cur.New++
	case record.EventSend:
		if r.Value > 0 {
			a.cur.Send++
			a.cur.SendBytes += r.Value
		}
	case record.EventReceive:
		if r.Value > 0 {
			a.cur.Receive++
			a.cur.ReceiveBytes += r.Value
		}
	default:
		a.res.Skipped++
		if a.opt.OnSkip != nil {
			a.opt.OnSkip(r)
		}
	}

	if a.opt.OnProgress != nil {
		every := a.opt.ProgressEvery
		if every <= 0 || a.res.Records%every == 0 {
			a.opt.OnProgress(Progress{Records: a.res.Records, Windows: a.res.Windows, WindowStart: a.WindowStart()})
		}
	}
	return nil
}

// advance closes every window that ends at or before ts.
func (a *Aggregator) advance(ts float64) {
	w := a.opt.WindowWidthMs
	for ts >= a.origin+float64(a.index+1)*w {
		a.closeWindow()
		a.index++

		// Only empty windows lie between here and ts. When they would be
		// suppressed anyway, count them and jump straight to ts's window.
		if a.opt.SuppressZeroWindows {
			k := int64(math.Floor((ts - a.origin) / w))
			if a.origin+float64(k)*w > ts {
				k--
			}
			if k > a.index {
				a.res.Windows += k - a.index
				a.index = k
			}
		}
	}
}

func (a *Aggregator) closeWindow() {
	start := a.WindowStart()
	for _, c := range Classes {
		v := a.cur.Get(c)
		if v == 0 && a.opt.SuppressZeroWindows {
			continue
		}
		a.res.Series[c] = append(a.res.Series[c], SeriesPoint{WindowStart: start, Value: v})
	}
	a.res.Totals.Add(a.cur)
	a.res.Windows++
	a.cur = Counters{}
}

// Finish closes the final, possibly partial, window exactly once and returns
// the result. Further calls return the same result. An Aggregator that saw no
// records returns zero totals and empty series.
func (a *Aggregator) Finish() Result {
	if !a.done {
		a.done = true
		if a.started {
			a.closeWindow()
		}
	}
	return a.res
}

// Aggregate runs one pass over records.
func Aggregate(records []record.LogRecord, opt Options) (Result, error) {
	a, err := New(opt)
	if err != nil {
		return Result{}, err
	}
	for _, r := range records {
		if err := a.Add(r); err != nil {
			return Result{}, err
		}
	}
	return a.Finish(), nil
}
