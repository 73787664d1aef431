package aggregators

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krixium/scalable-server/internal/record"
)

func rec(ts float64, ev record.Event, val int64) record.LogRecord {
	return record.LogRecord{Socket: "s1", TimestampMs: ts, Event: ev, Token: ev.String(), Value: val}
}

func opts(w float64, suppress bool) Options {
	return Options{WindowWidthMs: w, SuppressZeroWindows: suppress}
}

func TestAggregate_MixedEvents(t *testing.T) {
	in := []record.LogRecord{
		rec(0, record.EventNew, 0),
		rec(500, record.EventSend, 100),
		rec(1500, record.EventReceive, 50),
	}
	res, err := Aggregate(in, opts(1000, false))
	require.NoError(t, err)

	assert.Equal(t, []SeriesPoint{{0, 1}, {1000, 0}}, res.SeriesOf(ClassNew))
	assert.Equal(t, []SeriesPoint{{0, 1}, {1000, 0}}, res.SeriesOf(ClassSend))
	assert.Equal(t, []SeriesPoint{{0, 100}, {1000, 0}}, res.SeriesOf(ClassSendBytes))
	assert.Equal(t, []SeriesPoint{{0, 0}, {1000, 1}}, res.SeriesOf(ClassReceive))
	assert.Equal(t, []SeriesPoint{{0, 0}, {1000, 50}}, res.SeriesOf(ClassReceiveBytes))

	assert.Equal(t, Counters{New: 1, Send: 1, SendBytes: 100, Receive: 1, ReceiveBytes: 50}, res.Totals)
	assert.Equal(t, int64(3), res.Records)
	assert.Equal(t, int64(2), res.Windows)
}

func TestAggregate_Empty(t *testing.T) {
	for _, suppress := range []bool{false, true} {
		res, err := Aggregate(nil, opts(1000, suppress))
		require.NoError(t, err)
		assert.True(t, res.Totals.IsZero())
		for _, c := range Classes {
			assert.Empty(t, res.SeriesOf(c), c.String())
		}
		assert.Equal(t, int64(0), res.Windows)
	}
}

func TestAggregate_OutOfOrder(t *testing.T) {
	in := []record.LogRecord{
		rec(1000, record.EventNew, 0),
		rec(500, record.EventNew, 0),
	}
	res, err := Aggregate(in, opts(1000, false))
	var oe *OutOfOrderError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, 500.0, oe.TimestampMs)
	assert.Equal(t, 1000.0, oe.WindowStart)
	assert.Equal(t, int64(1), oe.Index)
	assert.Equal(t, Result{}, res)
}

func TestAggregator_OutOfOrderLeavesStateUntouched(t *testing.T) {
	a, err := New(opts(1000, false))
	require.NoError(t, err)
	require.NoError(t, a.Add(rec(0, record.EventNew, 0)))
	require.NoError(t, a.Add(rec(2100, record.EventNew, 0)))

	err = a.Add(rec(1500, record.EventNew, 0))
	require.Error(t, err)
	assert.Equal(t, 2000.0, a.WindowStart())

	res := a.Finish()
	assert.Equal(t, int64(2), res.Totals.New)
	assert.Equal(t, int64(2), res.Records)
}

func TestAggregator_JitterInsideWindowIsAccepted(t *testing.T) {
	// only a timestamp before the open window's start is fatal
	res, err := Aggregate([]record.LogRecord{
		rec(100, record.EventNew, 0),
		rec(400, record.EventNew, 0),
		rec(350, record.EventNew, 0),
	}, opts(1000, false))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Totals.New)
}

func TestAggregate_GapFilling(t *testing.T) {
	in := []record.LogRecord{
		rec(0, record.EventNew, 0),
		rec(5000, record.EventNew, 0),
	}

	t.Run("zero windows kept", func(t *testing.T) {
		res, err := Aggregate(in, opts(1000, false))
		require.NoError(t, err)
		want := []SeriesPoint{{0, 1}, {1000, 0}, {2000, 0}, {3000, 0}, {4000, 0}, {5000, 1}}
		assert.Equal(t, want, res.SeriesOf(ClassNew))
		assert.Len(t, res.SeriesOf(ClassSend), 6)
		assert.Equal(t, int64(6), res.Windows)
	})

	t.Run("zero windows suppressed", func(t *testing.T) {
		res, err := Aggregate(in, opts(1000, true))
		require.NoError(t, err)
		assert.Equal(t, []SeriesPoint{{0, 1}, {5000, 1}}, res.SeriesOf(ClassNew))
		assert.Empty(t, res.SeriesOf(ClassSend))
		assert.Equal(t, int64(6), res.Windows)
		assert.Equal(t, int64(2), res.Totals.New)
	})
}

func TestAggregate_WindowCount(t *testing.T) {
	tests := []struct {
		name   string
		ts     []float64
		width  float64
		expect int
	}{
		{"single record", []float64{42}, 1000, 1},
		{"same window", []float64{0, 999.999}, 1000, 1},
		{"boundary opens next window", []float64{0, 1000}, 1000, 2},
		{"fractional span", []float64{10, 3510}, 1000, 4},
		{"narrow width", []float64{0, 100, 999}, 250, 4},
		{"fractional width", []float64{0.5, 1.75, 2.2}, 0.5, 4},
		{"large epoch offset", []float64{1519682345123.045, 1519682349000.5}, 1000, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]record.LogRecord, 0, len(tt.ts))
			for _, ts := range tt.ts {
				in = append(in, rec(ts, record.EventNew, 0))
			}
			res, err := Aggregate(in, opts(tt.width, false))
			require.NoError(t, err)

			t0, tn := tt.ts[0], tt.ts[len(tt.ts)-1]
			want := int(math.Floor((tn-t0)/tt.width)) + 1
			require.Equal(t, tt.expect, want, "table expectation disagrees with the formula")
			for _, c := range Classes {
				assert.Len(t, res.SeriesOf(c), want, c.String())
			}
		})
	}
}

func TestAggregate_NonPositiveValuesContributeNothing(t *testing.T) {
	in := []record.LogRecord{
		rec(0, record.EventSend, 0),
		rec(1, record.EventSend, -4),
		rec(2, record.EventReceive, 0),
		rec(3, record.EventReceive, -1),
	}
	res, err := Aggregate(in, opts(1000, false))
	require.NoError(t, err)
	assert.True(t, res.Totals.IsZero())
	assert.Equal(t, int64(4), res.Records)
	for _, c := range Classes {
		assert.Equal(t, []SeriesPoint{{0, 0}}, res.SeriesOf(c))
	}
}

func TestAggregate_ClassificationIgnoresSocket(t *testing.T) {
	a := []record.LogRecord{rec(0, record.EventSend, 10), rec(20, record.EventReceive, 5)}
	b := []record.LogRecord{
		{Socket: "99", TimestampMs: 0, Event: record.EventSend, Token: "snd", Value: 10},
		{Socket: "other", TimestampMs: 20, Event: record.EventReceive, Token: "rcv", Value: 5},
	}
	ra, err := Aggregate(a, opts(1000, false))
	require.NoError(t, err)
	rb, err := Aggregate(b, opts(1000, false))
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestAggregate_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	events := []record.Event{record.EventNew, record.EventSend, record.EventReceive, record.EventUnknown}

	in := make([]record.LogRecord, 0, 2000)
	ts := 1000.0
	for i := 0; i < 2000; i++ {
		// mostly dense traffic with the occasional long idle gap
		if rng.Intn(50) == 0 {
			ts += float64(rng.Intn(20000))
		} else {
			ts += rng.Float64() * 40
		}
		in = append(in, rec(ts, events[rng.Intn(len(events))], int64(rng.Intn(3000)-500)))
	}

	for _, suppress := range []bool{false, true} {
		res, err := Aggregate(in, opts(1000, suppress))
		require.NoError(t, err)
		for _, c := range Classes {
			var sum int64
			for i, p := range res.SeriesOf(c) {
				sum += p.Value
				if i > 0 {
					assert.Greater(t, p.WindowStart, res.SeriesOf(c)[i-1].WindowStart)
				}
				if suppress {
					assert.NotZero(t, p.Value)
				}
			}
			assert.Equal(t, res.Totals.Get(c), sum, "class %s suppress=%v", c, suppress)
		}
		assert.Equal(t, int64(len(in)), res.Records)
	}
}

func TestAggregator_Callbacks(t *testing.T) {
	var progress []Progress
	var skipped []record.LogRecord
	a, err := New(Options{
		WindowWidthMs: 1000,
		ProgressEvery: 2,
		OnProgress:    func(p Progress) { progress = append(progress, p) },
		OnSkip:        func(r record.LogRecord) { skipped = append(skipped, r) },
	})
	require.NoError(t, err)

	unknown := record.LogRecord{Socket: "1", TimestampMs: 1200, Event: record.EventUnknown, Token: "cls"}
	for _, r := range []record.LogRecord{
		rec(0, record.EventNew, 0),
		rec(10, record.EventSend, 3),
		unknown,
		rec(2500, record.EventReceive, 8),
		rec(2600, record.EventReceive, 8),
	} {
		require.NoError(t, a.Add(r))
	}
	res := a.Finish()

	require.Len(t, progress, 2)
	assert.Equal(t, Progress{Records: 2, Windows: 0, WindowStart: 0}, progress[0])
	assert.Equal(t, Progress{Records: 4, Windows: 2, WindowStart: 2000}, progress[1])

	require.Len(t, skipped, 1)
	assert.Equal(t, "cls", skipped[0].Token)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, int64(5), res.Records)
	assert.Equal(t, int64(2), res.Totals.Receive)
}

func TestAggregator_FinishOnce(t *testing.T) {
	a, err := New(opts(1000, false))
	require.NoError(t, err)
	require.NoError(t, a.Add(rec(0, record.EventNew, 0)))

	first := a.Finish()
	second := a.Finish()
	assert.Equal(t, first, second)
	assert.Len(t, second.SeriesOf(ClassNew), 1)
	assert.Error(t, a.Add(rec(10, record.EventNew, 0)))
}

func TestNew_InvalidWidth(t *testing.T) {
	for _, w := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := New(opts(w, false))
		assert.ErrorIs(t, err, ErrInvalidWidth, "width %v", w)
	}
}

func TestAggregator_NonFiniteTimestamp(t *testing.T) {
	for _, suppress := range []bool{false, true} {
		a, err := New(opts(1000, suppress))
		require.NoError(t, err)
		require.NoError(t, a.Add(rec(0, record.EventNew, 0)))
		for _, ts := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
			assert.ErrorIs(t, a.Add(rec(ts, record.EventNew, 0)), ErrNonFiniteTimestamp)
		}
		res := a.Finish()
		assert.Equal(t, int64(1), res.Records)
		assert.Equal(t, int64(1), res.Windows)
	}

	_, err := Aggregate([]record.LogRecord{rec(math.Inf(1), record.EventNew, 0)}, opts(1000, false))
	assert.ErrorIs(t, err, ErrNonFiniteTimestamp)
}

func TestSeriesPoint_JSON(t *testing.T) {
	b, err := SeriesPoint{WindowStart: 1519682345123.5, Value: 42}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "[1519682345123.5,42]", string(b))

	var p SeriesPoint
	require.NoError(t, p.UnmarshalJSON([]byte("[\n  1000,\n  7\n]")))
	assert.Equal(t, SeriesPoint{WindowStart: 1000, Value: 7}, p)
	assert.Error(t, p.UnmarshalJSON([]byte(`{"a":1}`)))
}

func TestEventClassNames(t *testing.T) {
	for _, c := range Classes {
		got, err := ParseClass(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseClass("bogus")
	assert.Error(t, err)
	assert.Equal(t, map[string]int64{"new": 1, "snd": 2, "snd-data": 3, "rcv": 4, "rcv-data": 5},
		Counters{1, 2, 3, 4, 5}.Map())
}
