package csvx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/record"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epoll-1000-10.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const serverLog = `7,0.000,new
7,500.125,snd,100
7,700.000,rcv,0
garbage line
7,800.000,cls,0
7,1500.500,rcv,50
`

func TestStreamAndAggregate(t *testing.T) {
	path := writeLog(t, serverLog)

	var unknown []int64
	dbg := &DebugInfo{PrintFirstN: 5}
	res, err := StreamAndAggregate(context.Background(), path, StreamOptions{
		Window:        aggregators.Options{WindowWidthMs: 1000},
		AllowShortNew: true,
		OnUnknown:     func(line int64, _ record.LogRecord) { unknown = append(unknown, line) },
	}, dbg)
	require.NoError(t, err)

	assert.Equal(t, aggregators.Counters{New: 1, Send: 1, SendBytes: 100, Receive: 1, ReceiveBytes: 50}, res.Totals)
	assert.Equal(t, []aggregators.SeriesPoint{{WindowStart: 0, Value: 0}, {WindowStart: 1000, Value: 1}},
		res.SeriesOf(aggregators.ClassReceive))
	assert.Equal(t, int64(5), res.Records)
	assert.Equal(t, int64(1), res.Skipped)

	assert.Equal(t, int64(6), dbg.TotalRead)
	assert.Equal(t, int64(1), dbg.SkipMalformed)
	assert.Equal(t, int64(1), dbg.SkipUnknown)
	assert.Len(t, dbg.FirstBad, 2)
	assert.Equal(t, []int64{5}, unknown)
}

func TestStreamAndAggregate_Strict(t *testing.T) {
	path := writeLog(t, serverLog)
	_, err := StreamAndAggregate(context.Background(), path, StreamOptions{
		Window:        aggregators.Options{WindowWidthMs: 1000},
		AllowShortNew: true,
		Strict:        true,
	}, nil)
	var me *record.MalformedRecordError
	require.True(t, errors.As(err, &me))
	assert.Contains(t, err.Error(), "line 4")
}

func TestStreamAndAggregate_OutOfOrder(t *testing.T) {
	path := writeLog(t, "1,5000,new,0\n1,1200,new,0\n")
	_, err := StreamAndAggregate(context.Background(), path, StreamOptions{
		Window: aggregators.Options{WindowWidthMs: 1000},
	}, nil)
	var oe *aggregators.OutOfOrderError
	require.True(t, errors.As(err, &oe))
	assert.Contains(t, err.Error(), "line 2")
}

func TestStreamAndAggregate_Errors(t *testing.T) {
	path := writeLog(t, serverLog)

	_, err := StreamAndAggregate(context.Background(), path, StreamOptions{}, nil)
	assert.ErrorIs(t, err, aggregators.ErrInvalidWidth)

	_, err = StreamAndAggregate(context.Background(), filepath.Join(t.TempDir(), "nope.log"),
		StreamOptions{Window: aggregators.Options{WindowWidthMs: 1000}}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StreamAndAggregate(ctx, path, StreamOptions{Window: aggregators.Options{WindowWidthMs: 1000}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeLog(t *testing.T) {
	path := writeLog(t, "1,100,new\n1,300,snd,5\n1,250,rcv,5\nx\n1,900,zzz,1\n1,200,rcv,1\n1,1000,snd,1\n")
	stats, err := AnalyzeLog(path, AnalyzeOptions{AllowShortNew: true, WindowMs: 1000})
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.Lines)
	assert.Equal(t, int64(5), stats.Records)
	assert.Equal(t, int64(1), stats.Malformed)
	assert.Equal(t, int64(1), stats.Unknown)
	assert.Equal(t, int64(2), stats.Events[record.EventSend])
	assert.Equal(t, 100.0, stats.MinTS)
	assert.Equal(t, 1000.0, stats.MaxTS)
	assert.Equal(t, 900.0, stats.SpanMs())

	assert.False(t, stats.Ordered())
	assert.Equal(t, int64(2), stats.Regressions)
	assert.Equal(t, int64(3), stats.FirstRegressionLine)
	assert.Equal(t, 100.0, stats.MaxRegressionMs)

	// every regression stays inside the open 1000ms window
	assert.True(t, stats.Aggregatable())
	assert.Equal(t, int64(0), stats.OutOfOrder)

	narrow, err := AnalyzeLog(path, AnalyzeOptions{AllowShortNew: true, WindowMs: 100})
	require.NoError(t, err)
	assert.False(t, narrow.Aggregatable())
	assert.Equal(t, int64(2), narrow.OutOfOrder)
	assert.Equal(t, int64(3), narrow.FirstOutOfOrderLine)

	_, err = AnalyzeLog(path, AnalyzeOptions{})
	assert.ErrorIs(t, err, aggregators.ErrInvalidWidth)
}
