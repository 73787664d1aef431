package batch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	inputs := []string{"a.log", "bad.log", "c.log", "d.log", "e.log"}
	var inFlight, peak int32

	progress := make(chan int, len(inputs))
	out := Run(context.Background(), inputs, 2, func(_ context.Context, in string) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(&inFlight, -1)
		if strings.HasPrefix(in, "bad") {
			return 0, errors.New("boom")
		}
		return len(in), nil
	}, progress)
	close(progress)

	require.Len(t, out, len(inputs))
	for i, o := range out {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, inputs[i], o.Input)
	}
	assert.Equal(t, 5, out[0].Value)
	assert.EqualError(t, out[1].Err, "boom")
	assert.NoError(t, out[4].Err, "a failure does not stop later jobs")
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))

	done := 0
	for n := range progress {
		done += n
	}
	assert.Equal(t, len(inputs), done)

	failed := Failed(out)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad.log", failed[0].Input)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	out := Run(ctx, []string{"a", "b", "c"}, 4, func(context.Context, string) (struct{}, error) {
		atomic.AddInt32(&calls, 1)
		return struct{}{}, nil
	}, nil)
	assert.Equal(t, int32(0), calls)
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestRun_Empty(t *testing.T) {
	out := Run(context.Background(), nil, 8, func(context.Context, string) (int, error) { return 1, nil }, nil)
	assert.Empty(t, out)
}
