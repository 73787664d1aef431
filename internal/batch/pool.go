// Package batch fans independent per-file jobs out over a bounded worker pool.
package batch

import (
	"context"
	"sync"
)

// Outcome is the result of one job. Err is per job; one failure never stops the others.
type Outcome[T any] struct {
	Index int // position of the input in the original slice
	Input string
	Value T
	Err   error
}

// Run calls fn for every input with at most workers jobs in flight and
// returns the outcomes in input order. progress, if non-nil, receives 1 per
// finished job. Inputs not started before ctx is cancelled get ctx.Err().
func Run[T any](ctx context.Context, inputs []string, workers int, fn func(context.Context, string) (T, error), progress chan<- int) []Outcome[T] {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	type job struct {
		idx   int
		input string
	}
	jobs := make(chan job, workers*2)
	out := make([]Outcome[T], len(inputs))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			o := Outcome[T]{Index: j.idx, Input: j.input}
			if err := ctx.Err(); err != nil {
				o.Err = err
			} else {
				o.Value, o.Err = fn(ctx, j.input)
			}
			out[j.idx] = o // each index is written by exactly one worker
			if progress != nil {
				progress <- 1
			}
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	for i, in := range inputs {
		jobs <- job{idx: i, input: in}
	}
	close(jobs)
	wg.Wait()
	return out
}

// Failed returns only the outcomes that carry an error.
func Failed[T any](outcomes []Outcome[T]) []Outcome[T] {
	var bad []Outcome[T]
	for _, o := range outcomes {
		if o.Err != nil {
			bad = append(bad, o)
		}
	}
	return bad
}
