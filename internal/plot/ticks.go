// Package plot renders aggregation series as terminal graphs and PNG charts.
package plot

import (
	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
)

// DefaultSteps is the number of y-axis divisions per panel.
const DefaultSteps = 10

// CeilPow10 returns the smallest power of ten >= n. n must be > 0.
func CeilPow10(n float64) float64 {
	p := 1.0
	for p < n {
		p *= 10
	}
	for p/10 >= n {
		p /= 10
	}
	return p
}

// Ticks returns y-axis ticks for a series peaking at max: from 0 in steps of
// CeilPow10(max)/steps, stopping at the first tick at or above max.
func Ticks(max float64, steps int) []float64 {
	if steps <= 0 {
		steps = DefaultSteps
	}
	if max <= 0 {
		return []float64{0}
	}
	step := CeilPow10(max) / float64(steps)
	var out []float64
	for i := 0; ; i++ {
		v := float64(i) * step
		out = append(out, v)
		if v >= max {
			return out
		}
	}
}

// XY splits a series into plot coordinates. With relative set, x is the
// window's position in the series (0, 1, 2 ...) instead of its start time.
func XY(series []aggregators.SeriesPoint, relative bool) (xs, ys []float64) {
	xs = make([]float64, len(series))
	ys = make([]float64, len(series))
	for i, p := range series {
		if relative {
			xs[i] = float64(i)
		} else {
			xs[i] = p.WindowStart
		}
		ys[i] = float64(p.Value)
	}
	return xs, ys
}

func maxOf(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}
