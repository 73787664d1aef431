package plot

import (
	"github.com/guptarohit/asciigraph"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
)

// ASCII draws one series as a terminal line graph. Width 0 keeps one column
// per window. An empty series renders as "".
func ASCII(series []aggregators.SeriesPoint, caption string, width, height int) string {
	if len(series) == 0 {
		return ""
	}
	if height <= 0 {
		height = 10
	}
	_, ys := XY(series, true)
	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Caption(caption),
		asciigraph.LowerBound(0),
	}
	if width > 0 {
		opts = append(opts, asciigraph.Width(width))
	}
	return asciigraph.Plot(ys, opts...)
}
