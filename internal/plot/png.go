package plot

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
)

// Panel is one stacked chart in a PNG.
type Panel struct {
	Title  string
	YLabel string
	Class  aggregators.EventClass
}

// DefaultPanels are accepts, reads and sends per window, top to bottom.
var DefaultPanels = []Panel{
	{Title: "Accepts/Second", YLabel: "Accepts", Class: aggregators.ClassNew},
	{Title: "Reads/Second", YLabel: "Reads", Class: aggregators.ClassReceive},
	{Title: "Sends/Second", YLabel: "Sends", Class: aggregators.ClassSend},
}

// PNGOptions sizes the output. Zero values fall back to 1024x320 per panel.
type PNGOptions struct {
	Width       int
	PanelHeight int
	Relative    bool // x = window number instead of window start
	Steps       int
	Panels      []Panel
}

// RenderPNG draws one panel per entry of opt.Panels, stacked vertically, to w.
func RenderPNG(w io.Writer, res *aggregators.Result, opt PNGOptions) error {
	if opt.Width <= 0 {
		opt.Width = 1024
	}
	if opt.PanelHeight <= 0 {
		opt.PanelHeight = 320
	}
	panels := opt.Panels
	if len(panels) == 0 {
		panels = DefaultPanels
	}

	out := image.NewRGBA(image.Rect(0, 0, opt.Width, opt.PanelHeight*len(panels)))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)

	for i, p := range panels {
		img, err := renderPanel(p, res.SeriesOf(p.Class), opt)
		if err != nil {
			return fmt.Errorf("panel %q: %w", p.Title, err)
		}
		dst := image.Rect(0, i*opt.PanelHeight, opt.Width, (i+1)*opt.PanelHeight)
		draw.Draw(out, dst, img, img.Bounds().Min, draw.Src)
	}
	return png.Encode(w, out)
}

func renderPanel(p Panel, series []aggregators.SeriesPoint, opt PNGOptions) (image.Image, error) {
	xs, ys := XY(series, opt.Relative)
	if len(xs) == 0 {
		xs, ys = []float64{0}, []float64{0}
	}
	if len(xs) == 1 {
		// a single point has no x range; draw it as a flat segment
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}

	yTicks := Ticks(maxOf(ys), opt.Steps)
	yMax := yTicks[len(yTicks)-1]
	if yMax <= 0 {
		yMax = 1
		yTicks = append(yTicks, 1)
	}
	ticks := make([]chart.Tick, len(yTicks))
	for i, v := range yTicks {
		ticks[i] = chart.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', -1, 64)}
	}

	xName := "Time(ms)"
	if opt.Relative {
		xName = "Window"
	}
	ch := chart.Chart{
		Title:      p.Title,
		Width:      opt.Width,
		Height:     opt.PanelHeight,
		Background: chart.Style{Padding: chart.Box{Top: 28, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:  xName,
			Range: &chart.ContinuousRange{Min: xs[0], Max: xs[len(xs)-1]},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.ColorFromHex("dddddd"),
				StrokeWidth: 1,
			},
		},
		YAxis: chart.YAxis{
			Name:  p.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: yMax},
			Ticks: ticks,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    p.Class.String(),
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("1f77b4"),
					StrokeWidth: 1.5,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}
