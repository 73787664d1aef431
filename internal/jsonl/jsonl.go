// Package jsonl reads and writes aggregation results, one JSON object per input log.
package jsonl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/iox"
)

// api sorts map keys so result files diff cleanly between runs.
var api = sonic.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

// FileResult is the serialised form of one file's aggregation pass.
type FileResult struct {
	File      string                                `json:"file"`
	WindowMs  float64                               `json:"window_ms"`
	Suppress  bool                                  `json:"suppress_zero"`
	Records   int64                                 `json:"records"`
	Skipped   int64                                 `json:"skipped"`
	Malformed int64                                 `json:"malformed"`
	Windows   int64                                 `json:"windows"`
	Totals    map[string]int64                      `json:"totals"`
	Series    map[string][]aggregators.SeriesPoint `json:"series"`
}

// FromResult wraps res for file.
func FromResult(file string, opt aggregators.Options, res aggregators.Result, malformed int64) FileResult {
	return FileResult{
		File:      file,
		WindowMs:  opt.WindowWidthMs,
		Suppress:  opt.SuppressZeroWindows,
		Records:   res.Records,
		Skipped:   res.Skipped,
		Malformed: malformed,
		Windows:   res.Windows,
		Totals:    res.Totals.Map(),
		Series:    res.SeriesMap(),
	}
}

// Result rebuilds the in-memory result. Unknown class names are an error.
func (f FileResult) Result() (aggregators.Result, error) {
	res := aggregators.Result{Records: f.Records, Skipped: f.Skipped, Windows: f.Windows}
	for name, v := range f.Totals {
		c, err := aggregators.ParseClass(name)
		if err != nil {
			return aggregators.Result{}, fmt.Errorf("%s totals: %w", f.File, err)
		}
		switch c {
		case aggregators.ClassNew:
			res.Totals.New = v
		case aggregators.ClassSend:
			res.Totals.Send = v
		case aggregators.ClassSendBytes:
			res.Totals.SendBytes = v
		case aggregators.ClassReceive:
			res.Totals.Receive = v
		case aggregators.ClassReceiveBytes:
			res.Totals.ReceiveBytes = v
		}
	}
	for name, pts := range f.Series {
		c, err := aggregators.ParseClass(name)
		if err != nil {
			return aggregators.Result{}, fmt.Errorf("%s series: %w", f.File, err)
		}
		if len(pts) > 0 {
			res.Series[c] = pts
		}
	}
	return res, nil
}

// Writer appends FileResults as JSON lines.
type Writer struct {
	bw *bufio.Writer
	c  io.Closer
}

// NewWriter writes to w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 1<<20)}
}

// Create opens path for writing (gzip when it ends in .gz).
func Create(path string) (*Writer, error) {
	out, err := iox.CreateAuto(path)
	if err != nil {
		return nil, err
	}
	w := NewWriter(out)
	w.c = out
	return w, nil
}

func (w *Writer) Write(r FileResult) error {
	b, err := api.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.File, err)
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

func (w *Writer) Close() error {
	err := w.bw.Flush()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Read decodes every line of r and hands it to fn. Blank lines are ignored.
func Read(r io.Reader, fn func(FileResult) error) error {
	br := bufio.NewReaderSize(r, 1<<20)
	for n := 1; ; n++ {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var fr FileResult
			if uerr := api.Unmarshal(line, &fr); uerr != nil {
				return fmt.Errorf("line %d: %w", n, uerr)
			}
			if ferr := fn(fr); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReadFile loads every result in path.
func ReadFile(path string) ([]FileResult, error) {
	in, err := iox.OpenAuto(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var out []FileResult
	err = Read(in, func(fr FileResult) error {
		out = append(out, fr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
