package csvout

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/schema"
)

type Writer struct {
	w   *csv.Writer
	buf *bufio.Writer
	row []string
}

func New(w io.Writer) *Writer {
	bw := bufio.NewWriterSize(w, 1<<20)
	return &Writer{
		w:   csv.NewWriter(bw),
		buf: bw,
	}
}

func (cw *Writer) WriteHeader(header []string) error {
	return cw.w.Write(header)
}

func (cw *Writer) WriteRow(row []string) error {
	return cw.w.Write(row)
}

// WriteSeries writes every point of res in schema.SeriesColumns order,
// classes in index order.
func (cw *Writer) WriteSeries(file string, res *aggregators.Result) error {
	if cw.row == nil {
		cw.row = make([]string, len(schema.SeriesColumns))
	}
	for _, c := range aggregators.Classes {
		for _, p := range res.SeriesOf(c) {
			cw.row[0] = file
			cw.row[1] = c.String()
			cw.row[2] = strconv.FormatFloat(p.WindowStart, 'f', -1, 64)
			cw.row[3] = strconv.FormatInt(p.Value, 10)
			if err := cw.w.Write(cw.row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cw *Writer) Flush() error {
	cw.w.Flush()
	if err := cw.w.Error(); err != nil {
		return err
	}
	return cw.buf.Flush()
}
