package csvin

import (
	"bufio"
	"io"
	"strings"

	"github.com/Krixium/scalable-server/internal/record"
)

// Options tunes the line reader.
type Options struct {
	// AllowShortNew accepts "sock,ts,new" lines without a value column.
	AllowShortNew bool
	// MaxLine caps a single line in bytes (default 1 MiB).
	MaxLine int
}

// Reader yields parsed records from header-less server log lines.
type Reader struct {
	sc     *bufio.Scanner
	parser record.Parser
	line   int64
}

func New(r io.Reader, opt Options) *Reader {
	max := opt.MaxLine
	if max <= 0 {
		max = 1 << 20
	}
	sc := bufio.NewScanner(bufio.NewReaderSize(r, 1<<20))
	sc.Buffer(make([]byte, 0, 64*1024), max)
	return &Reader{
		sc:     sc,
		parser: record.Parser{AllowShortNew: opt.AllowShortNew},
	}
}

// Line returns the 1-based number of the line last returned by Next.
func (r *Reader) Line() int64 { return r.line }

// Next returns the next record. Blank lines are skipped. Parse failures are
// returned as *record.MalformedRecordError or *record.UnknownEventError and
// reading may continue with the following call. io.EOF marks the end.
func (r *Reader) Next() (record.LogRecord, error) {
	for r.sc.Scan() {
		r.line++
		text := r.sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		return r.parser.Parse(text)
	}
	if err := r.sc.Err(); err != nil {
		return record.LogRecord{}, err
	}
	return record.LogRecord{}, io.EOF
}
