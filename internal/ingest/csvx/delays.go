package csvx

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/iox"
)

// DefaultDelayColumn is the 0-based column holding the delay in test-case logs.
const DefaultDelayColumn = 2

// BadValue describes a delay line that was skipped.
type BadValue struct {
	Path string
	Line int64
	Err  error
}

// CaseMean is the averaged delay of one test case.
type CaseMean struct {
	Case  string
	Mean  float64
	Count int64
	Files int
}

// AverageCase averages column col over every line of files. Lines that are
// too short or not numeric are reported to onBad and skipped. A case with no
// usable values yields *aggregators.NoDataError.
func AverageCase(ctx context.Context, name string, files []string, col int, onBad func(BadValue)) (CaseMean, error) {
	if col < 0 {
		return CaseMean{}, fmt.Errorf("delay column must be >= 0, got %d", col)
	}
	avg := aggregators.NewAverager()
	avg.Declare(name)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return CaseMean{}, err
		}
		if err := addDelayFile(avg, name, path, col, onBad); err != nil {
			return CaseMean{}, err
		}
	}

	means, errs := avg.Results()
	if err := errs[name]; err != nil {
		return CaseMean{}, err
	}
	return CaseMean{Case: name, Mean: means[name], Count: avg.Count(name), Files: len(files)}, nil
}

func addDelayFile(avg *aggregators.Averager, name, path string, col int, onBad func(BadValue)) error {
	in, err := iox.OpenAuto(path)
	if err != nil {
		return err
	}
	defer in.Close()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var line int64
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if col >= len(fields) {
			if onBad != nil {
				onBad(BadValue{Path: path, Line: line, Err: fmt.Errorf("missing column %d in %q", col, text)})
			}
			continue
		}
		if err := avg.AddDecimal(name, fields[col]); err != nil && onBad != nil {
			onBad(BadValue{Path: path, Line: line, Err: err})
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
