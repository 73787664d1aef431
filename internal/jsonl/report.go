package jsonl

import (
	"bufio"
	"fmt"
	"io"

	"github.com/Krixium/scalable-server/internal/iox"
)

// WriteReport writes r in the plain-text layout older tooling consumed:
//
//	<path>
//	total:
//	{...}
//	count:
//	{...}
//
// followed by three blank lines.
func WriteReport(w io.Writer, r FileResult) error {
	total, err := api.MarshalIndent(r.Totals, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}
	count, err := api.MarshalIndent(r.Series, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal series: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\ntotal:\n%s\ncount:\n%s\n\n\n\n", r.File, total, count)
	return err
}

// WriteReportFile writes one report block per result to path.
func WriteReportFile(path string, results []FileResult) error {
	out, err := iox.CreateAuto(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(out)
	for _, r := range results {
		if err := WriteReport(bw, r); err != nil {
			out.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteDelays writes per-case means as indented JSON with sorted keys.
func WriteDelays(path string, means map[string]float64) error {
	b, err := api.MarshalIndent(means, "", "  ")
	if err != nil {
		return err
	}
	out, err := iox.CreateAuto(path)
	if err != nil {
		return err
	}
	if _, err := out.Write(append(b, '\n')); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReadDelays loads a file written by WriteDelays.
func ReadDelays(path string) (map[string]float64, error) {
	in, err := iox.OpenAuto(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	b, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	var means map[string]float64
	if err := api.Unmarshal(b, &means); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return means, nil
}
