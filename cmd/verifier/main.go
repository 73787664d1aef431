package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/Krixium/scalable-server/internal/discover"
	"github.com/Krixium/scalable-server/internal/ingest/config"
	"github.com/Krixium/scalable-server/internal/ingest/csvx"
	"github.com/Krixium/scalable-server/internal/verifier"
)

var (
	inPath        = flag.String("in", "", "Server logs: comma-separated paths, directories or globs")
	outPath       = flag.String("out", "verify.csv", "Output CSV file path")
	workers       = flag.Int("workers", 0, "Number of parallel workers (default WORKERS)")
	allowShortNew = flag.Bool("allow-short-new", true, "Accept 3-field 'sock,ts,new' lines")
	windowMs      = flag.Float64("window-ms", 0, "Window width for the out-of-order check (default WINDOW_MS)")
	envFile       = flag.String("env", "", "Env file to load instead of ./.env (must exist)")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	if *inPath == "" {
		log.Fatalf("--in is required")
	}
	cfg, err := config.LoadEnv(*envFile)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if *workers <= 0 {
		*workers = cfg.Workers
	}
	if *windowMs <= 0 {
		*windowMs = cfg.WindowMs
	}
	opt := csvx.AnalyzeOptions{AllowShortNew: *allowShortNew, WindowMs: *windowMs}
	if err := runVerify(ctx, strings.Split(*inPath, ","), *outPath, *workers, opt); err != nil {
		log.Fatalf("verify error: %v", err)
	}
}

func runVerify(ctx context.Context, patterns []string, outPath string, workers int, opt csvx.AnalyzeOptions) error {
	files, err := discover.Files(patterns, ".log")
	if err != nil {
		return err
	}
	total := len(files)
	log.Printf("[INFO] verifying %d logs with %d workers (window_ms=%g)...", total, workers, opt.WindowMs)

	progressChan := make(chan int, 100)
	go func() {
		count := 0
		for n := range progressChan {
			count += n
			log.Printf("progress: processed %d / %d (%.1f%%)",
				count, total, float64(count)*100/float64(total))
		}
	}()

	start := time.Now()
	results := verifier.VerifyLogs(ctx, files, workers, opt, progressChan)
	close(progressChan)

	var bad int
	for _, r := range results {
		switch {
		case r.Err != nil:
			bad++
			log.Printf("[FAIL] %s: %v", r.File, r.Err)
		case !r.OK():
			bad++
			s := r.Stats
			log.Printf("[WARN] %s records=%d out_of_order=%d first_out_of_order_line=%d",
				r.File, s.Records, s.OutOfOrder, s.FirstOutOfOrderLine)
		default:
			log.Printf("[OK] %s records=%d span_ms=%.3f malformed=%d unknown=%d regressions=%d",
				r.File, r.Stats.Records, r.Stats.SpanMs(), r.Stats.Malformed, r.Stats.Unknown, r.Stats.Regressions)
		}
	}

	if err := verifier.WriteResultsCSV(outPath, results); err != nil {
		return err
	}
	log.Printf("[DONE] verify stage complete in %v, %d/%d logs need attention → wrote %s",
		time.Since(start), bad, total, outPath)
	return nil
}
