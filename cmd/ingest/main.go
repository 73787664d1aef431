package main

import (
	"context"
	"flag"
	"log"
	"math"
	"path/filepath"
	"time"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/ingest/config"
	"github.com/Krixium/scalable-server/internal/ingest/db"
	"github.com/Krixium/scalable-server/internal/ingest/lock"
	"github.com/Krixium/scalable-server/internal/ingest/project"
	"github.com/Krixium/scalable-server/internal/ingest/schema"
	"github.com/Krixium/scalable-server/internal/ingest/util"
	"github.com/Krixium/scalable-server/internal/ingest/writer"
	"github.com/Krixium/scalable-server/internal/jsonl"
)

func main() {
	var (
		flagResults   string
		flagDelays    string
		flagName      string
		flagDryRun    bool
		flagCheck     bool
		flagBootstrap bool
		flagOnlyRun   bool
		flagEnv       string
	)
	flag.StringVar(&flagResults, "results", "", "Results JSONL from the parser aggregate stage (default from .env RESULTS_PATH)")
	flag.StringVar(&flagDelays, "delays", "", "Delays JSON from the parser delays stage (default from .env DELAYS_PATH)")
	flag.StringVar(&flagName, "name", "", "Run name stored in ls_run (default: results file name)")
	flag.BoolVar(&flagDryRun, "dry-run", false, "Do not write to DB (just read results and log)")
	flag.BoolVar(&flagCheck, "check-schema", false, "Only check schema and exit")
	flag.BoolVar(&flagBootstrap, "bootstrap", false, "Create missing tables before ingesting (MySQL; sqlite always bootstraps)")
	flag.BoolVar(&flagOnlyRun, "only-run", false, "Only create the ls_run row with its metadata (no window/total inserts)")
	flag.StringVar(&flagEnv, "env", "", "Env file to load instead of ./.env (must exist)")
	flag.Parse()

	cfg, err := config.LoadEnv(flagEnv)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if flagResults != "" {
		cfg.ResultsPath = flagResults
	}
	if flagDelays != "" {
		cfg.DelaysPath = flagDelays
	}
	if flagName == "" {
		flagName = filepath.Base(cfg.ResultsPath)
	}

	// Read inputs first; a bad results file should not touch the database.
	results, err := jsonl.ReadFile(cfg.ResultsPath)
	if err != nil {
		log.Fatalf("results read error: %v", err)
	}
	var delays map[string]float64
	if cfg.DelaysPath != "" {
		delays, err = jsonl.ReadDelays(cfg.DelaysPath)
		if err != nil {
			log.Fatalf("delays read error: %v", err)
		}
	}
	meta := summarize(results)
	log.Printf("[INFO] results=%s files=%d records=%d windows=%d cases=%d",
		cfg.ResultsPath, meta.Files, meta.Records, meta.Windows, len(delays))

	if flagDryRun {
		for _, r := range results {
			log.Printf("[DRY] %s totals=%v", r.File, r.Totals)
		}
		log.Printf("[DONE] Dry-run finished.")
		return
	}

	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer conn.Close()

	if flagBootstrap {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Bootstrap(ctx, conn, cfg.DBDriver)
		cancel()
		if err != nil {
			log.Fatalf("[SCHEMA] bootstrap error: %v", err)
		}
		log.Printf("[SCHEMA] bootstrap done (%s)", cfg.DBDriver)
	}

	// Schema guard
	var hasCaseDelay bool
	{
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		missing, hasDelay, err := schema.Check(ctx, conn, cfg.DBDriver)
		cancel()
		if err != nil {
			log.Fatalf("[SCHEMA] error: %v", err)
		}
		if len(missing) > 0 {
			log.Fatalf("[SCHEMA] required tables missing: %v (rerun with -bootstrap)", missing)
		}
		log.Printf("[SCHEMA] required OK: %v", schema.Required)
		if !hasDelay {
			log.Printf("[SCHEMA] optional missing: [%s] (case delay inserts will be skipped)", schema.CaseDelayTable)
		}
		hasCaseDelay = hasDelay
		if flagCheck {
			log.Printf("[SCHEMA] check completed (only-check mode). Exiting.")
			return
		}
	}

	// DB lock (short timeout)
	lockKey := "logstats_ingest_" + cfg.SourceKey()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		got, err := lock.Get(ctx, conn, cfg.DBDriver, lockKey, 10)
		cancel()
		if err != nil {
			log.Fatalf("GET_LOCK error: %v", err)
		}
		if !got {
			log.Fatalf("another ingest run is active for %s", cfg.SourceKey())
		}
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = lock.Release(ctx, conn, cfg.DBDriver, lockKey)
		cancel()
	}
	defer release()

	// Fatal exits from here on release the lock first.
	fatal := func(format string, args ...any) {
		release()
		conn.Close()
		log.Fatalf(format, args...)
	}

	window, suppress := runWindow(results, cfg)
	var runID int64
	{
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		runID, err = project.CreateRun(ctx, conn, flagName, window, suppress)
		cancel()
		if err != nil {
			fatal("create run error: %v", err)
		}
	}
	log.Printf("[INFO] run_id=%d name=%s", runID, flagName)

	fail := func(format string, args ...any) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = project.MarkFailed(ctx, conn, runID)
		cancel()
		fatal(format, args...)
	}

	if !flagOnlyRun {
		for _, fr := range results {
			res, err := fr.Result()
			if err != nil {
				fail("decode %s: %v", fr.File, err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout*3)
			err = writer.InsertFile(ctx, conn, writer.FilePayload{RunID: runID, File: fr.File, Result: &res})
			cancel()
			if err != nil {
				fail("insert %s: %v", fr.File, err)
			}
			log.Printf("[OK] %s points=%d", fr.File, seriesPoints(&res))
		}

		if len(delays) > 0 {
			if !hasCaseDelay {
				log.Printf("[SKIP] %s not present, skipping case delay inserts", schema.CaseDelayTable)
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
				err := writer.InsertCaseDelays(ctx, conn, writer.DelayPayload{RunID: runID, Means: delays})
				cancel()
				if err != nil {
					fail("insert case delays: %v", err)
				}
				log.Printf("[OK] case delays inserted (%d)", len(delays))
			}
		}
	}

	meta.ID = runID
	meta.Status = project.StatusDone
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := project.UpdateRunMeta(ctx, conn, meta)
		cancel()
		if err != nil {
			fail("update run meta error: %v", err)
		}
	}
	if !meta.LogStart.IsZero() {
		log.Printf("[INFO] log_start=%s log_end=%s", util.FormatDB(meta.LogStart), util.FormatDB(meta.LogEnd))
	}
	log.Printf("[DONE] Ingest finished at %s", time.Now().Format(time.RFC3339))
}

// summarize derives ls_run metadata from the results. Log start/end are only
// set when the window starts look like wall-clock epoch milliseconds.
func summarize(results []jsonl.FileResult) project.RunMeta {
	m := project.RunMeta{Files: len(results)}
	minTS, maxTS := math.Inf(1), math.Inf(-1)
	for _, r := range results {
		m.Records += r.Records
		m.Windows += r.Windows
		for _, pts := range r.Series {
			for _, p := range pts {
				minTS = math.Min(minTS, p.WindowStart)
				maxTS = math.Max(maxTS, p.WindowStart)
			}
		}
	}
	if !math.IsInf(minTS, 0) && util.LooksLikeEpochMs(minTS) {
		m.LogStart = util.EpochMsToUTC(minTS)
		m.LogEnd = util.EpochMsToUTC(maxTS)
	}
	return m
}

// runWindow takes the window settings from the first result, falling back to the env config.
func runWindow(results []jsonl.FileResult, cfg *config.Config) (float64, bool) {
	for _, r := range results {
		if r.WindowMs > 0 {
			return r.WindowMs, r.Suppress
		}
	}
	return cfg.WindowMs, cfg.SuppressZero
}

func seriesPoints(res *aggregators.Result) int {
	n := 0
	for _, c := range aggregators.Classes {
		n += len(res.SeriesOf(c))
	}
	return n
}
