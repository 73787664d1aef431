package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Krixium/scalable-server/internal/batch"
	"github.com/Krixium/scalable-server/internal/csvout"
	"github.com/Krixium/scalable-server/internal/discover"
	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/ingest/config"
	"github.com/Krixium/scalable-server/internal/ingest/csvx"
	"github.com/Krixium/scalable-server/internal/ingest/db"
	"github.com/Krixium/scalable-server/internal/ingest/project"
	"github.com/Krixium/scalable-server/internal/ingest/writer"
	"github.com/Krixium/scalable-server/internal/iox"
	"github.com/Krixium/scalable-server/internal/jsonl"
	"github.com/Krixium/scalable-server/internal/plot"
	"github.com/Krixium/scalable-server/internal/record"
	"github.com/Krixium/scalable-server/internal/schema"
)

var version = "v1.0"

type options struct {
	stage   string
	in      []string
	out     string
	report  string
	runFile string
	envFile string

	windowMs      float64
	suppressZero  bool
	allowShortNew bool
	strict        bool
	workers       int
	printBad      int

	casesRoot string
	delayCol  int
	delaysOut string
	field     string

	fromDB bool
	runID  int64

	file     string
	pngDir   string
	ascii    bool
	relative bool
	width    int
	height   int
	steps    int
}

func main() {
	var o options
	inList := flag.String("in", "", "Input: server logs (comma-separated paths, dirs or globs) for aggregate; results JSONL for plot/export")
	flag.StringVar(&o.stage, "stage", "aggregate", "Stage: aggregate | delays | average | plot | export")
	flag.StringVar(&o.out, "out", "", "Output path (aggregate: results JSONL, default RESULTS_PATH; export: CSV; average: JSON)")
	flag.StringVar(&o.report, "report", "", "Also write the plain-text report (aggregate stage)")
	flag.StringVar(&o.runFile, "config", "", "Run file (.yaml/.yml or .json) listing logs and cases_root")
	flag.StringVar(&o.envFile, "env", "", "Env file to load instead of ./.env (must exist)")

	flag.Float64Var(&o.windowMs, "window-ms", 0, "Window width in ms (default WINDOW_MS)")
	flag.BoolVar(&o.suppressZero, "suppress-zero", false, "Only emit windows with a nonzero value (default SUPPRESS_ZERO)")
	flag.BoolVar(&o.allowShortNew, "allow-short-new", true, "Accept 3-field 'sock,ts,new' lines (default ALLOW_SHORT_NEW)")
	flag.BoolVar(&o.strict, "strict", false, "Abort a file on its first malformed line")
	flag.IntVar(&o.workers, "workers", 0, "Files processed in parallel (default WORKERS)")
	flag.IntVar(&o.printBad, "print-bad", 5, "Log at most this many skipped lines per file")

	flag.StringVar(&o.casesRoot, "cases", "", "Test-case root laid out as <root>/<case>/<station>/<file> (delays stage)")
	flag.IntVar(&o.delayCol, "delay-col", csvx.DefaultDelayColumn, "0-based delay column (delays stage)")
	flag.StringVar(&o.delaysOut, "delays-out", "", "Delays JSON output (default DELAYS_PATH or ./parsed-delays.json)")
	flag.StringVar(&o.field, "field", "value", "Record field to average per case: value | timestamp (average stage)")

	flag.BoolVar(&o.fromDB, "from-db", false, "Plot/export a stored run instead of results JSONL")
	flag.Int64Var(&o.runID, "run-id", 0, "Stored run to load with -from-db (default: latest finished run)")

	flag.StringVar(&o.file, "file", "", "Only plot/export the result for this log path")
	flag.StringVar(&o.pngDir, "png-dir", "", "Write one PNG per result into this directory (plot stage)")
	flag.BoolVar(&o.ascii, "ascii", true, "Print terminal graphs (plot stage)")
	flag.BoolVar(&o.relative, "relative", true, "Plot x as window number instead of timestamp")
	flag.IntVar(&o.width, "width", 0, "Plot width (ascii columns or png pixels)")
	flag.IntVar(&o.height, "height", 0, "Plot height (ascii rows or png pixels per panel)")
	flag.IntVar(&o.steps, "steps", plot.DefaultSteps, "Y-axis divisions per panel")

	showPlan := flag.Bool("plan", false, "Show plan and exit")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.LoadEnv(o.envFile)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if *inList != "" {
		o.in = strings.Split(*inList, ",")
	}
	if o.runFile != "" {
		rf, err := config.LoadRunFile(o.runFile)
		if err != nil {
			log.Fatalf("run file %s: %v", o.runFile, err)
		}
		rf.Apply(cfg)
		applyRunFile(&o, rf, set)
	}
	resolveDefaults(&o, cfg, set)

	if *showPlan {
		printPlan(o)
		return
	}

	start := time.Now()
	defer func() {
		log.Printf("[DONE] completed in %v", time.Since(start))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch o.stage {
	case "aggregate":
		err = runAggregate(ctx, o)
	case "delays":
		err = runDelays(ctx, o)
	case "average":
		err = runAverage(ctx, o)
	case "plot":
		err = runPlot(ctx, o, cfg)
	case "export":
		err = runExport(ctx, o, cfg)
	default:
		log.Fatalf("unknown stage: %s", o.stage)
	}
	if err != nil {
		log.Fatalf("[FAIL] %s stage: %v", o.stage, err)
	}
}

func applyRunFile(o *options, rf *config.RunFile, set map[string]bool) {
	if !set["in"] && len(rf.Logs) > 0 && o.stage == "aggregate" {
		o.in = rf.Logs
	}
	if !set["cases"] && rf.CasesRoot != "" {
		o.casesRoot = rf.CasesRoot
	}
	if !set["delay-col"] && rf.DelayColumn != nil {
		o.delayCol = *rf.DelayColumn
	}
	if !set["strict"] && rf.Strict != nil {
		o.strict = *rf.Strict
	}
	if !set["out"] && rf.Out != "" && o.stage == "aggregate" {
		o.out = rf.Out
	}
	if !set["report"] && rf.ReportOut != "" {
		o.report = rf.ReportOut
	}
	if !set["delays-out"] && rf.DelaysOut != "" {
		o.delaysOut = rf.DelaysOut
	}
}

// resolveDefaults fills anything not given on the command line from the env config.
func resolveDefaults(o *options, cfg *config.Config, set map[string]bool) {
	if !set["window-ms"] {
		o.windowMs = cfg.WindowMs
	}
	if !set["suppress-zero"] {
		o.suppressZero = cfg.SuppressZero
	}
	if !set["allow-short-new"] {
		o.allowShortNew = cfg.AllowShortNew
	}
	if !set["workers"] || o.workers <= 0 {
		o.workers = cfg.Workers
	}
	if o.out == "" && o.stage == "aggregate" {
		o.out = cfg.ResultsPath
	}
	if len(o.in) == 0 && !o.fromDB && (o.stage == "plot" || o.stage == "export") {
		o.in = []string{cfg.ResultsPath}
	}
	if o.delaysOut == "" {
		o.delaysOut = cfg.DelaysPath
		if o.delaysOut == "" {
			o.delaysOut = "./parsed-delays.json"
		}
	}
}

func printPlan(o options) {
	fmt.Printf("==== Parser %s Execution Plan ====\n", version)
	fmt.Printf("Stage              : %s\n", o.stage)
	fmt.Printf("Input              : %s\n", strings.Join(o.in, ", "))
	fmt.Printf("Output             : %s\n", o.out)
	fmt.Printf("Text report        : %s\n", o.report)
	fmt.Printf("Run file           : %s\n", o.runFile)
	fmt.Printf("Window (ms)        : %v\n", o.windowMs)
	fmt.Printf("Suppress zero      : %v\n", o.suppressZero)
	fmt.Printf("Allow short new    : %v\n", o.allowShortNew)
	fmt.Printf("Strict             : %v\n", o.strict)
	fmt.Printf("Workers            : %d\n", o.workers)
	fmt.Printf("Cases root         : %s\n", o.casesRoot)
	fmt.Printf("Delay column       : %d\n", o.delayCol)
	fmt.Printf("Delays output      : %s\n", o.delaysOut)
	fmt.Printf("Average field      : %s\n", o.field)
	fmt.Printf("From DB (run id)   : %v (%d)\n", o.fromDB, o.runID)
	fmt.Printf("PNG dir            : %s\n", o.pngDir)
	fmt.Printf("Relative x         : %v\n", o.relative)
}

// ---------- STAGE 1: aggregate ----------

type fileOutcome struct {
	result aggregators.Result
	dbg    *csvx.DebugInfo
}

func runAggregate(ctx context.Context, o options) error {
	if len(o.in) == 0 {
		return fmt.Errorf("aggregate: -in or a run file with logs is required")
	}
	files, err := discover.Files(o.in, ".log")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("aggregate: no log files matched %v", o.in)
	}
	window := aggregators.Options{WindowWidthMs: o.windowMs, SuppressZeroWindows: o.suppressZero}
	if _, err := aggregators.New(window); err != nil {
		return err
	}
	log.Printf("[INFO] aggregate files=%d window_ms=%v suppress_zero=%v workers=%d", len(files), o.windowMs, o.suppressZero, o.workers)

	tracker := newTracker(files)
	stopTicker := tracker.run(2 * time.Second)

	outcomes := batch.Run(ctx, files, o.workers, func(ctx context.Context, path string) (fileOutcome, error) {
		total, err := iox.CountLines(path)
		if err != nil {
			return fileOutcome{}, err
		}
		tracker.begin(path, total)

		w := window
		w.ProgressEvery = 4096
		w.OnProgress = func(p aggregators.Progress) { tracker.update(path, p.Records) }

		dbg := &csvx.DebugInfo{PrintFirstN: o.printBad}
		res, err := csvx.StreamAndAggregate(ctx, path, csvx.StreamOptions{
			Window:        w,
			AllowShortNew: o.allowShortNew,
			Strict:        o.strict,
		}, dbg)
		tracker.finish(path)
		return fileOutcome{result: res, dbg: dbg}, err
	}, nil)
	stopTicker()

	wr, err := jsonl.Create(o.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", o.out, err)
	}
	var reports []jsonl.FileResult
	for _, oc := range outcomes {
		if oc.Err != nil {
			var ooe *aggregators.OutOfOrderError
			if errors.As(oc.Err, &ooe) {
				log.Printf("[FAIL] %s: out-of-order input, file skipped: %v", oc.Input, oc.Err)
			} else {
				log.Printf("[FAIL] %s: %v", oc.Input, oc.Err)
			}
			continue
		}
		dbg := oc.Value.dbg
		res := oc.Value.result
		log.Printf("[OK] %s records=%d windows=%d malformed=%d unknown=%d new=%d snd=%d rcv=%d",
			oc.Input, res.Records, res.Windows, dbg.SkipMalformed, dbg.SkipUnknown,
			res.Totals.New, res.Totals.Send, res.Totals.Receive)
		for _, bad := range dbg.FirstBad {
			log.Printf("[SKIP] %s %s", oc.Input, bad)
		}

		fr := jsonl.FromResult(oc.Input, window, res, dbg.SkipMalformed)
		if err := wr.Write(fr); err != nil {
			wr.Close()
			return err
		}
		reports = append(reports, fr)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("close %s: %w", o.out, err)
	}
	log.Printf("[OK] wrote %d results to %s", len(reports), o.out)

	if o.report != "" {
		if err := jsonl.WriteReportFile(o.report, reports); err != nil {
			return fmt.Errorf("report: %w", err)
		}
		log.Printf("[OK] text report %s", o.report)
	}
	if failed := batch.Failed(outcomes); len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed", len(failed), len(files))
	}
	return nil
}

// ---------- STAGE 2: delays ----------

func runDelays(ctx context.Context, o options) error {
	if o.casesRoot == "" {
		return fmt.Errorf("delays: -cases or a run file with cases_root is required")
	}
	cases, err := discover.Cases(o.casesRoot)
	if err != nil {
		return fmt.Errorf("delays: %w", err)
	}
	if len(cases) == 0 {
		return fmt.Errorf("delays: no test cases under %s", o.casesRoot)
	}
	byName := make(map[string]discover.Case, len(cases))
	names := make([]string, len(cases))
	for i, c := range cases {
		byName[c.Name] = c
		names[i] = c.Name
	}
	log.Printf("[INFO] delays cases=%d column=%d root=%s", len(cases), o.delayCol, o.casesRoot)

	outcomes := batch.Run(ctx, names, o.workers, func(ctx context.Context, name string) (csvx.CaseMean, error) {
		c := byName[name]
		return csvx.AverageCase(ctx, name, c.Files, o.delayCol, func(b csvx.BadValue) {
			log.Printf("[SKIP] %s line %d: %v", b.Path, b.Line, b.Err)
		})
	}, nil)

	means := make(map[string]float64, len(outcomes))
	var failed int
	for _, oc := range outcomes {
		if oc.Err != nil {
			var nd *aggregators.NoDataError
			if errors.As(oc.Err, &nd) {
				log.Printf("[SKIP] case %s: no delay values", oc.Input)
			} else {
				log.Printf("[FAIL] case %s: %v", oc.Input, oc.Err)
				failed++
			}
			continue
		}
		means[oc.Input] = oc.Value.Mean
		log.Printf("[OK] case %s mean=%.6f n=%d files=%d", oc.Input, oc.Value.Mean, oc.Value.Count, oc.Value.Files)
	}

	if err := jsonl.WriteDelays(o.delaysOut, means); err != nil {
		return err
	}
	log.Printf("[OK] wrote %d case means to %s", len(means), o.delaysOut)
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(cases))
	}
	return nil
}

// ---------- STAGE 3: average ----------

// runAverage averages one record field over every server log of each test
// case under the cases root.
func runAverage(ctx context.Context, o options) error {
	field, err := aggregators.ParseField(o.field)
	if err != nil {
		return err
	}
	if o.casesRoot == "" {
		return fmt.Errorf("average: -cases or a run file with cases_root is required")
	}
	cases, err := discover.Cases(o.casesRoot)
	if err != nil {
		return fmt.Errorf("average: %w", err)
	}
	if len(cases) == 0 {
		return fmt.Errorf("average: no test cases under %s", o.casesRoot)
	}
	byName := make(map[string]discover.Case, len(cases))
	names := make([]string, len(cases))
	for i, c := range cases {
		byName[c.Name] = c
		names[i] = c.Name
	}
	log.Printf("[INFO] average cases=%d field=%s root=%s", len(cases), field, o.casesRoot)

	outcomes := batch.Run(ctx, names, o.workers, func(ctx context.Context, name string) ([]record.LogRecord, error) {
		dbg := &csvx.DebugInfo{}
		recs, err := csvx.ReadRecords(ctx, byName[name].Files, o.allowShortNew, dbg)
		if err == nil && dbg.SkipMalformed+dbg.SkipUnknown > 0 {
			log.Printf("[SKIP] case %s malformed=%d unknown=%d", name, dbg.SkipMalformed, dbg.SkipUnknown)
		}
		return recs, err
	}, nil)

	groups := make(map[string][]record.LogRecord, len(outcomes))
	for _, oc := range outcomes {
		if oc.Err != nil {
			log.Printf("[FAIL] case %s: %v", oc.Input, oc.Err)
			continue
		}
		groups[oc.Input] = oc.Value
	}

	means, errs := aggregators.Average(groups, field)
	failed := len(batch.Failed(outcomes))
	for _, name := range names {
		err, ok := errs[name]
		if !ok {
			if m, ok := means[name]; ok {
				log.Printf("[OK] case %s mean_%s=%.6f n=%d", name, field, m, len(groups[name]))
			}
			continue
		}
		var nd *aggregators.NoDataError
		if errors.As(err, &nd) {
			log.Printf("[SKIP] case %s: no records", name)
			continue
		}
		log.Printf("[FAIL] case %s: %v", name, err)
		failed++
	}

	out := o.out
	if out == "" {
		out = o.delaysOut
	}
	if err := jsonl.WriteDelays(out, means); err != nil {
		return err
	}
	log.Printf("[OK] wrote %d case means to %s", len(means), out)
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(cases))
	}
	return nil
}

// ---------- STAGE 4: plot ----------

// loadResults reads the results JSONL inputs, or a stored run with -from-db.
// The delays map is only filled for stored runs.
func loadResults(ctx context.Context, o options, cfg *config.Config) ([]jsonl.FileResult, map[string]float64, error) {
	var (
		all    []jsonl.FileResult
		delays map[string]float64
	)
	if o.fromDB {
		var err error
		all, delays, err = loadStoredRun(ctx, o, cfg)
		if err != nil {
			return nil, nil, err
		}
	} else {
		for _, p := range o.in {
			rs, err := jsonl.ReadFile(p)
			if err != nil {
				return nil, nil, err
			}
			all = append(all, rs...)
		}
	}
	if o.file == "" {
		return all, delays, nil
	}
	var picked []jsonl.FileResult
	for _, r := range all {
		if r.File == o.file || filepath.Base(r.File) == o.file {
			picked = append(picked, r)
		}
	}
	if len(picked) == 0 {
		return nil, nil, fmt.Errorf("no result for %s", o.file)
	}
	return picked, delays, nil
}

func loadStoredRun(ctx context.Context, o options, cfg *config.Config) ([]jsonl.FileResult, map[string]float64, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout*3)
	defer cancel()

	id := o.runID
	if id == 0 {
		if id, err = project.LatestRunID(ctx, conn); err != nil {
			return nil, nil, fmt.Errorf("latest run: %w", err)
		}
	}
	meta, err := project.GetRun(ctx, conn, id)
	if err != nil {
		return nil, nil, fmt.Errorf("run %d: %w", id, err)
	}
	files, err := writer.RunFiles(ctx, conn, id)
	if err != nil {
		return nil, nil, fmt.Errorf("run %d files: %w", id, err)
	}
	log.Printf("[INFO] run_id=%d name=%s status=%s files=%d window_ms=%v", meta.ID, meta.Name, meta.Status, len(files), meta.WindowMs)

	window := aggregators.Options{WindowWidthMs: meta.WindowMs, SuppressZeroWindows: meta.SuppressZero}
	results := make([]jsonl.FileResult, 0, len(files))
	for _, f := range files {
		res, err := writer.LoadResult(ctx, conn, id, f)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", f, err)
		}
		results = append(results, jsonl.FromResult(f, window, res, 0))
	}
	delays, err := writer.LoadCaseDelays(ctx, conn, id)
	if err != nil {
		return nil, nil, fmt.Errorf("run %d case delays: %w", id, err)
	}
	return results, delays, nil
}

func runPlot(ctx context.Context, o options, cfg *config.Config) error {
	results, delays, err := loadResults(ctx, o, cfg)
	if err != nil {
		return err
	}
	for _, fr := range results {
		res, err := fr.Result()
		if err != nil {
			log.Printf("[FAIL] %v", err)
			continue
		}
		if o.ascii {
			fmt.Println(fr.File)
			for _, p := range plot.DefaultPanels {
				g := plot.ASCII(res.SeriesOf(p.Class), p.Title, o.width, o.height)
				if g == "" {
					fmt.Printf("%s: no data\n\n", p.Title)
					continue
				}
				fmt.Println(g)
				fmt.Println()
			}
		}
		if o.pngDir != "" {
			name := strings.TrimSuffix(filepath.Base(fr.File), ".gz")
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
			path := filepath.Join(o.pngDir, name)
			if err := writePNG(path, &res, o); err != nil {
				log.Printf("[FAIL] %s: %v", path, err)
				continue
			}
			log.Printf("[OK] %s", path)
		}
	}
	names := make([]string, 0, len(delays))
	for name := range delays {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("case %-24s mean delay %.6f\n", name, delays[name])
	}
	return nil
}

func writePNG(path string, res *aggregators.Result, o options) error {
	out, err := iox.CreateAuto(path)
	if err != nil {
		return err
	}
	err = plot.RenderPNG(out, res, plot.PNGOptions{
		Width:       o.width,
		PanelHeight: o.height,
		Relative:    o.relative,
		Steps:       o.steps,
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// ---------- STAGE 5: export ----------

func runExport(ctx context.Context, o options, cfg *config.Config) error {
	if o.out == "" {
		return fmt.Errorf("export: -out is required")
	}
	results, delays, err := loadResults(ctx, o, cfg)
	if err != nil {
		return err
	}
	out, err := iox.CreateAuto(o.out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeSeriesCSV(out, results); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", o.out, err)
	}
	log.Printf("[OK] exported %d results to %s", len(results), o.out)

	if len(delays) > 0 {
		if err := jsonl.WriteDelays(o.delaysOut, delays); err != nil {
			return err
		}
		log.Printf("[OK] exported %d case means to %s", len(delays), o.delaysOut)
	}
	return nil
}

func writeSeriesCSV(out io.Writer, results []jsonl.FileResult) error {
	w := csvout.New(out)
	if err := w.WriteHeader(schema.SeriesHeader()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, fr := range results {
		res, err := fr.Result()
		if err != nil {
			return err
		}
		if err := w.WriteSeries(fr.File, &res); err != nil {
			return fmt.Errorf("write %s: %w", fr.File, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
