package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krixium/scalable-server/internal/ingest/aggregators"
	"github.com/Krixium/scalable-server/internal/ingest/config"
	"github.com/Krixium/scalable-server/internal/ingest/db"
	"github.com/Krixium/scalable-server/internal/ingest/project"
	"github.com/Krixium/scalable-server/internal/ingest/writer"
	"github.com/Krixium/scalable-server/internal/jsonl"
)

func TestResolveDefaults(t *testing.T) {
	cfg := &config.Config{WindowMs: 250, SuppressZero: true, AllowShortNew: true, Workers: 3, ResultsPath: "r.jsonl"}

	o := options{stage: "aggregate", windowMs: 10}
	resolveDefaults(&o, cfg, map[string]bool{"window-ms": true})
	assert.Equal(t, 10.0, o.windowMs, "explicit flag wins")
	assert.True(t, o.suppressZero)
	assert.Equal(t, 3, o.workers)
	assert.Equal(t, "r.jsonl", o.out)
	assert.Equal(t, "./parsed-delays.json", o.delaysOut)

	o = options{stage: "plot"}
	resolveDefaults(&o, cfg, map[string]bool{})
	assert.Equal(t, []string{"r.jsonl"}, o.in)
	assert.Equal(t, "", o.out)
}

func TestApplyRunFile(t *testing.T) {
	col := 4
	strict := true
	rf := &config.RunFile{Logs: []string{"x.log"}, CasesRoot: "cases", DelayColumn: &col, Strict: &strict, Out: "o.jsonl"}

	o := options{stage: "aggregate", in: []string{"cli.log"}}
	applyRunFile(&o, rf, map[string]bool{"in": true})
	assert.Equal(t, []string{"cli.log"}, o.in)
	assert.Equal(t, "cases", o.casesRoot)
	assert.Equal(t, 4, o.delayCol)
	assert.True(t, o.strict)
	assert.Equal(t, "o.jsonl", o.out)
}

func TestResolveDefaults_FromDB(t *testing.T) {
	cfg := &config.Config{Workers: 1, ResultsPath: "r.jsonl"}
	o := options{stage: "export", fromDB: true}
	resolveDefaults(&o, cfg, map[string]bool{})
	assert.Empty(t, o.in, "stored runs need no results file")
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBDriver:     config.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "store.db"),
		QueryTimeout: 5 * time.Second,
	}
}

// storeRun writes a finished run holding one file plus case delays, and a
// newer run that never finished.
func storeRun(t *testing.T, cfg *config.Config) int64 {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(cfg)
	require.NoError(t, err)
	defer conn.Close()

	res := &aggregators.Result{Totals: aggregators.Counters{New: 3, Receive: 1, ReceiveBytes: 40}}
	res.Series[aggregators.ClassNew] = []aggregators.SeriesPoint{{WindowStart: 0, Value: 2}, {WindowStart: 500, Value: 1}}
	res.Series[aggregators.ClassReceive] = []aggregators.SeriesPoint{{WindowStart: 500, Value: 1}}
	res.Series[aggregators.ClassReceiveBytes] = []aggregators.SeriesPoint{{WindowStart: 500, Value: 40}}

	id, err := project.CreateRun(ctx, conn, "stored", 500, true)
	require.NoError(t, err)
	require.NoError(t, writer.InsertFile(ctx, conn, writer.FilePayload{RunID: id, File: "logs/epoll.log", Result: res}))
	require.NoError(t, writer.InsertCaseDelays(ctx, conn, writer.DelayPayload{RunID: id, Means: map[string]float64{"case-1": 0.25}}))
	require.NoError(t, project.UpdateRunMeta(ctx, conn, project.RunMeta{ID: id, Files: 1, Status: project.StatusDone}))

	_, err = project.CreateRun(ctx, conn, "unfinished", 1000, false)
	require.NoError(t, err)
	return id
}

func TestLoadResults_FromDB(t *testing.T) {
	cfg := sqliteConfig(t)
	id := storeRun(t, cfg)

	results, delays, err := loadResults(context.Background(), options{stage: "plot", fromDB: true}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "logs/epoll.log", results[0].File)
	assert.Equal(t, 500.0, results[0].WindowMs)
	assert.True(t, results[0].Suppress)
	assert.Equal(t, map[string]float64{"case-1": 0.25}, delays)

	res, err := results[0].Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Totals.New)
	assert.Len(t, res.SeriesOf(aggregators.ClassNew), 2)

	picked, _, err := loadResults(context.Background(), options{fromDB: true, runID: id, file: "epoll.log"}, cfg)
	require.NoError(t, err)
	assert.Len(t, picked, 1)

	_, _, err = loadResults(context.Background(), options{fromDB: true, runID: id, file: "other.log"}, cfg)
	assert.Error(t, err)
	_, _, err = loadResults(context.Background(), options{fromDB: true, runID: id + 100}, cfg)
	assert.Error(t, err)
}

func TestRunExport_FromDB(t *testing.T) {
	cfg := sqliteConfig(t)
	storeRun(t, cfg)

	dir := t.TempDir()
	o := options{
		stage:     "export",
		fromDB:    true,
		out:       filepath.Join(dir, "series.csv"),
		delaysOut: filepath.Join(dir, "delays.json"),
	}
	require.NoError(t, runExport(context.Background(), o, cfg))

	b, err := os.ReadFile(o.out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Equal(t, "file,class,window_start,value", lines[0])
	assert.Contains(t, lines, "logs/epoll.log,new,0,2")
	assert.Contains(t, lines, "logs/epoll.log,rcv-data,500,40")

	delays, err := jsonl.ReadDelays(o.delaysOut)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"case-1": 0.25}, delays)

	assert.Error(t, runExport(context.Background(), options{fromDB: true}, cfg), "-out is required")
}

func TestRunAverage(t *testing.T) {
	root := t.TempDir()
	station := filepath.Join(root, "case-a", "station-1")
	require.NoError(t, os.MkdirAll(station, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(station, "epoll.log"),
		[]byte("1,0,new\n1,5,snd,10\nbroken\n1,6,rcv,20\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "case-b", "station-1"), 0o755))

	out := filepath.Join(t.TempDir(), "means.json")
	o := options{stage: "average", casesRoot: root, field: "value", allowShortNew: true, workers: 2, out: out}
	require.NoError(t, runAverage(context.Background(), o))

	means, err := jsonl.ReadDelays(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"case-a": 10}, means, "case-b has no records and is skipped")

	o.field = "timestamp"
	require.NoError(t, runAverage(context.Background(), o))
	means, err = jsonl.ReadDelays(out)
	require.NoError(t, err)
	assert.InDelta(t, 11.0/3, means["case-a"], 1e-12)

	o.field = "bytes"
	assert.Error(t, runAverage(context.Background(), o))
}
