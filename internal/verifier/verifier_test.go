package verifier

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krixium/scalable-server/internal/ingest/csvx"
)

func TestVerifyLogs(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "epoll-1000-10.log")
	jittered := filepath.Join(dir, "select-1000-10.log")
	require.NoError(t, os.WriteFile(good, []byte("4,100.5,new\n4,200,snd,10\n4,300,rcv,10\n"), 0o644))
	require.NoError(t, os.WriteFile(jittered, []byte("4,100,new\n4,400,new\n5,350,new\n"), 0o644))
	late := filepath.Join(dir, "poll-1000-10.log")
	require.NoError(t, os.WriteFile(late, []byte("4,100,new\n4,1300,new\n5,900,new\n"), 0o644))
	missing := filepath.Join(dir, "missing.log")

	progress := make(chan int, 4)
	opt := csvx.AnalyzeOptions{AllowShortNew: true, WindowMs: 1000}
	res := VerifyLogs(context.Background(), []string{good, jittered, late, missing}, 2, opt, progress)
	close(progress)
	require.Len(t, res, 4)

	assert.True(t, res[0].OK())
	assert.Equal(t, int64(3), res[0].Stats.Records)

	// jitter inside the open window aggregates fine but is not strictly ordered
	assert.True(t, res[1].OK())
	assert.False(t, res[1].Stats.Ordered())
	assert.Equal(t, int64(1), res[1].Stats.Regressions)

	assert.False(t, res[2].OK())
	assert.Equal(t, int64(1), res[2].Stats.OutOfOrder)
	assert.Equal(t, int64(3), res[2].Stats.FirstOutOfOrderLine)

	assert.Error(t, res[3].Err)
	assert.Nil(t, res[3].Stats)
	assert.False(t, res[3].OK())

	out := filepath.Join(dir, "report", "verify.csv")
	require.NoError(t, WriteResultsCSV(out, res))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "file,lines,records,malformed,unknown,new,snd,rcv,"))
	assert.Equal(t, good+",3,3,0,0,1,1,1,100.5,300,199.5,1,0,0,0,1,0,0,", lines[1])
	assert.True(t, strings.HasSuffix(lines[3], ",0,1,3,"))
	assert.True(t, strings.HasPrefix(lines[4], missing+",,,"))
}
