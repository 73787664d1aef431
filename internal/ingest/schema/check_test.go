package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krixium/scalable-server/internal/ingest/config"
	"github.com/Krixium/scalable-server/internal/ingest/db"
)

func TestCheck_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "s.db"), 0)
	require.NoError(t, err)
	defer conn.Close()

	missing, hasDelay, err := Check(ctx, conn, config.DriverSQLite)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.True(t, hasDelay)

	_, err = conn.ExecContext(ctx, "DROP TABLE ls_case_delay")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "DROP TABLE ls_window")
	require.NoError(t, err)

	missing, hasDelay, err = Check(ctx, conn, config.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, []string{"ls_window"}, missing)
	assert.False(t, hasDelay)

	require.NoError(t, db.Bootstrap(ctx, conn, config.DriverSQLite))
	missing, _, err = Check(ctx, conn, config.DriverSQLite)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
