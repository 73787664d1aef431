package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Krixium/scalable-server/internal/ingest/config"
	"github.com/Krixium/scalable-server/internal/ingest/db"
)

// Required are the tables every ingest writes to.
var Required = []string{"ls_run", "ls_total", "ls_window"}

// Optional tables; ingest skips their inserts when absent.
const CaseDelayTable = "ls_case_delay"

// Check reports which required tables are missing and whether the optional
// case-delay table exists in the connected database.
func Check(ctx context.Context, conn *sql.DB, driver string) (missing []string, hasCaseDelay bool, err error) {
	schema := ""
	if driver == config.DriverMySQL {
		schema, err = db.CurrentSchema(ctx, conn)
		if err != nil {
			return nil, false, fmt.Errorf("SELECT DATABASE() failed: %w", err)
		}
	}
	all := append(append([]string(nil), Required...), CaseDelayTable)
	absent, err := db.CheckRequiredTables(ctx, conn, driver, schema, all)
	if err != nil {
		return nil, false, fmt.Errorf("schema check: %w", err)
	}
	hasCaseDelay = true
	for _, t := range absent {
		if t == CaseDelayTable {
			hasCaseDelay = false
			continue
		}
		missing = append(missing, t)
	}
	return missing, hasCaseDelay, nil
}
