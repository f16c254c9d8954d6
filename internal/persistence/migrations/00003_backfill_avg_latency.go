package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up00003, Down00003)
}

// Up00003 fills avg_latency_ms for sessions recorded before the column
// existed. Failed calls do not contribute latency.
func Up00003(ctx context.Context, tx *sql.Tx) error {
	res, err := tx.ExecContext(ctx, `UPDATE engine_sessions
		SET avg_latency_ms = total_latency_ms / (total_calls - failures)
		WHERE avg_latency_ms = 0 AND total_calls > failures`)
	if err != nil {
		return fmt.Errorf("backfill avg_latency_ms: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("backfill avg_latency_ms rows: %w", err)
	}
	return nil
}

func Down00003(context.Context, *sql.Tx) error {
	return nil
}
