package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestUp00003BackfillsAverageLatency(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}

	ddl := `CREATE TABLE engine_sessions (
		session_id TEXT PRIMARY KEY,
		total_calls INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		total_latency_ms INTEGER NOT NULL,
		avg_latency_ms INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = tx.Rollback()
		t.Fatalf("create test schema: %v", err)
	}

	fixtures := []struct {
		id      string
		calls   int
		fails   int
		totalMS int
		avgMS   int
		wantAvg int
	}{
		{id: "plain", calls: 4, fails: 0, totalMS: 400, wantAvg: 100},
		{id: "with-failures", calls: 5, fails: 1, totalMS: 800, wantAvg: 200},
		{id: "all-failed", calls: 3, fails: 3, totalMS: 0, wantAvg: 0},
		{id: "empty", calls: 0, fails: 0, totalMS: 0, wantAvg: 0},
		{id: "already-set", calls: 2, fails: 0, totalMS: 100, avgMS: 7, wantAvg: 7},
	}
	for _, f := range fixtures {
		if _, err := tx.ExecContext(ctx, `INSERT INTO engine_sessions(session_id, total_calls, failures, total_latency_ms, avg_latency_ms) VALUES(?, ?, ?, ?, ?)`,
			f.id, f.calls, f.fails, f.totalMS, f.avgMS); err != nil {
			_ = tx.Rollback()
			t.Fatalf("insert %s: %v", f.id, err)
		}
	}

	if err := Up00003(ctx, tx); err != nil {
		_ = tx.Rollback()
		t.Fatalf("run migration: %v", err)
	}

	for _, f := range fixtures {
		var got int
		if err := tx.QueryRowContext(ctx, `SELECT avg_latency_ms FROM engine_sessions WHERE session_id = ?`, f.id).Scan(&got); err != nil {
			_ = tx.Rollback()
			t.Fatalf("query %s: %v", f.id, err)
		}
		if got != f.wantAvg {
			_ = tx.Rollback()
			t.Fatalf("session %s avg=%d want=%d", f.id, got, f.wantAvg)
		}
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit tx: %v", err)
	}
}
