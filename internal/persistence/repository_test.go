package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func repoCases() []struct {
	name    string
	newRepo func(t *testing.T) Repository
} {
	return []struct {
		name    string
		newRepo func(t *testing.T) Repository
	}{
		{
			name: "memory",
			newRepo: func(_ *testing.T) Repository {
				return NewMemoryRepository()
			},
		},
		{
			name: "sqlite",
			newRepo: func(t *testing.T) Repository {
				repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "advisor.db"))
				if err != nil {
					t.Fatalf("new sqlite repo: %v", err)
				}
				t.Cleanup(func() {
					_ = repo.Close()
				})
				return repo
			},
		},
	}
}

func TestSessionLifecycleParity(t *testing.T) {
	t.Parallel()

	for _, tt := range repoCases() {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			repo := tt.newRepo(t)
			start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

			s, err := repo.BeginSession(ctx, "/opt/sim/poker_sim", start)
			if err != nil {
				t.Fatalf("BeginSession: %v", err)
			}
			if s.ID == "" || s.Ended() {
				t.Fatalf("new session = %+v", s)
			}

			got, err := repo.GetSession(ctx, s.ID)
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got == nil || got.Ended() || !got.StartedAt.Equal(start) {
				t.Fatalf("open session = %+v", got)
			}

			end := start.Add(90 * time.Minute)
			s.EndedAt = &end
			s.FinalMode = "daemon"
			s.TotalCalls = 12
			s.DaemonCalls = 10
			s.LegacyFallbacks = 2
			s.Failures = 2
			s.TotalLatency = 1500*time.Millisecond + 400*time.Microsecond
			if err := repo.FinishSession(ctx, s); err != nil {
				t.Fatalf("FinishSession: %v", err)
			}

			got, err = repo.GetSession(ctx, s.ID)
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			want := &EngineSession{
				ID:              s.ID,
				StartedAt:       start,
				EndedAt:         &end,
				Executable:      "/opt/sim/poker_sim",
				FinalMode:       "daemon",
				TotalCalls:      12,
				DaemonCalls:     10,
				LegacyFallbacks: 2,
				Failures:        2,
				TotalLatency:    1500 * time.Millisecond,
				AvgLatency:      150 * time.Millisecond,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("finished session mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFinishUnknownSession(t *testing.T) {
	t.Parallel()

	for _, tt := range repoCases() {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := tt.newRepo(t)
			err := repo.FinishSession(context.Background(), EngineSession{ID: "missing"})
			if !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("err = %v, want ErrSessionNotFound", err)
			}
			got, err := repo.GetSession(context.Background(), "missing")
			if err != nil || got != nil {
				t.Fatalf("GetSession(missing) = %+v, %v", got, err)
			}
		})
	}
}

func TestListSessionsAndTotalsParity(t *testing.T) {
	t.Parallel()

	for _, tt := range repoCases() {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			repo := tt.newRepo(t)
			base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

			var ids []string
			for i := 0; i < 4; i++ {
				s, err := repo.BeginSession(ctx, "sim", base.Add(time.Duration(i)*time.Hour))
				if err != nil {
					t.Fatalf("BeginSession %d: %v", i, err)
				}
				ids = append(ids, s.ID)
				if i == 3 {
					continue // left open
				}
				s.FinalMode = "legacy"
				s.TotalCalls = int64(i + 1)
				s.DaemonCalls = int64(i)
				s.LegacyFallbacks = 1
				s.TotalLatency = time.Duration(i+1) * 100 * time.Millisecond
				if err := repo.FinishSession(ctx, s); err != nil {
					t.Fatalf("FinishSession %d: %v", i, err)
				}
			}

			all, err := repo.ListSessions(ctx, SessionFilter{})
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			var gotIDs []string
			for _, s := range all {
				gotIDs = append(gotIDs, s.ID)
			}
			wantIDs := []string{ids[3], ids[2], ids[1], ids[0]}
			if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
				t.Fatalf("list order (-want +got):\n%s", diff)
			}

			from := base.Add(time.Hour)
			to := base.Add(2 * time.Hour)
			ranged, err := repo.ListSessions(ctx, SessionFilter{FromTime: &from, ToTime: &to})
			if err != nil {
				t.Fatalf("ListSessions range: %v", err)
			}
			if len(ranged) != 2 || ranged[0].ID != ids[2] || ranged[1].ID != ids[1] {
				t.Fatalf("ranged = %+v", ranged)
			}

			limited, err := repo.ListSessions(ctx, SessionFilter{Limit: 1})
			if err != nil {
				t.Fatalf("ListSessions limit: %v", err)
			}
			if len(limited) != 1 || limited[0].ID != ids[3] {
				t.Fatalf("limited = %+v", limited)
			}

			totals, err := repo.SessionTotals(ctx)
			if err != nil {
				t.Fatalf("SessionTotals: %v", err)
			}
			want := SessionTotals{
				Sessions:        3,
				TotalCalls:      6,
				DaemonCalls:     3,
				LegacyFallbacks: 3,
				TotalLatency:    600 * time.Millisecond,
			}
			if diff := cmp.Diff(want, totals); diff != "" {
				t.Fatalf("totals (-want +got):\n%s", diff)
			}
			if totals.AvgLatency() != 100*time.Millisecond {
				t.Fatalf("avg latency = %v", totals.AvgLatency())
			}
		})
	}
}

func TestFeedCursorParity(t *testing.T) {
	t.Parallel()

	for _, tt := range repoCases() {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			repo := tt.newRepo(t)

			got, err := repo.GetCursor(ctx, "feed.jsonl")
			if err != nil || got != nil {
				t.Fatalf("GetCursor(empty) = %+v, %v", got, err)
			}

			at := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
			first := FeedCursor{SourcePath: "feed.jsonl", NextByteOffset: 120, NextLineNumber: 3, UpdatedAt: at}
			if err := repo.SaveCursor(ctx, first); err != nil {
				t.Fatalf("SaveCursor: %v", err)
			}
			second := FeedCursor{SourcePath: "feed.jsonl", NextByteOffset: 300, NextLineNumber: 7, LastFrameHash: "abc", UpdatedAt: at.Add(time.Second)}
			if err := repo.SaveCursor(ctx, second); err != nil {
				t.Fatalf("SaveCursor: %v", err)
			}

			got, err = repo.GetCursor(ctx, "feed.jsonl")
			if err != nil {
				t.Fatalf("GetCursor: %v", err)
			}
			if diff := cmp.Diff(&second, got); diff != "" {
				t.Fatalf("cursor (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewSQLiteRepositoryBackfillsOlderSchema(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "old.db")
	old, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open old db: %v", err)
	}
	if err := setupGoose(); err != nil {
		_ = old.Close()
		t.Fatalf("setup goose: %v", err)
	}
	if err := goose.UpTo(old, "migrations", 1); err != nil {
		_ = old.Close()
		t.Fatalf("migrate to v1: %v", err)
	}
	_, err = old.Exec(`INSERT INTO engine_sessions(session_id, started_at, ended_at, executable, final_mode, total_calls, failures, total_latency_ms)
		VALUES('s-old', '2026-01-01T00:00:00.000000000Z', '2026-01-01T01:00:00.000000000Z', 'sim', 'daemon', 5, 1, 2000)`)
	if err != nil {
		_ = old.Close()
		t.Fatalf("insert old session: %v", err)
	}
	if err := old.Close(); err != nil {
		t.Fatalf("close old db: %v", err)
	}

	repo, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	got, err := repo.GetSession(context.Background(), "s-old")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.AvgLatency != 500*time.Millisecond {
		t.Fatalf("migrated session = %+v", got)
	}
}
