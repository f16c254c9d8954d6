package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout keeps a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}
	repo := &SQLiteRepository{db: db}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRepository) BeginSession(ctx context.Context, executable string, startedAt time.Time) (EngineSession, error) {
	id, err := NewSessionID()
	if err != nil {
		return EngineSession{}, err
	}
	s := EngineSession{ID: id, StartedAt: startedAt.UTC(), Executable: executable}
	_, err = r.db.ExecContext(ctx, `INSERT INTO engine_sessions(session_id, started_at, executable) VALUES(?, ?, ?)`,
		s.ID, formatTime(s.StartedAt), s.Executable)
	if err != nil {
		return EngineSession{}, fmt.Errorf("insert engine session: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) FinishSession(ctx context.Context, s EngineSession) error {
	end := time.Now().UTC()
	if s.EndedAt != nil {
		end = s.EndedAt.UTC()
	}
	s.TotalLatency = s.TotalLatency.Truncate(time.Millisecond)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE engine_sessions SET
			ended_at = ?, final_mode = ?,
			total_calls = ?, daemon_calls = ?, legacy_fallbacks = ?, failures = ?,
			total_latency_ms = ?, avg_latency_ms = ?
			WHERE session_id = ?`,
			formatTime(end), s.FinalMode,
			s.TotalCalls, s.DaemonCalls, s.LegacyFallbacks, s.Failures,
			s.TotalLatency.Milliseconds(), avgLatency(s).Milliseconds(),
			s.ID)
		if err != nil {
			return fmt.Errorf("update engine session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update engine session rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("finish session %s: %w", s.ID, ErrSessionNotFound)
		}
		return nil
	})
}

const sessionColumns = `session_id, started_at, ended_at, executable, final_mode,
	total_calls, daemon_calls, legacy_fallbacks, failures, total_latency_ms, avg_latency_ms`

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*EngineSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM engine_sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) ListSessions(ctx context.Context, f SessionFilter) ([]EngineSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM engine_sessions WHERE 1=1`
	var args []any
	if f.FromTime != nil {
		q += ` AND started_at >= ?`
		args = append(args, formatTime(*f.FromTime))
	}
	if f.ToTime != nil {
		q += ` AND started_at <= ?`
		args = append(args, formatTime(*f.ToTime))
	}
	q += ` ORDER BY started_at DESC, session_id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query engine sessions: %w", err)
	}
	defer rows.Close()

	out := make([]EngineSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SessionTotals(ctx context.Context) (SessionTotals, error) {
	var t SessionTotals
	var latencyMS int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(total_calls), 0), COALESCE(SUM(daemon_calls), 0),
		COALESCE(SUM(legacy_fallbacks), 0), COALESCE(SUM(failures), 0),
		COALESCE(SUM(total_latency_ms), 0)
		FROM engine_sessions WHERE ended_at IS NOT NULL`).
		Scan(&t.Sessions, &t.TotalCalls, &t.DaemonCalls, &t.LegacyFallbacks, &t.Failures, &latencyMS)
	if err != nil {
		return SessionTotals{}, fmt.Errorf("query session totals: %w", err)
	}
	t.TotalLatency = time.Duration(latencyMS) * time.Millisecond
	return t, nil
}

func (r *SQLiteRepository) GetCursor(ctx context.Context, sourcePath string) (*FeedCursor, error) {
	var c FeedCursor
	var lastHash sql.NullString
	var updated string
	err := r.db.QueryRowContext(ctx, `SELECT source_path, next_byte_offset, next_line_number, last_frame_hash, updated_at
		FROM feed_cursors WHERE source_path = ?`, sourcePath).
		Scan(&c.SourcePath, &c.NextByteOffset, &c.NextLineNumber, &lastHash, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query feed cursor: %w", err)
	}
	c.LastFrameHash = lastHash.String
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepository) SaveCursor(ctx context.Context, c FeedCursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO feed_cursors(source_path, next_byte_offset, next_line_number, last_frame_hash, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			next_byte_offset = excluded.next_byte_offset,
			next_line_number = excluded.next_line_number,
			last_frame_hash = excluded.last_frame_hash,
			updated_at = excluded.updated_at`,
		c.SourcePath, c.NextByteOffset, c.NextLineNumber, nullIfEmpty(c.LastFrameHash), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save feed cursor: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (EngineSession, error) {
	var s EngineSession
	var started string
	var ended sql.NullString
	var totalMS, avgMS int64
	if err := row.Scan(&s.ID, &started, &ended, &s.Executable, &s.FinalMode,
		&s.TotalCalls, &s.DaemonCalls, &s.LegacyFallbacks, &s.Failures, &totalMS, &avgMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EngineSession{}, err
		}
		return EngineSession{}, fmt.Errorf("scan engine session: %w", err)
	}
	var err error
	if s.StartedAt, err = parseTime(started); err != nil {
		return EngineSession{}, err
	}
	if ended.Valid {
		end, err := parseTime(ended.String)
		if err != nil {
			return EngineSession{}, err
		}
		s.EndedAt = &end
	}
	s.TotalLatency = time.Duration(totalMS) * time.Millisecond
	s.AvgLatency = time.Duration(avgMS) * time.Millisecond
	return s, nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
