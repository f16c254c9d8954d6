package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("engine session not found")

// EngineSession is one engine lifetime: from daemon start to Close.
type EngineSession struct {
	ID         string
	StartedAt  time.Time
	EndedAt    *time.Time
	Executable string
	// FinalMode is "daemon" or "legacy" once the session has ended.
	FinalMode string

	TotalCalls      int64
	DaemonCalls     int64
	LegacyFallbacks int64
	Failures        int64
	TotalLatency    time.Duration
	AvgLatency      time.Duration
}

// Ended reports whether FinishSession has been recorded.
func (s EngineSession) Ended() bool { return s.EndedAt != nil }

type SessionFilter struct {
	FromTime *time.Time
	ToTime   *time.Time
	// Limit == 0 means no limit.
	Limit int
}

// SessionTotals aggregates counters over every ended session.
type SessionTotals struct {
	Sessions        int
	TotalCalls      int64
	DaemonCalls     int64
	LegacyFallbacks int64
	Failures        int64
	TotalLatency    time.Duration
}

func (t SessionTotals) AvgLatency() time.Duration {
	if ok := t.TotalCalls - t.Failures; ok > 0 {
		return t.TotalLatency / time.Duration(ok)
	}
	return 0
}

// FeedCursor remembers how far a game-state feed file has been consumed.
type FeedCursor struct {
	SourcePath     string
	NextByteOffset int64
	NextLineNumber int64
	LastFrameHash  string
	UpdatedAt      time.Time
}

type SessionRepository interface {
	// BeginSession records a new open session and returns it with its ID.
	BeginSession(ctx context.Context, executable string, startedAt time.Time) (EngineSession, error)
	// FinishSession stores the final counters of a session started with
	// BeginSession.
	FinishSession(ctx context.Context, s EngineSession) error
	// GetSession returns nil, nil if not found.
	GetSession(ctx context.Context, id string) (*EngineSession, error)
	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, f SessionFilter) ([]EngineSession, error)
	SessionTotals(ctx context.Context) (SessionTotals, error)
}

type CursorRepository interface {
	// GetCursor returns nil, nil if the source has never been read.
	GetCursor(ctx context.Context, sourcePath string) (*FeedCursor, error)
	SaveCursor(ctx context.Context, c FeedCursor) error
}

type Repository interface {
	SessionRepository
	CursorRepository
	Close() error
}

// NewSessionID returns a time-ordered unique session identifier.
func NewSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id.String(), nil
}

func avgLatency(s EngineSession) time.Duration {
	if ok := s.TotalCalls - s.Failures; ok > 0 {
		return s.TotalLatency / time.Duration(ok)
	}
	return 0
}

func inRange(t time.Time, f SessionFilter) bool {
	if f.FromTime != nil && t.Before(*f.FromTime) {
		return false
	}
	if f.ToTime != nil && t.After(*f.ToTime) {
		return false
	}
	return true
}
