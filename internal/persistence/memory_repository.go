package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]EngineSession
	cursors  map[string]FeedCursor
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]EngineSession),
		cursors:  make(map[string]FeedCursor),
	}
}

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) BeginSession(_ context.Context, executable string, startedAt time.Time) (EngineSession, error) {
	id, err := NewSessionID()
	if err != nil {
		return EngineSession{}, err
	}
	s := EngineSession{ID: id, StartedAt: startedAt.UTC(), Executable: executable}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
	return s, nil
}

func (r *MemoryRepository) FinishSession(_ context.Context, s EngineSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[s.ID]
	if !ok {
		return fmt.Errorf("finish session %s: %w", s.ID, ErrSessionNotFound)
	}
	end := time.Now().UTC()
	if s.EndedAt != nil {
		end = s.EndedAt.UTC()
	}
	cur.EndedAt = &end
	cur.FinalMode = s.FinalMode
	cur.TotalCalls = s.TotalCalls
	cur.DaemonCalls = s.DaemonCalls
	cur.LegacyFallbacks = s.LegacyFallbacks
	cur.Failures = s.Failures
	cur.TotalLatency = s.TotalLatency.Truncate(time.Millisecond)
	cur.AvgLatency = avgLatency(cur).Truncate(time.Millisecond)
	r.sessions[s.ID] = cur
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, id string) (*EngineSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (r *MemoryRepository) ListSessions(_ context.Context, f SessionFilter) ([]EngineSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EngineSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !inRange(s.StartedAt, f) {
			continue
		}
		out = append(out, *cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) SessionTotals(_ context.Context) (SessionTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var t SessionTotals
	for _, s := range r.sessions {
		if !s.Ended() {
			continue
		}
		t.Sessions++
		t.TotalCalls += s.TotalCalls
		t.DaemonCalls += s.DaemonCalls
		t.LegacyFallbacks += s.LegacyFallbacks
		t.Failures += s.Failures
		t.TotalLatency += s.TotalLatency
	}
	return t, nil
}

func (r *MemoryRepository) GetCursor(_ context.Context, sourcePath string) (*FeedCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cursors[sourcePath]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) SaveCursor(_ context.Context, c FeedCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	r.cursors[c.SourcePath] = c
	return nil
}

func cloneSession(s EngineSession) *EngineSession {
	out := s
	if s.EndedAt != nil {
		end := *s.EndedAt
		out.EndedAt = &end
	}
	return &out
}
