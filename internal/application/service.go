// Package application wires configuration, the simulator engine, the
// analyzer, the feed watcher and session persistence into one service.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"

	"github.com/AkatukiSora/vrpoker-advisor/internal/analysis"
	"github.com/AkatukiSora/vrpoker-advisor/internal/config"
	"github.com/AkatukiSora/vrpoker-advisor/internal/engine"
	"github.com/AkatukiSora/vrpoker-advisor/internal/equity"
	"github.com/AkatukiSora/vrpoker-advisor/internal/gamestate"
	"github.com/AkatukiSora/vrpoker-advisor/internal/handeval"
	"github.com/AkatukiSora/vrpoker-advisor/internal/persistence"
	"github.com/AkatukiSora/vrpoker-advisor/internal/watcher"
)

var ErrNoFeed = errors.New("no feed file configured")

// EquityEngine is the part of *engine.Engine the service depends on.
type EquityEngine interface {
	equity.Backend
	Start(ctx context.Context) error
	Stats() engine.Stats
	Close(ctx context.Context) (engine.Stats, error)
}

// Update is delivered for every snapshot analysed in watch mode.
type Update struct {
	State  gamestate.GameState
	Result analysis.Result
	// Line is the feed line the snapshot came from.
	Line   int64
	Cached bool
}

type Service struct {
	cfg      config.Config
	repo     persistence.Repository
	engine   EquityEngine
	analyzer *analysis.Analyzer
	cache    *lru.Cache[string, analysis.Result]

	mu        sync.Mutex
	session   *persistence.EngineSession
	closeOnce sync.Once
	closeErr  error
}

// Open builds the production service from cfg: SQLite or in-memory session
// storage and a simulator engine. A simulator that fails to start leaves
// the service in legacy mode.
func Open(ctx context.Context, cfg config.Config) (*Service, error) {
	repo, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := NewService(cfg, repo, engine.New(cfg.Engine()))
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close(ctx)
		return nil, err
	}
	return svc, nil
}

// OpenStorage builds a service over session storage only, for reading
// history without starting a simulator.
func OpenStorage(cfg config.Config) (*Service, error) {
	repo, err := openRepository(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := NewService(cfg, repo, nil)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return svc, nil
}

func openRepository(cfg config.Config) (persistence.Repository, error) {
	if cfg.Storage.Path == "" {
		return persistence.NewMemoryRepository(), nil
	}
	return persistence.NewSQLiteRepository(cfg.Storage.Path)
}

func NewService(cfg config.Config, repo persistence.Repository, eng EquityEngine) (*Service, error) {
	cache, err := lru.New[string, analysis.Result](cfg.Analysis.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	var calc analysis.EquityCalculator
	if eng != nil {
		calc = equity.NewCalculator(eng)
	}
	return &Service{
		cfg:      cfg,
		repo:     repo,
		engine:   eng,
		analyzer: analysis.NewAnalyzer(handeval.NewEvaluator(cfg.Analysis.EvalCacheSize), calc, cfg.Analysis.Iterations),
		cache:    cache,
	}, nil
}

// Start launches the engine and opens a persisted session. Engine startup
// failures are logged only; the engine keeps answering in legacy mode.
func (s *Service) Start(ctx context.Context) error {
	if s.engine == nil {
		return nil
	}
	if err := s.engine.Start(ctx); err != nil {
		slog.Warn("Simulator daemon did not start", "error", err)
	}
	sess, err := s.repo.BeginSession(ctx, s.cfg.Simulator.Executable, time.Now())
	if err != nil {
		return fmt.Errorf("begin engine session: %w", err)
	}
	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()
	slog.Info("Engine session started", "session", sess.ID, "mode", s.engine.Stats().Mode)
	return nil
}

// Analyze returns the result for g, reusing a cached result for the same
// snapshot key. Results carrying an equity error are not cached.
func (s *Service) Analyze(ctx context.Context, g gamestate.GameState) (analysis.Result, bool, error) {
	key := g.Key()
	if res, ok := s.cache.Get(key); ok {
		return res, true, nil
	}
	res, err := s.analyzer.Analyze(ctx, g)
	if err != nil {
		return analysis.Result{}, false, err
	}
	if res.EquityError == "" {
		s.cache.Add(key, res)
	}
	return res, false, nil
}

// AnalyzeLine decodes one feed line and analyses it.
func (s *Service) AnalyzeLine(ctx context.Context, line []byte) (gamestate.GameState, analysis.Result, error) {
	g, err := gamestate.Decode(line)
	if err != nil {
		return gamestate.GameState{}, analysis.Result{}, err
	}
	res, _, err := s.Analyze(ctx, g)
	return g, res, err
}

// Watch follows the feed file and reports the newest snapshot of every batch
// until ctx is done. Consecutive identical snapshots are reported once.
func (s *Service) Watch(ctx context.Context, path string, onUpdate func(Update)) error {
	if path == "" {
		path = s.cfg.Feed.Path
	}
	if path == "" {
		return ErrNoFeed
	}

	var lastKey string
	fw, err := watcher.NewFeedWatcher(path, watcher.Config{
		PollInterval: s.cfg.Feed.PollInterval,
		OnNewData: func(b watcher.Batch) {
			lastKey = s.handleBatch(ctx, path, b, lastKey, onUpdate)
		},
		OnReset: func() { lastKey = "" },
		OnError: func(err error) {
			slog.Warn("Feed read failed", "path", path, "error", err)
		},
	})
	if err != nil {
		return err
	}
	defer fw.Stop()

	if err := s.positionWatcher(ctx, fw, path); err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *Service) positionWatcher(ctx context.Context, fw *watcher.FeedWatcher, path string) error {
	if !s.cfg.Feed.Resume {
		return fw.SkipToEnd()
	}
	cur, err := s.repo.GetCursor(ctx, path)
	if err != nil {
		slog.Warn("Failed to load feed cursor, reading from the end", "path", path, "error", err)
		return fw.SkipToEnd()
	}
	if cur != nil {
		slog.Debug("Resuming feed", "path", path, "offset", cur.NextByteOffset, "line", cur.NextLineNumber)
		fw.SetPosition(cur.NextByteOffset, cur.NextLineNumber)
	}
	return nil
}

func (s *Service) handleBatch(ctx context.Context, path string, b watcher.Batch, lastKey string, onUpdate func(Update)) string {
	g, line, ok := latestState(b)
	cursor := persistence.FeedCursor{SourcePath: path, NextByteOffset: b.EndOffset, NextLineNumber: b.NextLine()}
	defer func() {
		if err := s.repo.SaveCursor(context.WithoutCancel(ctx), cursor); err != nil {
			slog.Warn("Failed to save feed cursor", "path", path, "error", err)
		}
	}()
	if !ok {
		return lastKey
	}
	key := g.Key()
	cursor.LastFrameHash = g.FrameHash
	if key == lastKey {
		return lastKey
	}

	res, cached, err := s.Analyze(ctx, g)
	if err != nil {
		slog.Warn("Snapshot rejected", "line", line, "error", err)
		return lastKey
	}
	if onUpdate != nil {
		onUpdate(Update{State: g, Result: res, Line: line, Cached: cached})
	}
	return key
}

// latestState returns the last decodable snapshot in the batch.
func latestState(b watcher.Batch) (gamestate.GameState, int64, bool) {
	for i := len(b.Lines) - 1; i >= 0; i-- {
		if b.Lines[i] == "" {
			continue
		}
		line := b.StartLine + int64(i)
		g, err := gamestate.Decode([]byte(b.Lines[i]))
		if err != nil {
			slog.Debug("Skipping undecodable feed line", "line", line, "error", err)
			continue
		}
		return g, line, true
	}
	return gamestate.GameState{}, 0, false
}

func (s *Service) EngineStats() engine.Stats {
	if s.engine == nil {
		return engine.Stats{Mode: equity.ModeLegacy}
	}
	return s.engine.Stats()
}

// SessionID is empty before Start.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

// History lists the most recent engine sessions and the all-time totals.
func (s *Service) History(ctx context.Context, limit int) ([]persistence.EngineSession, persistence.SessionTotals, error) {
	sessions, err := s.repo.ListSessions(ctx, persistence.SessionFilter{Limit: limit})
	if err != nil {
		return nil, persistence.SessionTotals{}, err
	}
	totals, err := s.repo.SessionTotals(ctx)
	if err != nil {
		return nil, persistence.SessionTotals{}, err
	}
	return sessions, totals, nil
}

// Close stops the engine, records the session counters and closes storage.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs error
		if s.engine != nil {
			st, err := s.engine.Close(ctx)
			errs = multierr.Append(errs, err)
			errs = multierr.Append(errs, s.finishSession(ctx, st))
		}
		errs = multierr.Append(errs, s.repo.Close())
		s.closeErr = errs
	})
	return s.closeErr
}

func (s *Service) finishSession(ctx context.Context, st engine.Stats) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	end := time.Now()
	done := *sess
	done.EndedAt = &end
	done.FinalMode = string(st.Mode)
	done.TotalCalls = st.TotalCalls
	done.DaemonCalls = st.DaemonCalls
	done.LegacyFallbacks = st.LegacyFallbacks
	done.Failures = st.Failures
	done.TotalLatency = st.TotalLatency
	if err := s.repo.FinishSession(context.WithoutCancel(ctx), done); err != nil {
		return fmt.Errorf("finish engine session: %w", err)
	}
	return nil
}
