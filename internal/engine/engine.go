// Package engine runs the external Monte Carlo simulator: a persistent daemon
// process for fast repeated requests, and a one-shot legacy invocation used
// whenever the daemon is unavailable or misbehaves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/AkatukiSora/vrpoker-advisor/internal/equity"
)

var ErrClosed = errors.New("engine closed")

// State of the daemon channel.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateBusy
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Mode            equity.Mode   `json:"mode"`
	TotalCalls      int64         `json:"total_calls"`
	DaemonCalls     int64         `json:"daemon_calls"`
	LegacyFallbacks int64         `json:"legacy_fallbacks"`
	Failures        int64         `json:"failures"`
	TotalLatency    time.Duration `json:"total_latency"`
	AvgLatency      time.Duration `json:"avg_latency"`
}

// Engine routes equity requests to the daemon and falls back to a legacy run
// per call, or for good once the daemon process is lost.
type Engine struct {
	cfg    Config
	legacy *LegacyRunner

	// mu serializes use of the daemon channel.
	mu      sync.Mutex
	daemon  *DaemonClient
	cleanup runtime.Cleanup
	state   atomic.Int32

	statsMu sync.Mutex
	stats   Stats

	closeOnce sync.Once
	closed    atomic.Bool
	final     Stats
}

func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{cfg: cfg, legacy: NewLegacyRunner(cfg)}
}

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Start launches the daemon. On failure the engine stays usable in
// legacy-only mode for its whole lifetime and the error is returned for
// logging.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateUninitialized {
		return nil
	}
	e.setState(StateStarting)
	d, err := StartDaemon(ctx, e.cfg)
	if err != nil {
		e.setState(StateDegraded)
		slog.Warn("daemon mode unavailable, using legacy mode", "error", err)
		return err
	}
	e.daemon = d
	e.cleanup = runtime.AddCleanup(e, func(d *DaemonClient) {
		slog.Warn("engine collected without Close, killing simulator", "pid", d.Pid())
		d.kill()
	}, d)
	e.setState(StateReady)
	return nil
}

// CalculateEquity validates the request, then answers it from the daemon or
// the legacy runner.
func (e *Engine) CalculateEquity(ctx context.Context, req equity.Request) (equity.Result, error) {
	if err := equity.Validate(req); err != nil {
		return equity.Result{}, err
	}
	if e.closed.Load() {
		return equity.Result{}, ErrClosed
	}

	start := time.Now()
	res, err := e.calculate(ctx, req)
	elapsed := time.Since(start)

	e.statsMu.Lock()
	e.stats.TotalCalls++
	if err != nil {
		e.stats.Failures++
	} else {
		e.stats.TotalLatency += elapsed
		if res.Mode == equity.ModeDaemon {
			e.stats.DaemonCalls++
		}
	}
	n := e.stats.TotalCalls
	e.statsMu.Unlock()

	if err != nil {
		slog.Error("equity calculation failed", "error", err)
		return equity.Result{}, err
	}
	slog.Info("equity calculated", "mode", res.Mode, "call", n,
		"win", fmt.Sprintf("%.2f", res.WinRate), "took", elapsed.Round(time.Millisecond))
	return res, nil
}

func (e *Engine) calculate(ctx context.Context, req equity.Request) (equity.Result, error) {
	res, handled, err := e.tryDaemon(ctx, req)
	if handled {
		return res, err
	}
	e.statsMu.Lock()
	e.stats.LegacyFallbacks++
	e.statsMu.Unlock()
	return e.legacy.CalculateEquity(ctx, req)
}

// tryDaemon reports handled=false when the request should go to legacy.
func (e *Engine) tryDaemon(ctx context.Context, req equity.Request) (equity.Result, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateReady {
		return equity.Result{}, false, nil
	}
	if !e.daemon.Alive() {
		slog.Warn("daemon process died, falling back to legacy")
		e.degrade(ctx)
		return equity.Result{}, false, nil
	}

	e.setState(StateBusy)
	res, err := e.daemon.CalculateEquity(ctx, req)
	switch {
	case err == nil:
		e.setState(StateReady)
		return res, true, nil
	case errors.Is(err, ErrProcessExited), errors.Is(err, ErrDesynced):
		slog.Error("daemon lost, switching to legacy for good", "error", err)
		e.degrade(ctx)
		return equity.Result{}, false, nil
	case ctx.Err() != nil:
		e.setState(StateReady)
		return equity.Result{}, true, ctx.Err()
	default:
		slog.Warn("daemon request failed, falling back to legacy for this call", "error", err)
		e.setState(StateReady)
		return equity.Result{}, false, nil
	}
}

// degrade abandons the daemon. Callers hold e.mu.
func (e *Engine) degrade(ctx context.Context) {
	e.setState(StateDegraded)
	e.cleanup.Stop()
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ExitGrace)
	defer cancel()
	if err := e.daemon.Close(closeCtx); err != nil {
		slog.Warn("stopping lost daemon", "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	s := e.stats
	e.statsMu.Unlock()

	s.Mode = equity.ModeLegacy
	if st := e.State(); st == StateReady || st == StateBusy {
		s.Mode = equity.ModeDaemon
	}
	if ok := s.TotalCalls - s.Failures; ok > 0 {
		s.AvgLatency = s.TotalLatency / time.Duration(ok)
	}
	return s
}

// Close shuts the daemon down and returns the final counters. Further calls
// return the same snapshot.
func (e *Engine) Close(ctx context.Context) (Stats, error) {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.closed.Store(true)
		e.final = e.Stats()
		slog.Info("engine statistics",
			"mode", e.final.Mode,
			"total_calls", e.final.TotalCalls,
			"daemon_calls", e.final.DaemonCalls,
			"legacy_fallbacks", e.final.LegacyFallbacks,
			"failures", e.final.Failures,
			"avg_latency", e.final.AvgLatency)

		if e.daemon != nil && e.State() != StateDegraded {
			e.cleanup.Stop()
			err = multierr.Append(err, e.daemon.Close(ctx))
		}
		e.setState(StateDegraded)
		slog.Info("engine stopped")
	})
	return e.final, err
}
