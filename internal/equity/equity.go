// Package equity defines equity requests and results, their validation, and a
// thin calculator that delegates simulation to a pluggable Backend.
package equity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
)

const (
	DefaultOpponents  = 1
	DefaultIterations = 10000

	MinOpponents  = 1
	MaxOpponents  = 8
	MinIterations = 100
	MaxIterations = 1_000_000
)

var (
	ErrHoleCards          = errors.New("need exactly 2 hole cards")
	ErrBoardSize          = errors.New("board cannot have more than 5 cards")
	ErrOpponents          = errors.New("opponents must be between 1 and 8")
	ErrIterations         = errors.New("iterations out of range")
	ErrDuplicateCard      = errors.New("duplicate card")
	ErrInvalidResult      = errors.New("invalid equity result")
	ErrBackendUnavailable = errors.New("equity backend not available")
)

// Mode names the path that produced a Result.
type Mode string

const (
	ModeDaemon Mode = "daemon"
	ModeLegacy Mode = "legacy"
)

type Request struct {
	Hole       []cards.Card
	Board      []cards.Card
	Opponents  int
	Iterations int
}

// Result rates are percentages.
type Result struct {
	WinRate              float64 `json:"win_rate"`
	TieRate              float64 `json:"tie_rate"`
	LoseRate             float64 `json:"lose_rate"`
	SimulationsCompleted int     `json:"simulations_completed"`
	Mode                 Mode    `json:"calculation_mode"`
}

// Backend runs the simulation for an already validated request.
type Backend interface {
	CalculateEquity(ctx context.Context, req Request) (Result, error)
}

// ValidationError reports which part of a Request was rejected.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks a request before any simulator I/O happens.
func Validate(req Request) error {
	if len(req.Hole) != 2 {
		return invalid(ErrHoleCards, "got %d", len(req.Hole))
	}
	if len(req.Board) > 5 {
		return invalid(ErrBoardSize, "got %d", len(req.Board))
	}
	if req.Opponents < MinOpponents || req.Opponents > MaxOpponents {
		return invalid(ErrOpponents, "got %d", req.Opponents)
	}
	if req.Iterations < MinIterations || req.Iterations > MaxIterations {
		return invalid(ErrIterations, "got %d, want %d..%d", req.Iterations, MinIterations, MaxIterations)
	}
	all := make([]cards.Card, 0, len(req.Hole)+len(req.Board))
	all = append(all, req.Hole...)
	all = append(all, req.Board...)
	for _, c := range all {
		if !c.IsValid() {
			return invalid(cards.ErrInvalidCard, "%v", c)
		}
	}
	if dup, ok := cards.HasDuplicates(all...); ok {
		return invalid(ErrDuplicateCard, "%s", dup)
	}
	return nil
}

// rateEpsilon absorbs floating point noise just below zero.
const rateEpsilon = 0.01

// NormalizeRates clamps tiny negatives to zero and rejects rates outside
// [0,100] or whose sum is not within one point of 100.
func NormalizeRates(win, tie, lose float64) (Result, error) {
	rates := [3]*float64{&win, &tie, &lose}
	for _, r := range rates {
		if math.IsNaN(*r) || math.IsInf(*r, 0) {
			return Result{}, fmt.Errorf("%w: non-finite rate", ErrInvalidResult)
		}
		if *r >= -rateEpsilon && *r < 0 {
			slog.Debug("clamping near-zero rate", "rate", *r)
			*r = 0
		}
		if *r < 0 || *r > 100 {
			return Result{}, fmt.Errorf("%w: win=%.2f tie=%.2f lose=%.2f", ErrInvalidResult, win, tie, lose)
		}
	}
	if sum := win + tie + lose; sum < 99 || sum > 101 {
		return Result{}, fmt.Errorf("%w: rates sum to %.2f", ErrInvalidResult, sum)
	}
	return Result{WinRate: win, TieRate: tie, LoseRate: lose}, nil
}

// Calculator validates requests and hands them to its backend.
type Calculator struct {
	backend Backend
}

func NewCalculator(backend Backend) *Calculator {
	if backend == nil {
		slog.Warn("no equity backend configured, equity calculations disabled")
	}
	return &Calculator{backend: backend}
}

// Calculate fills in default opponents and iterations, validates and
// delegates.
func (c *Calculator) Calculate(ctx context.Context, req Request) (Result, error) {
	if req.Opponents == 0 {
		req.Opponents = DefaultOpponents
	}
	if req.Iterations == 0 {
		req.Iterations = DefaultIterations
	}
	if err := Validate(req); err != nil {
		return Result{}, err
	}
	if c == nil || c.backend == nil {
		return Result{}, ErrBackendUnavailable
	}
	return c.backend.CalculateEquity(ctx, req)
}
