package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AkatukiSora/vrpoker-advisor/internal/cards"
	"github.com/AkatukiSora/vrpoker-advisor/internal/equity"
)

var (
	ErrLegacyTimeout    = errors.New("legacy simulation timed out")
	ErrNoOutput         = errors.New("legacy simulation produced no output")
	ErrUnparsableOutput = errors.New("could not parse legacy simulation output")
)

// LegacyRunner runs the simulator once per request with positional
// arguments and scrapes the percentages from its text output.
type LegacyRunner struct {
	exe     string
	env     []string
	timeout time.Duration
}

func NewLegacyRunner(cfg Config) *LegacyRunner {
	cfg = cfg.withDefaults()
	return &LegacyRunner{exe: cfg.Executable, env: cfg.Env, timeout: cfg.LegacyTimeout}
}

func (r *LegacyRunner) CalculateEquity(ctx context.Context, req equity.Request) (equity.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	board, hole := cards.FormatList(req.Board), cards.FormatList(req.Hole)
	cmd := exec.CommandContext(runCtx, r.exe, board, hole, strconv.Itoa(req.Opponents))
	cmd.Dir = filepath.Dir(r.exe)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running legacy simulation", "board", board, "hole", hole, "opponents", req.Opponents)
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return equity.Result{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		slog.Error("legacy simulation timed out", "timeout", r.timeout)
		return equity.Result{}, fmt.Errorf("%w after %s", ErrLegacyTimeout, r.timeout)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		if cmd.ProcessState == nil {
			return equity.Result{}, fmt.Errorf("run simulator: %w", runErr)
		}
		return equity.Result{}, fmt.Errorf("%w (code: %d)", ErrNoOutput, cmd.ProcessState.ExitCode())
	}
	if stderr.Len() > 0 {
		slog.Debug("legacy simulation stderr", "stderr", strings.TrimSpace(stderr.String()))
	}

	win, tie, err := parseLegacyOutput(out)
	if err != nil {
		slog.Error("no parseable results in legacy output", "output", out)
		return equity.Result{}, err
	}
	return equity.Result{
		WinRate:              round2(win),
		TieRate:              round2(tie),
		LoseRate:             round2(math.Max(0, 100-win-tie)),
		SimulationsCompleted: req.Iterations,
		Mode:                 equity.ModeLegacy,
	}, nil
}

var decimalPattern = regexp.MustCompile(`\d+\.\d+`)

// parseLegacyOutput takes the first line holding two in-range decimals,
// skipping headers and the unknown-hand summary rows.
func parseLegacyOutput(out string) (win, tie float64, err error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "??") || strings.Contains(line, "Win %") || strings.Contains(line, "Hand") {
			continue
		}
		nums := decimalPattern.FindAllString(line, 2)
		if len(nums) < 2 {
			continue
		}
		w, err1 := strconv.ParseFloat(nums[0], 64)
		t, err2 := strconv.ParseFloat(nums[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if w >= 0 && w <= 100 && t >= 0 && t <= 100 {
			return w, t, nil
		}
	}
	return 0, 0, ErrUnparsableOutput
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
