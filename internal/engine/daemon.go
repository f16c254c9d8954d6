package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/AkatukiSora/vrpoker-advisor/internal/equity"
)

var (
	ErrExecutableNotFound  = errors.New("simulator executable not found")
	ErrLookupTableNotFound = errors.New("lookup table not found")
	ErrStartup             = errors.New("daemon startup failed")
	ErrProcessExited       = errors.New("daemon process exited")
	ErrReadTimeout         = errors.New("daemon read timed out")
	ErrEmptyResponse       = errors.New("daemon returned only empty lines")
	ErrProtocol            = errors.New("daemon protocol error")
	ErrDaemonError         = errors.New("daemon reported an error")
	ErrDesynced            = errors.New("daemon responses out of step")
)

// DaemonClient drives one long-lived simulator process over its stdin and
// stdout. Requests are serialized; each gets exactly one response line.
type DaemonClient struct {
	cfg Config

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	// owed counts requests whose response never arrived and may still be
	// sitting in the pipe.
	owed int

	lines chan string
	quit  chan struct{}
	done  chan struct{}
	// waitErr is written before done is closed.
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

func checkFiles(cfg Config) error {
	info, err := os.Stat(cfg.Executable)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrExecutableNotFound, cfg.Executable)
	}
	if _, err := os.Stat(cfg.LookupTable); err != nil {
		return fmt.Errorf("%w: %s", ErrLookupTableNotFound, cfg.LookupTable)
	}
	return nil
}

// StartDaemon spawns the simulator in daemon mode and waits for READY.
func StartDaemon(ctx context.Context, cfg Config) (*DaemonClient, error) {
	cfg = cfg.withDefaults()
	if err := checkFiles(cfg); err != nil {
		return nil, err
	}

	cmd := exec.Command(cfg.Executable, "--daemon")
	cmd.Dir = filepath.Dir(cfg.Executable)
	cmd.Env = append(os.Environ(), cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartup, err)
	}
	slog.Info("simulator daemon started", "pid", cmd.Process.Pid, "exe", cfg.Executable)

	d := &DaemonClient{
		cfg:   cfg,
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 16),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	stderrDone := make(chan struct{})
	go d.logStderr(stderr, stderrDone)
	go d.readStdout(stdout, stderrDone)

	if err := d.waitReady(ctx); err != nil {
		d.kill()
		return nil, err
	}
	slog.Info("simulator daemon ready", "pid", cmd.Process.Pid)
	return d, nil
}

func (d *DaemonClient) logStderr(r io.Reader, done chan<- struct{}) {
	defer close(done)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Debug("simulator stderr", "line", sc.Text())
	}
}

// readStdout feeds lines until EOF, then reaps the process.
func (d *DaemonClient) readStdout(r io.Reader, stderrDone <-chan struct{}) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case d.lines <- sc.Text():
		case <-d.quit:
		}
	}
	close(d.lines)
	<-stderrDone
	d.waitErr = d.cmd.Wait()
	close(d.done)
}

func (d *DaemonClient) waitReady(ctx context.Context) error {
	timer := time.NewTimer(d.cfg.StartupTimeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-d.lines:
			if !ok {
				<-d.done
				return fmt.Errorf("%w: process exited before READY: %v", ErrStartup, d.waitErr)
			}
			if strings.TrimSpace(line) == readyLine {
				return nil
			}
			slog.Debug("simulator output before ready", "line", line)
		case <-timer.C:
			return fmt.Errorf("%w: no READY within %s", ErrStartup, d.cfg.StartupTimeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrStartup, ctx.Err())
		}
	}
}

// Alive reports whether the process is still running.
func (d *DaemonClient) Alive() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Pid of the simulator process.
func (d *DaemonClient) Pid() int { return d.cmd.Process.Pid }

// CalculateEquity sends one CALC command and reads its response. The request
// must already be valid.
func (d *DaemonClient) CalculateEquity(ctx context.Context, req equity.Request) (equity.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.Alive() {
		return equity.Result{}, ErrProcessExited
	}
	cmdLine := encodeCalc(req)
	slog.Debug("sending to daemon", "command", strings.TrimSpace(cmdLine))
	if _, err := io.WriteString(d.stdin, cmdLine); err != nil {
		return equity.Result{}, fmt.Errorf("%w: write: %v", ErrProcessExited, err)
	}

	resp, err := d.readResponse(ctx)
	if err != nil {
		return equity.Result{}, err
	}
	if resp.kind == kindError {
		return equity.Result{}, fmt.Errorf("%w: %s", ErrDaemonError, resp.errorMessage())
	}
	return resp.result(req)
}

// readResponse returns the conforming line answering the request just sent.
// Late answers to timed-out requests are dropped first; one non-conforming
// line is tolerated before the answer.
func (d *DaemonClient) readResponse(ctx context.Context) (response, error) {
	smelled := false
	for {
		line, err := d.readLine(ctx)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) || (ctx.Err() != nil && !errors.Is(err, ErrProcessExited)) {
				d.owed++
				if d.owed > d.cfg.MaxOwedResponses {
					return response{}, fmt.Errorf("%w: %d responses owed: %w", ErrDesynced, d.owed, err)
				}
			}
			return response{}, err
		}

		resp := classify(line)
		if resp.kind.conforming() {
			if d.owed > 0 {
				d.owed--
				slog.Debug("dropping late daemon response", "line", resp.raw, "still_owed", d.owed)
				continue
			}
			return resp, nil
		}
		if smelled {
			return response{}, fmt.Errorf("%w: second non-conforming line %q", ErrProtocol, resp.raw)
		}
		smelled = true
		if resp.kind == kindMarker {
			slog.Info("daemon sent marker line, reading actual result", "line", resp.raw)
		} else {
			slog.Warn("protocol smell: non-conforming daemon line, reading one more", "kind", resp.kind.String(), "line", resp.raw)
		}
	}
}

var errEmptyLine = errors.New("empty line")

// readLine waits for one non-empty line. Empty lines are retried with a
// constant backoff; the whole read is bounded by ReadTimeout.
func (d *DaemonClient) readLine(ctx context.Context) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, d.cfg.ReadTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(uint64(d.cfg.ReadAttempts-1), retry.NewConstant(d.cfg.RetryBackoff))
	var line string
	err := retry.Do(readCtx, backoff, func(ctx context.Context) error {
		select {
		case l, ok := <-d.lines:
			if !ok {
				return ErrProcessExited
			}
			if strings.TrimSpace(l) == "" {
				return retry.RetryableError(errEmptyLine)
			}
			line = l
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	switch {
	case err == nil:
		slog.Debug("received from daemon", "line", truncate(line, 100))
		return line, nil
	case errors.Is(err, errEmptyLine):
		return "", fmt.Errorf("%w: %d attempts", ErrEmptyResponse, d.cfg.ReadAttempts)
	case errors.Is(err, ErrProcessExited):
		return "", err
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return "", fmt.Errorf("%w after %s", ErrReadTimeout, d.cfg.ReadTimeout)
	default:
		return "", err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close asks the daemon to exit and kills it if it has not gone within
// ExitGrace or before ctx ends. Safe to call more than once.
func (d *DaemonClient) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		close(d.quit)
		if d.Alive() {
			if _, err := io.WriteString(d.stdin, exitCommand); err != nil {
				d.closeErr = multierr.Append(d.closeErr, fmt.Errorf("send exit: %w", err))
			}
		}
		if err := d.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			d.closeErr = multierr.Append(d.closeErr, fmt.Errorf("close stdin: %w", err))
		}

		timer := time.NewTimer(d.cfg.ExitGrace)
		defer timer.Stop()
		select {
		case <-d.done:
			slog.Info("simulator daemon exited", "pid", d.Pid())
			return
		case <-timer.C:
		case <-ctx.Done():
		}
		slog.Warn("simulator daemon did not exit, killing", "pid", d.Pid())
		if err := d.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			d.closeErr = multierr.Append(d.closeErr, fmt.Errorf("kill daemon: %w", err))
		}
		<-d.done
	})
	return d.closeErr
}

// kill stops the process without the EXIT handshake.
func (d *DaemonClient) kill() {
	d.closeOnce.Do(func() {
		close(d.quit)
		_ = d.stdin.Close()
		_ = d.cmd.Process.Kill()
		<-d.done
	})
}
