package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/AkatukiSora/vrpoker-advisor/internal/analysis"
	"github.com/AkatukiSora/vrpoker-advisor/internal/application"
	"github.com/AkatukiSora/vrpoker-advisor/internal/applog"
	"github.com/AkatukiSora/vrpoker-advisor/internal/config"
	"github.com/AkatukiSora/vrpoker-advisor/internal/gamestate"
	"github.com/AkatukiSora/vrpoker-advisor/internal/render"
)

var (
	version   = "dev"
	commit    = "local"
	buildDate = "unknown"
)

type options struct {
	configPath string
	state      string
	watch      bool
	feed       string
	jsonOut    bool
	history    int
	debug      bool
	version    bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "TOML config file")
	flag.StringVar(&o.state, "state", "", "analyse one game-state JSON line and exit (\"-\" reads lines from stdin)")
	flag.BoolVar(&o.watch, "watch", false, "follow the game-state feed file")
	flag.StringVar(&o.feed, "feed", "", "feed file path (overrides config)")
	flag.BoolVar(&o.jsonOut, "json", false, "print results as JSON lines")
	flag.IntVar(&o.history, "history", 0, "show the last N engine sessions and exit")
	flag.BoolVar(&o.debug, "debug", false, "debug logging")
	flag.BoolVar(&o.version, "version", false, "print version and exit")
	flag.Parse()
	return o
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()
	if opts.version {
		fmt.Printf("vrpoker-advisor %s (%s, built %s)\n", version, commit, buildDate)
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if opts.feed != "" {
		cfg.Feed.Path = opts.feed
	}
	cfg.Debug = cfg.Debug || opts.debug

	logFile := applog.Init(applog.Options{Debug: cfg.Debug})
	defer logFile.Close()
	if opts.jsonOut {
		pterm.DisableStyling()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func() (*application.Service, error) { return application.Open(ctx, cfg) }
	if opts.history > 0 {
		open = func() (*application.Service, error) { return application.OpenStorage(cfg) }
	}
	svc, err := open()
	if err != nil {
		slog.Error("Failed to start advisor", "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Simulator.ExitGrace+time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			slog.Warn("Shutdown incomplete", "error", err)
		}
	}()

	switch {
	case opts.history > 0:
		err = showHistory(ctx, svc, opts.history)
	case opts.watch:
		err = watch(ctx, svc, opts.jsonOut)
	case opts.state == "-":
		err = analyseStream(ctx, svc, os.Stdin, opts.jsonOut)
	case opts.state != "":
		err = analyseOne(ctx, svc, []byte(opts.state), opts.jsonOut)
	default:
		flag.Usage()
		return 2
	}
	if err != nil {
		slog.Error("Advisor failed", "error", err)
		return 1
	}
	if !opts.jsonOut && opts.history == 0 {
		pterm.Println(render.EngineStats(svc.EngineStats()))
	}
	return 0
}

func analyseOne(ctx context.Context, svc *application.Service, line []byte, jsonOut bool) error {
	g, res, err := svc.AnalyzeLine(ctx, line)
	if err != nil {
		return err
	}
	return emit(os.Stdout, g, res, jsonOut)
}

func analyseStream(ctx context.Context, svc *application.Service, r io.Reader, jsonOut bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		g, res, err := svc.AnalyzeLine(ctx, []byte(line))
		if errors.Is(err, gamestate.ErrInvalidState) {
			slog.Warn("Skipping invalid snapshot", "error", err)
			continue
		}
		if err != nil {
			return err
		}
		if err := emit(os.Stdout, g, res, jsonOut); err != nil {
			return err
		}
	}
	return sc.Err()
}

func watch(ctx context.Context, svc *application.Service, jsonOut bool) error {
	if !jsonOut {
		pterm.Info.Println("Watching game-state feed. Press Ctrl+C to stop.")
	}
	return svc.Watch(ctx, "", func(u application.Update) {
		if err := emit(os.Stdout, u.State, u.Result, jsonOut); err != nil {
			slog.Warn("Failed to print result", "error", err)
		}
	})
}

func showHistory(ctx context.Context, svc *application.Service, limit int) error {
	sessions, totals, err := svc.History(ctx, limit)
	if err != nil {
		return err
	}
	pterm.Println(render.History(sessions, totals, time.Now()))
	return nil
}

type jsonLine struct {
	FrameHash string `json:"frame_hash,omitempty"`
	analysis.Result
}

func emit(w io.Writer, g gamestate.GameState, res analysis.Result, jsonOut bool) error {
	if jsonOut {
		return json.NewEncoder(w).Encode(jsonLine{FrameHash: g.FrameHash, Result: res})
	}
	_, err := fmt.Fprintln(w, render.Analysis(g, res))
	return err
}
