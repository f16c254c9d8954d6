// Package watcher tails the game-state feed file and hands complete lines to
// a callback.
package watcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback re-read period when no fs event fires.
const DefaultPollInterval = 500 * time.Millisecond

// Batch is a run of complete lines read in one pass.
type Batch struct {
	Lines []string
	// StartLine is the 1-based number of Lines[0] within the file.
	StartLine   int64
	StartOffset int64
	// EndOffset is the byte after the last newline consumed.
	EndOffset int64
}

// NextLine is the line number following the batch.
func (b Batch) NextLine() int64 { return b.StartLine + int64(len(b.Lines)) }

type Config struct {
	PollInterval time.Duration
	OnNewData    func(b Batch)
	// OnReset fires when the file shrank and reading restarts at offset 0.
	OnReset func()
	OnError func(err error)
}

// FeedWatcher follows one append-only JSON-lines file. A trailing line
// without a newline is left unread until its newline arrives.
type FeedWatcher struct {
	Path      string
	cleanPath string
	cfg       Config

	watcher  *fsnotify.Watcher
	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	readMu sync.Mutex
	mu     sync.Mutex
	offset int64
	line   int64
}

func NewFeedWatcher(path string, cfg Config) (*FeedWatcher, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &FeedWatcher{
		Path:      path,
		cleanPath: filepath.Clean(path),
		cfg:       cfg,
		watcher:   w,
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		line:      1,
	}, nil
}

// SetPosition sets where reading resumes. line is the 1-based number of the
// line starting at offset.
func (fw *FeedWatcher) SetPosition(offset, line int64) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.offset = offset
	fw.line = max(line, 1)
}

// Position returns the next unread byte offset and line number.
func (fw *FeedWatcher) Position() (offset, line int64) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.offset, fw.line
}

// SkipToEnd positions the watcher after the last complete line currently in
// the file, so only snapshots written from now on are reported.
func (fw *FeedWatcher) SkipToEnd() error {
	fw.readMu.Lock()
	defer fw.readMu.Unlock()

	data, err := os.ReadFile(fw.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	end := bytes.LastIndexByte(data, '\n') + 1
	fw.SetPosition(int64(end), int64(bytes.Count(data[:end], []byte{'\n'}))+1)
	return nil
}

// Start reads what is already available from the current position and then
// follows the file until Stop.
func (fw *FeedWatcher) Start() error {
	slog.Info("Feed watcher starting", "path", fw.Path)
	dir := filepath.Dir(fw.Path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	if err := fw.readNewContent(); err != nil {
		fw.reportError(err)
	}
	fw.started.Store(true)
	go fw.watchLoop()
	return nil
}

// Stop ends watching and waits for an in-flight callback to return.
func (fw *FeedWatcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.done)
		_ = fw.watcher.Close()
		if fw.started.Load() {
			<-fw.loopDone
		}
		slog.Info("Feed watcher stopped", "path", fw.Path)
	})
}

func (fw *FeedWatcher) watchLoop() {
	defer close(fw.loopDone)
	ticker := time.NewTicker(fw.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.cleanPath {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				slog.Info("Feed file moved away, waiting for a new one", "path", fw.Path)
				fw.reset()
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := fw.readNewContent(); err != nil {
					fw.reportError(err)
				}
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.reportError(err)
		case <-ticker.C:
			if err := fw.readNewContent(); err != nil {
				fw.reportError(err)
			}
		}
	}
}

func (fw *FeedWatcher) reset() {
	fw.SetPosition(0, 1)
	if fw.cfg.OnReset != nil {
		fw.cfg.OnReset()
	}
}

func (fw *FeedWatcher) reportError(err error) {
	if fw.cfg.OnError != nil {
		fw.cfg.OnError(err)
		return
	}
	slog.Warn("Feed watcher error", "path", fw.Path, "error", err)
}

func (fw *FeedWatcher) readNewContent() error {
	fw.readMu.Lock()
	defer fw.readMu.Unlock()

	f, err := os.Open(fw.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	start, line := fw.Position()
	if info.Size() < start {
		slog.Info("Feed file truncated, restarting from the top", "path", fw.Path, "size", info.Size(), "offset", start)
		fw.reset()
		start, line = 0, 1
	}
	if info.Size() == start {
		return nil
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-start))
	if err != nil {
		return err
	}
	complete := bytes.LastIndexByte(data, '\n') + 1
	if complete == 0 {
		return nil
	}

	raw := bytes.Split(data[:complete-1], []byte{'\n'})
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(bytes.TrimSuffix(l, []byte{'\r'}))
	}
	b := Batch{Lines: lines, StartLine: line, StartOffset: start, EndOffset: start + int64(complete)}
	fw.SetPosition(b.EndOffset, b.NextLine())

	slog.Debug("New feed data", "path", fw.Path, "lines", len(lines))
	if fw.cfg.OnNewData != nil {
		fw.cfg.OnNewData(b)
	}
	return nil
}
