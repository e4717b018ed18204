package toolfile

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
)

const defaultDebounce = 100 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watcher)

// WithWatchLogger sets the logger used to report reloads and load failures.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDebounce sets how long changes settle before files are reloaded.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReady installs a callback invoked once the watches are in place and the
// initial load has been registered.
func WithReady(fn func()) WatchOption {
	return func(w *watcher) { w.ready = fn }
}

type watcher struct {
	reg      *mcpservice.Registry
	root     string
	pattern  string
	log      *slog.Logger
	debounce time.Duration
	ready    func()
}

// Watch loads every file under root matching pattern into reg and then keeps
// reg current as matching files are created or rewritten, until ctx is done.
// Tools are only ever added or replaced; deleting a file leaves its tools
// registered. Files that fail to load are logged and skipped.
func Watch(ctx context.Context, reg *mcpservice.Registry, root, pattern string, opts ...WatchOption) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("toolfile: invalid pattern %q", pattern)
	}
	wt := &watcher{
		reg:      reg,
		root:     root,
		pattern:  pattern,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(wt)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("toolfile: watch %s: %w", root, err)
	}
	defer func() {
		_ = w.Close()
	}()

	// Recursively add all directories under the root.
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.Add(p)
	})
	if err != nil {
		return fmt.Errorf("toolfile: watch %s: %w", root, err)
	}

	// Initial load happens after the watches are in place so no write is missed.
	tools, err := LoadGlob(root, pattern)
	if err != nil {
		wt.log.WarnContext(ctx, "toolfile.load.fail", slog.String("err", err.Error()))
	}
	wt.register(ctx, tools)
	wt.log.InfoContext(ctx, "toolfile.load.ok", slog.String("dir", root), slog.Int("tools", len(tools)))
	if wt.ready != nil {
		wt.ready()
	}

	pending := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
					continue
				}
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if wt.matches(ev.Name) {
					wt.log.InfoContext(ctx, "toolfile.removed", slog.String("path", ev.Name))
				}
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !wt.matches(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			if flush == nil {
				flush = time.After(wt.debounce)
			}
		case <-flush:
			flush = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)
			for _, p := range paths {
				wt.reload(ctx, p)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			wt.log.WarnContext(ctx, "toolfile.watch.error", slog.String("err", err.Error()))
		}
	}
}

func (wt *watcher) matches(path string) bool {
	rel, err := filepath.Rel(wt.root, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(wt.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func (wt *watcher) reload(ctx context.Context, path string) {
	tools, err := LoadFile(path)
	if err != nil {
		wt.log.WarnContext(ctx, "toolfile.load.fail", slog.String("path", path), slog.String("err", err.Error()))
		return
	}
	wt.log.InfoContext(ctx, "toolfile.reload", slog.String("path", path), slog.Int("tools", len(tools)))
	wt.register(ctx, tools)
}

func (wt *watcher) register(ctx context.Context, tools []mcpservice.StaticTool) {
	for _, t := range tools {
		wt.reg.Register(t)
		wt.log.DebugContext(ctx, "toolfile.register", slog.String("tool", t.Name()))
	}
}
