package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var skippedDirs = map[string]struct{}{
	"vendor":       {},
	"node_modules": {},
	"testdata":     {},
}

// Watcher reports debounced source changes below a set of directories.
type Watcher struct {
	fsw      *fsnotify.Watcher
	exts     map[string]struct{}
	debounce time.Duration
	logger   *zap.Logger
	changes  chan struct{}
}

// NewWatcher registers every directory below dirs, skipping hidden and
// dependency directories. Only files whose extension is listed in exts count
// as changes; an empty exts matches every file.
func NewWatcher(dirs, exts []string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no directories to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		exts:     make(map[string]struct{}, len(exts)),
		debounce: debounce,
		logger:   logger,
		changes:  make(chan struct{}, 1),
	}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.exts[ext] = struct{}{}
	}

	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Changes receives one value per debounced burst of matching events.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close releases the underlying file watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run consumes file system events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				w.watchIfDir(event.Name)
			}
			if !w.matches(event) {
				continue
			}
			w.logger.Debug("source changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	// Editor swap and lock files are hidden; .env is the one dotfile we care about.
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") && base != ".env" {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	_, ok := w.exts[strings.ToLower(filepath.Ext(base))]
	return ok
}

func (w *Watcher) watchIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	_, ok := skippedDirs[name]
	return ok
}
