package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CTAG07/Quire/pkg/site"
	"github.com/fsnotify/fsnotify"
)

// Watcher rebuilds the site when files under the source root change. Events
// are batched until the tree has been quiet for the configured delay.
type Watcher struct {
	app     *site.App
	builder *Builder
	logger  *slog.Logger
	delay   time.Duration
	watcher *fsnotify.Watcher
}

// NewWatcher watches every directory under the app's source root except the
// build root and dot directories.
func NewWatcher(app *site.App, builder *Builder, logger *slog.Logger, delay time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		app:     app,
		builder: builder,
		logger:  logger,
		delay:   delay,
		watcher: fw,
	}
	if err = w.addTree(app.SourceRoot); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) skipped(path string) bool {
	if path == w.app.BuildRoot || strings.HasPrefix(path, w.app.BuildRoot+string(filepath.Separator)) {
		return true
	}
	return path != w.app.SourceRoot && strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The directory may be gone by the time a create event is handled.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run handles events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	pending := 0

	w.logger.Info("Watching for changes", "source_root", w.app.SourceRoot)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.skipped(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err = w.addTree(event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			w.logger.Debug("Source changed", "path", w.app.RelativePath(event.Name), "op", event.Op.String())
			pending++
			timer.Reset(w.delay)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", "error", err)
		case <-timer.C:
			w.logger.Info("Rebuilding after changes", "events", pending)
			pending = 0
			result, err := w.builder.Build(false)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("Watch build failed", "build", result.ID, "error", err)
			}
		}
	}
}
