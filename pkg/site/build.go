package site

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildResult summarizes a build run.
type BuildResult struct {
	ID        string        `json:"id"`
	Processed []string      `json:"processed"`
	Removed   []string      `json:"removed"`
	Failed    []string      `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Build brings the build root up to date with the source root. Only sources
// that changed since the last build are processed, together with the sources
// that depend on them through templates or through context lookups.
func (a *App) Build(ctx context.Context) (BuildResult, error) {
	return a.build(ctx, false)
}

// Rebuild processes every source regardless of recorded state.
func (a *App) Rebuild(ctx context.Context) (BuildResult, error) {
	return a.build(ctx, true)
}

func (a *App) build(ctx context.Context, force bool) (BuildResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	result := BuildResult{ID: uuid.NewString()}
	logger := a.logger.With("build", result.ID)
	logger.Info("Starting build", "force", force)

	current, err := a.scan()
	if err != nil {
		return result, fmt.Errorf("failed to scan source root: %w", err)
	}

	stored, err := a.Sources.ListSources(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list stored sources: %w", err)
	}
	storedByPath := make(map[string]Source, len(stored))
	for _, src := range stored {
		storedByPath[src.Path] = src
	}

	changed := map[string]struct{}{}
	for path, src := range current {
		old, ok := storedByPath[path]
		if force || !ok || old.Size != src.Size || !old.Modified.Equal(src.Modified) {
			changed[path] = struct{}{}
		}
	}
	for path := range storedByPath {
		if _, ok := current[path]; !ok {
			result.Removed = append(result.Removed, path)
		}
	}
	sort.Strings(result.Removed)

	// Contexts published before this build: pages that looked them up must be
	// refreshed if the publisher changes or goes away.
	requests := map[ContextRequest]struct{}{}
	for _, path := range append(sortedKeys(changed), result.Removed...) {
		if err = a.collectContexts(ctx, path, requests); err != nil {
			return result, err
		}
	}

	for _, path := range result.Removed {
		if err = a.removeSource(ctx, path); err != nil {
			return result, err
		}
		logger.Debug("Source removed", "path", path)
	}

	affected := make(map[string]struct{}, len(changed))
	queue := append(sortedKeys(changed), result.Removed...)
	for _, path := range queue {
		if _, ok := current[path]; ok {
			affected[path] = struct{}{}
		}
	}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		dependents, err := a.Sources.GetDependents(ctx, path)
		if err != nil {
			return result, fmt.Errorf("failed to get dependents of %s: %w", path, err)
		}
		for _, dep := range dependents {
			if _, ok := current[dep]; !ok {
				continue
			}
			if _, seen := affected[dep]; seen {
				continue
			}
			affected[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}

	// Stats are recorded up front so processors can read size and mtime of
	// every source, including ones first seen in this build. A build that
	// stops early clears them again for every source it did not generate.
	generated := map[string]struct{}{}
	finished := false
	defer func() {
		if !finished {
			a.resetSources(context.WithoutCancel(ctx), logger, affected, generated)
		}
	}()
	for path := range affected {
		if err = a.Sources.SetSource(ctx, current[path]); err != nil {
			return result, fmt.Errorf("failed to record source %s: %w", path, err)
		}
	}

	var errs []error
	failed := map[string]struct{}{}
	fail := func(path string, err error) {
		logger.Error("Failed to process source", "path", path, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", a.RelativePath(path), err))
		failed[path] = struct{}{}
	}

	prepared := map[string]struct{}{}
	prepare := func(path string) {
		prepared[path] = struct{}{}
		proc := a.ProcessorFor(path)
		if proc == nil {
			logger.Debug("No processor for source", "path", path)
			return
		}
		if err := proc.Prepare(ctx, path); err != nil {
			fail(path, err)
		}
	}
	for _, path := range sortedKeys(affected) {
		if err = ctx.Err(); err != nil {
			return result, err
		}
		prepare(path)
	}

	for _, path := range sortedKeys(changed) {
		if err = a.collectContexts(ctx, path, requests); err != nil {
			return result, err
		}
	}
	for _, req := range sortedRequests(requests) {
		dependents, err := a.Contexts.GetContextDependents(ctx, req.Name, req.Value)
		if err != nil {
			return result, fmt.Errorf("failed to get context dependents of %s=%s: %w", req.Name, req.Value, err)
		}
		for _, dep := range dependents {
			if _, ok := current[dep]; !ok {
				continue
			}
			if _, seen := affected[dep]; seen {
				continue
			}
			affected[dep] = struct{}{}
			if err = a.Sources.SetSource(ctx, current[dep]); err != nil {
				return result, fmt.Errorf("failed to record source %s: %w", dep, err)
			}
			prepare(dep)
		}
	}

	for _, path := range sortedKeys(affected) {
		if err = ctx.Err(); err != nil {
			return result, err
		}
		if _, ok := failed[path]; ok {
			continue
		}
		if proc := a.ProcessorFor(path); proc != nil {
			if err := proc.Generate(ctx, path); err != nil {
				fail(path, err)
				continue
			}
		}
		generated[path] = struct{}{}
	}
	finished = true

	// Failed sources get their stats cleared so the next build retries them.
	for path := range failed {
		if err = a.Sources.SetSource(ctx, Source{Path: path}); err != nil {
			logger.Error("Failed to mark source for retry", "path", path, "error", err)
		}
		result.Failed = append(result.Failed, path)
	}
	sort.Strings(result.Failed)

	result.Processed = sortedKeys(affected)
	result.Duration = time.Since(start)
	logger.Info("Build finished",
		slog.Int("processed", len(result.Processed)),
		slog.Int("removed", len(result.Removed)),
		slog.Int("failed", len(result.Failed)),
		slog.Duration("duration", result.Duration))

	return result, errors.Join(errs...)
}

// resetSources clears the recorded stats of every affected source that was
// not generated, so the next build processes it again.
func (a *App) resetSources(ctx context.Context, logger *slog.Logger, affected, generated map[string]struct{}) {
	for _, path := range sortedKeys(affected) {
		if _, ok := generated[path]; ok {
			continue
		}
		if err := a.Sources.SetSource(ctx, Source{Path: path}); err != nil {
			logger.Error("Failed to mark source for retry", "path", path, "error", err)
		}
	}
}

// scan walks the source root and returns the current stats of every source.
func (a *App) scan() (map[string]Source, error) {
	sources := map[string]Source{}
	err := filepath.WalkDir(a.SourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == a.SourceRoot {
			return nil
		}
		if d.IsDir() {
			if path == a.BuildRoot || a.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if a.ignored(d.Name()) || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sources[path] = Source{Path: path, Size: info.Size(), Modified: info.ModTime().UTC()}
		return nil
	})
	return sources, err
}

func (a *App) ignored(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range a.config.Ignore {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// removeSource deletes a vanished source's generated files and every record
// that refers to it.
func (a *App) removeSource(ctx context.Context, path string) error {
	targets, err := a.Sources.GetTargets(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to get targets of %s: %w", path, err)
	}
	for _, target := range targets {
		if err = os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove target %s: %w", target, err)
		}
	}
	if err = a.Contexts.RemoveContext(ctx, path); err != nil {
		return fmt.Errorf("failed to remove contexts of %s: %w", path, err)
	}
	if err = a.Contexts.ClearDependencies(ctx, path); err != nil {
		return fmt.Errorf("failed to clear context dependencies of %s: %w", path, err)
	}
	if err = a.Sources.RemoveSource(ctx, path); err != nil {
		return fmt.Errorf("failed to remove source %s: %w", path, err)
	}
	return nil
}

func (a *App) collectContexts(ctx context.Context, path string, into map[ContextRequest]struct{}) error {
	contexts, err := a.Contexts.GetSourceContexts(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to get contexts of %s: %w", path, err)
	}
	for _, c := range contexts {
		into[ContextRequest{Name: c.Name, Value: c.Value}] = struct{}{}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRequests(set map[ContextRequest]struct{}) []ContextRequest {
	reqs := make([]ContextRequest, 0, len(set))
	for r := range set {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Name != reqs[j].Name {
			return reqs[i].Name < reqs[j].Name
		}
		return reqs[i].Value < reqs[j].Value
	})
	return reqs
}
