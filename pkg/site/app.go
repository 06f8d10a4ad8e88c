package site

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// App is the build host. It resolves paths between the source and build
// roots, owns the stores, and runs builds through its processors.
// All methods are concurrent-safe; builds are serialized.
type App struct {
	SourceRoot string
	BuildRoot  string
	Sources    SourceStore
	Contexts   ContextStore

	logger     *slog.Logger
	config     Config
	processors []Processor
	mu         sync.Mutex
}

// NewApp creates an App for the given configuration and instantiates every
// processor named in config.Processors from the registry.
func NewApp(logger *slog.Logger, config Config, sources SourceStore, contexts ContextStore) (*App, error) {
	sourceRoot, err := filepath.Abs(config.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root: %w", err)
	}
	buildRoot, err := filepath.Abs(config.BuildRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve build root: %w", err)
	}
	if sourceRoot == buildRoot {
		return nil, fmt.Errorf("source root and build root must differ: %s", sourceRoot)
	}

	app := &App{
		SourceRoot: sourceRoot,
		BuildRoot:  buildRoot,
		Sources:    sources,
		Contexts:   contexts,
		logger:     logger,
		config:     config,
	}

	for _, name := range config.Processors {
		factory, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown processor %q (registered: %s)", name, strings.Join(Registered(), ", "))
		}
		proc, err := factory(app)
		if err != nil {
			return nil, fmt.Errorf("failed to create processor %q: %w", name, err)
		}
		app.processors = append(app.processors, proc)
	}

	logger.Info("Site initialized",
		"source_root", sourceRoot,
		"build_root", buildRoot,
		"processors", config.Processors)
	return app, nil
}

// AddProcessor appends a processor after the configured ones.
func (a *App) AddProcessor(p Processor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processors = append(a.processors, p)
}

// Logger returns the app's logger so processors can log under it.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// ProcessorFor returns the first processor that accepts path, or nil.
func (a *App) ProcessorFor(path string) Processor {
	for _, p := range a.processors {
		if p.CanProcess(path) {
			return p
		}
	}
	return nil
}

// Processor returns the enabled processor with the given name, or nil.
func (a *App) Processor(name string) Processor {
	for _, p := range a.processors {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// SourcePath resolves a name relative to the source root. Absolute paths are
// returned cleaned.
func (a *App) SourcePath(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(a.SourceRoot, filepath.FromSlash(name))
}

// TargetPath maps a source path to the same relative location under the
// build root.
func (a *App) TargetPath(source string) string {
	if rel, ok := within(a.SourceRoot, source); ok {
		return filepath.Join(a.BuildRoot, rel)
	}
	return filepath.Join(a.BuildRoot, filepath.Base(source))
}

// RelativePath returns path relative to the build root, or to the source
// root, in slash form. Paths outside both roots are returned unchanged.
func (a *App) RelativePath(path string) string {
	for _, root := range []string{a.BuildRoot, a.SourceRoot} {
		if rel, ok := within(root, path); ok {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// URL returns the site-absolute URL of a generated target.
func (a *App) URL(target string) string {
	return "/" + a.RelativePath(target)
}

func within(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
