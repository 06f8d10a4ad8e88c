package jinja

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/nikolalohinski/gonja"
	gonjacfg "github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/exec"

	"github.com/CTAG07/Quire/pkg/site"
)

// Name is the registry name of the processor.
const Name = "jinja"

type pending struct {
	target   string
	template *exec.Template
}

// Processor compiles Jinja templates from the source root into the build
// root. It is safe for concurrent use. Statement hooks also run when a render
// parses an included template, so the state of files being prepared is kept
// by name under its own lock.
type Processor struct {
	app     *site.App
	config  Config
	env     *gonja.Environment
	logger  *slog.Logger
	pending map[string]pending
	mu      sync.Mutex

	parses  map[string]*parseState
	parseMu sync.Mutex
}

// Factory returns a site.Factory for the registry. config is called each
// time a processor is created, so reloaded settings apply to new apps.
func Factory(config func() Config) site.Factory {
	return func(app *site.App) (site.Processor, error) {
		return New(app, config())
	}
}

// New creates a Processor whose templates load from app's source root.
func New(app *site.App, cfg Config) (*Processor, error) {
	cfg = cfg.withDefaults()

	loader, err := newSourceLoader(app.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create template loader: %w", err)
	}
	envConfig := gonjacfg.NewConfig()
	envConfig.Autoescape = cfg.Autoescape
	envConfig.StrictUndefined = cfg.StrictUndefined

	p := &Processor{
		app:     app,
		config:  cfg,
		env:     gonja.NewEnvironment(envConfig, loader),
		logger:  app.Logger().With("processor", Name),
		pending: map[string]pending{},
		parses:  map[string]*parseState{},
	}

	if err = p.installStatements(); err != nil {
		return nil, fmt.Errorf("failed to install statements: %w", err)
	}
	if err = p.installFilters(); err != nil {
		return nil, fmt.Errorf("failed to install filters: %w", err)
	}
	// Renders outside a build see the store without a request context.
	p.env.Globals.Set(cfg.ContextFunc, p.contextFunc(context.Background()))

	return p, nil
}

func (p *Processor) Name() string { return Name }

// CanProcess reports whether path has one of the configured extensions.
func (p *Processor) CanProcess(path string) bool {
	for _, ext := range p.config.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// TargetPath returns the file a source renders to. It keeps the source's
// relative path and extension.
func (p *Processor) TargetPath(path string) string {
	return p.app.TargetPath(path)
}

// Prepare parses path and records its targets, dependencies and contexts.
// A path that is already waiting to be generated is left as is.
func (p *Processor) Prepare(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[path]; ok {
		return nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	state := p.beginParse(path)
	tpl, err := exec.NewTemplate(path, string(source), p.env.EvalConfig)
	p.endParse(path)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	target := p.TargetPath(path)
	templateOnly := truthy(state.consts[p.config.TemplateOnlyVar])
	var targets []string
	if !templateOnly {
		targets = []string{target}
	}

	if err = p.app.Sources.SetTargets(ctx, path, targets); err != nil {
		return fmt.Errorf("failed to set targets: %w", err)
	}
	if err = p.app.Sources.SetDependencies(ctx, path, state.dependencies()); err != nil {
		return fmt.Errorf("failed to set dependencies: %w", err)
	}

	if err = p.app.Contexts.ClearDependencies(ctx, path); err != nil {
		return fmt.Errorf("failed to clear context dependencies: %w", err)
	}
	requests := contextRequests(string(source), p.config.ContextFunc)
	for _, req := range requests {
		if err = p.app.Contexts.AddDependency(ctx, path, req.Name, req.Value); err != nil {
			return fmt.Errorf("failed to add context dependency: %w", err)
		}
	}

	if err = p.app.Contexts.RemoveContext(ctx, path); err != nil {
		return fmt.Errorf("failed to remove contexts: %w", err)
	}
	names := make([]string, 0, len(state.contexts))
	for name := range state.contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err = p.app.Contexts.SetContext(ctx, path, name, state.contexts[name]); err != nil {
			return fmt.Errorf("failed to set context %s: %w", name, err)
		}
	}

	if !templateOnly {
		p.pending[path] = pending{target: target, template: tpl}
	}

	p.logger.Debug("Prepared template",
		"path", p.app.RelativePath(path),
		"template_only", templateOnly,
		"dependencies", len(state.deps),
		"contexts", len(names),
		"requests", len(requests))
	return nil
}

// Generate renders a prepared template to its target. Paths that were not
// prepared, or are template only, are ignored. The prepared template is
// dropped whether or not rendering succeeds.
func (p *Processor) Generate(ctx context.Context, path string) error {
	p.mu.Lock()
	job, ok := p.pending[path]
	delete(p.pending, path)
	p.mu.Unlock()
	if !ok {
		return nil
	}

	vars, err := p.sourceVars(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load page variables: %w", err)
	}
	vars[p.config.ContextFunc] = p.contextFunc(ctx)

	out, err := job.template.ExecuteBytes(vars)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(job.target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err = atomic.WriteFile(job.target, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("failed to write target: %w", err)
	}

	p.logger.Debug("Rendered template",
		"path", p.app.RelativePath(path),
		"target", p.app.RelativePath(job.target),
		"size", humanize.Bytes(uint64(len(out))))
	return nil
}

// RenderString renders content with the processor's environment, as if it
// were a page at path. Nothing is recorded in the stores. Templates
// referenced by content load from the source root.
func (p *Processor) RenderString(ctx context.Context, content, path string) ([]byte, error) {
	p.mu.Lock()
	tpl, err := p.env.FromString(content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	vars := map[string]interface{}{}
	if path != "" {
		if vars, err = p.sourceVars(ctx, p.app.SourcePath(path)); err != nil {
			return nil, fmt.Errorf("failed to load page variables: %w", err)
		}
	}
	vars[p.config.ContextFunc] = p.contextFunc(ctx)

	out, err := tpl.ExecuteBytes(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return out, nil
}

// Pending returns the paths prepared but not yet generated.
func (p *Processor) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.pending))
	for path := range p.pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
