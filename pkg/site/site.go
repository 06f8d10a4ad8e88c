package site

import (
	"context"
	"time"
)

// Source is the last recorded state of a file under the source root.
type Source struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Context is a named value published by a source file.
type Context struct {
	Source string
	Name   string
	Value  string
}

// ContextRequest is a (name, value) lookup a source performs while rendering.
type ContextRequest struct {
	Name  string
	Value string
}

// SourceStore records sources, the targets generated from them, and the
// template dependencies between them. Missing rows are reported as empty
// results, not errors.
type SourceStore interface {
	GetSource(ctx context.Context, path string) (*Source, error)
	SetSource(ctx context.Context, src Source) error
	RemoveSource(ctx context.Context, path string) error
	ListSources(ctx context.Context) ([]Source, error)

	GetTargets(ctx context.Context, path string) ([]string, error)
	SetTargets(ctx context.Context, path string, targets []string) error

	GetDependencies(ctx context.Context, path string) ([]string, error)
	SetDependencies(ctx context.Context, path string, dependencies []string) error
	// GetDependents returns the sources that list path as a dependency.
	GetDependents(ctx context.Context, path string) ([]string, error)
}

// ContextStore records the contexts each source publishes and the context
// lookups each source performs.
type ContextStore interface {
	ClearDependencies(ctx context.Context, source string) error
	AddDependency(ctx context.Context, source, name, value string) error
	GetContextDependencies(ctx context.Context, source string) ([]ContextRequest, error)
	// GetContextDependents returns the sources that requested (name, value).
	GetContextDependents(ctx context.Context, name, value string) ([]string, error)

	RemoveContext(ctx context.Context, source string) error
	SetContext(ctx context.Context, source, name, value string) error
	// GetContexts returns every context named name whose value is value,
	// ordered by source path.
	GetContexts(ctx context.Context, name, value string) ([]Context, error)
	GetSourceContexts(ctx context.Context, source string) ([]Context, error)
}

// Processor turns a source file into build output. Prepare runs for every
// affected source before any Generate call, so that metadata registered by
// one source is visible to every other source when it renders.
type Processor interface {
	Name() string
	CanProcess(path string) bool
	Prepare(ctx context.Context, path string) error
	Generate(ctx context.Context, path string) error
}
