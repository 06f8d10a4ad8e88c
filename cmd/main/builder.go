package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/CTAG07/Quire/pkg/site"
	"golang.org/x/sync/singleflight"
)

// Builder runs site builds on behalf of the API and the watcher. Requests
// that arrive while a build of the same kind is starting share its result.
type Builder struct {
	ctx    context.Context
	app    *site.App
	group  singleflight.Group
	logger *slog.Logger
}

type flight struct {
	result  site.BuildResult
	started time.Time
}

// NewBuilder creates a Builder whose builds stop when ctx is canceled.
func NewBuilder(ctx context.Context, app *site.App, logger *slog.Logger) *Builder {
	return &Builder{ctx: ctx, app: app, logger: logger}
}

// Build runs an incremental build, or a full one when force is set. A build
// that was already running when Build was called may have scanned the source
// root before the caller's changes, so its result is not reused: Build waits
// for it and then runs again.
func (b *Builder) Build(force bool) (site.BuildResult, error) {
	key := "build"
	if force {
		key = "rebuild"
	}
	requested := time.Now()
	for {
		v, err, shared := b.group.Do(key, func() (interface{}, error) {
			f := flight{started: time.Now()}
			var err error
			if force {
				f.result, err = b.app.Rebuild(b.ctx)
			} else {
				f.result, err = b.app.Build(b.ctx)
			}
			return f, err
		})
		f, _ := v.(flight)
		if !shared || !f.started.Before(requested) || b.ctx.Err() != nil {
			if shared {
				b.logger.Debug("Joined a running build", "kind", key, "build", f.result.ID)
			}
			return f.result, err
		}
		b.logger.Debug("Running build started before the request, building again", "kind", key, "build", f.result.ID)
	}
}
