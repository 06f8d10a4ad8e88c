package site

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// CopyProcessor copies any source verbatim to its target path. It accepts
// every file, so it belongs last in the processor list.
type CopyProcessor struct {
	app *App
}

// NewCopyProcessor creates a CopyProcessor for app.
func NewCopyProcessor(app *App) *CopyProcessor {
	return &CopyProcessor{app: app}
}

func (p *CopyProcessor) Name() string { return "copy" }

func (p *CopyProcessor) CanProcess(string) bool { return true }

// Prepare registers the single target and clears any dependencies left over
// from a processor that handled this path before.
func (p *CopyProcessor) Prepare(ctx context.Context, path string) error {
	if err := p.app.Sources.SetTargets(ctx, path, []string{p.app.TargetPath(path)}); err != nil {
		return err
	}
	return p.app.Sources.SetDependencies(ctx, path, nil)
}

func (p *CopyProcessor) Generate(_ context.Context, path string) error {
	target := p.app.TargetPath(path)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err = atomic.WriteFile(target, file); err != nil {
		return fmt.Errorf("failed to write target: %w", err)
	}
	p.app.logger.Debug("Copied file", "source", path, "target", target)
	return nil
}
