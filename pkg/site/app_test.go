package site

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp(t *testing.T) {
	root := t.TempDir()
	store := newMemStore()

	t.Run("same roots", func(t *testing.T) {
		_, err := NewApp(discardLogger(), Config{SourceRoot: root, BuildRoot: root}, store, store)
		if err == nil {
			t.Fatal("expected an error when source and build roots are equal")
		}
	})

	t.Run("unknown processor", func(t *testing.T) {
		cfg := Config{SourceRoot: root, BuildRoot: filepath.Join(root, "build"), Processors: []string{"nope"}}
		_, err := NewApp(discardLogger(), cfg, store, store)
		if err == nil || !strings.Contains(err.Error(), "copy") {
			t.Fatalf("expected an unknown processor error listing registered names, got %v", err)
		}
	})

	t.Run("registered processor", func(t *testing.T) {
		cfg := Config{SourceRoot: root, BuildRoot: filepath.Join(root, "build"), Processors: []string{"copy"}}
		app, err := NewApp(discardLogger(), cfg, store, store)
		if err != nil {
			t.Fatalf("NewApp() error = %v", err)
		}
		if p := app.ProcessorFor(filepath.Join(root, "a.bin")); p == nil || p.Name() != "copy" {
			t.Errorf("ProcessorFor() = %v, want the copy processor", p)
		}
	})
}

func TestAppPaths(t *testing.T) {
	root := t.TempDir()
	store := newMemStore()
	app, err := NewApp(discardLogger(), Config{
		SourceRoot: filepath.Join(root, "src"),
		BuildRoot:  filepath.Join(root, "src", "_build"),
	}, store, store)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	src := app.SourcePath("blog/post.html")
	if want := filepath.Join(root, "src", "blog", "post.html"); src != want {
		t.Errorf("SourcePath() = %q, want %q", src, want)
	}
	if got := app.SourcePath(src + "/../post.html"); got != filepath.Join(root, "src", "blog", "post.html") {
		t.Errorf("SourcePath() on an absolute path = %q", got)
	}

	target := app.TargetPath(src)
	if want := filepath.Join(root, "src", "_build", "blog", "post.html"); target != want {
		t.Errorf("TargetPath() = %q, want %q", target, want)
	}
	if got := app.TargetPath(filepath.Join(root, "elsewhere", "x.html")); got != filepath.Join(app.BuildRoot, "x.html") {
		t.Errorf("TargetPath() outside the source root = %q", got)
	}

	// The build root lives inside the source root; it must win.
	if got := app.RelativePath(target); got != "blog/post.html" {
		t.Errorf("RelativePath(target) = %q", got)
	}
	if got := app.RelativePath(src); got != "blog/post.html" {
		t.Errorf("RelativePath(source) = %q", got)
	}
	if got := app.URL(target); got != "/blog/post.html" {
		t.Errorf("URL() = %q", got)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Register to panic on a duplicate name")
		}
	}()
	Register("copy", func(app *App) (Processor, error) { return NewCopyProcessor(app), nil })
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		path string
		ok   bool
	}{
		{sep + filepath.Join("root", "a"), true},
		{sep + filepath.Join("root", "..a"), true},
		{sep + "other", false},
		{sep + "root", true},
	}
	for _, tt := range tests {
		if _, ok := within(sep+"root", tt.path); ok != tt.ok {
			t.Errorf("within(%q) = %v, want %v", tt.path, ok, tt.ok)
		}
	}
}
