package jinja

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nikolalohinski/gonja/loaders"
)

// sourceLoader loads templates from the source root. Names that resolve
// outside of it, absolute or through "..", are refused.
type sourceLoader struct {
	fs   *loaders.FilesystemLoader
	root string
}

func newSourceLoader(root string) (*sourceLoader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fs, err := loaders.NewFileSystemLoader(abs)
	if err != nil {
		return nil, err
	}
	return &sourceLoader{fs: fs, root: abs}, nil
}

// Path resolves name against the source root.
func (l *sourceLoader) Path(name string) (string, error) {
	path, err := l.fs.Path(name)
	if err != nil {
		return "", err
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("template %q is outside the source root", name)
	}
	return path, nil
}

func (l *sourceLoader) Get(name string) (io.Reader, error) {
	path, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	return l.fs.Get(path)
}
