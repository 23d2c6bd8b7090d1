package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dir stores files in a local directory. WriteFiles fills a sibling temporary
// directory and renames it into place, so readers never see a half-written set.
type Dir struct {
	path string
}

// NewDir returns a Store rooted at path.
func NewDir(path string) *Dir {
	return &Dir{path: filepath.Clean(path)}
}

func (d *Dir) String() string { return d.path }

// WriteFiles replaces the directory contents with files.
func (d *Dir) WriteFiles(ctx context.Context, files []File) error {
	parent := filepath.Dir(d.path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create index parent directory: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, filepath.Base(d.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temporary index directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Name != filepath.Base(f.Name) {
			return fmt.Errorf("invalid file name %q", f.Name)
		}
		if err := os.WriteFile(filepath.Join(tmp, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}

	var old string
	if _, err := os.Stat(d.path); err == nil {
		old = fmt.Sprintf("%s.old-%d", d.path, time.Now().UnixNano())
		if err := os.Rename(d.path, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, d.path); err != nil {
		if old != "" {
			_ = os.Rename(old, d.path)
		}
		return fmt.Errorf("move index into place: %w", err)
	}
	committed = true
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

// ReadFile returns the named file from the directory.
func (d *Dir) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", d.path, name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
