package sandbox

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/teranos/reposcout/errors"
)

// Workspace is an exclusively owned temporary directory for one invocation.
type Workspace struct {
	Dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh directory under root (os.TempDir when empty).
func NewWorkspace(root, pattern string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create workspace")
	}
	return &Workspace{Dir: dir}, nil
}

// Path joins elem onto the workspace directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// Destroy removes the workspace. Safe to call twice.
func (w *Workspace) Destroy() error {
	w.once.Do(func() { w.err = RemoveTree(w.Dir) })
	return w.err
}

// RemoveTree deletes dir and everything under it. Read-only entries left by
// a clone (git pack files, read-only checkouts) are made writable first.
func RemoveTree(dir string) error {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable directory: grant access and let RemoveAll retry
			_ = os.Chmod(path, 0o700)
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		mode := os.FileMode(0o600)
		if d.IsDir() {
			mode = 0o700
		}
		_ = os.Chmod(path, mode)
		return nil
	})
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to remove workspace %s", dir)
	}
	return nil
}
