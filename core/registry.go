package core

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/Dyastin-0/fileshare/types"
)

// Registry is the catalog of files this node shares, keyed by absolute path
// and kept in insertion order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	paths map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		paths: make(map[string]struct{}),
	}
}

// Add registers path. It reports false when the resolved path is already shared.
func (r *Registry) Add(path string) (bool, error) {
	abs, err := resolve(path)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.paths[abs]; ok {
		return false, nil
	}

	r.paths[abs] = struct{}{}
	r.order = append(r.order, abs)

	return true, nil
}

// Remove deregisters path, a path that is not shared is a no-op.
func (r *Registry) Remove(path string) bool {
	abs, err := resolve(path)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.paths[abs]; !ok {
		return false
	}

	delete(r.paths, abs)
	for i, p := range r.order {
		if p == abs {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}

	return true
}

// List returns a snapshot of the shared files with sizes read from disk.
func (r *Registry) List() []types.FileInfo {
	paths := r.snapshot()

	files := make([]types.FileInfo, 0, len(paths))
	for _, p := range paths {
		files = append(files, stat(p))
	}

	return files
}

// Lookup finds the first shared file whose display name equals name.
func (r *Registry) Lookup(name string) (types.FileInfo, bool) {
	for _, p := range r.snapshot() {
		if filepath.Base(p) == name {
			return stat(p), true
		}
	}

	return types.FileInfo{}, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// resolve returns the canonical absolute path with symlinks followed. A file
// that no longer exists resolves through its parent directory.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs)), nil
	}

	return abs, nil
}

func (r *Registry) snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, len(r.order))
	copy(paths, r.order)

	return paths
}

func stat(path string) types.FileInfo {
	info := types.FileInfo{
		Name: filepath.Base(path),
		Path: path,
	}

	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		info.Missing = true
		return info
	}

	info.Size = fi.Size()
	return info
}
