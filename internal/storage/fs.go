package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/ocrlabel/internal/apperr"
)

// ImageExtensions are the recognised image suffixes. Matching is case-sensitive.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImage reports whether name ends in a recognised image extension.
func IsImage(name string) bool {
	for _, ext := range ImageExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist; otherwise the error wraps apperr.ErrDirectoryNotFound.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("storage: %s is not a directory: %w", abs, apperr.ErrDirectoryNotFound)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("storage: empty name")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// Path resolves name to an absolute path under root.
func (f *FS) Path(name string) (string, error) {
	return f.safePath(name)
}

// List returns every regular file directly under root. Symlinks to regular
// files are included.
func (f *FS) List() ([]string, error) {
	return f.list(func(string) bool { return true })
}

// ListImages returns regular files directly under root whose names carry an
// image extension. os.ReadDir yields entries sorted by name, so the order is
// stable across platforms.
func (f *FS) ListImages() ([]string, error) {
	return f.list(IsImage)
}

func (f *FS) list(keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !keep(e.Name()) || !f.isFile(e) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// isFile reports whether e is a regular file, following symlinks.
func (f *FS) isFile(e os.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(f.root, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

// Exists reports whether name is present under root.
func (f *FS) Exists(name string) bool {
	abs, err := f.safePath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content under root.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	return WriteFileAtomic(abs, content)
}

// Copy reads srcName from src and writes it to dstName under dst.
// It returns the copied bytes.
func Copy(src, dst Provider, srcName, dstName string) ([]byte, error) {
	data, err := src.Read(srcName)
	if err != nil {
		return nil, err
	}
	if err := dst.Write(dstName, data); err != nil {
		return nil, err
	}
	return data, nil
}
