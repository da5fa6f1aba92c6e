package workspace

import (
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/exp/slices"

	"github.com/dreamware/liveserver/internal/storage"
)

// FileAccess is how the preview server reads workspace content.
type FileAccess interface {
	// ReadFile returns the full content of the file at the absolute path name.
	ReadFile(name string) ([]byte, error)

	// ReadDir returns the sorted entry names of the directory name.
	ReadDir(name string) ([]string, error)
}

// DiskFiles reads straight from the file system.
type DiskFiles struct{}

// ReadFile reads name from disk.
func (DiskFiles) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// ReadDir lists name on disk.
func (DiskFiles) ReadDir(name string) ([]string, error) {
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// MemoryFiles reads from a document cache. Only documents the editor has open
// are visible.
type MemoryFiles struct {
	Docs storage.Documents
}

// ReadFile returns the cached text of name.
func (m MemoryFiles) ReadFile(name string) ([]byte, error) {
	text, err := m.Docs.Get(DocumentKey(name))
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return []byte(text), nil
}

// ReadDir lists the cached documents directly inside name.
func (m MemoryFiles) ReadDir(name string) ([]string, error) {
	dir := filepath.Clean(name)
	var names []string
	for _, key := range m.Docs.List() {
		path, err := PathFromURI(key)
		if err != nil {
			continue
		}
		if filepath.Dir(path) == dir {
			names = append(names, filepath.Base(path))
		}
	}
	slices.Sort(names)
	return names, nil
}
