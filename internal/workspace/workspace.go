package workspace

import (
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dreamware/liveserver/internal/storage"
)

// UnnamedWorkspace is the label used when neither a folder name nor a root
// URI yields one.
const UnnamedWorkspace = "Unnamed Workspace"

// Workspace is one editor root folder and the state of its preview server.
type Workspace struct {
	Root  string            // Absolute root path
	Name  string            // Label shown on the dashboard
	Cache storage.Documents // Open documents under Root
	Stats *WorkspaceStats   // Operation statistics

	eager  bool
	port   atomic.Uint32
	signal *Signal
}

// WorkspaceStats tracks operational statistics for a workspace
type WorkspaceStats struct {
	Ops     OperationStats // Operation counts
	Storage storage.Stats  // Document cache statistics
}

// OperationStats tracks document notification counts
type OperationStats struct {
	Opens   uint64 // Number of didOpen notifications routed here
	Changes uint64 // Number of didChange notifications routed here
	Saves   uint64 // Number of didSave notifications routed here
	Closes  uint64 // Number of didClose notifications routed here
	Signals uint64 // Number of reload signals raised
}

// New creates a workspace rooted at root with an empty document cache.
func New(root, name string, eager bool) *Workspace {
	return &Workspace{
		Root:   filepath.Clean(root),
		Name:   name,
		Cache:  storage.NewDocumentCache(),
		Stats:  &WorkspaceStats{},
		eager:  eager,
		signal: NewSignal(),
	}
}

// DisplayName picks the dashboard label for a workspace folder: the folder
// name, else the last element of its URI, else UnnamedWorkspace.
func DisplayName(name, rootURI string) string {
	if name != "" {
		return name
	}
	trimmed := strings.TrimRight(rootURI, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return UnnamedWorkspace
}

// Port returns the port the preview server is bound (or binding) to.
func (w *Workspace) Port() uint16 {
	return uint16(w.port.Load())
}

// SetPort records the port the preview server uses.
func (w *Workspace) SetPort(port uint16) {
	w.port.Store(uint32(port))
}

// Eager reports whether unsaved edits are mirrored into the cache.
func (w *Workspace) Eager() bool {
	return w.eager
}

// Signal returns the reload signal consumed by the preview server.
func (w *Workspace) Signal() *Signal {
	return w.signal
}

// Contains reports whether path lies inside the workspace root. Matching is
// by whole path components, so /root/ab is not inside /root/a.
func (w *Workspace) Contains(path string) bool {
	path = filepath.Clean(path)
	if path == w.Root {
		return true
	}
	prefix := w.Root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// Relative returns path relative to the root, with forward slashes.
func (w *Workspace) Relative(path string) string {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Files returns the reader for path: the document cache when the workspace
// is eager and the editor holds the document, disk otherwise.
func (w *Workspace) Files(path string) FileAccess {
	if w.eager {
		if _, err := w.Cache.Get(DocumentKey(path)); err == nil {
			return MemoryFiles{Docs: w.Cache}
		}
	}
	return DiskFiles{}
}

// GetStats returns current workspace statistics
func (w *Workspace) GetStats() WorkspaceStats {
	return WorkspaceStats{
		Ops: OperationStats{
			Opens:   atomic.LoadUint64(&w.Stats.Ops.Opens),
			Changes: atomic.LoadUint64(&w.Stats.Ops.Changes),
			Saves:   atomic.LoadUint64(&w.Stats.Ops.Saves),
			Closes:  atomic.LoadUint64(&w.Stats.Ops.Closes),
			Signals: atomic.LoadUint64(&w.Stats.Ops.Signals),
		},
		Storage: w.Cache.Stats(),
	}
}

// reload raises the signal for path.
func (w *Workspace) reload(path string) {
	atomic.AddUint64(&w.Stats.Ops.Signals, 1)
	w.signal.Notify(w.Relative(path))
}
