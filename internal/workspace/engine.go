package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/dreamware/liveserver/internal/storage"
)

// ErrNoWorkspace is returned when a document lies outside every workspace.
var ErrNoWorkspace = errors.New("no workspace contains document")

// Engine routes editor document notifications to workspaces and keeps their
// document caches in step with the editor.
//
// In eager mode open, change and save each raise the workspace's reload
// signal and edits are mirrored into the cache. In lazy mode open and change
// are only counted and save alone raises the signal, so the preview reads the
// saved file from disk.
type Engine struct {
	eager  bool
	logger *slog.Logger

	mu         sync.RWMutex
	workspaces []*Workspace // longest root first
}

// NewEngine creates an engine with no workspaces.
func NewEngine(eager bool, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{eager: eager, logger: logger}
}

// Eager reports the synchronization mode.
func (e *Engine) Eager() bool {
	return e.eager
}

// Add creates and registers a workspace rooted at root.
func (e *Engine) Add(root, name string) *Workspace {
	ws := New(root, name, e.eager)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.workspaces = append(e.workspaces, ws)
	slices.SortStableFunc(e.workspaces, func(a, b *Workspace) int {
		return len(b.Root) - len(a.Root)
	})
	return ws
}

// Workspaces returns the registered workspaces, longest root first.
func (e *Engine) Workspaces() []*Workspace {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.workspaces)
}

// Lookup returns the workspace whose root is exactly root.
func (e *Engine) Lookup(root string) (*Workspace, bool) {
	root = filepath.Clean(root)
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := slices.IndexFunc(e.workspaces, func(w *Workspace) bool { return w.Root == root })
	if i < 0 {
		return nil, false
	}
	return e.workspaces[i], true
}

// Route returns the workspace containing path. When roots nest, the most
// specific root wins.
func (e *Engine) Route(path string) (*Workspace, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ws := range e.workspaces {
		if ws.Contains(path) {
			return ws, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNoWorkspace)
}

// Open handles a document-open notification.
func (e *Engine) Open(docURI, text string) error {
	ws, path, err := e.resolve(docURI)
	if err != nil {
		return err
	}
	atomic.AddUint64(&ws.Stats.Ops.Opens, 1)
	if !e.eager {
		return nil
	}
	ws.Cache.Put(DocumentKey(path), text)
	ws.reload(path)
	return nil
}

// Change handles a document-change notification. Changes apply in order. A
// change for a document the cache does not hold is applied only when it
// starts with a full replacement.
func (e *Engine) Change(docURI string, changes []Change) error {
	ws, path, err := e.resolve(docURI)
	if err != nil {
		return err
	}
	atomic.AddUint64(&ws.Stats.Ops.Changes, 1)
	if !e.eager {
		return nil
	}

	key := DocumentKey(path)
	err = ws.Cache.Update(key, func(text string) (string, error) {
		return ApplyChanges(text, changes)
	})
	if errors.Is(err, storage.ErrNotFound) && len(changes) > 0 && changes[0].Range == nil {
		var text string
		text, err = ApplyChanges("", changes)
		if err == nil {
			ws.Cache.Put(key, text)
		}
	}
	if err != nil {
		return fmt.Errorf("change %s: %w", docURI, err)
	}
	ws.reload(path)
	return nil
}

// Save handles a document-save notification. It signals in both modes.
func (e *Engine) Save(docURI string) error {
	ws, path, err := e.resolve(docURI)
	if err != nil {
		return err
	}
	atomic.AddUint64(&ws.Stats.Ops.Saves, 1)
	ws.reload(path)
	return nil
}

// Close handles a document-close notification.
func (e *Engine) Close(docURI string) error {
	ws, path, err := e.resolve(docURI)
	if err != nil {
		return err
	}
	atomic.AddUint64(&ws.Stats.Ops.Closes, 1)
	ws.Cache.Delete(DocumentKey(path))
	return nil
}

func (e *Engine) resolve(docURI string) (*Workspace, string, error) {
	path, err := PathFromURI(docURI)
	if err != nil {
		return nil, "", err
	}
	ws, err := e.Route(path)
	if err != nil {
		e.logger.Debug("dropping document event", "uri", docURI)
		return nil, "", err
	}
	return ws, path, nil
}
