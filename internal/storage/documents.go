package storage

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// ErrNotFound is returned when a document is not cached.
var ErrNotFound = errors.New("document not cached")

// Documents is an in-memory mirror of editor documents keyed by URI.
// All implementations must be thread-safe for concurrent access.
type Documents interface {
	// Get returns the cached text for uri
	// Returns ErrNotFound if uri is not cached
	Get(uri string) (string, error)

	// Put stores text under uri, replacing any previous text
	Put(uri, text string)

	// Update replaces the text of a cached document with fn(text)
	// Returns ErrNotFound if uri is not cached; fn is not called then
	Update(uri string, fn func(text string) (string, error)) error

	// Delete drops uri
	// No error if uri is not cached
	Delete(uri string)

	// List returns all cached URIs in sorted order
	List() []string

	// Stats returns cache statistics
	Stats() Stats
}

// Stats describes the cache contents.
type Stats struct {
	Documents int // Number of cached documents
	Bytes     int // Total size of cached text in bytes
}

// DocumentCache implements Documents with a mutex-guarded map. At most one
// entry exists per URI; the last writer wins.
type DocumentCache struct {
	mu   sync.RWMutex      // Protects docs
	docs map[string]string // uri -> text
}

// NewDocumentCache creates an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{
		docs: make(map[string]string),
	}
}

// Get returns the cached text for uri.
func (c *DocumentCache) Get(uri string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	text, ok := c.docs[uri]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

// Put stores text under uri.
func (c *DocumentCache) Put(uri, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[uri] = text
}

// Update applies fn to the cached text under the write lock, so a batch of
// edits for one document lands atomically. If fn fails the text is left
// unchanged.
func (c *DocumentCache) Update(uri string, fn func(text string) (string, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	text, ok := c.docs[uri]
	if !ok {
		return ErrNotFound
	}
	next, err := fn(text)
	if err != nil {
		return err
	}
	c.docs[uri] = next
	return nil
}

// Delete drops uri. Deleting an unknown URI is a no-op.
func (c *DocumentCache) Delete(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, uri)
}

// List returns all cached URIs, sorted.
func (c *DocumentCache) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	uris := make([]string, 0, len(c.docs))
	for uri := range c.docs {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	return uris
}

// Stats returns cache statistics.
func (c *DocumentCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, text := range c.docs {
		total += len(text)
	}
	return Stats{
		Documents: len(c.docs),
		Bytes:     total,
	}
}
