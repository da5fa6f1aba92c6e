package workspace

import (
	"fmt"
	"net/url"
	"path/filepath"

	"go.lsp.dev/uri"
)

// PathFromURI converts a file:// URI into an absolute local path.
func PathFromURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", raw, err)
	}
	if u.Scheme != uri.FileScheme {
		return "", fmt.Errorf("uri %q: scheme %q is not file", raw, u.Scheme)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

// DocumentKey is the canonical cache key for the file at path. Editors differ
// in how they escape URIs, so keys are always rebuilt from the path.
func DocumentKey(path string) string {
	return string(uri.File(path))
}
