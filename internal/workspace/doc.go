// Package workspace keeps editor workspaces and their preview servers in
// step with the editor.
//
// A Workspace is one editor root folder. It owns a document cache, the
// port of its preview server and a Signal that tells the preview server
// which file to reload. The Engine routes document notifications to the
// workspace whose root contains the document and applies them according
// to the synchronization mode:
//
//	            eager                      lazy
//	open    cache text, signal          count only
//	change  apply edits, signal         count only
//	save    signal                      signal
//	close   drop from cache             drop from cache
//
// # Positions
//
// Edits address text by (line, character). OffsetAt turns a position into a
// byte offset: skip line newlines, then advance character Unicode scalars.
// Each edit in a batch is resolved against the text left by the previous
// one, so the translation must match the editor exactly or every later edit
// lands in the wrong place.
//
// # Routing
//
// Roots match by whole path components. When roots nest, the longest root
// that contains the file wins. Files outside every root are dropped with
// ErrNoWorkspace.
package workspace
