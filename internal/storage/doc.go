// Package storage provides the in-memory document cache of a workspace.
//
// While the editor has a document open, its current text (including unsaved
// edits) lives here, keyed by the document's canonical file URI. The preview
// server reads through this cache before falling back to disk, which is how
// unsaved edits become visible in the browser in eager mode.
//
// Consistency:
//   - one entry per URI, last writer wins
//   - Update runs a whole edit batch under the write lock, so readers see the
//     text either before or after the batch, never halfway
//   - edits for one document arrive in order from the editor; edits for
//     different documents are independent
package storage
