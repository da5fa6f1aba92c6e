package lsp

import (
	"context"
	"errors"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/dreamware/liveserver/internal/workspace"
)

// contentChange is one didChange entry. Range is a pointer so that a full
// replacement (no range) can be told apart from an edit at 0:0.
type contentChange struct {
	Range *protocol.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange                           `json:"contentChanges"`
}

func (b *Backend) didOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}
	doc := string(params.TextDocument.URI)
	b.report("didOpen", doc, b.engine.Open(doc, params.TextDocument.Text))
	return reply(ctx, nil, nil)
}

func (b *Backend) didChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params didChangeParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}
	changes := make([]workspace.Change, len(params.ContentChanges))
	for i, c := range params.ContentChanges {
		changes[i] = workspace.Change{Range: c.Range, Text: c.Text}
	}
	doc := string(params.TextDocument.URI)
	b.report("didChange", doc, b.engine.Change(doc, changes))
	return reply(ctx, nil, nil)
}

func (b *Backend) didSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}
	doc := string(params.TextDocument.URI)
	b.report("didSave", doc, b.engine.Save(doc))
	return reply(ctx, nil, nil)
}

func (b *Backend) didClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}
	doc := string(params.TextDocument.URI)
	b.report("didClose", doc, b.engine.Close(doc))
	return reply(ctx, nil, nil)
}

// report logs a failed document notification. Documents outside every
// workspace are expected and only logged at debug level.
func (b *Backend) report(method, doc string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, workspace.ErrNoWorkspace):
		b.logger.Debug("document outside workspaces", "method", method, "uri", doc)
	default:
		b.logger.Warn("document notification failed", "method", method, "uri", doc, "err", err)
	}
}
