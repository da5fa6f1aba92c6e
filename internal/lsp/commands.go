package lsp

import (
	"context"
	"fmt"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/workspace"
)

// codeAction offers the dashboard everywhere and the workspace preview for
// documents inside a workspace.
func (b *Backend) codeAction(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CodeActionParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}

	actions := []protocol.CodeAction{{
		Title: fmt.Sprintf("Open Dashboard: 127.0.0.1:%d", b.cfg.Base),
		Command: &protocol.Command{
			Title:   "Open Dashboard",
			Command: CommandOpenDashboard,
		},
	}}

	if path, err := workspace.PathFromURI(string(params.TextDocument.URI)); err == nil {
		if ws, err := b.engine.Route(path); err == nil {
			actions = append(actions, protocol.CodeAction{
				Title: fmt.Sprintf("Open Project: 127.0.0.1:%d", ws.Port()),
				Command: &protocol.Command{
					Title:     "Open Project",
					Command:   CommandOpenProject,
					Arguments: []interface{}{ws.Root},
				},
			})
		}
	}
	return reply(ctx, actions, nil)
}

func (b *Backend) executeCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.ExecuteCommandParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}

	var target string
	switch params.Command {
	case CommandOpenProject:
		if len(params.Arguments) == 0 {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "URL argument missing"))
		}
		root, ok := params.Arguments[0].(string)
		if !ok {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "URL argument missing"))
		}
		ws, ok := b.lookup(root)
		if !ok {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "URL argument invalid"))
		}
		target = previewURL(ws.Port())
	case CommandOpenDashboard:
		target = cluster.CoordinatorURL(b.cfg.Base) + "/"
	default:
		return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
	}

	if err := b.cfg.OpenURL(target); err != nil {
		b.showWarning(ctx, fmt.Sprintf("Failed to open browser: %v", err))
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "failed to open browser"))
	}
	return reply(ctx, nil, nil)
}

// lookup finds a workspace by root path or root URI.
func (b *Backend) lookup(root string) (*workspace.Workspace, bool) {
	if strings.HasPrefix(root, "file:") {
		path, err := workspace.PathFromURI(root)
		if err != nil {
			return nil, false
		}
		root = path
	}
	return b.engine.Lookup(root)
}
