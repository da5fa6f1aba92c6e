package lsp

import (
	"context"
	"fmt"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/preview"
	"github.com/dreamware/liveserver/internal/workspace"
)

// ServerName is reported to the editor in the initialize result.
const ServerName = "liveserver"

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// initializeParams is the part of the initialize request the server reads.
type initializeParams struct {
	RootURI          string            `json:"rootUri"`
	WorkspaceFolders []workspaceFolder `json:"workspaceFolders"`
}

func (b *Backend) initialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params initializeParams
	if ok, err := decode(ctx, reply, req, &params); !ok {
		return err
	}

	folders := params.WorkspaceFolders
	if len(folders) == 0 && params.RootURI != "" {
		folders = []workspaceFolder{{URI: params.RootURI}}
	}

	// Ports handed out in this loop are not registered yet, so they are
	// added to the taken list by hand.
	taken, err := cluster.ListPorts(ctx, b.cfg.Base)
	if err != nil {
		b.logger.Warn("coordinator unavailable, allocating ports locally", "base", b.cfg.Base, "err", err)
	}
	for _, f := range folders {
		root, err := workspace.PathFromURI(f.URI)
		if err != nil {
			b.logger.Warn("skipping workspace folder", "uri", f.URI, "err", err)
			continue
		}
		port, err := cluster.FreePort(b.cfg.Base, taken, b.cfg.CanBind)
		if err != nil {
			b.logger.Error("no port for workspace", "root", root, "err", err)
			continue
		}
		ws := b.engine.Add(root, workspace.DisplayName(f.Name, f.URI))
		ws.SetPort(port)
		taken = append(taken, cluster.PortEntry{ws.Name, previewURL(port)})
	}

	return reply(ctx, &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
				Save:      &protocol.SaveOptions{},
			},
			CodeActionProvider: true,
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{CommandOpenProject, CommandOpenDashboard},
			},
		},
		ServerInfo: &protocol.ServerInfo{Name: ServerName},
	}, nil)
}

// initialized starts one supervisor per workspace. A second initialized is
// ignored.
func (b *Backend) initialized(ctx context.Context, reply jsonrpc2.Replier) error {
	b.logMessage(ctx, "LiveServer Initialized!")

	b.mu.Lock()
	if b.started || b.ctx == nil {
		b.mu.Unlock()
		return reply(ctx, nil, nil)
	}
	b.started = true
	runCtx := b.ctx
	b.mu.Unlock()

	for _, ws := range b.engine.Workspaces() {
		b.logMessage(ctx, fmt.Sprintf("Opened workspace %s at %s", ws.Name, ws.Root))
		sup := preview.NewSupervisor(preview.SupervisorConfig{
			Workspace: ws,
			Server:    b.cfg.Server,
			Base:      b.cfg.Base,
			Public:    b.cfg.Public,
			Logger:    b.logger,
			Announce:  b.cfg.Announce,
			OnBound: func(port uint16) {
				b.logMessage(runCtx, fmt.Sprintf("Serving %s on %s", ws.Name, previewURL(port)))
			},
		})
		b.supervisors.Add(1)
		go func() {
			defer b.supervisors.Done()
			_ = sup.Run(runCtx)
		}()
	}
	return reply(ctx, nil, nil)
}

// stopSupervisors cancels every preview server and waits for them.
func (b *Backend) stopSupervisors() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.supervisors.Wait()
}

func previewURL(port uint16) string {
	return fmt.Sprintf("http://127.0.0.1:%d/", port)
}
