package lsp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/cli/browser"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/preview"
	"github.com/dreamware/liveserver/internal/workspace"
)

// Methods handled by the backend.
const (
	methodInitialize     = "initialize"
	methodInitialized    = "initialized"
	methodShutdown       = "shutdown"
	methodExit           = "exit"
	methodDidOpen        = "textDocument/didOpen"
	methodDidChange      = "textDocument/didChange"
	methodDidSave        = "textDocument/didSave"
	methodDidClose       = "textDocument/didClose"
	methodCodeAction     = "textDocument/codeAction"
	methodExecuteCommand = "workspace/executeCommand"
	methodShowMessage    = "window/showMessage"
	methodLogMessage     = "window/logMessage"
)

// Commands offered through code actions.
const (
	CommandOpenProject   = "openProjectWeb"
	CommandOpenDashboard = "openProjectsWeb"
)

// Config configures a Backend.
type Config struct {
	Eager  bool   // Mirror unsaved edits and reload on every change
	Public bool   // Preview servers listen on all interfaces
	Base   uint16 // Coordinator port
	Logger *slog.Logger

	// Server defaults to preview.NewStaticServer.
	Server preview.Server

	// Announce defaults to cluster.Announce.
	Announce preview.AnnounceFunc

	// OpenURL defaults to browser.OpenURL.
	OpenURL func(url string) error

	// CanBind defaults to cluster.CanBind.
	CanBind cluster.BindProbe
}

// Backend is one editor session.
type Backend struct {
	cfg    Config
	engine *workspace.Engine
	logger *slog.Logger

	mu          sync.Mutex
	conn        jsonrpc2.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	supervisors sync.WaitGroup
	started     bool
}

// NewBackend creates a backend. Workspaces are created on initialize.
func NewBackend(cfg Config) *Backend {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Base == 0 {
		cfg.Base = cluster.DefaultPort
	}
	if cfg.Server == nil {
		cfg.Server = preview.NewStaticServer(cfg.Logger)
	}
	if cfg.Announce == nil {
		cfg.Announce = cluster.Announce
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = browser.OpenURL
	}
	if cfg.CanBind == nil {
		cfg.CanBind = cluster.CanBind
	}
	return &Backend{
		cfg:    cfg,
		engine: workspace.NewEngine(cfg.Eager, cfg.Logger),
		logger: cfg.Logger,
	}
}

// Engine returns the session's workspace engine.
func (b *Backend) Engine() *workspace.Engine {
	return b.engine
}

// Serve runs the session on rwc until the editor sends exit, the stream
// closes, or ctx is cancelled. Preview servers are stopped before it returns.
func (b *Backend) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))

	b.mu.Lock()
	b.conn = conn
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	conn.Go(ctx, b.Handle)

	select {
	case <-conn.Done():
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.Done()
	}
	b.stopSupervisors()

	if err := conn.Err(); err != nil {
		b.logger.Debug("editor connection closed", "err", err)
	}
	return nil
}

// Handle dispatches one request or notification. It always answers through
// reply; the returned error is only a failure to write the answer.
func (b *Backend) Handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case methodInitialize:
		return b.initialize(ctx, reply, req)
	case methodInitialized:
		return b.initialized(ctx, reply)
	case methodShutdown:
		b.stopSupervisors()
		return reply(ctx, nil, nil)
	case methodExit:
		b.stopSupervisors()
		_ = reply(ctx, nil, nil)
		return b.connection().Close()
	case methodDidOpen:
		return b.didOpen(ctx, reply, req)
	case methodDidChange:
		return b.didChange(ctx, reply, req)
	case methodDidSave:
		return b.didSave(ctx, reply, req)
	case methodDidClose:
		return b.didClose(ctx, reply, req)
	case methodCodeAction:
		return b.codeAction(ctx, reply, req)
	case methodExecuteCommand:
		return b.executeCommand(ctx, reply, req)
	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

func (b *Backend) connection() jsonrpc2.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// decode unmarshals req's params into v, answering InvalidParams on failure.
// It reports whether the handler should continue.
func decode(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, v any) (bool, error) {
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return false, reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
	}
	return true, nil
}

// logMessage writes to the editor's output log and to the local logger.
func (b *Backend) logMessage(ctx context.Context, msg string) {
	b.logger.Info(msg)
	conn := b.connection()
	if conn == nil {
		return
	}
	err := conn.Notify(ctx, methodLogMessage, &protocol.LogMessageParams{
		Type:    protocol.MessageTypeLog,
		Message: msg,
	})
	if err != nil {
		b.logger.Debug("logMessage failed", "err", err)
	}
}

// showWarning pops a warning in the editor.
func (b *Backend) showWarning(ctx context.Context, msg string) {
	b.logger.Warn(msg)
	conn := b.connection()
	if conn == nil {
		return
	}
	err := conn.Notify(ctx, methodShowMessage, &protocol.ShowMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: msg,
	})
	if err != nil {
		b.logger.Debug("showMessage failed", "err", err)
	}
}
