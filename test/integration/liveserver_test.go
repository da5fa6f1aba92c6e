package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/uri"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/dashboard"
	"github.com/dreamware/liveserver/internal/lsp"
	"github.com/dreamware/liveserver/internal/preview"
	"github.com/dreamware/liveserver/internal/workspace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startCoordinator runs a dashboard with a short heartbeat and returns its
// port.
func startCoordinator(t *testing.T, heartbeat time.Duration) (*dashboard.Server, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	srv := dashboard.NewServer(dashboard.Config{HeartbeatInterval: heartbeat, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return cluster.Ping(context.Background(), port) },
		5*time.Second, 20*time.Millisecond)
	return srv, port
}

func readEvent(t *testing.T, conn *websocket.Conn) cluster.ChangeEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev cluster.ChangeEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

// TestRegistrationLifecycle follows one preview server from allocation to
// eviction as seen by a dashboard subscriber.
func TestRegistrationLifecycle(t *testing.T) {
	coord, base := startCoordinator(t, 200*time.Millisecond)

	conn, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/ws", base), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	require.Eventually(t, func() bool { return coord.Events().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	port, err := cluster.AllocatePort(ctx, base, nil)
	require.NoError(t, err)
	assert.Greater(t, port, base)

	ws := workspace.New(t.TempDir(), "demo", false)
	ws.SetPort(port)
	previewCtx, stopPreview := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = preview.NewSupervisor(preview.SupervisorConfig{
			Workspace: ws,
			Server:    preview.NewStaticServer(quietLogger()),
			Base:      base,
			Logger:    quietLogger(),
		}).Run(previewCtx)
	}()

	added := readEvent(t, conn)
	assert.True(t, added.Added)
	assert.Equal(t, "demo", added.Name)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d/", ws.Port()), added.URL)

	entries, err := cluster.ListPorts(ctx, base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "demo", entries[0].Name())

	// The next allocation must skip the port now in use.
	next, err := cluster.AllocatePort(ctx, base, nil)
	require.NoError(t, err)
	assert.NotEqual(t, ws.Port(), next)

	stopPreview()
	<-stopped

	removed := readEvent(t, conn)
	assert.False(t, removed.Added)
	assert.Equal(t, "demo", removed.Name)
	assert.Equal(t, added.URL, removed.URL)

	entries, err = cluster.ListPorts(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestEditorEditsReachBrowser drives an eager editor session and checks the
// preview serves the unsaved text and pushes a reload.
func TestEditorEditsReachBrowser(t *testing.T) {
	_, base := startCoordinator(t, time.Hour)

	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	backend := lsp.NewBackend(lsp.Config{Eager: true, Base: base, Logger: quietLogger()})
	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- backend.Serve(ctx, serverSide) }()

	editor := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	editor.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
		return reply(ctx, nil, nil)
	})

	callCtx, callCancel := context.WithTimeout(ctx, 10*time.Second)
	defer callCancel()
	_, err := editor.Call(callCtx, "initialize", map[string]any{
		"workspaceFolders": []map[string]string{{"uri": string(uri.File(root)), "name": "site"}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, editor.Notify(callCtx, "initialized", map[string]any{}))

	ws := backend.Engine().Workspaces()[0]
	previewURL := func() string { return fmt.Sprintf("http://127.0.0.1:%d", ws.Port()) }
	require.Eventually(t, func() bool {
		entries, err := cluster.ListPorts(context.Background(), base)
		return err == nil && len(entries) == 1
	}, 10*time.Second, 20*time.Millisecond, "preview should register with the coordinator")

	browser, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(previewURL(), "http")+preview.ReloadPath, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer browser.Close()

	doc := string(uri.File(path))
	require.NoError(t, editor.Notify(callCtx, "textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": doc, "languageId": "plaintext", "version": 1, "text": "hello"},
	}))
	require.NoError(t, editor.Notify(callCtx, "textDocument/didChange", map[string]any{
		"textDocument": map[string]any{"uri": doc, "version": 2},
		"contentChanges": []map[string]any{{
			"range": map[string]any{
				"start": map[string]any{"line": 0, "character": 0},
				"end":   map[string]any{"line": 0, "character": 5},
			},
			"text": "bye",
		}},
	}))

	require.NoError(t, browser.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, msg, err := browser.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "a.txt", string(msg))

	require.Eventually(t, func() bool {
		resp, err := http.Get(previewURL() + "/a.txt")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body) == "bye"
	}, 5*time.Second, 20*time.Millisecond)

	_, err = editor.Call(callCtx, "shutdown", nil, nil)
	require.NoError(t, err)
	require.NoError(t, editor.Notify(callCtx, "exit", nil))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end")
	}
}
