package dashboard

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/liveserver/internal/cluster"
)

func dialEvents(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Events().Len() >= n }, time.Second, 10*time.Millisecond)
}

func TestWebSocketStreamsEvents(t *testing.T) {
	srv := NewServer(Config{})
	srv.SetProbeFunction(reachable("http://127.0.0.1:4001/"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts.URL)
	waitForSubscribers(t, srv, 1)

	// Inbound frames are ignored and must not break the stream.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(`{"name":"demo","port":4001}`))
	require.NoError(t, err)
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"added":true,"name":"demo","url":"http://127.0.0.1:4001/"}`, string(data))
}

func TestWebSocketSubscriptionEndsWithClient(t *testing.T) {
	srv := NewServer(Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts.URL)
	waitForSubscribers(t, srv, 1)
	require.NoError(t, conn.Close())

	// The closed subscription is cleaned up lazily on the next publish.
	require.Eventually(t, func() bool {
		srv.Events().Publish(reachableEvent())
		return srv.Events().Len() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRunServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(Config{HeartbeatInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Post("http://"+ln.Addr().String()+"/ping", "", nil)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsBindConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(Config{})
	err = srv.Run(context.Background(), uint16(ln.Addr().(*net.TCPAddr).Port))
	assert.Error(t, err)
}

func reachableEvent() cluster.ChangeEvent {
	return cluster.ChangeEvent{Added: true, Name: "x", URL: "http://127.0.0.1:1/"}
}
