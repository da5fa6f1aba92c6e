package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"

	"github.com/dreamware/liveserver/internal/cluster"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"LIVESERVER_EAGER", "LIVESERVER_PUBLIC", "LIVESERVER_PORT", "LIVESERVER_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

// parseConfig registers the command's flags on a fresh set and parses args.
func parseConfig(args []string) (config, error) {
	var f flags
	fs := pflag.NewFlagSet("liveserver", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	return f.config()
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want config
	}{
		{
			name: "defaults",
			want: config{Port: cluster.DefaultPort, LogLevel: slog.LevelInfo},
		},
		{
			name: "long flags",
			args: []string{"--eager", "--public", "--port", "4000"},
			want: config{Eager: true, Public: true, Port: 4000, LogLevel: slog.LevelInfo},
		},
		{
			name: "short flags",
			args: []string{"-e", "-p", "4100"},
			want: config{Eager: true, Port: 4100, LogLevel: slog.LevelInfo},
		},
		{
			name: "environment fallbacks",
			env: map[string]string{
				"LIVESERVER_EAGER":     "1",
				"LIVESERVER_PORT":      "4200",
				"LIVESERVER_LOG_LEVEL": "warn",
			},
			want: config{Eager: true, Port: 4200, LogLevel: slog.LevelWarn},
		},
		{
			name: "flags beat environment",
			env:  map[string]string{"LIVESERVER_PORT": "4200"},
			args: []string{"--port=4300"},
			want: config{Port: 4300, LogLevel: slog.LevelInfo},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := parseConfig(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	t.Run("port out of range", func(t *testing.T) {
		clearEnv(t)
		_, err := parseConfig([]string{"--port", "70000"})
		assert.Error(t, err)
	})

	t.Run("port zero", func(t *testing.T) {
		clearEnv(t)
		_, err := parseConfig([]string{"-p", "0"})
		assert.ErrorContains(t, err, "port 0")
	})

	t.Run("bad log level", func(t *testing.T) {
		clearEnv(t)
		_, err := parseConfig([]string{"--log-level", "loud"})
		assert.ErrorContains(t, err, "log level")
	})

	t.Run("bad environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LIVESERVER_EAGER", "sometimes")
		_, err := parseConfig(nil)
		assert.ErrorContains(t, err, "LIVESERVER_EAGER")
	})

	t.Run("unknown flag", func(t *testing.T) {
		clearEnv(t)
		_, err := parseConfig([]string{"--bogus"})
		assert.Error(t, err)
	})
}

func TestRootCommandFlags(t *testing.T) {
	clearEnv(t)
	cmd := newRootCmd()
	assert.Equal(t, "liveserver", cmd.Name())

	tests := []struct {
		short string
		long  string
	}{
		{"e", "eager"},
		{"p", "port"},
	}
	for _, tt := range tests {
		f := cmd.Flags().ShorthandLookup(tt.short)
		require.NotNil(t, f, tt.short)
		assert.Equal(t, tt.long, f.Name)
	}
	for _, name := range []string{"public", "log-level"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "57391", cmd.Flags().Lookup("port").DefValue)
}

func TestRootCommandRejectsBadEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIVESERVER_PORT", "lots")
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	assert.ErrorContains(t, err, "LIVESERVER_PORT")
}

func idlePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())
	return port
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureCoordinatorStartsOne(t *testing.T) {
	port := idlePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ensureCoordinator(ctx, config{Port: port}, quietLogger())
	assert.True(t, cluster.Ping(context.Background(), port))

	entries, err := cluster.ListPorts(context.Background(), port)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunServesEditorSession(t *testing.T) {
	port := idlePort(t)
	serverSide, clientSide := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- run(ctx, config{Port: port}, quietLogger(), serverSide) }()

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	conn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, _ jsonrpc2.Request) error {
		return reply(ctx, nil, nil)
	})

	callCtx, callCancel := context.WithTimeout(ctx, 10*time.Second)
	defer callCancel()
	var result map[string]any
	_, err := conn.Call(callCtx, "initialize", map[string]any{}, &result)
	require.NoError(t, err)
	assert.Contains(t, result, "capabilities")
	assert.True(t, cluster.Ping(context.Background(), port), "run starts a coordinator")

	_, err = conn.Call(callCtx, "shutdown", nil, nil)
	require.NoError(t, err)
	_ = conn.Notify(callCtx, "exit", nil)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after exit")
	}
}

type closeRecorder struct {
	io.Reader
	io.Writer
	err    error
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestStdio(t *testing.T) {
	in := &closeRecorder{Reader: strings.NewReader("request")}
	out := &closeRecorder{Writer: &strings.Builder{}, err: errors.New("stdout closed")}
	s := stdio{in: in, out: out}

	buf := make([]byte, 7)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "request", string(buf[:n]))

	n, err = s.Write([]byte("reply"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.ErrorContains(t, s.Close(), "stdout closed")
	assert.True(t, in.closed)
	assert.True(t, out.closed)
}
