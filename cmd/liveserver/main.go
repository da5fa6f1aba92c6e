// Command liveserver is the editor-launched live preview server.
//
// The editor starts it as a language server over stdio. On startup it makes
// sure a coordinator (the dashboard and registry) answers on the base port,
// starting one in-process when none does, then serves the editor session.
// Stdout carries the protocol, so all logging goes to stderr.
//
// Usage:
//
//	liveserver [--eager|-e] [--public] [--port|-p 57391] [--log-level info]
//
// Environment fallbacks: LIVESERVER_EAGER, LIVESERVER_PUBLIC, LIVESERVER_PORT,
// LIVESERVER_LOG_LEVEL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/dashboard"
	"github.com/dreamware/liveserver/internal/lsp"
)

type config struct {
	Eager    bool
	Public   bool
	Port     uint16
	LogLevel slog.Level
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "liveserver: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the raw command line values before validation.
type flags struct {
	eager    bool
	public   bool
	port     uint16
	logLevel string

	// envErr reports malformed environment fallbacks.
	envErr error
}

// newRootCmd builds the liveserver command. Every flag defaults to its
// environment variable.
func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "liveserver",
		Short: "Live preview server for editors",
		Long: `liveserver speaks the language server protocol over stdio. Each
workspace folder the editor opens is served over HTTP on its own port, and
browsers viewing it reload when files change.

A coordinator with the dashboard is started on the base port unless one is
already answering there.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, stdio{in: os.Stdin, out: os.Stdout})
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// register binds the flags to fs with defaults read from the environment.
func (f *flags) register(fs *pflag.FlagSet) {
	var errs []error
	eager, err := strconv.ParseBool(getenv("LIVESERVER_EAGER", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LIVESERVER_EAGER: %w", err))
	}
	public, err := strconv.ParseBool(getenv("LIVESERVER_PUBLIC", "false"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LIVESERVER_PUBLIC: %w", err))
	}
	port, err := strconv.ParseUint(getenv("LIVESERVER_PORT", strconv.Itoa(int(cluster.DefaultPort))), 10, 16)
	if err != nil {
		errs = append(errs, fmt.Errorf("LIVESERVER_PORT: %w", err))
	}
	f.envErr = errors.Join(errs...)

	fs.BoolVarP(&f.eager, "eager", "e", eager, "mirror unsaved edits and reload on every change")
	fs.BoolVar(&f.public, "public", public, "listen on all interfaces instead of 127.0.0.1")
	fs.Uint16VarP(&f.port, "port", "p", uint16(port), "coordinator port")
	fs.StringVar(&f.logLevel, "log-level", getenv("LIVESERVER_LOG_LEVEL", "info"), "debug, info, warn or error")
}

// config validates the parsed flags.
func (f *flags) config() (config, error) {
	if f.envErr != nil {
		return config{}, f.envErr
	}
	if f.port == 0 {
		return config{}, errors.New("port 0 out of range")
	}
	level, err := parseLevel(f.logLevel)
	if err != nil {
		return config{}, err
	}
	return config{Eager: f.eager, Public: f.public, Port: f.port, LogLevel: level}, nil
}

// run serves one editor session on rwc, first making sure a coordinator
// is reachable on the base port.
func run(ctx context.Context, cfg config, logger *slog.Logger, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ensureCoordinator(ctx, cfg, logger)

	backend := lsp.NewBackend(lsp.Config{
		Eager:  cfg.Eager,
		Public: cfg.Public,
		Base:   cfg.Port,
		Logger: logger,
	})
	return backend.Serve(ctx, rwc)
}

// ensureCoordinator pings the base port and, when nothing answers, starts a
// coordinator there that lives as long as ctx.
//
// Two editors starting at once may both find the port silent; the loser's
// coordinator fails to bind, which is logged and otherwise harmless because
// the winner serves the same port.
//
// It waits briefly for the coordinator to answer so that the first
// initialize can already list taken ports. A coordinator that never comes up
// only degrades port allocation to local bind checks.
func ensureCoordinator(ctx context.Context, cfg config, logger *slog.Logger) {
	if cluster.Ping(ctx, cfg.Port) {
		logger.Debug("coordinator already running", "port", cfg.Port)
		return
	}

	logger.Info("starting coordinator", "port", cfg.Port)
	srv := dashboard.NewServer(dashboard.Config{Public: cfg.Public, Logger: logger})
	go func() {
		if err := srv.Run(ctx, cfg.Port); err != nil {
			logger.Warn("coordinator not started", "port", cfg.Port, "err", err)
		}
	}()

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 40),
		ctx,
	)
	err := backoff.Retry(func() error {
		if !cluster.Ping(ctx, cfg.Port) {
			return errors.New("coordinator not answering")
		}
		return nil
	}, b)
	if err != nil {
		logger.Warn("coordinator unreachable", "port", cfg.Port, "err", err)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// stdio joins stdin and stdout into the stream the editor talks over.
type stdio struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s stdio) Close() error {
	return errors.Join(s.in.Close(), s.out.Close())
}
