package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/workspace"
)

// ErrBind reports that the preview port could not be bound. It wraps the
// listen error.
var ErrBind = errors.New("preview bind failed")

// AnnounceFunc registers a bound preview server with the coordinator.
type AnnounceFunc func(ctx context.Context, base uint16, req cluster.RegisterRequest) error

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Workspace *workspace.Workspace
	Server    Server
	Base      uint16 // Coordinator port
	Public    bool   // Listen on all interfaces
	Logger    *slog.Logger

	// OnBound is called each time the server binds a port.
	OnBound func(port uint16)

	// Announce defaults to cluster.Announce.
	Announce AnnounceFunc

	// MaxRestartDelay caps the wait between attempts. Default 2s.
	MaxRestartDelay time.Duration
}

// Supervisor keeps one workspace's preview server running. It starts on the
// workspace's current port and moves to the next port whenever binding or
// serving fails.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger
}

// NewSupervisor creates a supervisor. Nothing runs until Run.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Announce == nil {
		cfg.Announce = cluster.Announce
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = 2 * time.Second
	}
	return &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger.With("workspace", cfg.Workspace.Name),
	}
}

// Run serves until ctx is cancelled and then returns ctx's error.
func (s *Supervisor) Run(ctx context.Context) error {
	ws := s.cfg.Workspace
	delay := newRestartBackOff(s.cfg.MaxRestartDelay)

	for {
		port := ws.Port()
		bound, err := s.serveOnce(ctx, port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrBind) {
			s.logger.Warn("preview port busy, trying next", "port", port, "err", err)
		} else {
			s.logger.Error("preview server stopped, restarting on next port", "port", port, "err", err)
		}
		ws.SetPort(s.nextPort(port))

		select {
		case <-time.After(restartDelay(delay, bound)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// newRestartBackOff grows from 20ms to limit and never gives up.
func newRestartBackOff(limit time.Duration) *backoff.ExponentialBackOff {
	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = 20 * time.Millisecond
	delay.MaxInterval = limit
	delay.MaxElapsedTime = 0
	delay.RandomizationFactor = 0
	delay.Reset()
	return delay
}

// restartDelay returns the wait before the next attempt. A serve that bound
// its port starts the sequence over; only consecutive bind failures grow it.
func restartDelay(delay *backoff.ExponentialBackOff, bound bool) time.Duration {
	if bound {
		delay.Reset()
	}
	return delay.NextBackOff()
}

// serveOnce binds port and serves on it, reporting whether the bind
// succeeded. A nil error from the server without ctx being cancelled still
// counts as a stop.
func (s *Supervisor) serveOnce(ctx context.Context, port uint16) (bool, error) {
	ln, err := s.listen(port)
	if err != nil {
		return false, err
	}
	if s.cfg.OnBound != nil {
		s.cfg.OnBound(port)
	}
	go s.announce(ctx, port)

	if err := s.cfg.Server.Serve(ctx, ln, s.cfg.Workspace); err != nil {
		return true, err
	}
	return true, errors.New("preview server returned")
}

func (s *Supervisor) listen(port uint16) (net.Listener, error) {
	host := "127.0.0.1"
	if s.cfg.Public {
		host = ""
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", ErrBind, port, err)
	}
	return ln, nil
}

func (s *Supervisor) announce(ctx context.Context, port uint16) {
	req := cluster.RegisterRequest{Name: s.cfg.Workspace.Name, Port: port}
	if err := s.cfg.Announce(ctx, s.cfg.Base, req); err != nil && ctx.Err() == nil {
		s.logger.Warn("could not announce preview server", "port", port, "err", err)
		return
	}
	s.logger.Debug("announced preview server", "port", port)
}

// nextPort advances past port, wrapping to just above the coordinator port.
func (s *Supervisor) nextPort(port uint16) uint16 {
	if port == 65535 {
		return s.cfg.Base + 1
	}
	return port + 1
}
