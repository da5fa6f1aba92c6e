// Package dashboard serves the coordinator's HTTP surface: the discovery
// protocol used by preview-server instances and the live dashboard page.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/coordinator"
)

// Config fixes the coordinator's behavior at start; there is no reload.
type Config struct {
	// Public exposes every endpoint beyond loopback.
	Public bool

	// HeartbeatInterval overrides coordinator.DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server owns the registry, the broadcaster and the heartbeat monitor and
// exposes them over HTTP.
type Server struct {
	registry *coordinator.Registry
	events   *coordinator.Broadcaster
	monitor  *coordinator.HeartbeatMonitor
	probe    coordinator.ProbeFunc
	logger   *slog.Logger
	router   *httprouter.Router
	public   bool
}

// NewServer wires a fresh registry, broadcaster and heartbeat monitor.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := coordinator.NewRegistry()
	events := coordinator.NewBroadcaster(coordinator.DefaultHistory)
	monitor := coordinator.NewHeartbeatMonitor(registry, events, cfg.HeartbeatInterval)
	monitor.SetLogger(logger)

	s := &Server{
		registry: registry,
		events:   events,
		monitor:  monitor,
		probe:    coordinator.NewProber(coordinator.DefaultProbeTimeout).Probe,
		logger:   logger,
		router:   httprouter.New(),
		public:   cfg.Public,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.POST("/ping", s.handlePing)
	s.router.POST("/register", s.handleRegister)
	s.router.POST("/ports", s.handlePorts)
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/", s.handleIndex)
}

// SetProbeFunction replaces the liveness check used both by /register and
// by the heartbeat monitor.
func (s *Server) SetProbeFunction(probe coordinator.ProbeFunc) {
	s.probe = probe
	s.monitor.SetProbeFunction(probe)
}

// Registry exposes the registry for in-process callers and tests.
func (s *Server) Registry() *coordinator.Registry { return s.registry }

// Events exposes the broadcaster.
func (s *Server) Events() *coordinator.Broadcaster { return s.events }

// Monitor exposes the heartbeat monitor.
func (s *Server) Monitor() *coordinator.HeartbeatMonitor { return s.monitor }

// Handler returns the router wrapped in the loopback guard.
func (s *Server) Handler() http.Handler {
	return s.loopbackOnly(s.router)
}

// Run listens on port and serves until ctx is cancelled. The heartbeat
// monitor runs for as long as the listener does. A bind failure is returned
// immediately.
func (s *Server) Run(ctx context.Context, port uint16) error {
	host := "127.0.0.1"
	if s.public {
		host = ""
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return fmt.Errorf("coordinator listen on %d: %w", port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go s.monitor.Start(monitorCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("coordinator listening", "addr", ln.Addr().String(), "public", s.public)
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		s.logger.Info("coordinator stopped")
		return nil
	}
}

// loopbackOnly rejects requests from non-loopback peers before they reach a
// handler, unless the server is public. /ping stays open to everyone.
func (s *Server) loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.public || r.URL.Path == "/ping" || isLoopback(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		s.logger.Warn("rejected non-loopback request", "remote", r.RemoteAddr, "path", r.URL.Path)
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

// handleRegister validates the candidate by probing it and adds it to the
// registry. A failed probe is not an error: the request still answers 204
// and nothing is added.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Port == 0 {
		http.Error(w, "missing name/port", http.StatusBadRequest)
		return
	}
	u, err := candidateURL(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry := coordinator.Entry{Name: req.Name, URL: *u}
	if !s.probe(r.Context(), entry.URL) {
		s.logger.Info("declined registration, probe failed", "name", req.Name, "url", u.String())
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.registry.Add(entry) {
		s.logger.Info("registered preview server", "name", req.Name, "url", u.String())
		s.events.Publish(entry.Event(true))
	}
	w.WriteHeader(http.StatusNoContent)
}

// candidateURL builds the normalized base URL http://host:port/ of a
// register request.
func candidateURL(req cluster.RegisterRequest) (*url.URL, error) {
	server := req.Server
	if server == "" {
		server = cluster.DefaultServer
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server: %w", err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid server %q", server)
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(int(req.Port)))
	u.Path = "/"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (s *Server) handlePorts(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.PortEntries())
}
