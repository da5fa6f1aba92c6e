// Command coordinator runs the live preview dashboard on its own. The
// language server starts an in-process coordinator when none is running, so
// this binary is only needed to keep the dashboard up independently of any
// editor session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dreamware/liveserver/internal/cluster"
	"github.com/dreamware/liveserver/internal/coordinator"
	"github.com/dreamware/liveserver/internal/dashboard"
)

type config struct {
	Port      uint16
	Public    bool
	Heartbeat time.Duration
	LogLevel  slog.Level
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinator: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("coordinator failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	srv := dashboard.NewServer(dashboard.Config{
		Public:            cfg.Public,
		HeartbeatInterval: cfg.Heartbeat,
		Logger:            logger,
	})
	return srv.Run(ctx, cfg.Port)
}

func loadConfig() (config, error) {
	port, err := strconv.ParseUint(getenv("COORDINATOR_PORT", strconv.Itoa(int(cluster.DefaultPort))), 10, 16)
	if err != nil {
		return config{}, fmt.Errorf("COORDINATOR_PORT: %w", err)
	}
	public, err := strconv.ParseBool(getenv("COORDINATOR_PUBLIC", "false"))
	if err != nil {
		return config{}, fmt.Errorf("COORDINATOR_PUBLIC: %w", err)
	}
	heartbeat, err := time.ParseDuration(getenv("COORDINATOR_HEARTBEAT", coordinator.DefaultHeartbeatInterval.String()))
	if err != nil {
		return config{}, fmt.Errorf("COORDINATOR_HEARTBEAT: %w", err)
	}
	level, err := parseLevel(getenv("LIVESERVER_LOG_LEVEL", "info"))
	if err != nil {
		return config{}, err
	}
	return config{
		Port:      uint16(port),
		Public:    public,
		Heartbeat: heartbeat,
		LogLevel:  level,
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("LIVESERVER_LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
