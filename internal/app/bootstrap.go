package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ticketline/internal/config"
	"ticketline/internal/db"
	"ticketline/internal/engine"
	"ticketline/internal/engine/escrow"
	"ticketline/internal/events"
	"ticketline/internal/migrate"
)

// NewLogger builds the process logger from the logging section.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Runtime is an opened workspace.
type Runtime struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
	Logger *slog.Logger
}

// Bootstrap opens the workspace database, applies migrations, seeds role
// grants from cfg and wires the event sinks.
func Bootstrap(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	eng.Logger = logger.With("component", "engine")
	sinks := []events.Sink{events.LogSink{Logger: logger.With("component", "events")}}
	if cfg.Redis.Addr != "" {
		sinks = append(sinks, events.NewRedisSink(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel))
	}
	eng.Sinks = events.Fanout{Sinks: sinks, Logger: eng.Logger}
	if eng.Withdrawal == escrow.ModeEither {
		logger.Warn("escrow.resolved_withdrawal is either: both parties may withdraw a resolved ticket regardless of the resolution")
	}
	if err := eng.SeedRoles(ctx, time.Now(), cfg.Roles.Admins, cfg.Roles.Resolvers); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	return &Runtime{DB: conn, Config: cfg, Engine: eng, Logger: logger}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
