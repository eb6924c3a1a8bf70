package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ticketline/internal/app"
	"ticketline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv("TICKETLINE_JWT_SECRET"),
					AllowLegacyActorHeader: cfg.Server.AllowLegacyActorHeader,
					EnableDevLogin:         devLogin,
					Logger:                 rt.Logger,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("TICKETLINE_JWT_SECRET is required for bearer auth")
				}
				if authCfg.AllowLegacyActorHeader {
					rt.Logger.Warn("server.allow_legacy_actor_header is on: X-Actor-Id is trusted without authentication")
				}
				handler, err := server.New(server.Config{
					Engine:    rt.Engine,
					BasePath:  basePath,
					Auth:      authCfg,
					RateLimit: server.RateLimit{RPS: cfg.Server.RateLimit.RPS, Burst: cfg.Server.RateLimit.Burst},
					Logger:    rt.Logger,
				})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(ctx, rt.Engine, cfg.Webhooks.Hooks, rt.Logger)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving", "addr", addr, "base_path", basePath, "openapi", basePath+"/openapi.json", "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "DEV ONLY: expose POST <base>/auth/dev/login")
	return cmd
}
