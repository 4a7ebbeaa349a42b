package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stageline/internal/app"
	stagelinemcp "stageline/internal/mcp"
	"stageline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var requireAuth, allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Serve the JSON API (OpenAPI at <base-path>/openapi.json, Swagger UI at <base-path>/docs).

Requests are attributed to an actor from a bearer JWT (sub claim), an X-Api-Key
created with 'stageline apikey create', or, when allowed, an X-Actor-Id header.
The JWT secret comes from server.jwt_secret in the config or STAGELINE_JWT_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			lock, err := app.AcquireWriterLock(workspace)
			if err != nil {
				return err
			}
			defer lock.Release()

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			if !cmd.Flags().Changed("addr") && ws.Config.Server.Addr != "" {
				addr = ws.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && ws.Config.Server.BasePath != "" {
				basePath = ws.Config.Server.BasePath
			}
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				secret = ws.Config.Server.JWTSecret
			}
			if requireAuth && secret == "" {
				ws.Logger.Warn("auth required but no JWT secret configured; only API keys will be accepted")
			}
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Logger:   ws.Logger,
				Auth: server.AuthConfig{
					JWTSecret:        secret,
					AllowActorHeader: allowActorHeader,
					RequireAuth:      requireAuth,
					Logger:           ws.Logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			ws.Logger.Info("serving stageline api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.String("lock", lock.Path()))
			fmt.Printf("Serving Stageline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", false, "reject requests without credentials")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", true, "accept X-Actor-Id for attribution")
	_ = viper.BindEnv("jwt-secret", "STAGELINE_JWT_SECRET")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server (stdio transport)",
		Long: `Run stageline as a Model Context Protocol server over stdio.

Configure in your agent's MCP settings:
  {
    "mcpServers": {
      "stageline": {
        "command": "stageline",
        "args": ["mcp", "--workspace", "/path/to/workspace"]
      }
    }
  }

Available tools: start_timer, stop_timer, running_timer, log_time, list_items,
move_stage, set_hold, item_stats, attention`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := app.AcquireWriterLock(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer lock.Release()

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			srv := stagelinemcp.NewServer(version, ws.Engine, actorID())
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
