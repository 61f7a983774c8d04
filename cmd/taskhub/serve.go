package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/taskflow-hub/realtime/api/handlers"
	"github.com/taskflow-hub/realtime/internal/db"
	"github.com/taskflow-hub/realtime/internal/devhub"
	"github.com/taskflow-hub/realtime/internal/repository"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local development hub",
		Long: `Start a hub that speaks the realtime protocol for local development.

Endpoints:
  GET  /health             liveness and connected client count
  GET  /hub                websocket (token "userId" or "userId:userName")
  POST /api/notifications  store a notification and push it to its user
  GET  /api/notifications  list a user's notifications (?userId=&unread=)
  POST /api/messages       push a named hub message to a group or everyone`,
		Example: `  taskhub serve --port 8080
  taskhub serve --db data/hub.db --allow-anonymous`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}

	cmd.Flags().String("host", "", "bind address")
	cmd.Flags().IntP("port", "p", 0, "listen port")
	cmd.Flags().String("db", "", "SQLite notification store")
	cmd.Flags().Bool("allow-anonymous", false, "accept connections without a token")
	cmd.Flags().Bool("cors", true, "send permissive CORS headers")
	a.bind("hub.host", cmd.Flags().Lookup("host"))
	a.bind("hub.port", cmd.Flags().Lookup("port"))
	a.bind("hub.db_path", cmd.Flags().Lookup("db"))
	a.bind("hub.allow_anonymous", cmd.Flags().Lookup("allow-anonymous"))
	a.bind("hub.cors_enabled", cmd.Flags().Lookup("cors"))

	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg.Hub

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.CloseDB()

	service := devhub.NewService(repository.NewNotificationRepository(database), cfg.AllowAnonymous, a.log)
	defer service.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.CORSEnabled {
		r.Use(corsMiddleware())
	}

	api := r.Group("/api")
	handlers.NewHubHandler(service, a.log).RegisterRoutes(r, api)
	handlers.NewNotificationHandler(service).RegisterRoutes(api)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("Starting development hub")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("Shutting down development hub...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown
	service.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
