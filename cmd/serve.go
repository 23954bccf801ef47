package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/api"
	"github.com/sells-group/feerecon/internal/task"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fee reconciliation HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		retention := time.Duration(cfg.Tasks.RetentionMinutes) * time.Minute
		tracker := task.NewTracker(ctx, task.NewMemoryRegistry(), env.Pipeline, retention)
		tracker.StartSweeper(ctx, time.Duration(cfg.Tasks.SweepIntervalSecs)*time.Second)

		server := api.NewServer(tracker, env.Store, api.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		})
		srv := server.NewHTTPServer(fmt.Sprintf(":%d", cfg.Server.Port))

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		tracker.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
