package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skilld/internal/server"
	"github.com/fyrsmithlabs/skilld/internal/watch"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// serveCmd runs the skilld daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the skilld HTTP server",
	Long: `Run the skilld HTTP server for the detected project context.

The server watches the skillbook directory and reloads the merged view
when an external writer changes a layer file.

Examples:
  # Serve the skillbook for the current directory
  skilld serve

  # Serve for another project on another port
  SKILLD_SERVER_PORT=9291 skilld serve --dir ~/src/api`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := server.NewServer(svc, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, cfg.Skillbook.TopK)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	watcher, err := watch.New(cfg.Skillbook.BaseDir, logger)
	if err != nil {
		// Reload-on-change is a convenience; the server still works
		// without it.
		logger.Warn("skillbook watcher unavailable", zap.Error(err))
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
		go reloadOnChange(ctx, watcher, svc, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	logger.Info("server shutdown complete")
	return nil
}

// reloadOnChange reloads the merged skillbook whenever a layer file
// changes on disk. Events are debounced by draining the channel before
// each reload.
func reloadOnChange(ctx context.Context, w *watch.Watcher, svc reloader, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			drain(w.Events())
			n, err := svc.Reload()
			if err != nil {
				logger.Warn("skillbook reload failed",
					zap.String("path", ev.Path),
					zap.Error(err))
				continue
			}
			logger.Info("skillbook reloaded",
				zap.String("path", ev.Path),
				zap.Int("skills", n))
		}
	}
}

type reloader interface {
	Reload() (int, error)
}

func drain(ch <-chan watch.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
