package cli

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
	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/searchlight/internal/core/services"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync scheduler and HTTP API",
	Long: `Runs searchlight as a long-lived process: a sync cycle fires
immediately and then on the configured interval, and the search API is
served over HTTP until the process is interrupted. Overlapping cycles
are skipped, not queued.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if runtime == nil {
		return errors.New("serve requires configuration; set --config or SEARCHLIGHT_CONFIG")
	}
	if searchService == nil || syncOrchestrator == nil {
		return errors.New("search and sync services not configured")
	}

	cfg := runtime.cfg
	logger := runtime.logger

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	server, err := httpapi.NewServer(searchService, syncOrchestrator, logger, &httpapi.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	scheduler := services.NewScheduler(cfg.Sync.Interval.Duration(), syncOrchestrator, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	cmd.Printf("Serving on %s:%d, syncing every %s. Press Ctrl+C to stop.\n",
		host, port, cfg.Sync.Interval.Duration())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(); err != nil {
		logger.Warn("scheduler stop", zap.Error(err))
	}

	return runErr
}
