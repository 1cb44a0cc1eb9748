package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/quizgen/internal/cache"
	"github.com/spherical/quizgen/internal/orchestrator"
	"github.com/spherical/quizgen/internal/statusapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve batch history and live progress over HTTP",
	Long: `Serve exposes the batch ledger as JSON and streams progress events as
server-sent events. Live progress needs the redis cache driver, which
carries events from run to this server.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Status.Addr
	}

	var store statusapi.BatchStore
	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
		store = ledger
	}

	hub := statusapi.NewHub(64, logger)
	cacheClient, err := openCache()
	if err != nil {
		return err
	}
	defer cacheClient.Close()
	if rc, ok := cacheClient.(*cache.RedisClient); ok {
		msgs, unsubscribe, err := rc.Subscribe(ctx, orchestrator.AllProgressChannel)
		if err != nil {
			return err
		}
		defer unsubscribe()
		go hub.Feed(ctx, msgs)
	} else {
		logger.Warn().Msg("Cache driver is not redis, /events will stay silent")
	}

	srv := &http.Server{
		Addr:        addr,
		Handler:     statusapi.NewRouter(store, hub, logger),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Bool("ledger", store != nil).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server error")
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}
