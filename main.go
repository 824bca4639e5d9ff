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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"i4.energy/across/btconf/param"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "btconf:", err)
		stop()
		os.Exit(1)
	}
}

// serve runs the HTTP control API until ctx is canceled
func serve(ctx context.Context, config *Config, catalog *param.Catalog, logger *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	server := NewServer(config, catalog, logger.With(zap.String("component", "server")))
	httpServer := &http.Server{
		Addr:    config.HTTP.BindAddress,
		Handler: server.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	logger.Info("Closing module connection")
	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", zap.Error(err))
		return err
	}
	return nil
}
