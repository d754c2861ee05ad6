package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardhouse/roomhub/internal/logger"
	"github.com/cardhouse/roomhub/internal/server"
	"github.com/cardhouse/roomhub/internal/tcpserver"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := server.SetConfig(server.NewConfigFromEnv())

	logHandler := logger.Init(cfg.Debug)
	defer func() {
		_ = logHandler.Close()
	}()

	logger.Info("Starting roomhub server...")

	hub := server.NewHub()
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A bind failure on either listener is fatal: operators fix the
	// configuration and restart, there is no retry.
	tcpErr := make(chan error, 1)
	go func() {
		tcpErr <- tcpserver.Serve(ctx, cfg, hub)
	}()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- server.StartServer(httpServer)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-tcpErr:
		if err != nil {
			logger.FatalF("TCP server failed: %v", err)
			exitCode = 1
		}
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalF("HTTP server failed: %v", err)
			exitCode = 1
		}
	}
	stop()

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logger.WarnF("HTTP shutdown incomplete: %v", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.WarnF("Hub shutdown incomplete: %v", err)
	}

	_ = logHandler.Close()
	os.Exit(exitCode)
}
