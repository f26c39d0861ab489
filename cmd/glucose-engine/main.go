// cmd/glucose-engine/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glucose-engine/internal/server"
)

var (
	port          = flag.Int("port", 8012, "Port for HTTP transport")
	host          = flag.String("host", "0.0.0.0", "Host address")
	dbPath        = flag.String("db-path", "/data/glucose-engine.db", "Database path")
	gatewayURL    = flag.String("gateway-url", os.Getenv("GLUCOSE_GATEWAY_URL"), "Completion gateway base URL (empty disables the external model)")
	gatewayModel  = flag.String("gateway-model", os.Getenv("GLUCOSE_GATEWAY_MODEL"), "Completion model identifier")
	biasWindow    = flag.Int("bias-window", 10, "Number of recent corrections averaged into the user bias")
	retryAttempts = flag.Int("retry-attempts", 3, "External model attempts before falling back")
	version       = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("glucose-engine version 1.0.0")
		os.Exit(0)
	}

	config := &server.Config{
		Host:          *host,
		Port:          *port,
		DBPath:        *dbPath,
		GatewayURL:    *gatewayURL,
		GatewayAPIKey: os.Getenv("GLUCOSE_GATEWAY_API_KEY"),
		GatewayModel:  *gatewayModel,
		BiasWindow:    *biasWindow,
		RetryAttempts: *retryAttempts,
		RetryBackoff:  500 * time.Millisecond,
	}

	srv, err := server.NewGlucoseServer(config)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		slog.Info("received shutdown signal")
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	cancel()
	if err := srv.Stop(); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}
