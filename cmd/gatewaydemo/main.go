// Command gatewaydemo wires a Session Manager to a static gateway registry
// and a read-only HTTP status API, mirroring the teacher's gateway daemon's
// config-load -> build-managers -> serve -> graceful-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sensemesh/gatewayclient/internal/config"
	"github.com/sensemesh/gatewayclient/internal/gatewayproto"
	"github.com/sensemesh/gatewayclient/internal/gatewaysession"
	"github.com/sensemesh/gatewayclient/internal/httpapi"
	"github.com/sensemesh/gatewayclient/internal/readingstore"
	"github.com/sensemesh/gatewayclient/internal/registry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (defaults to built-in tunables and env overrides)")
		listenAddr = flag.String("listen", ":8080", "HTTP status API listen address")
	)
	flag.Parse()

	initLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel)

	slog.Info("starting gateway client",
		"maxReconnectAttempts", cfg.MaxReconnectAttempts,
		"reconnectDelayMs", cfg.ReconnectDelayMs,
	)

	reg := loadRegistryFromEnv()
	store := readingstore.NewStore()
	dialer := gatewaysession.NewRealDialer(cfg.HandshakeTimeout())
	mgr := gatewaysession.NewManager(cfg, store, reg, dialer)

	mgr.On(gatewaysession.EventStatusChange, func(ev gatewaysession.Event) {
		change := ev.Payload.(gatewaysession.StatusChangePayload)
		slog.Info("gateway status change", "gatewayId", ev.GatewayID, "from", change.From, "to", change.To)
	})
	mgr.On(gatewaysession.EventError, func(ev gatewaysession.Event) {
		if gwErr, ok := ev.Payload.(*gatewayproto.Error); ok {
			slog.Warn("gateway error", "gatewayId", ev.GatewayID, "error", gwErr.Error())
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	descriptors, err := reg.List(ctx)
	if err != nil {
		slog.Error("failed to list gateway registry", "error", err)
		os.Exit(1)
	}
	for _, d := range descriptors {
		if !mgr.Connect(ctx, d.ID) {
			slog.Warn("initial connect did not start", "gatewayId", d.ID)
		}
	}

	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      httpapi.NewRouter(mgr),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP status API listening", "addr", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-errCh:
		slog.Error("server error, shutting down", "error", err)
	}

	mgr.Cleanup()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway client shut down cleanly")
}

// loadRegistryFromEnv seeds a StaticRegistry from GATEWAY_ID/GATEWAY_URL/
// GATEWAY_USERNAME/GATEWAY_PASSWORD when set, so the demo binary can connect
// to one real gateway without a provisioning service (out of scope per
// spec.md §1).
func loadRegistryFromEnv() *registry.StaticRegistry {
	reg := registry.NewStaticRegistry()

	id := os.Getenv("GATEWAY_ID")
	url := os.Getenv("GATEWAY_URL")
	if url == "" {
		slog.Warn("GATEWAY_URL not set; starting with an empty registry")
		return reg
	}
	if id == "" {
		id = uuid.NewString()
		slog.Info("GATEWAY_ID not set; generated one for this run", "gatewayId", id)
	}

	reg.Put(gatewayproto.GatewayDescriptor{
		ID:       id,
		URL:      url,
		Username: os.Getenv("GATEWAY_USERNAME"),
		Password: os.Getenv("GATEWAY_PASSWORD"),
	})
	return reg
}

func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
