package main

import (
	"chat-relay/infrastructure/server"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives.
// Deferred cleanups (store close) run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Message store, chosen once
	store := storage.Open(ctx, config.StoreOptions(), log)
	defer func() {
		log.Info("Closing message store...")
		if err := store.Close(); err != nil {
			log.Warn("Message store close failed", "error", err)
		}
	}()

	// 4. Core
	monitor := observability.NewMonitor(store.Mode())
	registry := runtime.NewRegistry()
	coordinator := runtime.NewCoordinator(log, registry, runtime.NewTypingAggregator(registry), store, monitor,
		runtime.CoordinatorConfig{
			StoreTimeout:      config.StoreTimeout,
			HistoryLimit:      config.HistoryLimit,
			MaxMessageLength:  config.MaxMessageLength,
			MaxUsernameLength: config.MaxUsernameLength,
		})
	chatService := services.NewChatService(coordinator, store, monitor, config.HistoryLimit, config.StoreTimeout)

	// 5. Transport
	wsHandler := websocket.NewHandler(ctx, log, coordinator, websocket.Config{
		AllowedOrigins: config.Origins(),
		BufferSize:     config.ConnectionBufferSize,
		MaxFrameSize:   config.MaxFrameSize,
	})
	httpServer := server.CreateServer(config.Address(), server.SetupRoutes(log, chatService, wsHandler))

	// 6. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		server.NewHTTPWorker(log, httpServer, wsHandler, config.ShutdownTimeout),
		workers.NewHealthMonitoringWorker(log, store, coordinator, monitor, config.HealthInterval, config.StoreTimeout),
	)

	log.Info("Relay starting", "address", config.Address(), "store_mode", store.Mode())
	sup.Run(ctx)

	if ctx.Err() == nil {
		return exitRuntime, fmt.Errorf("workers stopped unexpectedly")
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}
