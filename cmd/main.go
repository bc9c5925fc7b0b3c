package main

import (
	"os"
	"os/signal"
	"syscall"

	"poolvault/internal/bootstrap"
	"poolvault/pkg/logger"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()
	defer logger.Sync()

	log := container.Log

	if err := container.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// Wait for shutdown signal or fatal component failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infow("Shutdown signal received", "signal", sig)
	case <-container.Context.Done():
		log.Warn("Component failure, shutting down")
	}

	container.Shutdown()
}
