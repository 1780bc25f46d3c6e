package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/latticehq/lattice/internal/infrastructure/config"
	"github.com/latticehq/lattice/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	modules := flag.String("modules", "", "App module directory (overrides MODULES_DIR)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *modules != "" {
		cfg.Modules.Dir = *modules
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
