package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/agent"
)

func main() {
	serverURL := os.Getenv("FLEET_SERVER")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	agentID := os.Getenv("AGENT_ID")
	if agentID == "" {
		log.Fatal("AGENT_ID environment variable is required")
	}

	mode := os.Getenv("HEARTBEAT_MODE")

	log.Printf("Starting Fleet Agent")
	log.Printf("Server: %s", serverURL)
	log.Printf("Agent ID: %s", agentID)

	a, err := agent.New(serverURL, agentID, mode)
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down agent...")
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("Agent error: %v", err)
	}
}
