package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/database"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/server"
)

var (
	libsqlURL    = flag.String("libsql-url", "", "libSQL database URL (default: file:./memory.db)")
	authToken    = flag.String("auth-token", "", "Authentication token for remote databases")
	transport    = flag.String("transport", "stdio", "Transport to use: stdio or sse")
	addr         = flag.String("addr", ":8080", "Address to listen on when using SSE transport")
	sseEndpoint  = flag.String("sse-endpoint", "/sse", "SSE endpoint path when using SSE transport")
	maintainSecs = flag.Int("maintain-interval-sec", 0, "When positive, run retention sweeps at this interval")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, closing server...")
		cancel()
	}()

	// Initialize database configuration
	config := database.NewConfig()

	// Initialize metrics (noop if disabled)
	metrics.InitFromEnv()

	// Override with command line flags if provided
	if *libsqlURL != "" {
		config.URL = *libsqlURL
	}
	if *authToken != "" {
		config.AuthToken = *authToken
	}

	store, err := database.NewStore(config)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	// Background retention sweeps, opt-in
	if *maintainSecs > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(*maintainSecs) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := store.Maintain(ctx); err != nil {
						log.Printf("Maintenance error: %v", err)
					}
				}
			}
		}()
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(store)

	// Run the server with selected transport
	log.Println("Starting MCP Temporal Memory server...")
	switch *transport {
	case "stdio":
		go func() {
			if err := mcpServer.Run(ctx); err != nil {
				log.Printf("Server error: %v", err)
			}
		}()
	case "sse":
		go func() {
			if err := mcpServer.RunSSE(ctx, *addr, *sseEndpoint); err != nil {
				log.Printf("SSE server error: %v", err)
			}
		}()
	default:
		log.Fatalf("unknown transport: %s (expected: stdio or sse)", *transport)
	}

	<-ctx.Done()

	log.Println("Server stopped")
}
