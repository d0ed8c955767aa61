// Package main is the entry point for the Grizabella MCP server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pwilkin/grizabella/internal/config"
	"github.com/pwilkin/grizabella/internal/engine"
	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/mcpserver"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/pkg/version"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	mcpserversdk "github.com/ThinkInAIXYZ/go-mcp/server"
	mcptransport "github.com/ThinkInAIXYZ/go-mcp/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 2
	}
	if err := cfg.SetupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instanceRoot, err := cfg.InstanceRoot()
	if err != nil {
		slog.Error("resolve instance root", "error", err)
		return 1
	}

	pool := store.NewPool()
	defer pool.Drain()
	adapters, err := store.Open(ctx, pool, cfg.BackendConfig(instanceRoot))
	if err != nil {
		slog.Error("open store adapters", "error", err)
		return 1
	}

	eng, err := engine.Open(ctx, adapters, cfg.EmbedderConfig())
	if err != nil {
		slog.Error("open engine", "error", err)
		_ = adapters.Close()
		return 1
	}
	defer eng.Close()

	if cfg.MCPStreamableHTTP {
		// go-mcp's Streamable HTTP transport is not wired in this build; the
		// flag is reserved for a future release. Fall through to stdio.
		slog.Warn("mcp-http requested but not yet implemented; falling back to stdio")
	}

	t := mcptransport.NewStdioServerTransport()
	log.Println("Starting MCP over stdio")

	srv, err := mcpserversdk.NewServer(
		t,
		mcpserversdk.WithServerInfo(protocol.Implementation{
			Name:    "grizabella",
			Version: version.Version,
		}),
		mcpserversdk.WithInstructions("Grizabella knowledge engine is ready."),
	)
	if err != nil {
		slog.Error("create MCP server", "error", err)
		return 1
	}

	tools := mcpserver.NewToolManager(eng)
	if err := tools.RegisterTools(srv); err != nil {
		slog.Error("register MCP tools", "error", err)
		return 1
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Run(); err != nil {
		slog.Error("server run error", "error", err)
		if ge, ok := grizerr.As(err); ok {
			return ge.ExitCode()
		}
		return 1
	}
	return 0
}
