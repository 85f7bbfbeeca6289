package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/injuryrisk/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	baseURL := flag.String("url", os.Getenv("INJURYRISK_URL"), "base URL of a running injuryrisk server")
	apiKey := flag.String("api-key", os.Getenv("INJURYRISK_API_KEY"), "API key sent as X-API-Key")
	userID := flag.Int("user-id", 1, "user the tools act for")
	flag.Parse()

	// stdout carries the MCP protocol
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *baseURL == "" || *userID <= 0 {
		fmt.Fprintf(os.Stderr, "Usage: injuryrisk-mcp -url http://host:8080 [-api-key KEY] [-user-id N]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	client := mcp.NewHTTPClient(*baseURL, *apiKey)
	s := mcp.New(client, Version, log)

	log.Info("serving MCP over stdio", "url", *baseURL, "user_id", *userID)
	err := server.ServeStdio(s, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return mcp.WithUserID(ctx, *userID)
	}))
	if err != nil {
		log.Error("stdio server stopped", "error", err)
		os.Exit(1)
	}
}
