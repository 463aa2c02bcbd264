// Package cmd provides CLI commands for Policydesk.
//
// Commands:
//   - serve: HTTP API server for the chat endpoint
//   - mcp: Model Context Protocol server exposing the retrieval tools
//   - migrate: run pending database migrations and exit
//
// Signal handling and graceful shutdown are implemented for all
// long-running commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the Policydesk CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(os.Args[2:])
	case "mcp":
		return runMCP()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Policydesk - Policy document chat backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  policydesk serve [addr]  Start HTTP API server (default: :8080)")
	fmt.Println("  policydesk mcp           Start MCP server (stdio transport)")
	fmt.Println("  policydesk migrate       Run database migrations and exit")
	fmt.Println("  policydesk --version     Show version information")
	fmt.Println("  policydesk --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY           Required for the gemini provider")
	fmt.Println("  OPENAI_API_KEY           Required for the openai provider")
	fmt.Println("  POLICYDESK_DATABASE_URL  Optional: full postgres:// connection URL")
	fmt.Println("  DEBUG                    Optional: enable debug logging")
}
