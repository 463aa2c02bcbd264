// Package app provides application initialization and dependency wiring.
//
// App is the container that holds every long-lived component: the Genkit
// runtime, the database pool, the retrieval pipeline, and the chat
// orchestrator. Setup builds it in dependency order; Close releases
// resources in reverse.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/policydesk/policydesk/internal/chat"
	"github.com/policydesk/policydesk/internal/chunkstore"
	"github.com/policydesk/policydesk/internal/config"
	"github.com/policydesk/policydesk/internal/history"
	"github.com/policydesk/policydesk/internal/rag"
	"github.com/policydesk/policydesk/internal/tools"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	// Retrieval pipeline
	Chunks    *chunkstore.Store
	Retriever *rag.Retriever
	Generator *rag.Generator

	// Chat surface
	History *history.Store
	Chat    *chat.Orchestrator

	// Tool surface, shared by Genkit and MCP
	ToolService *tools.Service
	Tools       []ai.Tool

	// Cleanup hooks, run in reverse registration order
	otelCleanup func()
	dbCleanup   func()
}

// AnswerOptions returns the generation options derived from configuration.
func (a *App) AnswerOptions() rag.AnswerOptions {
	return rag.AnswerOptions{
		HistoryMaxTurns:   a.Config.HistoryMaxTurns,
		MaxSnippetChars:   a.Config.MaxSnippetChars,
		ExtraInstructions: a.Config.ExtraInstructions,
	}
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}
