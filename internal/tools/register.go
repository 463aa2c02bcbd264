package tools

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/policydesk/policydesk/internal/rag"
)

// Tool names shared by the Genkit and MCP registrations.
const (
	RetrieveToolName = "retrieve_policy_chunks"
	AnswerToolName   = "answer_from_context"
)

// Tool descriptions shared by the Genkit and MCP registrations.
const (
	RetrieveDescription = "Search company policy documents for chunks relevant to a question. " +
		"Runs a broad semantic search, keeps the top matching files, then searches " +
		"again restricted to those files. Returns the matching chunks with their " +
		"file names and chunk positions."

	AnswerDescription = "Answer a question using only previously retrieved policy chunks. " +
		"Takes the output of " + RetrieveToolName + " and produces a grounded answer " +
		"with numbered citations and the sources used."
)

// Register registers the retrieval and answer tools with Genkit and returns
// them for use in agentic generation.
func Register(g *genkit.Genkit, svc *Service) []ai.Tool {
	retrieve := genkit.DefineTool(g, RetrieveToolName, RetrieveDescription,
		func(ctx *ai.ToolContext, in RetrieveInput) (rag.RetrievalPayload, error) {
			return svc.RetrievePolicyChunks(toolCtx(ctx), in)
		})

	answer := genkit.DefineTool(g, AnswerToolName, AnswerDescription,
		func(ctx *ai.ToolContext, in AnswerInput) (AnswerOutput, error) {
			return svc.AnswerFromContext(toolCtx(ctx), in)
		})

	return []ai.Tool{retrieve, answer}
}

// toolCtx extracts the request context from a tool invocation.
func toolCtx(ctx *ai.ToolContext) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx.Context
}
