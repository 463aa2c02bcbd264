package rag

// answer.go turns a retrieval result plus chat history into a grounded
// answer. Prompt assembly is deterministic and unit-testable; the only
// side effect is the single hosted model call through ModelCaller.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// SystemPrompt is the base instruction for the policy assistant. The
// citation token format here must match CitationToken.
const SystemPrompt = `You are a policy assistant.
Your goal is to help users find information on specific policies based on the provided context.
You must respond to user queries using ONLY the provided context.
If the context does not contain enough information, say you don't have enough information from the documents.
Do NOT guess or invent policy details.

Always cite sources by file_name and chunk when available.
When you use information, cite the sources in brackets like [file_name#chunk_part].
Example: "... per the policy ..." [parental_leave_policy#12]

Be concise and helpful.`

// insufficientContextReply is the fixed sentence the model is told to emit
// when the context cannot support an answer.
const insufficientContextReply = "I'm sorry but I will need a bit more information to answer that question clearly"

// ModelCaller invokes the hosted model with a system instruction and an
// ordered message sequence. Interface defined by the consumer; llm.Client
// provides the production implementation over Genkit.
type ModelCaller interface {
	Call(ctx context.Context, system string, messages []*ai.Message) (*ai.ModelResponse, error)
}

// AnswerOptions tunes one generation call. Zero fields take defaults.
type AnswerOptions struct {
	HistoryMaxTurns   int    // default DefaultHistoryMaxTurns
	MaxSnippetChars   int    // default DefaultMaxSnippetChars
	ExtraInstructions string // appended to the system prompt after a blank line
}

// Generator produces grounded answers from retrieval results.
// Stateless and safe for concurrent use.
type Generator struct {
	model  ModelCaller
	logger *slog.Logger
}

// NewGenerator creates a Generator over the given model client.
func NewGenerator(model ModelCaller, logger *slog.Logger) (*Generator, error) {
	if model == nil {
		return nil, errors.New("model caller is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, logger: logger}, nil
}

// GenerateAnswer builds the grounding context from retrieval, assembles the
// message sequence, and invokes the model once. Model failures are wrapped
// in ErrGenerationUnavailable and never retried here; there is no partial
// answer fallback.
func (g *Generator) GenerateAnswer(ctx context.Context, query string, retrieval *TwoStepRetrievalResult, history []Turn, opts AnswerOptions) (*AnswerResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if retrieval == nil {
		return nil, errors.New("retrieval result is required")
	}

	system, messages := assembleMessages(query, retrieval, history, opts)

	g.logger.Debug("generating answer",
		"mode", retrieval.Mode,
		"narrow_hits", len(retrieval.NarrowHits),
		"history_messages", len(messages)-1,
	)

	resp, err := g.model.Call(ctx, system, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}

	answer := resp.Text()
	if strings.TrimSpace(answer) == "" && resp.Message != nil {
		// No textual part in the reply; keep whatever the model produced
		// rather than dropping the turn.
		answer = fmt.Sprint(resp.Message)
	}

	return &AnswerResult{
		Answer:    strings.TrimSpace(answer),
		Sources:   SourcesFromHits(retrieval.NarrowHits),
		Retrieval: retrieval,
	}, nil
}

// assembleMessages produces the system instruction and the ordered message
// sequence [history..., final user turn]. The final user turn embeds the
// grounding instructions, the context block, and the live question. If the
// last normalized history entry is a user turn whose content equals the
// live query (after trimming), it is dropped so the question is not
// duplicated.
func assembleMessages(query string, retrieval *TwoStepRetrievalResult, history []Turn, opts AnswerOptions) (string, []*ai.Message) {
	maxTurns := opts.HistoryMaxTurns
	if maxTurns == 0 {
		maxTurns = DefaultHistoryMaxTurns
	}
	maxSnippet := opts.MaxSnippetChars
	if maxSnippet == 0 {
		maxSnippet = DefaultMaxSnippetChars
	}

	system := SystemPrompt
	if extra := strings.TrimSpace(opts.ExtraInstructions); extra != "" {
		system = system + "\n\n" + extra
	}

	turns := NormalizeHistory(history, maxTurns)
	if n := len(turns); n > 0 && turns[n-1].Role == RoleUser && turns[n-1].Content == strings.TrimSpace(query) {
		turns = turns[:n-1]
	}

	messages := make([]*ai.Message, 0, len(turns)+1)
	for _, t := range turns {
		messages = append(messages, &ai.Message{
			Role:    aiRole(t.Role),
			Content: []*ai.Part{ai.NewTextPart(t.Content)},
		})
	}

	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(userPrompt(query, retrieval, maxSnippet))))
	return system, messages
}

// userPrompt renders the final user turn: grounding rules, the context
// block, and the question.
func userPrompt(query string, retrieval *TwoStepRetrievalResult, maxSnippetChars int) string {
	return fmt.Sprintf(
		"Answer the question using ONLY the context below.\n"+
			"If the context is insufficient, tell the user '%s'.\n"+
			"Cite sources like [file_name#chunk_part].\n\n"+
			"=== CONTEXT ===\n%s\n\n"+
			"=== QUESTION ===\n%s",
		insufficientContextReply,
		BuildContext(retrieval, maxSnippetChars),
		query,
	)
}

func aiRole(role string) ai.Role {
	switch role {
	case RoleAssistant:
		return ai.RoleModel
	case RoleSystem:
		return ai.RoleSystem
	default:
		return ai.RoleUser
	}
}
