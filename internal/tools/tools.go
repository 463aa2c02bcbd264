// Package tools exposes retrieval and grounded generation as callable
// tools. The same Service backs both the Genkit tool registry and the MCP
// server, so every surface shares one implementation.
//
// Tool payloads cross a serialization boundary: retrieval results travel as
// rag.RetrievalPayload, which drops the broad pass and truncates snippet
// text. A separate answer tool can therefore run in another process from
// the retrieval tool.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/policydesk/policydesk/internal/chat"
	"github.com/policydesk/policydesk/internal/rag"
)

// RetrieveInput is the input for the retrieve_policy_chunks tool.
// Zero knob values fall back to the retrieval defaults.
type RetrieveInput struct {
	Query  string `json:"query" jsonschema:"The question to search policy documents for"`
	BroadK int    `json:"broad_k,omitempty" jsonschema:"Broad pass size (default 25)"`
	FileK  int    `json:"file_k,omitempty" jsonschema:"Max unique files to keep (default 5)"`
	FinalK int    `json:"final_k,omitempty" jsonschema:"Narrow pass size (default 6)"`
}

// AnswerInput is the input for the answer_from_context tool.
type AnswerInput struct {
	Query     string               `json:"query" jsonschema:"The question to answer"`
	Retrieval rag.RetrievalPayload `json:"retrieval" jsonschema:"Retrieval payload from retrieve_policy_chunks"`
	History   []rag.Turn           `json:"history,omitempty" jsonschema:"Prior conversation turns, oldest first"`
}

// AnswerOutput is the output of the answer_from_context tool.
type AnswerOutput struct {
	Answer    string               `json:"answer"`
	Sources   []rag.Source         `json:"sources"`
	Retrieval rag.RetrievalPayload `json:"retrieval"`
}

// Service implements the tool operations.
type Service struct {
	retriever       chat.Retriever
	answerer        chat.Answerer
	opts            rag.AnswerOptions
	maxSnippetChars int
	logger          *slog.Logger
}

// NewService creates a Service. maxSnippetChars <= 0 uses the default.
func NewService(retriever chat.Retriever, answerer chat.Answerer, opts rag.AnswerOptions, maxSnippetChars int, logger *slog.Logger) *Service {
	if maxSnippetChars <= 0 {
		maxSnippetChars = rag.DefaultMaxSnippetChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever:       retriever,
		answerer:        answerer,
		opts:            opts,
		maxSnippetChars: maxSnippetChars,
		logger:          logger,
	}
}

// RetrievePolicyChunks runs the two-step funnel and returns the compact
// payload form of the result.
func (s *Service) RetrievePolicyChunks(ctx context.Context, in RetrieveInput) (rag.RetrievalPayload, error) {
	result, err := s.retriever.Retrieve(ctx, in.Query, rag.Params{
		BroadK: in.BroadK,
		FileK:  in.FileK,
		FinalK: in.FinalK,
	})
	if err != nil {
		return rag.RetrievalPayload{}, fmt.Errorf("retrieve: %w", err)
	}

	s.logger.Debug("tool retrieval complete",
		"mode", result.Mode,
		"chosen_files", result.ChosenFiles,
	)
	return rag.EncodeRetrieval(result, s.maxSnippetChars), nil
}

// AnswerFromContext generates a grounded answer from a retrieval payload.
func (s *Service) AnswerFromContext(ctx context.Context, in AnswerInput) (AnswerOutput, error) {
	if in.Retrieval.Query == "" && len(in.Retrieval.NarrowHits) == 0 {
		return AnswerOutput{}, errors.New("retrieval payload is required")
	}

	retrieval := rag.DecodeRetrieval(in.Retrieval)
	result, err := s.answerer.GenerateAnswer(ctx, in.Query, retrieval, in.History, s.opts)
	if err != nil {
		return AnswerOutput{}, fmt.Errorf("generate answer: %w", err)
	}

	return AnswerOutput{
		Answer:    result.Answer,
		Sources:   result.Sources,
		Retrieval: rag.EncodeRetrieval(retrieval, s.maxSnippetChars),
	}, nil
}
