// Package chat coordinates one conversational turn: retrieve relevant
// policy chunks, then generate a grounded answer against them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/policydesk/policydesk/internal/rag"
)

// Retriever runs the two-step retrieval funnel for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, params rag.Params) (*rag.TwoStepRetrievalResult, error)
}

// Answerer generates a grounded answer from retrieval output and history.
type Answerer interface {
	GenerateAnswer(ctx context.Context, query string, retrieval *rag.TwoStepRetrievalResult, history []rag.Turn, opts rag.AnswerOptions) (*rag.AnswerResult, error)
}

// Request is one chat turn to process. Zero knob values fall back to the
// retrieval and generation defaults.
type Request struct {
	Query   string
	History []rag.Turn

	BroadK int
	FileK  int
	FinalK int
}

// Response is the outcome of one chat turn. Retrieval is the result the
// answer was grounded in; callers shape its wire form themselves.
type Response struct {
	Answer    string
	Sources   []rag.Source
	Retrieval *rag.TwoStepRetrievalResult
}

// Orchestrator runs chat turns. It is stateless; history arrives with each
// request so callers decide where conversations live.
//
// Orchestrator is safe for concurrent use by multiple goroutines.
type Orchestrator struct {
	retriever Retriever
	answerer  Answerer
	opts      rag.AnswerOptions
	logger    *slog.Logger
}

// New creates an Orchestrator. opts applies to every turn.
func New(retriever Retriever, answerer Answerer, opts rag.AnswerOptions, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever: retriever,
		answerer:  answerer,
		opts:      opts,
		logger:    logger,
	}
}

// HandleTurn processes one chat turn end to end.
func (o *Orchestrator) HandleTurn(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("query is required")
	}

	retrieval, err := o.retriever.Retrieve(ctx, query, rag.Params{
		BroadK: req.BroadK,
		FileK:  req.FileK,
		FinalK: req.FinalK,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	o.logger.Debug("retrieval complete",
		"mode", retrieval.Mode,
		"chosen_files", retrieval.ChosenFiles,
		"narrow_hits", len(retrieval.NarrowHits),
	)

	result, err := o.answerer.GenerateAnswer(ctx, query, retrieval, req.History, o.opts)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Response{
		Answer:    result.Answer,
		Sources:   result.Sources,
		Retrieval: retrieval,
	}, nil
}
