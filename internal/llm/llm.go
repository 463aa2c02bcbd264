// Package llm adapts a Genkit model to the answer generation pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// generateTimeout bounds a single model call.
const generateTimeout = 60 * time.Second

// Client calls a configured Genkit model. It implements rag.ModelCaller.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
}

// NewClient creates a Client for the given provider-qualified model name
// (e.g. "googleai/gemini-2.5-flash"). temperature <= 0 leaves the model's
// default in place.
func NewClient(g *genkit.Genkit, modelName string, temperature float32) (*Client, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if modelName == "" {
		return nil, errors.New("model name is required")
	}
	return &Client{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
	}, nil
}

// Call runs one model generation with the given system prompt and messages.
func (c *Client) Call(ctx context.Context, system string, messages []*ai.Message) (*ai.ModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithMessages(messages...),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	if c.temperature > 0 {
		opts = append(opts, ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: float64(c.temperature),
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", c.modelName, err)
	}
	return resp, nil
}
