// Package mcp exposes the retrieval and answer tools over the Model
// Context Protocol, so external MCP clients can drive the same two-step
// funnel the HTTP API uses.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/policydesk/policydesk/internal/tools"
)

// Server wraps the MCP SDK server and the shared tool service.
type Server struct {
	mcpServer *mcp.Server
	svc       *tools.Service
	name      string
	version   string
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Service *tools.Service
}

// NewServer creates an MCP server with both policy tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("tool service is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		svc:       cfg.Service,
		name:      cfg.Name,
		version:   cfg.Version,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport. This is a blocking
// call that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerRetrieve(); err != nil {
		return fmt.Errorf("failed to register %s: %w", tools.RetrieveToolName, err)
	}
	if err := s.registerAnswer(); err != nil {
		return fmt.Errorf("failed to register %s: %w", tools.AnswerToolName, err)
	}
	return nil
}

// registerRetrieve registers the two-step retrieval tool.
// Handlers build the MCP response inline, like net/http.Handler.
func (s *Server) registerRetrieve() error {
	inputSchema, err := jsonschema.For[tools.RetrieveInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        tools.RetrieveToolName,
		Description: tools.RetrieveDescription,
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in tools.RetrieveInput) (*mcp.CallToolResult, any, error) {
		payload, err := s.svc.RetrievePolicyChunks(ctx, in)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("retrieval failed: %v", err)}},
				IsError: true,
			}, nil, nil
		}

		text, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode payload: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, payload, nil
	})

	return nil
}

// registerAnswer registers the grounded answer tool.
func (s *Server) registerAnswer() error {
	inputSchema, err := jsonschema.For[tools.AnswerInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        tools.AnswerToolName,
		Description: tools.AnswerDescription,
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in tools.AnswerInput) (*mcp.CallToolResult, any, error) {
		out, err := s.svc.AnswerFromContext(ctx, in)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("answer failed: %v", err)}},
				IsError: true,
			}, nil, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out.Answer}},
		}, out, nil
	})

	return nil
}
