// Package mcpapi exposes the engine's caller-facing operations as MCP tools
// over a stdio transport, so agent clients can check eligibility, request
// suggestions, and submit mutations conversationally.
package mcpapi

import (
	"context"
	"errors"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/advancement-engine/internal/engine"
)

const (
	serverName    = "advancement-engine"
	serverVersion = "0.1.0"
)

// Server wraps an MCP server bound to one engine instance.
type Server struct {
	mcpServer *mcp.Server
}

// New registers every engine tool on a fresh MCP server.
func New(eng *engine.Engine) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcp.AddTool(mcpServer, createCharacterTool(), createCharacterHandler(eng))
	mcp.AddTool(mcpServer, getCharacterTool(), getCharacterHandler(eng))
	mcp.AddTool(mcpServer, checkEligibilityTool(), checkEligibilityHandler(eng))
	mcp.AddTool(mcpServer, getSuggestionsTool(), getSuggestionsHandler(eng))
	mcp.AddTool(mcpServer, submitMutationTool(), submitMutationHandler(eng))
	mcp.AddTool(mcpServer, runSweepTool(), runSweepHandler(eng))
	mcp.AddTool(mcpServer, proposeRepairsTool(), proposeRepairsHandler(eng))

	return &Server{mcpServer: mcpServer}, nil
}

// Serve runs the server over stdio until the context ends or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	log.Printf("mcp server starting name=%s version=%s transport=stdio", serverName, serverVersion)
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
