// Package server exposes the tool registry over the wire protocol, on
// stdio or streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/registry"
)

const (
	serverName    = "tfgate"
	serverVersion = "1.0.0"
)

// Server wraps an MCP server built from a registry catalog.
type Server struct {
	mcp *mcpserver.MCPServer
	log zerolog.Logger
}

// New registers every catalog tool on a fresh MCP server. Handlers are
// stateless across connections; all call state lives in the registry's
// collaborators.
func New(reg *registry.Registry, logger zerolog.Logger) *Server {
	s := mcpserver.NewMCPServer(serverName, serverVersion)

	for _, def := range reg.Tools() {
		def := def
		s.AddTool(mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: toInputSchema(def.Schema),
		}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			data := reg.Dispatch(ctx, def.Name, request.GetArguments())

			var payload map[string]any
			if err := json.Unmarshal(data, &payload); err != nil {
				logger.Error().Str("tool", def.Name).Err(err).Msg("malformed result envelope")
				return nil, fmt.Errorf("encoding result for %s: %w", def.Name, err)
			}
			return mcp.NewToolResultStructuredOnly(payload), nil
		})
	}

	return &Server{mcp: s, log: logger}
}

// MCP exposes the underlying server for transport wiring and tests.
func (s *Server) MCP() *mcpserver.MCPServer { return s.mcp }

// ServeStdio blocks serving the protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info().Str("transport", "stdio").Msg("serving")
	return mcpserver.ServeStdio(s.mcp)
}

// ServeHTTP blocks serving the streamable HTTP transport on addr.
func (s *Server) ServeHTTP(addr string) error {
	s.log.Info().Str("transport", "http").Str("listen", addr).Msg("serving")
	return mcpserver.NewStreamableHTTPServer(s.mcp).Start(addr)
}

// toInputSchema converts a registry schema document into the catalog
// form. Property-level constraints survive; the registry re-validates the
// full document on every call anyway.
func toInputSchema(schema map[string]any) mcp.ToolInputSchema {
	in := mcp.ToolInputSchema{Type: "object"}

	if props, ok := schema["properties"].(map[string]any); ok {
		in.Properties = props
	}
	if req, ok := schema["required"].([]any); ok {
		for _, v := range req {
			if s, ok := v.(string); ok {
				in.Required = append(in.Required, s)
			}
		}
	}
	return in
}
