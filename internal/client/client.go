// Package client maintains a pool of protocol connections to a tfgate
// server and invokes tools with per-call timeouts and bounded retry.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tfgate/tfgate/internal/toolerr"
)

const (
	protocolVersion = "2025-11-25"
	clientName      = "tfgate"
	clientVersion   = "1.0.0"
)

// ToolInfo is a simplified catalog entry returned by DiscoverTools.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// conn wraps one protocol connection behind closures so tests can stand
// in for a real transport.
type conn struct {
	listTools   func(ctx context.Context) ([]mcp.Tool, error)
	callTool    func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	close       func() error
	outstanding int
	broken      bool
}

// dialEndpoint establishes one connection and completes the handshake.
// Package-level var so tests can substitute a fake transport.
var dialEndpoint = func(ctx context.Context, endpoint string) (*conn, error) {
	c, err := mcpclient.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, toolerr.New(toolerr.KindHandshakeFailed, "creating client: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, toolerr.New(toolerr.KindHandshakeFailed, "starting transport: %v", err)
	}

	res, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		c.Close()
		return nil, toolerr.New(toolerr.KindHandshakeFailed, "initializing: %v", err)
	}
	if res.ProtocolVersion != protocolVersion {
		c.Close()
		return nil, toolerr.New(toolerr.KindUnsupportedVersion,
			"server negotiated protocol %s, client requires %s", res.ProtocolVersion, protocolVersion)
	}

	return &conn{
		listTools: func(ctx context.Context) ([]mcp.Tool, error) {
			result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				return nil, err
			}
			return result.Tools, nil
		},
		callTool: func(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
			return c.CallTool(ctx, mcp.CallToolRequest{
				Params: mcp.CallToolParams{
					Name:      name,
					Arguments: args,
				},
			})
		},
		close: func() error {
			return c.Close()
		},
	}, nil
}

// decodeResult unpacks a tool result envelope into its payload or typed
// error.
func decodeResult(res *mcp.CallToolResult) (json.RawMessage, error) {
	if res.IsError {
		return nil, toolerr.New(toolerr.KindUnknownExecution, "tool reported error: %s", flattenContent(res))
	}

	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return nil, toolerr.New(toolerr.KindConnectionClosed, "unreadable result content: %v", err)
	}
	wire, err := toolerr.Decode(raw)
	if err != nil {
		return nil, err
	}
	if werr := wire.Err(); werr != nil {
		return nil, werr
	}
	return wire.Payload, nil
}

func flattenContent(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return fmt.Sprintf("%v", res.Content)
}
