package tools

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the registered tools over the Model Context
// Protocol. Failures are returned as tool error results carrying the same
// JSON body as the HTTP surface.
func NewMCPServer(reg *Registry, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"shipmate",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, t := range reg.List() {
		s.AddTool(mcpTool(t), mcpHandler(reg, t.Name))
	}

	return s
}

// ServeStdio runs the MCP server on the given streams until ctx is
// cancelled or input ends.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func mcpTool(t Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}

	for _, p := range t.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		if len(p.Enum) > 0 {
			props = append(props, mcp.Enum(p.Enum...))
		}

		switch p.Type {
		case TypeNumber:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case TypeBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		case TypeStrings:
			props = append(props, mcp.Items(map[string]any{"type": "string"}))
			opts = append(opts, mcp.WithArray(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}

	return mcp.NewTool(t.Name, opts...)
}

func mcpHandler(reg *Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := reg.Invoke(ctx, name, TransportMCP, req.GetArguments())
		if err != nil {
			_, body := Describe(err)
			data, merr := json.Marshal(body)
			if merr != nil {
				return nil, merr
			}
			return mcp.NewToolResultError(string(data)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
