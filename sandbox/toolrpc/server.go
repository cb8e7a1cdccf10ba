// Package toolrpc puts the sandbox runner behind a process boundary. The
// worker side is an MCP server on stdio exposing one tool; the orchestrator
// side spawns a worker per call and speaks MCP over its pipes, so a hung or
// crashing analysis can be killed without touching orchestrator state.
package toolrpc

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teranos/reposcout/sandbox"
)

// ToolName is the MCP tool the worker exposes.
const ToolName = "analyze_repo_quality"

// Analyzer is the work done inside the worker.
type Analyzer interface {
	Analyze(ctx context.Context, cloneURL string) sandbox.Result
}

// NewServer registers the quality tool on a fresh MCP server.
func NewServer(a Analyzer, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"scout-sandbox",
		version,
		server.WithToolCapabilities(true),
	)

	tool := mcp.NewTool(ToolName,
		mcp.WithDescription("Shallow-clone a repository, run the static analyzer and score the result"),
		mcp.WithString("clone_url",
			mcp.Required(),
			mcp.Description("Git clone URL of the repository to analyze"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cloneURL, err := request.RequireString("clone_url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		payload, err := json.Marshal(a.Analyze(ctx, cloneURL))
		if err != nil {
			return mcp.NewToolResultError("failed to encode result: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
	return s
}

// ServeStdio answers requests on in/out until in is closed or ctx is done.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
