package api

import (
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/consentcrawl/kit"
)

// RegisterMCP registers the audit_url tool on srv.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "audit_url",
		Description: "Audit a web page for GDPR cookie consent: detect the consent banner and its CMP, " +
			"open the preferences, and list the declared categories, vendors and cookies with the " +
			"third-party and tracking domains contacted.",
		InputSchema: kit.InputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to audit"},
			"config": map[string]any{
				"type":        "object",
				"description": "Audit config overrides: max_ui_depth, timeout_banner, timeout_modal, timeout_click (ms), languages",
			},
			"screenshot": map[string]any{"type": "boolean", "description": "Capture a screenshot of the banner"},
		}, "url"),
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r AuditRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(), decode)
}

// MCPHandler serves an MCP server with the audit_url tool over streamable
// HTTP.
func (s *Server) MCPHandler() http.Handler {
	srv := mcp.NewServer(&mcp.Implementation{Name: "consentcrawl", Version: s.opts.Version}, nil)
	s.RegisterMCP(srv)
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return srv },
		&mcp.StreamableHTTPOptions{Logger: s.logger},
	)
}
