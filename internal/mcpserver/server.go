// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the portal's rendering, routing and identity helpers to
// LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ojportal/internal/apiclient"
	"github.com/starford/ojportal/internal/apperr"
	"github.com/starford/ojportal/internal/avatar"
	"github.com/starford/ojportal/internal/router"
	"github.com/starford/ojportal/internal/session"
)

// Renderer turns Markdown into sanitized HTML.
type Renderer interface {
	Render(source string) string
}

// Navigator resolves a path through the route guards.
type Navigator interface {
	Navigate(to string) (router.Navigation, error)
}

// AvatarUploader sends a new avatar to the backend.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, filename, contentType string, data []byte) (*apiclient.AvatarUpload, error)
}

// Deps are the portal components the tools operate on.
type Deps struct {
	Markdown Renderer
	Avatars  *avatar.Builder
	Router   Navigator
	Session  *session.Session
	Backend  AvatarUploader
	Now      func() time.Time
}

// Server wraps the MCP server with the portal tools.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

// New creates a new MCP server with all portal tools registered.
func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps}

	s.mcp = server.NewMCPServer(
		"ojportal",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("render_markdown",
		mcp.WithDescription("Render a problem statement (Markdown with $$...$$ display math) "+
			"to the sanitized HTML the portal shows. Read the statement format via "+
			"get_statement_contract or the ojportal://statement-format resource."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Markdown source")),
	), s.renderMarkdown)

	s.mcp.AddTool(mcp.NewTool("avatar_url",
		mcp.WithDescription("Build the display URL for a stored avatar path, including the cache-busting timestamp."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Avatar path as stored by the backend (e.g. /uploads/avatars/user_3.png)")),
		mcp.WithNumber("user_id", mcp.Description("Owner of the avatar")),
	), s.avatarURL)

	s.mcp.AddTool(mcp.NewTool("resolve_route",
		mcp.WithDescription("Resolve a portal path to its route, running the navigation guards for the current session."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path such as /problems/12 or /admin")),
	), s.resolveRoute)

	s.mcp.AddTool(mcp.NewTool("whoami",
		mcp.WithDescription("Describe the stored session: username, role and token expiry."),
	), s.whoami)

	s.mcp.AddTool(mcp.NewTool("get_statement_contract",
		mcp.WithDescription("Returns the problem statement format contract. "+
			"Call this before writing statements to ensure they render correctly."),
	), s.getStatementContract)

	s.mcp.AddTool(mcp.NewTool("upload_avatar",
		mcp.WithDescription("Upload a new avatar for the signed-in user from an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image source: https://... or data:image/png;base64,...")),
		mcp.WithString("filename", mcp.Description("Optional file name; the extension decides the stored format")),
	), s.uploadAvatar)

	// Resource: statement format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Statement Format Contract",
			mcp.WithResourceDescription("Markdown and math dialect supported in problem statements."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStatementFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) renderMarkdown(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.deps.Markdown.Render(src)), nil
}

func (s *Server) avatarURL(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	userID := int64(req.GetFloat("user_id", 0))
	if userID == 0 {
		userID, _ = avatar.OwnerOf(path)
	}
	u := s.deps.Avatars.URL(path, userID)
	if u == "" {
		return mcp.NewToolResultText("no avatar"), nil
	}
	return mcp.NewToolResultText(u), nil
}

func (s *Server) resolveRoute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nav, err := s.deps.Router.Navigate(path)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("no route for %s", path)), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(nav), nil
}

func (s *Server) whoami(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.deps.Session.Identity(s.deps.Now())), nil
}

func (s *Server) getStatementContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StatementFormatContract), nil
}

func (s *Server) readStatementFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     StatementFormatContract,
		},
	}, nil
}
