package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDHeader selects the user for MCP requests over HTTP.
const UserIDHeader = "X-User-ID"

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// HTTPContext copies the X-User-ID header into the request context. A
// missing or malformed header leaves the default user.
func HTTPContext(ctx context.Context, r *http.Request) context.Context {
	if id, err := strconv.Atoi(r.Header.Get(UserIDHeader)); err == nil && id > 0 {
		return WithUserID(ctx, id)
	}
	return ctx
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("InjuryRisk", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("InjuryRisk training decision server. Evaluate planned sessions, inspect baselines and training load, and review past predictions. All data is scoped to the selected user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolEvaluateSession, Handler: h.evaluateSession},
		server.ServerTool{Tool: toolGetBaseline, Handler: h.getBaseline},
		server.ServerTool{Tool: toolGetImportStats, Handler: h.getImportStats},
		server.ServerTool{Tool: toolListPredictions, Handler: h.listPredictions},
		server.ServerTool{Tool: toolGetLoadSummary, Handler: h.getLoadSummary},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resToday, Handler: h.today},
	)

	return s
}

// NewHTTPHandler wraps an MCP server in the streamable HTTP transport.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithHTTPContextFunc(HTTPContext))
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resToday = mcp.NewResource(
	"injuryrisk://today",
	"Today",
	mcp.WithResourceDescription("Risk evaluation for today without a planned session, with the current baseline and load snapshot"),
	mcp.WithMIMEType("application/json"),
)
