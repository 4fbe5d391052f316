// Package inspect exposes a read-only MCP surface for poking at a running
// proxy: buffer stats and recent flush activity. It never mutates the
// store and never sees the proxied traffic itself.
package inspect

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/demitasse/internal/debounce"
	"github.com/HyphaGroup/demitasse/internal/journal"
)

// Server wraps the MCP server with the proxy state it reports on
type Server struct {
	store     *debounce.Store
	journal   *journal.Journal // nil when the journal is disabled
	interval  time.Duration
	version   string
	startedAt time.Time
	mcpServer *mcp.Server
}

// NewServer creates the inspection server. journal may be nil.
func NewServer(store *debounce.Store, jnl *journal.Journal, interval time.Duration, version string) *Server {
	s := &Server{
		store:     store,
		journal:   jnl,
		interval:  interval,
		version:   version,
		startedAt: time.Now(),
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "demitasse",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "proxy_status",
		Description: "Report proxy uptime, flush interval, and aggregate buffer state.",
	}, s.handleStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "buffered_sessions",
		Description: "List sessions currently known to the buffer store with their pending byte counts.",
	}, s.handleSessions)

	if s.journal != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "recent_flushes",
			Description: "Return the most recent flush journal entries, newest first.",
			InputSchema: recentFlushesSchema(),
		}, s.handleRecentFlushes)
	}

	return s
}

// recentFlushesSchema builds the tool input schema explicitly; the SDK
// requires a jsonschema.Schema rather than a raw map.
func recentFlushesSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"limit": {
				Type:        "integer",
				Description: "maximum entries to return (default 50)",
			},
		},
	}
}

// StatusInput has no fields; proxy_status takes no arguments
type StatusInput struct{}

// StatusOutput reports aggregate proxy state
type StatusOutput struct {
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	IntervalMS       int64  `json:"interval_ms"`
	BufferedSessions int    `json:"buffered_sessions"`
	PendingBytes     int    `json:"pending_bytes"`
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, any, error) {
	return nil, StatusOutput{
		Version:          s.version,
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		IntervalMS:       s.interval.Milliseconds(),
		BufferedSessions: s.store.Len(),
		PendingBytes:     s.store.PendingBytes(),
	}, nil
}

// SessionsInput has no fields; buffered_sessions takes no arguments
type SessionsInput struct{}

// SessionsOutput lists per-session pending state
type SessionsOutput struct {
	Sessions []debounce.SessionStat `json:"sessions"`
}

func (s *Server) handleSessions(ctx context.Context, req *mcp.CallToolRequest, input SessionsInput) (*mcp.CallToolResult, any, error) {
	return nil, SessionsOutput{Sessions: s.store.Snapshot()}, nil
}

// RecentFlushesInput selects how many journal entries to return
type RecentFlushesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum entries to return (default 50)"`
}

// RecentFlushesOutput carries journal entries, newest first
type RecentFlushesOutput struct {
	Flushes []journal.Entry `json:"flushes"`
}

func (s *Server) handleRecentFlushes(ctx context.Context, req *mcp.CallToolRequest, input RecentFlushesInput) (*mcp.CallToolResult, any, error) {
	entries, err := s.journal.Recent(input.Limit)
	if err != nil {
		return nil, RecentFlushesOutput{}, fmt.Errorf("failed to read journal: %w", err)
	}
	return nil, RecentFlushesOutput{Flushes: entries}, nil
}

// Handler returns the streamable HTTP handler for the MCP server
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

// Serve runs the inspection endpoint on the given address
func (s *Server) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.Handler())
	return http.ListenAndServe(addr, mux)
}
