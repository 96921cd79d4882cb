// Package mcpserver exposes Memory Bank's search, pack, session-listing,
// and session-graph operations as MCP tools over stdio, for editors and
// agents that speak MCP rather than invoking the membank binary directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/graph"
	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/pack"
	"github.com/ternarybob/memorybank/internal/packmode"
	"github.com/ternarybob/memorybank/internal/render"
	"github.com/ternarybob/memorybank/internal/rerank"
	"github.com/ternarybob/memorybank/internal/storage"
)

// Server wraps one project's storage and embed/chat client to provide
// MCP tool access.
type Server struct {
	storage *storage.Storage
	config  *config.Config
	client  llmclient.Client
	index   *index.Index
	server  *server.MCPServer
}

// New creates an MCP server over an already-open project.
func New(s *storage.Storage, cfg *config.Config, client llmclient.Client) *Server {
	srv := &Server{
		storage: s,
		config:  cfg,
		client:  client,
		index:   index.New(s, cfg.Ollama.EmbedDim),
	}

	mcpServer := server.NewMCPServer(
		"memory-bank",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	srv.registerTools(mcpServer)
	srv.server = mcpServer
	return srv
}

func (srv *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Semantic search over this project's captured sessions and artifacts."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
			mcp.WithNumber("top", mcp.Description("Maximum number of results (default: 10)")),
			mcp.WithString("type", mcp.Description("Filter by artifact type: session, plan, todo, task")),
			mcp.WithBoolean("no_decay", mcp.Description("Disable recency decay boost")),
			mcp.WithBoolean("rerank", mcp.Description("Apply a second-pass LLM relevance rerank to the results")),
		),
		srv.handleSearch,
	)

	mcpServer.AddTool(
		mcp.NewTool("pack",
			mcp.WithDescription("Build a token-budgeted context pack summarizing this project's recent activity."),
			mcp.WithNumber("budget", mcp.Description("Token budget (default: 8000)")),
			mcp.WithString("mode", mcp.Description("Pack mode: auto, debug, build, explore")),
			mcp.WithString("format", mcp.Description("Render format: xml, json, md (default: xml)")),
		),
		srv.handlePack,
	)

	mcpServer.AddTool(
		mcp.NewTool("sessions",
			mcp.WithDescription("List captured sessions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return")),
		),
		srv.handleSessions,
	)

	mcpServer.AddTool(
		mcp.NewTool("graph",
			mcp.WithDescription("Classify each session's episode type and surface related sessions."),
		),
		srv.handleGraph,
	)
}

func (srv *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	topK := request.GetInt("top", 10)
	artifactType := request.GetString("type", "")
	noDecay := request.GetBool("no_decay", false)
	useRerank := request.GetBool("rerank", false)

	vectors, err := srv.client.Embed(ctx, []string{query})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("embed query: %v", err)), nil
	}
	if len(vectors) == 0 {
		return mcp.NewToolResultError("embedding service returned no vector"), nil
	}

	results, err := srv.index.Search(vectors[0], topK, srv.config.Decay.HalfLifeDays, noDecay, artifactType, float64(time.Now().Unix()))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if useRerank {
		results = rerank.Rerank(ctx, query, results, srv.client, topK)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (srv *Server) handlePack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budgetTokens := request.GetInt("budget", 8000)
	mode := packmode.Mode(request.GetString("mode", ""))
	format := render.Format(request.GetString("format", string(render.FormatXML)))

	builder := pack.NewBuilder(srv.storage, srv.config, srv.client)
	out, err := builder.Build(ctx, pack.Options{
		Mode:         mode,
		BudgetTokens: budgetTokens,
		Format:       format,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pack failed: %v", err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (srv *Server) handleSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := srv.storage.ListSessions()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}

	limit := request.GetInt("limit", 0)
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (srv *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := srv.storage.ListSessions()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}

	nodes := make([]storage.SessionNode, 0, len(sessions))
	for _, sess := range sessions {
		chunks, err := srv.storage.ReadChunks(sess.SessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read chunks for %s: %v", sess.SessionID, err)), nil
		}
		nodes = append(nodes, graph.BuildNode(sess, chunks, sessions))
	}

	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal graph: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the MCP server on stdio, blocking until the client
// disconnects or ctx is canceled.
func (srv *Server) ServeStdio() error {
	return server.ServeStdio(srv.server)
}
