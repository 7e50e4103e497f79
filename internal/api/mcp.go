package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/retrieval"
)

// MCPEmbedder turns a query into a vector for the search tool.
type MCPEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Chat     Chatter
	Embedder MCPEmbedder
	Index    retrieval.Index
	Ingest   Ingestor
	TopK     int
}

// NewMCPServer creates an MCP server exposing the knowledge base to agent
// clients: question answering, raw semantic search, and text ingestion.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"akadion",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("akadion — retrieval-augmented community knowledge base for graduate students and postdocs."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_knowledge_base",
			mcp.WithDescription("Ask the community knowledge base a question and get a grounded answer with sources."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Optional session ID to continue a conversation")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge_base",
			mcp.WithDescription("Semantically search the knowledge base and return raw matching chunks with scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Add a piece of text to the knowledge base so future questions can draw on it."),
			mcp.WithString("text", mcp.Description("The text content to ingest"), mcp.Required()),
			mcp.WithString("source", mcp.Description("Source name to attribute the text to (default \"mcp\")")),
		),
		mcpIngestText(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"akadion://stats",
			"Knowledge Base Stats",
			mcp.WithResourceDescription("Chunk, document and session counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		answer := deps.Chat.Answer(ctx, sessionID, question)

		b, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", deps.TopK)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		vector, err := deps.Embedder.EmbedQuery(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("embedding query: %v", err)), nil
		}
		chunks, err := deps.Index.Query(ctx, vector, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID     string  `json:"id"`
			Source string  `json:"source"`
			Text   string  `json:"text"`
			Score  float32 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{ID: c.ID, Source: c.Metadata.Source, Text: c.Text, Score: c.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		source := req.GetString("source", "mcp")
		if !strings.HasSuffix(strings.ToLower(source), ".txt") {
			source += ".txt"
		}

		res, err := deps.Ingest.ProcessFile(ctx, source, strings.NewReader(text), int64(len(text)))
		if err != nil {
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Ingested %d chunks from %s", res.ChunkCount, res.Filename)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		kb, err := deps.Ingest.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading knowledge base stats: %w", err)
		}

		b, err := json.Marshal(map[string]any{
			"knowledge_base": kb,
			"conversations":  deps.Chat.Conversations().Stats(),
		})
		if err != nil {
			return nil, fmt.Errorf("marshalling stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
