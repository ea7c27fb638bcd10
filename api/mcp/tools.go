package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/query"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/utils"
)

const defaultResults = 5

var (
	queryToolName    = "query"
	queryDescription = "Semantic search over the knowledge base. Returns the documents most similar to the query text, best match first, with their metadata and cosine similarity score."

	ingestToolName    = "ingest"
	ingestDescription = "Add or replace a document in the knowledge base. Re-using an id replaces the stored document."
)

// QueryInput represents the input arguments for the query tool.
type QueryInput struct {
	Query    string `json:"query" jsonschema:"the text to search for"`
	NResults *int   `json:"n_results,omitempty" jsonschema:"number of results to return (default: 5); zero or less returns no results"`
}

// QueryResult represents a single query match.
type QueryResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// QueryOutput represents the output of the query tool.
type QueryOutput struct {
	Query   string        `json:"query"`
	Results []QueryResult `json:"results"`
	Count   int           `json:"count"`
}

// IngestInput represents the input arguments for the ingest tool.
type IngestInput struct {
	ID       string         `json:"id" jsonschema:"unique document id, e.g. a relative file path"`
	Text     string         `json:"text" jsonschema:"the document text"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"optional metadata returned with query results"`
}

// IngestOutput represents the output of the ingest tool.
type IngestOutput struct {
	Status   string `json:"status"`
	ID       string `json:"id"`
	Degraded bool   `json:"degraded"`
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	logger := s.config.Logger

	n := defaultResults
	if input.NResults != nil {
		n = *input.NResults
	}

	logger.Debug("MCP query request",
		"query", utils.Truncate(input.Query, 80),
		"n_results", n,
	)

	results, err := s.config.Engine.Query(ctx, input.Query, n)
	if err != nil {
		logger.Error("MCP query failed", "error", err)
		return errorResult(fmt.Sprintf("Failed to query: %v", err)), QueryOutput{}, nil
	}

	output := QueryOutput{
		Query:   input.Query,
		Results: buildQueryResults(results),
		Count:   len(results),
	}

	return jsonResult(output), output, nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, IngestOutput, error) {
	logger := s.config.Logger

	outcome, err := s.config.Ingest.Ingest(ctx, ingest.Request{
		ID:        input.ID,
		Text:      input.Text,
		Metadata:  input.Metadata,
		Transport: "mcp",
	})
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return errorResult("id is required"), IngestOutput{}, nil
	case err != nil:
		logger.Error("MCP ingest failed", "id", input.ID, "error", err)
		return errorResult(fmt.Sprintf("Failed to ingest %q: %v", input.ID, err)), IngestOutput{}, nil
	}

	output := IngestOutput{
		Status:   "success",
		ID:       outcome.Record.ID,
		Degraded: outcome.Degraded,
	}

	return jsonResult(output), output, nil
}

func buildQueryResults(results []query.Result) []QueryResult {
	out := make([]QueryResult, 0, len(results))
	for _, r := range results {
		md := r.Metadata
		if md == nil {
			md = map[string]any{}
		}
		out = append(out, QueryResult{
			ID:       r.ID,
			Score:    r.Score,
			Text:     r.Text,
			Metadata: md,
		})
	}
	return out
}

// jsonResult serializes structured output into a TextContent block as well,
// for clients that only read text.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
