// Package api provides the HTTP API server for ingesting and querying the
// knowledge base.
package api

import (
	"github.com/papercomputeco/kb/api/mcp"
	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/query"
	"github.com/papercomputeco/kb/pkg/store"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Store backs /health and the document routes. Required.
	Store *store.Store

	// Engine answers /query. Required.
	Engine *query.Engine

	// Ingest backs /ingest and document deletes. Required.
	Ingest *ingest.Service

	// MCP is mounted at /mcp when set.
	MCP *mcp.Server

	// DefaultResults is the n_results used when a query omits it.
	// Defaults to 5.
	DefaultResults int
}
