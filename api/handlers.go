package api

import (
	"encoding/json"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"

	"github.com/papercomputeco/kb/pkg/ingest"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/vector"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestRequest is the body of POST /ingest. Pointer fields distinguish a
// missing field from an empty one.
type IngestRequest struct {
	ID       *string        `json:"id"`
	Text     *string        `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestResponse is the body of a successful POST /ingest.
type IngestResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query    *string `json:"query"`
	NResults *int    `json:"n_results,omitempty"`
}

// QueryResults holds one inner list per query. Only a single query is
// supported, so each outer list has exactly one element.
type QueryResults struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Scores    [][]float64        `json:"scores"`
}

// QueryResponse is the body of a successful POST /query.
type QueryResponse struct {
	Results QueryResults `json:"results"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// DocumentResponse is a stored document without its embedding.
type DocumentResponse struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
	Dimensions int            `json:"dimensions"`
	Degraded   bool           `json:"degraded"`
}

// handlePing returns a simple liveness response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth reports the number of stored documents.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "ok",
		Count:  s.config.Store.Count(),
	})
}

// handleIngest handles POST /ingest.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body: " + err.Error()})
	}

	if req.ID == nil || *req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id is required"})
	}
	if req.Text == nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "text is required"})
	}

	outcome, err := s.config.Ingest.Ingest(c.Context(), ingest.Request{
		ID:        *req.ID,
		Text:      *req.Text,
		Metadata:  req.Metadata,
		Transport: "http",
	})
	if outcome.Degraded {
		c.Set(HeaderEmbeddingDegraded, "true")
	}
	switch {
	case errors.Is(err, store.ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id is required"})
	case errors.Is(err, store.ErrFlush):
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "document stored in memory but the snapshot could not be written: " + err.Error(),
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(IngestResponse{
		Status: "success",
		ID:     outcome.Record.ID,
	})
}

// handleQuery handles POST /query.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body: " + err.Error()})
	}

	if req.Query == nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}

	n := s.config.DefaultResults
	if req.NResults != nil {
		n = *req.NResults
	}

	results, err := s.config.Engine.Query(c.Context(), *req.Query, n)
	if err != nil {
		// The engine logs dimension mismatches itself.
		if !errors.Is(err, vector.ErrDimensionMismatch) {
			s.logger.Error("query failed", "error", err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	ids := make([]string, 0, len(results))
	docs := make([]string, 0, len(results))
	metas := make([]map[string]any, 0, len(results))
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		md := r.Metadata
		if md == nil {
			md = map[string]any{}
		}
		ids = append(ids, r.ID)
		docs = append(docs, r.Text)
		metas = append(metas, md)
		scores = append(scores, r.Score)
	}

	return c.JSON(QueryResponse{
		Results: QueryResults{
			IDs:       [][]string{ids},
			Documents: [][]string{docs},
			Metadatas: [][]map[string]any{metas},
			Scores:    [][]float64{scores},
		},
	})
}

// handleGetDocument handles GET /v1/documents/*. The wildcard is the
// document id and may contain slashes.
func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	id, err := documentID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	r, ok := s.config.Store.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: store.ErrNotFound{ID: id}.Error()})
	}

	md := r.Metadata
	if md == nil {
		md = map[string]any{}
	}

	return c.JSON(DocumentResponse{
		ID:         r.ID,
		Text:       r.Text,
		Metadata:   md,
		Dimensions: len(r.Embedding),
		Degraded:   vector.IsZero(r.Embedding),
	})
}

// handleDeleteDocument handles DELETE /v1/documents/*.
func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	id, err := documentID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	deleted, err := s.config.Ingest.Delete(c.Context(), id, "http")
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: store.ErrNotFound{ID: id}.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "document deleted in memory but the snapshot could not be written: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "deleted",
		"id":     id,
	})
}

// documentID returns the unescaped wildcard id. Params point into the request
// buffer fasthttp reuses, and the id outlives the request in delete events.
func documentID(c *fiber.Ctx) (string, error) {
	raw := fiberutils.CopyString(c.Params("*"))
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.New("invalid document id")
	}
	if id == "" {
		return "", errors.New("document id is required")
	}
	return id, nil
}
