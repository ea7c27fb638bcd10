package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	defaultResults = 5

	// HeaderRequestID carries the request id on every response.
	HeaderRequestID = "X-Request-ID"

	// HeaderEmbeddingDegraded is set on /ingest responses whose document was
	// stored with the zero-vector fallback.
	HeaderEmbeddingDegraded = "X-Embedding-Degraded"
)

// Server is the API server for the knowledge base
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.Engine == nil {
		return nil, errors.New("query engine is required")
	}
	if config.Ingest == nil {
		return nil, errors.New("ingest service is required")
	}
	if config.DefaultResults <= 0 {
		config.DefaultResults = defaultResults
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: logger,
		app:    app,
	}

	app.Use(s.requestID)

	app.Get("/ping", s.handlePing)
	app.Get("/health", s.handleHealth)
	app.Post("/ingest", s.handleIngest)
	app.Post("/query", s.handleQuery)
	app.Get("/v1/documents/*", s.handleGetDocument)
	app.Delete("/v1/documents/*", s.handleDeleteDocument)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", s.config.MCP != nil,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// requestID tags each request with an id, keeping one supplied by the caller.
func (s *Server) requestID(c *fiber.Ctx) error {
	id := c.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(HeaderRequestID, id)
	c.Locals("request_id", id)

	err := c.Next()

	s.logger.Debug("request",
		"request_id", id,
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
	)
	return err
}
