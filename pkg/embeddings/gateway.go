package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultDimensions is the embedding dimension used when none is configured.
	DefaultDimensions = 768

	// DefaultTimeout bounds a single embedding call.
	DefaultTimeout = 30 * time.Second
)

// GatewayConfig holds configuration for the Gateway.
type GatewayConfig struct {
	// Dimensions is the fixed vector length shared by the gateway and the store.
	// Defaults to DefaultDimensions if zero.
	Dimensions int

	// Timeout bounds each call to the underlying embedder.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration
}

// Result is the outcome of a gateway call. A degraded result carries a zero
// vector of the configured dimension and the reason in Err; callers that only
// need a vector can use Vector either way.
type Result struct {
	Vector   []float32
	Degraded bool
	Err      error
}

// Gateway fronts an Embedder and never fails: errors, timeouts, a missing
// embedder, or a wrong-sized vector all degrade to a zero vector so ingest
// and query keep working with no ranking signal.
type Gateway struct {
	embedder   Embedder
	dimensions int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGateway creates a gateway. A nil embedder is allowed and means every
// call degrades.
func NewGateway(embedder Embedder, c GatewayConfig, logger *slog.Logger) *Gateway {
	dims := c.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if embedder == nil {
		logger.Warn("no embedder configured, all embeddings will be zero vectors",
			"dimensions", dims,
		)
	}

	return &Gateway{
		embedder:   embedder,
		dimensions: dims,
		timeout:    timeout,
		logger:     logger,
	}
}

// Dimensions returns the vector length every result has.
func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Configured reports whether an embedder is attached.
func (g *Gateway) Configured() bool {
	return g.embedder != nil
}

// Embed embeds text for the given intent.
func (g *Gateway) Embed(ctx context.Context, text string, intent Intent) Result {
	if g.embedder == nil {
		return g.degrade(intent, ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vec, err := g.embedder.Embed(ctx, text, intent)
	if err != nil {
		return g.degrade(intent, err)
	}

	if len(vec) != g.dimensions {
		return g.degrade(intent, fmt.Errorf("%w: got %d, want %d", ErrDimensions, len(vec), g.dimensions))
	}

	return Result{Vector: vec}
}

func (g *Gateway) degrade(intent Intent, err error) Result {
	if !errors.Is(err, ErrNotConfigured) {
		g.logger.Warn("embedding degraded to zero vector",
			"intent", intent.String(),
			"error", err,
		)
	}

	return Result{
		Vector:   make([]float32, g.dimensions),
		Degraded: true,
		Err:      err,
	}
}

// Close closes the underlying embedder, if any.
func (g *Gateway) Close() error {
	if g.embedder == nil {
		return nil
	}
	return g.embedder.Close()
}
