package embeddings

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrNotConfigured is recorded on a degraded result when no embedder
	// has been configured.
	ErrNotConfigured = errors.New("embedder not configured")

	// ErrDimensions is recorded on a degraded result when the provider
	// returns a vector of the wrong length.
	ErrDimensions = errors.New("unexpected embedding dimensions")
)
