// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/embeddings/gemini"
	"github.com/papercomputeco/kb/pkg/embeddings/ollama"
	"github.com/papercomputeco/kb/pkg/logger"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   int

	// Logger receives configuration warnings. Defaults to a no-op logger.
	Logger *slog.Logger
}

// NewEmbedder builds the embedder for the configured provider. The "none"
// provider returns a nil embedder, which the gateway treats as unconfigured.
// So does gemini without an API key: the server still starts and degrades
// every embedding to a zero vector.
func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	log := o.Logger
	if log == nil {
		log = logger.Nop()
	}

	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case "gemini":
		if o.APIKey == "" {
			log.Warn("gemini API key not set, embeddings will be zero vectors",
				"hint", "set embedding.api_key or KB_EMBEDDING_API_KEY",
			)
			return nil, nil
		}

		target, model := o.TargetURL, o.Model
		// The config defaults point at Ollama. Leaving them in place would send
		// every gemini call to the local Ollama port.
		if target == ollama.DefaultBaseURL {
			log.Warn("embedding target is the ollama default, using the gemini API instead",
				"target", gemini.DefaultBaseURL,
			)
			target = ""
		}
		if model == ollama.DefaultEmbeddingModel {
			log.Warn("embedding model is the ollama default, using the gemini default instead",
				"model", gemini.DefaultEmbeddingModel,
			)
			model = ""
		}

		return gemini.NewEmbedder(gemini.EmbedderConfig{
			BaseURL:    target,
			Model:      model,
			APIKey:     o.APIKey,
			Dimensions: o.Dimensions,
		})
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
