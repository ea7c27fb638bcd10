// Package embeddings provides text embedding capabilities and the gateway the
// store uses to turn documents and queries into vectors.
package embeddings

import "context"

// Intent tells an embedder which side of a retrieval pair the text is on.
// Many embedding models encode documents and queries asymmetrically.
type Intent int

const (
	// IntentDocument is used when embedding text that will be stored.
	IntentDocument Intent = iota

	// IntentQuery is used when embedding text that will be searched with.
	IntentQuery
)

func (i Intent) String() string {
	switch i {
	case IntentDocument:
		return "document"
	case IntentQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding for the given intent.
	Embed(ctx context.Context, text string, intent Intent) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
