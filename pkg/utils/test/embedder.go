package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/papercomputeco/kb/pkg/embeddings"
)

// EmbedCall records a single call made to MockEmbedder.
type EmbedCall struct {
	Text   string
	Intent embeddings.Intent
}

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	mu sync.Mutex

	// Embeddings maps input text to the vector returned for it.
	Embeddings map[string][]float32

	// Default is returned for text missing from Embeddings.
	Default []float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// Calls records every call in order.
	Calls []EmbedCall
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Default:    []float32{0.1, 0.2, 0.3},
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string, intent embeddings.Intent) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, EmbedCall{Text: text, Intent: intent})

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return m.Default, nil
}

// CallCount returns the number of Embed calls so far.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockEmbedder) Close() error {
	return nil
}

// HashEmbedder is a deterministic bag-of-words embedder: every lowercased
// whitespace token adds 1 to the bucket its FNV-1a hash selects.
type HashEmbedder struct {
	Dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	return &HashEmbedder{Dimensions: dimensions}
}

func (h *HashEmbedder) Embed(_ context.Context, text string, _ embeddings.Intent) ([]float32, error) {
	return HashVector(text, h.Dimensions), nil
}

func (h *HashEmbedder) Close() error {
	return nil
}

// HashVector computes the HashEmbedder vector for text.
func HashVector(text string, dimensions int) []float32 {
	v := make([]float32, dimensions)
	if dimensions == 0 {
		return v
	}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		v[hasher.Sum32()%uint32(dimensions)]++
	}
	return v
}

// BlockingEmbedder blocks until its context is done.
type BlockingEmbedder struct{}

func (BlockingEmbedder) Embed(ctx context.Context, _ string, _ embeddings.Intent) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (BlockingEmbedder) Close() error {
	return nil
}
