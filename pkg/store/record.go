package store

import "maps"

// Record is a single stored document. ID is its only identity; Metadata is
// opaque to the store and never indexed.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// clone returns a copy that shares nothing mutable with r.
func (r Record) clone() Record {
	out := r
	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	}
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	return out
}
