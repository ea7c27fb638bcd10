package snapshot

import (
	"context"
	"maps"
	"sync"

	"github.com/papercomputeco/kb/pkg/store"
)

// Memory keeps the snapshot in process. It is used for ephemeral stores and
// in tests, where Saves and the injected errors make flush behavior
// observable.
type Memory struct {
	mu      sync.Mutex
	records []store.Record
	saved   bool
	saves   int

	// LoadErr is returned from Load when set.
	LoadErr error

	// SaveErr is returned from Save when set. A failed Save keeps the
	// previous snapshot.
	SaveErr error
}

// NewMemory creates an in-memory persister seeded with records.
func NewMemory(records ...store.Record) *Memory {
	m := &Memory{}
	if len(records) > 0 {
		m.records = copyRecords(records)
		m.saved = true
	}
	return m
}

// Load returns a copy of the last saved records.
func (m *Memory) Load(_ context.Context) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if !m.saved {
		return nil, nil
	}
	return copyRecords(m.records), nil
}

// Save replaces the held snapshot with a copy of records.
func (m *Memory) Save(_ context.Context, records []store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}

	m.records = copyRecords(records)
	m.saved = true
	m.saves++
	return nil
}

// Saves returns the number of successful Save calls.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Records returns a copy of the last saved snapshot.
func (m *Memory) Records() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecords(m.records)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func copyRecords(records []store.Record) []store.Record {
	out := make([]store.Record, len(records))
	for i, r := range records {
		out[i] = r
		out[i].Embedding = append([]float32(nil), r.Embedding...)
		out[i].Metadata = maps.Clone(r.Metadata)
	}
	return out
}

var _ store.Persister = (*Memory)(nil)
