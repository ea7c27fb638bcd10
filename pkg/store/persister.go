package store

import "context"

// Persister reads and writes the whole record collection as one snapshot.
type Persister interface {
	// Load returns the persisted records. It returns (nil, nil) when no
	// snapshot exists yet.
	Load(ctx context.Context) ([]Record, error)

	// Save replaces the snapshot with records.
	Save(ctx context.Context, records []Record) error

	// Close releases any resources held by the persister.
	Close() error
}
