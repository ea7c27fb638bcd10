// Package snapshot provides store.Persister implementations: a local file,
// an S3-compatible object, a SQLite or PostgreSQL row, and an in-memory
// snapshot.
package snapshot

import (
	"context"
	"fmt"

	"github.com/papercomputeco/kb/pkg/store"
)

const (
	ProviderFile     = "file"
	ProviderMinio    = "minio"
	ProviderMemory   = "memory"
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
)

// Config selects and configures a persister.
type Config struct {
	// Provider is one of "file", "minio", "sqlite", "postgres", or "memory".
	// Defaults to "file" when Path is set and "memory" otherwise.
	Provider string

	// Path is the snapshot file for the file provider and the database
	// file for the sqlite provider.
	Path string

	// DSN is the connection string for the postgres provider.
	DSN string

	Endpoint  string
	Bucket    string
	Key       string
	AccessKey string
	SecretKey string
	Secure    bool
}

// New builds the persister named by c.Provider.
func New(ctx context.Context, c Config) (store.Persister, error) {
	provider := c.Provider
	if provider == "" {
		provider = ProviderMemory
		if c.Path != "" {
			provider = ProviderFile
		}
	}

	switch provider {
	case ProviderFile:
		return NewFile(c.Path)
	case ProviderMinio:
		return NewObject(ObjectConfig{
			Endpoint:  c.Endpoint,
			Bucket:    c.Bucket,
			Key:       c.Key,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			Secure:    c.Secure,
		})
	case ProviderSQLite:
		return NewSQLite(ctx, c.Path, c.Key)
	case ProviderPostgres:
		return NewPostgres(ctx, c.DSN, c.Key)
	case ProviderMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", provider)
	}
}
