package config

import (
	"slices"

	"github.com/papercomputeco/kb/pkg/walker"
)

const (
	defaultStorageProvider = "file"
	defaultFlushMode       = "write"
	defaultFlushEvery      = 100
	defaultObjectKey       = "kb/snapshot.json"

	defaultAPIListen       = ":8001"
	defaultClientAPITarget = "http://localhost:8001"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTimeout    = "30s"

	defaultEventsProvider = "none"
	defaultEventsTopic    = "kb.documents"

	// defaultSnapshotFile is the snapshot file name placed in the resolved
	// .kb/ directory, or the working directory when none exists.
	defaultSnapshotFile = "knowledge_base.json"

	// defaultSQLiteFile is the database file used by the sqlite provider.
	defaultSQLiteFile = "knowledge_base.db"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			FlushMode:  defaultFlushMode,
			FlushEvery: defaultFlushEvery,
			Key:        defaultObjectKey,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
			Timeout:    defaultEmbeddingTimeout,
		},
		Ingest: IngestConfig{
			Extensions: slices.Clone(walker.DefaultExtensions),
			IgnoreDirs: slices.Clone(walker.DefaultIgnoreDirs),
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
