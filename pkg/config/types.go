package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent kb configuration stored as config.toml
// in the .kb/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	API       APIConfig       `toml:"api"`
	Client    ClientConfig    `toml:"client"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Ingest    IngestConfig    `toml:"ingest"`
	Events    EventsConfig    `toml:"events"`
}

// StorageConfig holds snapshot persistence settings.
type StorageConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Path       string `toml:"path,omitempty"`
	FlushMode  string `toml:"flush_mode,omitempty"`
	FlushEvery uint   `toml:"flush_every,omitempty"`

	// Object storage settings, used when Provider is "minio".
	Endpoint  string `toml:"endpoint,omitempty"`
	Bucket    string `toml:"bucket,omitempty"`
	Key       string `toml:"key,omitempty"`
	AccessKey string `toml:"access_key,omitempty"`
	SecretKey string `toml:"secret_key,omitempty"`
	Secure    bool   `toml:"secure,omitempty"`

	// DSN is the connection string used when Provider is "postgres".
	DSN string `toml:"dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// kb server (e.g. kb ingest, kb query, kb status).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Timeout    string `toml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout. An empty value yields zero so the
// gateway applies its own default.
func (e EmbeddingConfig) TimeoutDuration() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid embedding.timeout: %w", err)
	}
	return d, nil
}

// IngestConfig holds the walker's file discovery settings.
type IngestConfig struct {
	Extensions []string `toml:"extensions,omitempty"`
	IgnoreDirs []string `toml:"ignore_dirs,omitempty"`
}

// EventsConfig holds document event publishing settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.path": {
		get: func(c *Config) string { return c.Storage.Path },
		set: func(c *Config, v string) error { c.Storage.Path = v; return nil },
	},
	"storage.flush_mode": {
		get: func(c *Config) string { return c.Storage.FlushMode },
		set: func(c *Config, v string) error {
			switch v {
			case "write", "batched":
				c.Storage.FlushMode = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.flush_mode: %q (expected write or batched)", v)
			}
		},
	},
	"storage.flush_every": {
		get: func(c *Config) string { return formatUint(c.Storage.FlushEvery) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for storage.flush_every: %w", err)
			}
			c.Storage.FlushEvery = uint(n)
			return nil
		},
	},
	"storage.endpoint": {
		get: func(c *Config) string { return c.Storage.Endpoint },
		set: func(c *Config, v string) error { c.Storage.Endpoint = v; return nil },
	},
	"storage.bucket": {
		get: func(c *Config) string { return c.Storage.Bucket },
		set: func(c *Config, v string) error { c.Storage.Bucket = v; return nil },
	},
	"storage.key": {
		get: func(c *Config) string { return c.Storage.Key },
		set: func(c *Config, v string) error { c.Storage.Key = v; return nil },
	},
	"storage.access_key": {
		get: func(c *Config) string { return c.Storage.AccessKey },
		set: func(c *Config, v string) error { c.Storage.AccessKey = v; return nil },
	},
	"storage.secret_key": {
		get: func(c *Config) string { return c.Storage.SecretKey },
		set: func(c *Config, v string) error { c.Storage.SecretKey = v; return nil },
	},
	"storage.dsn": {
		get: func(c *Config) string { return c.Storage.DSN },
		set: func(c *Config, v string) error { c.Storage.DSN = v; return nil },
	},
	"storage.secure": {
		get: func(c *Config) string { return strconv.FormatBool(c.Storage.Secure) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for storage.secure: %w", err)
			}
			c.Storage.Secure = b
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string { return formatUint(c.Embedding.Dimensions) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.api_key": {
		get: func(c *Config) string { return c.Embedding.APIKey },
		set: func(c *Config, v string) error { c.Embedding.APIKey = v; return nil },
	},
	"embedding.timeout": {
		get: func(c *Config) string { return c.Embedding.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for embedding.timeout: %w", err)
			}
			c.Embedding.Timeout = v
			return nil
		},
	},
	"ingest.extensions": {
		get: func(c *Config) string { return joinList(c.Ingest.Extensions) },
		set: func(c *Config, v string) error { c.Ingest.Extensions = splitList(v); return nil },
	},
	"ingest.ignore_dirs": {
		get: func(c *Config) string { return joinList(c.Ingest.IgnoreDirs) },
		set: func(c *Config, v string) error { c.Ingest.IgnoreDirs = splitList(v); return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return joinList(c.Events.Brokers) },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

// splitList parses a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}
