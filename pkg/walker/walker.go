// Package walker discovers source files under a root directory and feeds
// them to a Sink as documents.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	// DefaultExtensions is the default allow-list of file extensions.
	DefaultExtensions = []string{".ts", ".tsx", ".js", ".md", ".py", ".json"}

	// DefaultIgnoreDirs is the default deny-list of directory names.
	DefaultIgnoreDirs = []string{"node_modules", ".git", ".next", "dist", "build", "chroma_db", "__pycache__", "venv"}
)

// Document is a discovered file. ID is the slash-separated path relative to
// the walk root.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Sink receives discovered documents.
type Sink interface {
	Put(ctx context.Context, doc Document) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, doc Document) error

func (f SinkFunc) Put(ctx context.Context, doc Document) error {
	return f(ctx, doc)
}

// Config selects which files are walked.
type Config struct {
	// Root is the directory to walk. Required.
	Root string

	// Extensions is the allow-list, matched against the file's final
	// extension including the dot. Defaults to DefaultExtensions if nil.
	Extensions []string

	// IgnoreDirs is the deny-list of directory names. Any path segment
	// below Root matching an entry excludes everything beneath it.
	// Defaults to DefaultIgnoreDirs if nil.
	IgnoreDirs []string
}

func (c Config) withDefaults() Config {
	if c.Extensions == nil {
		c.Extensions = DefaultExtensions
	}
	if c.IgnoreDirs == nil {
		c.IgnoreDirs = DefaultIgnoreDirs
	}
	return c
}

// Stats summarizes a walk.
type Stats struct {
	// Ingested counts files the sink accepted.
	Ingested int

	// Skipped counts allowed files that could not be read as text.
	Skipped int

	// Failed counts files the sink rejected.
	Failed int
}

// Walk recursively discovers files under c.Root and sends each allowed file
// to sink. Unreadable files and sink failures are logged and counted; only
// an unreadable root or a cancelled context stop the walk.
func Walk(ctx context.Context, c Config, sink Sink, logger *slog.Logger) (Stats, error) {
	c = c.withDefaults()

	var stats Stats

	info, err := os.Stat(c.Root)
	if err != nil {
		return stats, fmt.Errorf("reading walk root: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("walk root %s is not a directory", c.Root)
	}

	err = filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() && path != c.Root {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != c.Root && c.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !c.allowed(path) {
			return nil
		}

		switch putFile(ctx, c, path, sink, logger) {
		case resultIngested:
			stats.Ingested++
		case resultSkipped:
			stats.Skipped++
		case resultFailed:
			stats.Failed++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	logger.Info("walk complete",
		"root", c.Root,
		"ingested", stats.Ingested,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	return stats, nil
}

type putResult int

const (
	resultIngested putResult = iota
	resultSkipped
	resultFailed
)

// putFile reads one file and hands it to the sink.
func putFile(ctx context.Context, c Config, path string, sink Sink, logger *slog.Logger) putResult {
	doc, err := c.document(path)
	if err != nil {
		logger.Warn("skipping file", "path", path, "error", err)
		return resultSkipped
	}

	if err := sink.Put(ctx, doc); err != nil {
		logger.Error("failed to ingest file", "id", doc.ID, "error", err)
		return resultFailed
	}

	logger.Debug("ingested file", "id", doc.ID)
	return resultIngested
}

var errNotText = errors.New("file is not valid UTF-8 text")

func (c Config) document(path string) (Document, error) {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return Document{}, err
	}
	id := filepath.ToSlash(rel)

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	if !utf8.Valid(data) {
		return Document{}, errNotText
	}

	return Document{
		ID:   id,
		Text: string(data),
		Metadata: map[string]any{
			"source": id,
			"type":   filepath.Ext(path),
		},
	}, nil
}

func (c Config) allowed(path string) bool {
	return slices.Contains(c.Extensions, filepath.Ext(path))
}

func (c Config) ignored(name string) bool {
	return slices.Contains(c.IgnoreDirs, name)
}

// inIgnoredDir reports whether any directory segment between the root and
// path is on the deny-list. Paths outside the root count as ignored.
func (c Config) inIgnoredDir(path string) bool {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
		if c.ignored(filepath.Base(dir)) {
			return true
		}
	}
	return false
}
