package walker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps a tree in sync: it watches every non-ignored directory under
// c.Root and sends created or modified allowed files to sink until ctx is
// done. New directories are watched and their files ingested as they
// appear. It does not perform the initial walk; call Walk first.
func Watch(ctx context.Context, c Config, sink Sink, logger *slog.Logger) error {
	c = c.withDefaults()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := c.watchTree(watcher, c.Root, logger); err != nil {
		return err
	}

	logger.Info("watching for changes", "root", c.Root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handle(ctx, watcher, event, sink, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

func (c Config) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event, sink Sink, logger *slog.Logger) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if c.inIgnoredDir(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Removed again before we got to it.
		return
	}

	if info.IsDir() {
		if !event.Has(fsnotify.Create) || c.ignored(filepath.Base(event.Name)) {
			return
		}
		if err := c.watchTree(watcher, event.Name, logger); err != nil {
			logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			return
		}
		// Files may have landed before the watch was added.
		_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != event.Name && c.ignored(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && c.allowed(path) {
				putFile(ctx, c, path, sink, logger)
			}
			return nil
		})
		return
	}

	if !info.Mode().IsRegular() || !c.allowed(event.Name) {
		return
	}

	putFile(ctx, c, event.Name, sink, logger)
}

// watchTree adds a watch on root and every non-ignored directory below it.
func (c Config) watchTree(watcher *fsnotify.Watcher, root string, logger *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			logger.Warn("skipping unreadable directory", "path", path, "error", err)
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != c.Root && c.ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
