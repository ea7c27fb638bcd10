package snapshot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/papercomputeco/kb/pkg/store"
)

// File persists the snapshot as a single local file. Writes go to a temp
// file in the same directory which is synced and renamed over the target,
// so a failed write leaves the previous snapshot intact.
type File struct {
	path  string
	codec Codec
}

// NewFile creates a file persister. The codec is picked from the path's
// extension.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}

	return &File{
		path:  path,
		codec: CodecFor(path),
	}, nil
}

// Path returns the snapshot file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the snapshot. A missing file yields no records and no error.
func (f *File) Load(_ context.Context) ([]store.Record, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer file.Close()

	return f.codec.Decode(bufio.NewReader(file))
}

// Save atomically replaces the snapshot with records.
func (f *File) Save(_ context.Context, records []store.Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	return writeAtomic(f.path, func(w io.Writer) error {
		return f.codec.Encode(w, records)
	})
}

// Close is a no-op for file snapshots.
func (f *File) Close() error {
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := write(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}

var _ store.Persister = (*File)(nil)
