package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/papercomputeco/kb/pkg/store"
)

// Codec selects how a snapshot is framed on disk or in a bucket. The payload
// is always a JSON array of records.
type Codec int

const (
	CodecJSON Codec = iota
	CodecZstd
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecJSON:
		return "json"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// CodecFor picks the codec from a file name or object key extension:
// ".zst" is zstd, ".lz4" is lz4, anything else is plain JSON.
func CodecFor(name string) Codec {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return CodecZstd
	case strings.HasSuffix(name, ".lz4"):
		return CodecLZ4
	default:
		return CodecJSON
	}
}

// Encode writes records to w using the codec.
func (c Codec) Encode(w io.Writer, records []store.Record) error {
	if records == nil {
		records = []store.Record{}
	}

	switch c {
	case CodecZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		if err := json.NewEncoder(enc).Encode(records); err != nil {
			_ = enc.Close()
			return fmt.Errorf("encoding records: %w", err)
		}
		return enc.Close()

	case CodecLZ4:
		enc := lz4.NewWriter(w)
		if err := json.NewEncoder(enc).Encode(records); err != nil {
			_ = enc.Close()
			return fmt.Errorf("encoding records: %w", err)
		}
		return enc.Close()

	default:
		if err := json.NewEncoder(w).Encode(records); err != nil {
			return fmt.Errorf("encoding records: %w", err)
		}
		return nil
	}
}

// Decode reads records from r using the codec.
func (c Codec) Decode(r io.Reader) ([]store.Record, error) {
	var src io.Reader = r

	switch c {
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		src = dec

	case CodecLZ4:
		src = lz4.NewReader(r)
	}

	var records []store.Record
	if err := json.NewDecoder(src).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding %s snapshot: %w", c, err)
	}
	return records, nil
}

func (c Codec) encodeBytes(records []store.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
