package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/papercomputeco/kb/pkg/store"
)

// DefaultObjectKey is the object key used when none is configured.
const DefaultObjectKey = "kb/snapshot.json"

// errNoSuchObject is returned by an objectAPI when the key doesn't exist.
var errNoSuchObject = errors.New("no such object")

// objectAPI is the slice of an S3 client the snapshot needs.
type objectAPI interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// ObjectConfig holds configuration for an S3-compatible object snapshot.
type ObjectConfig struct {
	// Endpoint is the host:port of the S3 API (e.g., "localhost:9000").
	Endpoint string

	// Bucket holds the snapshot object. It must already exist.
	Bucket string

	// Key is the object key. Defaults to DefaultObjectKey if empty.
	// ".zst" and ".lz4" suffixes select compression.
	Key string

	AccessKey string
	SecretKey string

	// Secure enables TLS.
	Secure bool
}

// Object persists the snapshot as a single object in a MinIO or S3 bucket.
// Object puts replace the whole object, so readers never see a partial
// snapshot.
type Object struct {
	api    objectAPI
	bucket string
	key    string
	codec  Codec
}

// NewObject creates an object persister backed by minio-go.
func NewObject(c ObjectConfig) (*Object, error) {
	if c.Endpoint == "" {
		return nil, errors.New("snapshot endpoint is required")
	}
	if c.Bucket == "" {
		return nil, errors.New("snapshot bucket is required")
	}

	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return newObject(&minioAPI{client: client}, c.Bucket, c.Key), nil
}

func newObject(api objectAPI, bucket, key string) *Object {
	if key == "" {
		key = DefaultObjectKey
	}

	return &Object{
		api:    api,
		bucket: bucket,
		key:    key,
		codec:  CodecFor(key),
	}
}

// Load reads the snapshot object. A missing object yields no records and
// no error.
func (o *Object) Load(ctx context.Context) ([]store.Record, error) {
	data, err := o.api.Get(ctx, o.bucket, o.key)
	if errors.Is(err, errNoSuchObject) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot object %s/%s: %w", o.bucket, o.key, err)
	}

	return o.codec.Decode(bytes.NewReader(data))
}

// Save replaces the snapshot object with records.
func (o *Object) Save(ctx context.Context, records []store.Record) error {
	data, err := o.codec.encodeBytes(records)
	if err != nil {
		return err
	}

	contentType := "application/json"
	if o.codec != CodecJSON {
		contentType = "application/octet-stream"
	}

	if err := o.api.Put(ctx, o.bucket, o.key, data, contentType); err != nil {
		return fmt.Errorf("putting snapshot object %s/%s: %w", o.bucket, o.key, err)
	}
	return nil
}

// Close is a no-op; the minio client holds no resources that need release.
func (o *Object) Close() error {
	return nil
}

type minioAPI struct {
	client *minio.Client
}

func (m *minioAPI) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinioErr(err)
	}
	return data, nil
}

func (m *minioAPI) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func translateMinioErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return errNoSuchObject
	}
	return err
}

var _ store.Persister = (*Object)(nil)
