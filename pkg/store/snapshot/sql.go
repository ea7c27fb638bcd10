package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx PostgreSQL driver as "pgx"
	_ "github.com/mattn/go-sqlite3"    // register the SQLite driver as "sqlite3"

	"github.com/papercomputeco/kb/pkg/store"
)

// dialect holds the per-database differences of the snapshot table.
type dialect struct {
	driver   string
	blobType string
}

var (
	dialectSQLite   = dialect{driver: "sqlite3", blobType: "BLOB"}
	dialectPostgres = dialect{driver: "pgx", blobType: "BYTEA"}
)

// SQL persists the snapshot as a single row of a kb_snapshots table, keyed by
// Key. The row holds the same codec-framed bytes the file provider writes, so
// the format stays one flat snapshot. Saves replace the row in one statement.
type SQL struct {
	db    *sql.DB
	key   string
	codec Codec
}

// NewSQLite opens (or creates) a SQLite database at path and prepares the
// snapshot table. The path can be ":memory:" for tests.
func NewSQLite(ctx context.Context, path, key string) (*SQL, error) {
	if path == "" {
		return nil, errors.New("sqlite snapshot path is required")
	}

	db, err := sql.Open(dialectSQLite.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	return newSQL(ctx, db, dialectSQLite, key)
}

// NewPostgres connects to PostgreSQL with connStr, e.g.
// "postgres://kb:kb@localhost:5432/kb?sslmode=disable", and prepares the
// snapshot table.
func NewPostgres(ctx context.Context, connStr, key string) (*SQL, error) {
	if connStr == "" {
		return nil, errors.New("postgres snapshot DSN is required")
	}

	db, err := sql.Open(dialectPostgres.driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify the connection is reachable
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newSQL(ctx, db, dialectPostgres, key)
}

func newSQL(ctx context.Context, db *sql.DB, d dialect, key string) (*SQL, error) {
	if key == "" {
		key = DefaultObjectKey
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_snapshots (
	key TEXT PRIMARY KEY,
	data %s NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`, d.blobType)

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQL{db: db, key: key, codec: CodecFor(key)}, nil
}

// Load reads the snapshot row. A missing row yields no records and no error.
func (s *SQL) Load(ctx context.Context) ([]store.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM kb_snapshots WHERE key = $1`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot row %s: %w", s.key, err)
	}

	return s.codec.Decode(bytes.NewReader(data))
}

// Save replaces the snapshot row with records.
func (s *SQL) Save(ctx context.Context, records []store.Record) error {
	data, err := s.codec.encodeBytes(records)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO kb_snapshots (key, data, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing snapshot row %s: %w", s.key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}

var _ store.Persister = (*SQL)(nil)
