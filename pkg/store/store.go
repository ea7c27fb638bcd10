// Package store is the in-memory document collection backed by a single
// flat snapshot.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Config holds configuration for a Store.
type Config struct {
	// Persister loads and saves the snapshot. Required.
	Persister Persister

	// FlushPolicy selects when the snapshot is rewritten.
	FlushPolicy FlushPolicy

	// FlushEvery is the batch size for FlushBatched.
	// Defaults to DefaultFlushEvery if zero.
	FlushEvery int
}

// Store holds records in insertion order. Reads take the reader lock and
// mutations take the writer lock for replace and flush together, so a scan
// never observes a partially replaced record.
type Store struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int

	persister  Persister
	policy     FlushPolicy
	flushEvery int
	pending    int

	logger *slog.Logger
}

// Open creates a store and loads its snapshot. A missing, unreadable, or
// malformed snapshot is logged and the store starts empty.
func Open(ctx context.Context, c Config, logger *slog.Logger) (*Store, error) {
	if c.Persister == nil {
		return nil, fmt.Errorf("store persister is required")
	}

	every := c.FlushEvery
	if every <= 0 {
		every = DefaultFlushEvery
	}

	s := &Store{
		index:      make(map[string]int),
		persister:  c.Persister,
		policy:     c.FlushPolicy,
		flushEvery: every,
		logger:     logger,
	}

	loaded, err := c.Persister.Load(ctx)
	if err != nil {
		logger.Error("failed to load snapshot, starting empty", "error", err)
		return s, nil
	}

	for _, r := range loaded {
		if r.ID == "" {
			logger.Warn("skipping snapshot record with empty id")
			continue
		}
		s.replace(r)
	}

	logger.Info("snapshot loaded",
		"records", len(s.records),
		"flush_mode", s.policy.String(),
	)

	return s, nil
}

// Upsert stores a record, replacing any record with the same id. The new
// record goes to the end of the insertion order.
//
// When the flush fails the returned Record is still committed in memory and
// the error wraps ErrFlush.
func (s *Store) Upsert(ctx context.Context, id, text string, metadata map[string]any, embedding []float32) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidID
	}

	r := Record{
		ID:        id,
		Text:      text,
		Metadata:  metadata,
		Embedding: embedding,
	}.clone()
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.replace(r)

	if err := s.afterMutation(ctx); err != nil {
		return r.clone(), err
	}

	return r.clone(), nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i].clone(), true
}

// Delete removes the record with the given id. It reports whether a record
// was removed; the flush follows the same policy as Upsert.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remove(id) {
		return false, nil
	}

	return true, s.afterMutation(ctx)
}

// All returns a copy of every record in insertion order.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out
}

// Scan calls fn for every record in insertion order under the reader lock.
// fn must not retain or modify the record.
func (s *Store) Scan(fn func(Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Flush writes the snapshot now regardless of policy.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(ctx)
}

// Close flushes pending batched mutations and closes the persister.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flushErr error
	if s.pending > 0 {
		flushErr = s.flush(ctx)
	}

	if err := s.persister.Close(); err != nil {
		return fmt.Errorf("closing persister: %w", err)
	}
	return flushErr
}

// replace removes any record with r.ID and appends r. Callers hold mu.
func (s *Store) replace(r Record) {
	s.remove(r.ID)
	s.index[r.ID] = len(s.records)
	s.records = append(s.records, r)
}

// remove deletes the record with id and reindexes the tail. Callers hold mu.
func (s *Store) remove(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}

	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].ID] = j
	}
	return true
}

// afterMutation applies the flush policy. Callers hold mu.
func (s *Store) afterMutation(ctx context.Context) error {
	s.pending++

	if s.policy == FlushBatched && s.pending < s.flushEvery {
		return nil
	}

	return s.flush(ctx)
}

// flush rewrites the snapshot. Callers hold mu.
func (s *Store) flush(ctx context.Context) error {
	if err := s.persister.Save(ctx, s.records); err != nil {
		s.logger.Error("failed to write snapshot",
			"records", len(s.records),
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrFlush, err)
	}

	s.pending = 0
	return nil
}
