// Package ingest turns text into stored records: it embeds with document
// intent, upserts into the store, and announces the mutation on the event
// stream.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/eventstream"
	"github.com/papercomputeco/kb/pkg/store"
)

// Request is a single document to ingest.
type Request struct {
	ID       string
	Text     string
	Metadata map[string]any

	// Transport names the surface the request arrived on, for events.
	Transport string
}

// Outcome describes a committed ingest.
type Outcome struct {
	Record store.Record

	// Degraded is true when the stored embedding is the zero-vector fallback.
	Degraded bool

	// EmbedErr is the reason the embedding degraded, if it did.
	EmbedErr error
}

// Config holds the dependencies of a Service.
type Config struct {
	Store   *store.Store
	Gateway *embeddings.Gateway

	// Events is optional. Without it no events are published.
	Events *Pool

	// Host is stamped on events as their source host.
	Host string
}

// Service serializes ingests: embed, replace and persist happen under one
// lock, so two ingests of the same id can't interleave and the last one to
// take the lock wins.
type Service struct {
	mu sync.Mutex

	store   *store.Store
	gateway *embeddings.Gateway
	events  *Pool
	host    string
	logger  *slog.Logger
}

// NewService creates an ingest service.
func NewService(c Config, logger *slog.Logger) *Service {
	return &Service{
		store:   c.Store,
		gateway: c.Gateway,
		events:  c.Events,
		host:    c.Host,
		logger:  logger,
	}
}

// Ingest embeds and stores a document. An empty id is rejected with
// store.ErrInvalidID before the gateway is called.
//
// A snapshot write failure returns the committed Outcome together with an
// error wrapping store.ErrFlush.
func (s *Service) Ingest(ctx context.Context, req Request) (Outcome, error) {
	if req.ID == "" {
		return Outcome{}, store.ErrInvalidID
	}

	s.mu.Lock()
	embedded := s.gateway.Embed(ctx, req.Text, embeddings.IntentDocument)
	record, err := s.store.Upsert(ctx, req.ID, req.Text, req.Metadata, embedded.Vector)
	s.mu.Unlock()

	if err != nil && !errors.Is(err, store.ErrFlush) {
		return Outcome{}, fmt.Errorf("storing %q: %w", req.ID, err)
	}

	outcome := Outcome{
		Record:   record,
		Degraded: embedded.Degraded,
		EmbedErr: embedded.Err,
	}

	s.logger.Debug("document ingested",
		"id", req.ID,
		"transport", req.Transport,
		"degraded", embedded.Degraded,
		"persisted", err == nil,
	)

	s.publish(eventstream.EventTypeDocumentIngested, req.Transport, eventstream.DocumentMeta{
		ID:         record.ID,
		TextBytes:  len(record.Text),
		Metadata:   record.Metadata,
		Dimensions: len(record.Embedding),
		Degraded:   embedded.Degraded,
		Persisted:  err == nil,
	})

	return outcome, err
}

// Delete removes a document. It reports whether the id existed.
func (s *Service) Delete(ctx context.Context, id, transport string) (bool, error) {
	s.mu.Lock()
	deleted, err := s.store.Delete(ctx, id)
	s.mu.Unlock()

	if !deleted {
		return false, err
	}

	s.publish(eventstream.EventTypeDocumentDeleted, transport, eventstream.DocumentMeta{
		ID:        id,
		Persisted: err == nil,
	})

	return true, err
}

// Close drains and closes the event pool, if any.
func (s *Service) Close() error {
	if s.events == nil {
		return nil
	}
	return s.events.Close()
}

func (s *Service) publish(eventType, transport string, doc eventstream.DocumentMeta) {
	if s.events == nil {
		return
	}

	s.events.Enqueue(eventstream.NewDocumentEvent(eventType, eventstream.EventSource{
		Transport: transport,
		Host:      s.host,
	}, doc))
}
