// Package query ranks stored records against a query by cosine similarity
// over a full linear scan.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"

	"github.com/papercomputeco/kb/pkg/embeddings"
	"github.com/papercomputeco/kb/pkg/store"
	"github.com/papercomputeco/kb/pkg/vector"
)

// Result is a scored record.
type Result struct {
	store.Record
	Score float64 `json:"score"`
}

// Engine answers nearest-neighbor queries over a Store.
type Engine struct {
	store   *store.Store
	gateway *embeddings.Gateway
	logger  *slog.Logger
}

// NewEngine creates a query engine.
func NewEngine(s *store.Store, gateway *embeddings.Gateway, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		gateway: gateway,
		logger:  logger,
	}
}

// Query returns up to topK records ordered by descending cosine similarity
// to text. Ties keep store insertion order. A topK <= 0 or an empty store
// returns no results without calling the embedding gateway.
//
// When the query embedding degrades every score is 0, so results come back
// in insertion order.
func (e *Engine) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	if topK <= 0 || e.store.Count() == 0 {
		return []Result{}, nil
	}

	embedded := e.gateway.Embed(ctx, text, embeddings.IntentQuery)
	if embedded.Degraded {
		e.logger.Warn("query ran with a degraded embedding, results are unranked",
			"error", embedded.Err,
		)
	}

	results, err := e.scan(embedded.Vector)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	e.logger.Debug("query complete",
		"candidates", e.store.Count(),
		"returned", len(results),
		"degraded", embedded.Degraded,
	)

	return results, nil
}

func (e *Engine) scan(q []float32) ([]Result, error) {
	results := make([]Result, 0, e.store.Count())

	err := e.store.Scan(func(r store.Record) error {
		score, err := vector.Cosine(q, r.Embedding)
		if err != nil {
			e.logger.Error("stored embedding does not match query dimension",
				"id", r.ID,
				"stored", len(r.Embedding),
				"query", len(q),
			)
			return fmt.Errorf("scoring %q: %w", r.ID, err)
		}

		results = append(results, Result{
			Record: store.Record{
				ID:       r.ID,
				Text:     r.Text,
				Metadata: maps.Clone(r.Metadata),
			},
			Score: score,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}
