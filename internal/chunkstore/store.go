package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/policydesk/policydesk/internal/rag"
)

// searchTimeout bounds a single embed-plus-search round trip so a slow
// vector query cannot block a chat request indefinitely.
const searchTimeout = 10 * time.Second

// Store performs semantic search over policy document chunks.
// It generates query embeddings with the configured embedder and delegates
// the vector search to a Querier.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a new Store.
//
// Example (production):
//
//	store := chunkstore.New(chunkstore.NewPGQuerier(pool), embedder, logger)
//
// Example (testing):
//
//	store := chunkstore.New(mockQuerier, mockEmbedder, slog.Default())
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Query embeds text and returns the topN nearest chunks by cosine distance,
// optionally restricted by filter. It implements rag.Searcher.
//
// Rows with missing or malformed metadata are returned with empty metadata
// rather than failing the whole search.
func (s *Store) Query(ctx context.Context, text string, topN int, filter *rag.Filter) ([]rag.Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("query text must not be blank")
	}
	if topN <= 0 {
		return nil, fmt.Errorf("topN must be positive, got %d", topN)
	}
	if topN > math.MaxInt32 {
		topN = math.MaxInt32
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embeddingResp, err := s.embedder.Embed(queryCtx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{
				Content: []*ai.Part{ai.NewTextPart(text)},
			},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(embeddingResp.Embeddings) == 0 || len(embeddingResp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned for query")
	}

	params := SearchChunksParams{
		QueryEmbedding: pgvector.NewVector(embeddingResp.Embeddings[0].Embedding),
		ResultLimit:    int32(topN),
	}
	applyFilter(&params, filter)

	rows, err := s.queries.SearchChunks(queryCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.rowsToHits(rows), nil
}

// applyFilter translates a rag.Filter into search parameters.
// When a key appears in both AnyOf and Equals, the Equals condition wins
// and the AnyOf condition for that key is dropped.
func applyFilter(params *SearchChunksParams, filter *rag.Filter) {
	if filter == nil || filter.IsZero() {
		return
	}

	if len(filter.Equals) > 0 {
		params.Equals = make(map[string]any, len(filter.Equals))
		for key, val := range filter.Equals {
			params.Equals[key] = val.Any()
		}
	}

	for key, vals := range filter.AnyOf {
		if len(vals) == 0 {
			continue
		}
		if _, overridden := params.Equals[key]; overridden {
			continue
		}
		if params.AnyOf == nil {
			params.AnyOf = make(map[string][]string, len(filter.AnyOf))
		}
		params.AnyOf[key] = vals
	}
}

func (s *Store) rowsToHits(rows []ChunkRow) []rag.Hit {
	hits := make([]rag.Hit, 0, len(rows))
	for _, row := range rows {
		meta := rag.Meta{}
		if len(row.Metadata) > 0 {
			parsed, err := rag.MetaFromJSON(row.Metadata)
			if err != nil {
				s.logger.Debug("skipping malformed chunk metadata", "error", err)
			} else {
				meta = parsed
			}
		}
		distance := row.Distance
		hits = append(hits, rag.Hit{
			Text:     row.Content,
			Meta:     meta,
			Distance: &distance,
		})
	}
	return hits
}
