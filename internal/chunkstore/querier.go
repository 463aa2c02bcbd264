package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SearchChunksParams describes a single vector search against policy_chunks.
type SearchChunksParams struct {
	// QueryEmbedding is the embedded query text.
	QueryEmbedding pgvector.Vector

	// AnyOf restricts results to rows whose metadata key matches one of the
	// given values (metadata->>key = ANY(values)). Multiple keys are ANDed.
	AnyOf map[string][]string

	// Equals restricts results by JSONB containment (metadata @> Equals).
	Equals map[string]any

	// ResultLimit caps the number of returned rows.
	ResultLimit int32
}

// ChunkRow is one raw search result row.
type ChunkRow struct {
	Content  string
	Metadata []byte
	Distance float64
}

// Querier defines the database operations Store depends on.
// The interface is defined here, by the consumer, so tests can substitute
// a mock without a live database.
type Querier interface {
	// SearchChunks performs a cosine distance search over policy_chunks.
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error)
}

// PGQuerier implements Querier against a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a Querier backed by the given pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// SearchChunks runs the vector search and scans the result rows.
func (q *PGQuerier) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error) {
	query, args, err := buildSearchQuery(arg)
	if err != nil {
		return nil, err
	}

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policy_chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var row ChunkRow
		if err := rows.Scan(&row.Content, &row.Metadata, &row.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return out, nil
}

// buildSearchQuery assembles the parameterized SQL for a search.
// All filter values travel as query parameters; the only interpolated
// text is the parameter placeholders themselves.
func buildSearchQuery(arg SearchChunksParams) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT content, metadata, embedding <=> $1 AS distance FROM policy_chunks")

	args := []any{arg.QueryEmbedding}
	var conds []string

	// Sort keys so the generated SQL is deterministic.
	keys := make([]string, 0, len(arg.AnyOf))
	for key := range arg.AnyOf {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		args = append(args, key, arg.AnyOf[key])
		conds = append(conds, fmt.Sprintf("metadata->>$%d = ANY($%d)", len(args)-1, len(args)))
	}

	if len(arg.Equals) > 0 {
		filterJSON, err := json.Marshal(arg.Equals)
		if err != nil {
			return "", nil, fmt.Errorf("marshal metadata filter: %w", err)
		}
		args = append(args, filterJSON)
		conds = append(conds, fmt.Sprintf("metadata @> $%d", len(args)))
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	args = append(args, arg.ResultLimit)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	return sb.String(), args, nil
}
