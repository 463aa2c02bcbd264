package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SaveMessageParams describes one chat message insert.
type SaveMessageParams struct {
	SessionID string
	Role      string
	Content   string
	Metadata  []byte
}

// MessageRow is one stored chat message as loaded for history replay.
type MessageRow struct {
	Role    string
	Content string
}

// Querier defines the database operations Store depends on.
// The interface is defined by the consumer so tests can substitute a mock.
type Querier interface {
	// SaveMessage appends a message to a session.
	SaveMessage(ctx context.Context, arg SaveMessageParams) error

	// RecentMessages returns the newest messages for a session,
	// most recent first.
	RecentMessages(ctx context.Context, sessionID string, limit int32) ([]MessageRow, error)
}

// PGQuerier implements Querier against a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a Querier backed by the given pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

func (q *PGQuerier) SaveMessage(ctx context.Context, arg SaveMessageParams) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO chat_messages (session_id, role, content, metadata) VALUES ($1, $2, $3, $4)`,
		arg.SessionID, arg.Role, arg.Content, arg.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (q *PGQuerier) RecentMessages(ctx context.Context, sessionID string, limit int32) ([]MessageRow, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT role, content FROM chat_messages WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var row MessageRow
		if err := rows.Scan(&row.Role, &row.Content); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}
