// Package history persists chat conversations in PostgreSQL and replays
// them as turns for the generation pipeline.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/policydesk/policydesk/internal/rag"
)

// NewSessionID mints an opaque session identifier.
// The format is a hex UUID without dashes, matching what clients already
// hold from earlier deployments.
func NewSessionID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// Store manages chat message persistence.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a new Store.
//
// Example (production):
//
//	store := history.New(history.NewPGQuerier(pool), logger)
//
// Example (testing):
//
//	store := history.New(mockQuerier, slog.Default())
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, logger: logger}
}

// SaveMessage appends one message to a session. Metadata is optional and
// stored as JSONB; pass nil when there is nothing to record.
func (s *Store) SaveMessage(ctx context.Context, sessionID, role, content string, metadata map[string]any) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id must not be blank")
	}
	if strings.TrimSpace(role) == "" {
		return errors.New("role must not be blank")
	}

	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	if err := s.querier.SaveMessage(ctx, SaveMessageParams{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadataJSON,
	}); err != nil {
		return fmt.Errorf("save message for session %q: %w", sessionID, err)
	}

	s.logger.Debug("saved chat message", "session_id", sessionID, "role", role, "content_length", len(content))
	return nil
}

// LoadHistory returns up to limit most recent turns of a session in
// chronological order. An unknown session yields an empty history.
func (s *Store) LoadHistory(ctx context.Context, sessionID string, limit int) ([]rag.Turn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id must not be blank")
	}
	if limit <= 0 {
		return []rag.Turn{}, nil
	}
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}

	rows, err := s.querier.RecentMessages(ctx, sessionID, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("load history for session %q: %w", sessionID, err)
	}

	// Rows arrive newest first; reverse into chronological order.
	turns := make([]rag.Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = rag.Turn{Role: row.Role, Content: row.Content}
	}
	return turns, nil
}
