package history

import (
	"context"
	"testing"

	"github.com/policydesk/policydesk/internal/rag"
	"github.com/policydesk/policydesk/internal/testutil"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbc, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := New(NewPGQuerier(dbc.Pool), testutil.DiscardLogger())
	sessionID := NewSessionID()

	turns := []struct {
		role    string
		content string
	}{
		{rag.RoleUser, "what is the vacation policy?"},
		{rag.RoleAssistant, "Vacation accrues monthly [1]."},
		{rag.RoleUser, "and sick leave?"},
	}
	for _, turn := range turns {
		if err := store.SaveMessage(ctx, sessionID, turn.role, turn.content, nil); err != nil {
			t.Fatalf("SaveMessage(%q) error = %v", turn.content, err)
		}
	}

	// Metadata round-trips through jsonb.
	meta := map[string]any{"mode": "two_step", "chosen_files": []string{"hr.pdf"}}
	if err := store.SaveMessage(ctx, sessionID, rag.RoleAssistant, "Sick leave is separate [1].", meta); err != nil {
		t.Fatalf("SaveMessage with metadata error = %v", err)
	}

	history, err := store.LoadHistory(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}

	// Chronological order, oldest first.
	if history[0].Content != "what is the vacation policy?" {
		t.Errorf("history[0] = %q", history[0].Content)
	}
	if history[3].Role != rag.RoleAssistant || history[3].Content != "Sick leave is separate [1]." {
		t.Errorf("history[3] = %+v", history[3])
	}

	// Limit keeps only the newest messages.
	recent, err := store.LoadHistory(ctx, sessionID, 2)
	if err != nil {
		t.Fatalf("LoadHistory(limit=2) error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
	if recent[0].Content != "and sick leave?" {
		t.Errorf("recent[0] = %q, want the second-newest message", recent[0].Content)
	}

	// Sessions are isolated.
	other, err := store.LoadHistory(ctx, NewSessionID(), 10)
	if err != nil {
		t.Fatalf("LoadHistory(other session) error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("len(other) = %d, want 0", len(other))
	}
}
