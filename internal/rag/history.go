package rag

import "strings"

// DefaultHistoryMaxTurns bounds how many history entries reach the prompt.
const DefaultHistoryMaxTurns = 12

// NormalizeHistory cleans raw chat history into prompt-ready turns:
// roles are lower-cased and trimmed, content is trimmed, and entries with
// an empty role, an empty content, or a role outside
// {user, assistant, system} are dropped silently. Only the last maxTurns
// surviving entries are kept, oldest dropped first.
//
// Upstream history quality cannot be guaranteed, so malformed entries are
// filtered rather than failing the turn.
func NormalizeHistory(history []Turn, maxTurns int) []Turn {
	if len(history) == 0 {
		return nil
	}
	cleaned := make([]Turn, 0, len(history))
	for _, t := range history {
		role := strings.ToLower(strings.TrimSpace(t.Role))
		content := strings.TrimSpace(t.Content)
		if role == "" || content == "" {
			continue
		}
		switch role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			continue
		}
		cleaned = append(cleaned, Turn{Role: role, Content: content})
	}
	if maxTurns > 0 && len(cleaned) > maxTurns {
		cleaned = cleaned[len(cleaned)-maxTurns:]
	}
	return cleaned
}
