package domain

import "time"

// ConversationSession binds a sequence of exchanges to a durable identifier.
// The identifier is the only durable artifact kept client-side; full history
// is fetched on demand from the server.
type ConversationSession struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Messages  []ConversationMessage `json:"messages,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// ModelPreference selects which provider/model backs new exchanges. It is
// persisted across runs and read once at exchange-initiation time.
type ModelPreference struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// IsZero reports whether no preference has been chosen.
func (m ModelPreference) IsZero() bool {
	return m.Provider == "" && m.Model == ""
}
