// Package domain defines the shared data model for conversations, approvals,
// and agent activity surfaced by the ops-center assistant.
package domain

import "time"

// Sender identifies who produced a conversation message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ConversationMessage is one exchanged utterance. Messages are immutable once
// created; identifiers are unique within a conversation and insertion order
// defines display order.
type ConversationMessage struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Sender    Sender         `json:"sender"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ReasoningStep is one unit of the assistant's visible intermediate work
// during a single exchange. The whole trace is transient: it is cleared when
// the exchange's final message arrives.
type ReasoningStep struct {
	Agent   string `json:"agent,omitempty"`
	Content string `json:"content"`
	Step    string `json:"step,omitempty"`
	Tool    string `json:"tool,omitempty"`
}
