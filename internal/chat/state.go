// Package chat holds the conversation state for the assistant panel: it folds
// the typed event stream of one exchange into messages, a reasoning trace,
// pending approvals and follow-up suggestions, and it runs the approval
// decision workflow against the remote executor.
package chat

import "github.com/opsdeck/opsdeck/internal/domain"

// Exchange status values exposed through State.Status.
const (
	StatusIdle      = "idle"
	StatusCompleted = "completed"
)

// State is an immutable snapshot of the conversation. Subscribers receive a
// fresh copy on every change; slices and maps inside it must not be mutated.
type State struct {
	// SessionID is the active session identifier, empty before the server
	// assigns one.
	SessionID string

	// Messages is the timeline, insertion-ordered.
	Messages []domain.ConversationMessage

	// Reasoning is the in-flight trace for the current exchange. Cleared when
	// the exchange finishes.
	Reasoning []domain.ReasoningStep

	// Events accumulates the structured signals of the current exchange.
	Events []domain.AgentEvent

	// Pending holds proposals awaiting a human decision.
	Pending []domain.ActionProposal

	// Suggestions are the current follow-up affordances, replaced wholesale.
	Suggestions []domain.SuggestedAction

	// AgentStatus mirrors the latest agent-status signal, "completed" after a
	// finished exchange, "idle" when nothing is running.
	AgentStatus string

	// Progress is the current exchange's completion percentage.
	Progress int

	// InProgress reports whether an exchange is active.
	InProgress bool
}

// PendingProposal returns the pending proposal with the given id, or nil.
func (s State) PendingProposal(id string) *domain.ActionProposal {
	for i := range s.Pending {
		if s.Pending[i].ID == id {
			return &s.Pending[i]
		}
	}
	return nil
}
