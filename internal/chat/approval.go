package chat

import (
	"context"
	"fmt"

	"github.com/opsdeck/opsdeck/internal/api"
	"github.com/opsdeck/opsdeck/internal/domain"
)

// Decide submits a human decision for one pending proposal and reconciles the
// outcome into the timeline. The proposal is removed from the pending set
// before the remote call so the approval UI responds instantly; on remote
// failure it is restored and the error is both surfaced as a message and
// returned so the caller may retry.
func (s *Store) Decide(ctx context.Context, proposalID string, approved bool, editedPayload map[string]any) error {
	s.mu.Lock()
	idx := -1
	for i := range s.state.Pending {
		if s.state.Pending[i].ID == proposalID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProposal, proposalID)
	}

	proposal := s.state.Pending[idx]
	s.state.Pending = append(s.state.Pending[:idx], s.state.Pending[idx+1:]...)
	s.mu.Unlock()
	s.notify()

	result, err := s.backend.SubmitDecision(ctx, api.DecisionRequest{
		ProposalID: proposalID,
		Approved:   approved,
		Payload:    editedPayload,
	})
	if err != nil {
		// Compensate: the decision never reached the executor, so the
		// proposal goes back to pending and the human may retry.
		s.log.Error().Err(err).Str("proposal", proposalID).Msg("decision submission failed")
		s.mu.Lock()
		s.state.Pending = append(s.state.Pending, proposal)
		s.mu.Unlock()
		s.appendAssistant(fmt.Sprintf("Sorry, I couldn't submit that decision: %v. The action is still pending.", err), nil)
		return err
	}

	if !approved {
		s.appendAssistant("Understood, I won't take that action.", nil)
		return nil
	}

	s.reconcileOutcome(proposal, result, editedPayload)
	return nil
}

// reconcileOutcome appends the outcome message and, when the action actually
// executed, replaces the suggestion list with action-specific follow-ups.
func (s *Store) reconcileOutcome(proposal domain.ActionProposal, result *api.DecisionResult, edited map[string]any) {
	status := result.EffectiveStatus()

	switch status {
	case "executed":
		s.mu.Lock()
		s.state.Suggestions = followUps(proposal.ActionType)
		s.mu.Unlock()
		s.appendAssistant(executedText(proposal, edited), nil)

	case "failed":
		text := "I couldn't complete that action."
		if result.Reason != "" {
			text = fmt.Sprintf("I couldn't complete that action: %s", result.Reason)
		}
		s.appendAssistant(text, nil)

	default:
		text := fmt.Sprintf("The action finished with status %q.", status)
		if result.Message != "" {
			text = result.Message
		}
		s.appendAssistant(text, nil)
	}
}

// executedText phrases the confirmation for an executed action. The edited
// payload wins over the proposal's original fields, since it is what actually
// ran.
func executedText(proposal domain.ActionProposal, edited map[string]any) string {
	field := func(key string) string {
		if edited != nil {
			if v, ok := edited[key].(string); ok && v != "" {
				return v
			}
		}
		return proposal.PayloadString(key)
	}

	switch proposal.ActionType {
	case domain.ActionCreateCalendarEvent:
		if title := field("title"); title != "" {
			return fmt.Sprintf("Added %q to your calendar.", title)
		}
		return "Added the event to your calendar."
	case domain.ActionCreateEmailDraft:
		if subject := field("subject"); subject != "" {
			return fmt.Sprintf("I've drafted %q. It's awaiting your review.", subject)
		}
		return "I've prepared the draft. It's awaiting your review."
	default:
		return "Done. The action was carried out."
	}
}

// followUps returns the action-specific follow-up suggestions for an executed
// proposal. Unknown action types get none.
func followUps(actionType string) []domain.SuggestedAction {
	switch actionType {
	case domain.ActionCreateCalendarEvent:
		return []domain.SuggestedAction{
			{Label: "Email the attendees", Kind: domain.SuggestionSendMessage, Payload: "Email the attendees about the new event"},
			{Label: "Add a reminder", Kind: domain.SuggestionSendMessage, Payload: "Add a reminder before the event"},
		}
	case domain.ActionCreateEmailDraft:
		return []domain.SuggestedAction{
			{Label: "Send it now", Kind: domain.SuggestionSendMessage, Payload: "Send the draft"},
			{Label: "Tighten it up", Kind: domain.SuggestionSendMessage, Payload: "Make the draft shorter and more direct"},
		}
	default:
		return nil
	}
}
