package api

import (
	"encoding/json"
	"fmt"

	"github.com/opsdeck/opsdeck/internal/domain"
)

// Wire type tags for exchange stream events.
const (
	eventSession     = "session"
	eventReasoning   = "reasoning"
	eventThought     = "thought"
	eventToolStart   = "tool_start"
	eventInsight     = "insight"
	eventPlan        = "plan"
	eventData        = "data"
	eventDecision    = "decision"
	eventProgress    = "progress"
	eventAgentStatus = "agent_status"
	eventSuggestions = "suggestions"
	eventApproval    = "approval_required"
	eventMessage     = "message"
	eventError       = "error"
	eventNavigation  = "navigation"
)

// ExchangeEvent is one typed event read from an exchange stream. The concrete
// types below form a closed set; consumers match them exhaustively, so a new
// event kind is a compile-time-visible gap rather than a silently ignored
// default branch.
type ExchangeEvent interface {
	exchangeEvent()
}

// SessionEvent carries the server-assigned session identifier.
type SessionEvent struct {
	SessionID string
}

// ReasoningEvent is one visible unit of the assistant's intermediate work.
type ReasoningEvent struct {
	Content string
	Step    string
}

// ThoughtEvent is an agent-attributed progress thought. Thoughts from the
// same agent collapse to the latest one.
type ThoughtEvent struct {
	Agent   string
	Content string
	Step    string
}

// ToolStartEvent announces a tool invocation.
type ToolStartEvent struct {
	Tool   string
	Detail string
}

// InsightEvent is a derived observation, distinct from raw reasoning.
type InsightEvent struct {
	Content string
}

// PlanEvent describes the plan the assistant committed to.
type PlanEvent struct {
	Agent       string
	Description string
	Steps       int
}

// DataEvent reports data retrieved from a source.
type DataEvent struct {
	Agent  string
	Source string
	Count  int
}

// DecisionEvent reports a decision an agent made.
type DecisionEvent struct {
	Agent    string
	Decision string
}

// ProgressEvent reports overall exchange progress.
type ProgressEvent struct {
	Percent int
	Message string
}

// AgentStatusEvent reports an agent's status and capabilities.
type AgentStatusEvent struct {
	Agent        string
	Status       string
	Capabilities []string
}

// SuggestionsEvent replaces the follow-up suggestion list.
type SuggestionsEvent struct {
	Suggestions []domain.SuggestedAction
}

// ApprovalEvent carries proposals that require a human decision.
type ApprovalEvent struct {
	Proposals []domain.ActionProposal
}

// MessageEvent is the exchange's final assistant message.
type MessageEvent struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// ErrorEvent is a server-reported processing error; it ends the exchange
// like a final message does.
type ErrorEvent struct {
	Message string
}

// NavigationEvent asks the client to move to a view. It carries no
// conversation state.
type NavigationEvent struct {
	Target string
}

func (SessionEvent) exchangeEvent()     {}
func (ReasoningEvent) exchangeEvent()   {}
func (ThoughtEvent) exchangeEvent()     {}
func (ToolStartEvent) exchangeEvent()   {}
func (InsightEvent) exchangeEvent()     {}
func (PlanEvent) exchangeEvent()        {}
func (DataEvent) exchangeEvent()        {}
func (DecisionEvent) exchangeEvent()    {}
func (ProgressEvent) exchangeEvent()    {}
func (AgentStatusEvent) exchangeEvent() {}
func (SuggestionsEvent) exchangeEvent() {}
func (ApprovalEvent) exchangeEvent()    {}
func (MessageEvent) exchangeEvent()     {}
func (ErrorEvent) exchangeEvent()       {}
func (NavigationEvent) exchangeEvent()  {}

// wireEvent is the superset envelope for one stream line. Only the fields
// relevant to the discriminator are read.
type wireEvent struct {
	Type         string           `json:"type"`
	SessionID    string           `json:"session_id,omitempty"`
	ID           string           `json:"id,omitempty"`
	Agent        string           `json:"agent,omitempty"`
	Content      string           `json:"content,omitempty"`
	Step         string           `json:"step,omitempty"`
	Tool         string           `json:"tool,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	Description  string           `json:"description,omitempty"`
	Steps        int              `json:"steps,omitempty"`
	Source       string           `json:"source,omitempty"`
	Count        int              `json:"count,omitempty"`
	Decision     string           `json:"decision,omitempty"`
	Percent      int              `json:"percent,omitempty"`
	Message      string           `json:"message,omitempty"`
	Status       string           `json:"status,omitempty"`
	Capabilities []string         `json:"capabilities,omitempty"`
	Suggestions  []wireSuggestion `json:"suggestions,omitempty"`
	Proposals    []wireProposal   `json:"proposals,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	Error        string           `json:"error,omitempty"`
	Target       string           `json:"target,omitempty"`
}

type wireSuggestion struct {
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

type wireProposal struct {
	ID         string         `json:"id"`
	Agent      string         `json:"agent"`
	ActionType string         `json:"action_type"`
	Risk       string         `json:"risk"`
	Reasoning  string         `json:"reasoning"`
	Payload    map[string]any `json:"payload"`
}

// DecodeEvent parses one newline-delimited JSON stream line into a typed
// event. Unknown discriminators and malformed payloads return an error so
// the caller can skip the line without aborting the stream.
func DecodeEvent(line []byte) (ExchangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}

	switch w.Type {
	case eventSession:
		return SessionEvent{SessionID: w.SessionID}, nil
	case eventReasoning:
		return ReasoningEvent{Content: w.Content, Step: w.Step}, nil
	case eventThought:
		return ThoughtEvent{Agent: w.Agent, Content: w.Content, Step: w.Step}, nil
	case eventToolStart:
		return ToolStartEvent{Tool: w.Tool, Detail: w.Detail}, nil
	case eventInsight:
		return InsightEvent{Content: w.Content}, nil
	case eventPlan:
		return PlanEvent{Agent: w.Agent, Description: w.Description, Steps: w.Steps}, nil
	case eventData:
		return DataEvent{Agent: w.Agent, Source: w.Source, Count: w.Count}, nil
	case eventDecision:
		return DecisionEvent{Agent: w.Agent, Decision: w.Decision}, nil
	case eventProgress:
		return ProgressEvent{Percent: w.Percent, Message: w.Message}, nil
	case eventAgentStatus:
		return AgentStatusEvent{Agent: w.Agent, Status: w.Status, Capabilities: w.Capabilities}, nil
	case eventSuggestions:
		suggestions := make([]domain.SuggestedAction, 0, len(w.Suggestions))
		for _, s := range w.Suggestions {
			suggestions = append(suggestions, domain.SuggestedAction{
				Label:   s.Label,
				Kind:    domain.SuggestionKind(s.Kind),
				Payload: s.Payload,
			})
		}
		return SuggestionsEvent{Suggestions: suggestions}, nil
	case eventApproval:
		proposals := make([]domain.ActionProposal, 0, len(w.Proposals))
		for _, p := range w.Proposals {
			proposals = append(proposals, domain.ActionProposal{
				ID:         p.ID,
				Agent:      p.Agent,
				ActionType: p.ActionType,
				Risk:       domain.RiskLevel(p.Risk),
				Reasoning:  p.Reasoning,
				Payload:    p.Payload,
			})
		}
		return ApprovalEvent{Proposals: proposals}, nil
	case eventMessage:
		return MessageEvent{ID: w.ID, Content: w.Content, Metadata: w.Metadata}, nil
	case eventError:
		msg := w.Error
		if msg == "" {
			msg = w.Message
		}
		return ErrorEvent{Message: msg}, nil
	case eventNavigation:
		return NavigationEvent{Target: w.Target}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", w.Type)
	}
}
