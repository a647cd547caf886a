package domain

// AgentEventType classifies a non-message signal from an exchange.
type AgentEventType string

const (
	AgentEventPlan     AgentEventType = "plan"
	AgentEventData     AgentEventType = "data"
	AgentEventDecision AgentEventType = "decision"
	AgentEventProgress AgentEventType = "progress"
	AgentEventStatus   AgentEventType = "agent_status"
)

// AgentEvent is a non-message signal surfaced during an exchange. Events
// accumulate in an append-only list for the duration of one exchange; all
// fields except Type are optional.
type AgentEvent struct {
	Type         AgentEventType `json:"type"`
	Agent        string         `json:"agent,omitempty"`
	Message      string         `json:"message,omitempty"`
	Percent      int            `json:"percent,omitempty"`
	Step         int            `json:"step,omitempty"`
	TotalSteps   int            `json:"total_steps,omitempty"`
	Count        int            `json:"count,omitempty"`
	Source       string         `json:"source,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
}
