package domain

// RiskLevel classifies how consequential a proposed action is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Well-known action types proposals can carry. The set is open: the executor
// may report action types this client has no special handling for.
const (
	ActionCreateCalendarEvent = "create_calendar_event"
	ActionCreateEmailDraft    = "create_email_draft"
)

// ActionProposal is a candidate side-effecting action awaiting human
// approval. Exactly one decision is outstanding per identifier; once decided
// the proposal leaves the pending set (and is only re-inserted if the
// decision submission fails).
type ActionProposal struct {
	ID         string         `json:"id"`
	Agent      string         `json:"agent"`
	ActionType string         `json:"actionType"`
	Risk       RiskLevel      `json:"risk,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// PayloadString returns a string field from the proposal payload, or "" when
// absent or not a string.
func (p ActionProposal) PayloadString(key string) string {
	if p.Payload == nil {
		return ""
	}
	s, _ := p.Payload[key].(string)
	return s
}

// SuggestionKind distinguishes how a suggested follow-up is consumed.
type SuggestionKind string

const (
	SuggestionSendMessage SuggestionKind = "send_message"
	SuggestionNavigate    SuggestionKind = "navigate"
)

// SuggestedAction is a lightweight follow-up affordance. The list is replaced
// wholesale whenever a new suggestions event arrives; it is never persisted.
type SuggestedAction struct {
	Label   string         `json:"label"`
	Kind    SuggestionKind `json:"kind"`
	Payload string         `json:"payload"`
}
