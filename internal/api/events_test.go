package api

import (
	"testing"

	"github.com/opsdeck/opsdeck/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_Session(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"session","session_id":"s-42"}`))
	require.NoError(t, err)
	assert.Equal(t, SessionEvent{SessionID: "s-42"}, ev)
}

func TestDecodeEvent_Reasoning(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"reasoning","content":"checking calendar","step":"triage"}`))
	require.NoError(t, err)
	assert.Equal(t, ReasoningEvent{Content: "checking calendar", Step: "triage"}, ev)
}

func TestDecodeEvent_Thought(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"thought","agent":"calendar","content":"scanning week","step":"scan"}`))
	require.NoError(t, err)
	assert.Equal(t, ThoughtEvent{Agent: "calendar", Content: "scanning week", Step: "scan"}, ev)
}

func TestDecodeEvent_ToolStart(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"tool_start","tool":"calendar_search","detail":"next 7 days"}`))
	require.NoError(t, err)
	assert.Equal(t, ToolStartEvent{Tool: "calendar_search", Detail: "next 7 days"}, ev)
}

func TestDecodeEvent_Plan(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"plan","agent":"orchestrator","description":"triage inbox","steps":3}`))
	require.NoError(t, err)
	assert.Equal(t, PlanEvent{Agent: "orchestrator", Description: "triage inbox", Steps: 3}, ev)
}

func TestDecodeEvent_Data(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"data","agent":"mail","source":"inbox","count":12}`))
	require.NoError(t, err)
	assert.Equal(t, DataEvent{Agent: "mail", Source: "inbox", Count: 12}, ev)
}

func TestDecodeEvent_Decision(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"decision","agent":"mail","decision":"draft a reply"}`))
	require.NoError(t, err)
	assert.Equal(t, DecisionEvent{Agent: "mail", Decision: "draft a reply"}, ev)
}

func TestDecodeEvent_Progress(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"progress","percent":60,"message":"drafting"}`))
	require.NoError(t, err)
	assert.Equal(t, ProgressEvent{Percent: 60, Message: "drafting"}, ev)
}

func TestDecodeEvent_AgentStatus(t *testing.T) {
	ev, err := DecodeEvent([]byte(
		`{"type":"agent_status","agent":"calendar","status":"ready","capabilities":["search","create"]}`))
	require.NoError(t, err)
	assert.Equal(t, AgentStatusEvent{
		Agent: "calendar", Status: "ready", Capabilities: []string{"search", "create"},
	}, ev)
}

func TestDecodeEvent_Suggestions(t *testing.T) {
	ev, err := DecodeEvent([]byte(
		`{"type":"suggestions","suggestions":[{"label":"Open inbox","kind":"navigate","payload":"/mail"}]}`))
	require.NoError(t, err)

	sugg, ok := ev.(SuggestionsEvent)
	require.True(t, ok)
	require.Len(t, sugg.Suggestions, 1)
	assert.Equal(t, domain.SuggestedAction{
		Label: "Open inbox", Kind: domain.SuggestionNavigate, Payload: "/mail",
	}, sugg.Suggestions[0])
}

func TestDecodeEvent_Approval(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{
		"type": "approval_required",
		"proposals": [{
			"id": "p1",
			"agent": "calendar",
			"action_type": "create_calendar_event",
			"risk": "medium",
			"reasoning": "you asked for a standup",
			"payload": {"title": "Standup"}
		}]
	}`))
	require.NoError(t, err)

	appr, ok := ev.(ApprovalEvent)
	require.True(t, ok)
	require.Len(t, appr.Proposals, 1)

	p := appr.Proposals[0]
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, domain.ActionCreateCalendarEvent, p.ActionType)
	assert.Equal(t, domain.RiskMedium, p.Risk)
	assert.Equal(t, "Standup", p.PayloadString("title"))
}

func TestDecodeEvent_Message(t *testing.T) {
	ev, err := DecodeEvent([]byte(
		`{"type":"message","id":"m1","content":"All set.","metadata":{"agents":["calendar"]}}`))
	require.NoError(t, err)

	msg, ok := ev.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "All set.", msg.Content)
	assert.NotNil(t, msg.Metadata)
}

func TestDecodeEvent_Error(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"error","error":"upstream timeout"}`))
	require.NoError(t, err)
	assert.Equal(t, ErrorEvent{Message: "upstream timeout"}, ev)
}

func TestDecodeEvent_Error_MessageFallback(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"error","message":"something broke"}`))
	require.NoError(t, err)
	assert.Equal(t, ErrorEvent{Message: "something broke"}, ev)
}

func TestDecodeEvent_Navigation(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"navigation","target":"/calendar"}`))
	require.NoError(t, err)
	assert.Equal(t, NavigationEvent{Target: "/calendar"}, ev)
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"telemetry","content":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestDecodeEvent_MalformedJSON(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"message","content":`))
	require.Error(t, err)
}
