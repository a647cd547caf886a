package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionProposal_PayloadString(t *testing.T) {
	p := ActionProposal{
		ID:         "a1",
		ActionType: ActionCreateCalendarEvent,
		Payload: map[string]any{
			"title":     "Standup",
			"attendees": []string{"alice", "bob"},
		},
	}

	assert.Equal(t, "Standup", p.PayloadString("title"))
	assert.Equal(t, "", p.PayloadString("attendees"), "non-string field")
	assert.Equal(t, "", p.PayloadString("missing"))

	empty := ActionProposal{ID: "a2"}
	assert.Equal(t, "", empty.PayloadString("title"), "nil payload")
}

func TestModelPreference_IsZero(t *testing.T) {
	assert.True(t, ModelPreference{}.IsZero())
	assert.False(t, ModelPreference{Provider: "anthropic"}.IsZero())
	assert.False(t, ModelPreference{Model: "sonnet"}.IsZero())
}

func TestConversationMessage_JSON(t *testing.T) {
	msg := ConversationMessage{
		ID:      "m1",
		Content: "hello",
		Sender:  SenderUser,
		Metadata: map[string]any{
			"plan": "3 steps",
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got ConversationMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, SenderUser, got.Sender)
	assert.Equal(t, "3 steps", got.Metadata["plan"])
}
