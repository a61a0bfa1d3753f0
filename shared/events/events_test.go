package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("notification", 42, EventNotificationCreated, map[string]any{"recipient_user_id": 7})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.False(t, env.OccurredAt.IsZero())
	assert.Equal(t, "notification:42", string(env.Key()))
	assert.JSONEq(t, `{"recipient_user_id":7}`, string(env.Payload))

	h := env.Headers()
	assert.Equal(t, env.EventID.String(), h["event_id"])
	assert.Equal(t, "42", h["aggregate_id"])
	assert.Equal(t, EventNotificationCreated, h["event_type"])

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"aggregate_id":42`)
}

func TestNewEnvelopeRejectsUnencodablePayload(t *testing.T) {
	_, err := NewEnvelope("activity", 1, EventActivityRecorded, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
