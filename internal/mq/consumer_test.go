package mq

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	type event struct {
		DeliveryID string `json:"delivery_id"`
		EventType  string `json:"event_type"`
	}

	msg := &Message{
		ID:      "d-1",
		Type:    MessageTypeWebhookEvent,
		Payload: json.RawMessage(`{"delivery_id":"d-1","event_type":"ping"}`),
	}

	got, err := ParsePayload[event](msg)
	require.NoError(t, err)
	assert.Equal(t, event{DeliveryID: "d-1", EventType: "ping"}, got)
}

func TestParsePayload_Invalid(t *testing.T) {
	msg := &Message{Payload: json.RawMessage(`[1,2`)}

	_, err := ParsePayload[map[string]any](msg)
	assert.Error(t, err)
}
