package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/saga-system/shared/models"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"order.created", "order.created", true},
		{"order.created", "order.cancelled", false},
		{"order.created", "order.*", true},
		{"order.create.requested", "order.*", false},
		{"order.create.requested", "order.*.requested", true},
		{"order.created", "#", true},
		{"inventory.reserve.requested", "#", true},
		{"payment.refunded", "order.#", false},
		{"order.created", "*.created", true},
		{"order", "order.*", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.topic)+" vs "+string(tt.pattern), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern))
		})
	}
}

func TestNewTopicRejectsEmpty(t *testing.T) {
	_, err := NewTopic("")
	assert.Equal(t, ErrInvalidTopic, err)
}

func TestEventPayload(t *testing.T) {
	id := models.GenerateUUID()

	t.Run("map data is returned as is", func(t *testing.T) {
		event := NewEvent(id, OrderCreatedTopic, map[string]interface{}{"order_id": "ord-1"})
		payload, err := event.Payload()
		require.NoError(t, err)
		assert.Equal(t, "ord-1", payload["order_id"])
	})

	t.Run("typed data goes through JSON", func(t *testing.T) {
		type data struct {
			OrderID string `json:"order_id"`
			Amount  int64  `json:"amount"`
		}
		event := NewEvent(id, OrderCreatedTopic, data{OrderID: "ord-1", Amount: 2500})

		payload, err := event.Payload()
		require.NoError(t, err)
		assert.Equal(t, "ord-1", payload["order_id"])
		assert.Equal(t, float64(2500), payload["amount"])
	})

	t.Run("raw bytes are unmarshalled", func(t *testing.T) {
		event := NewEvent(id, OrderCreatedTopic, []byte(`{"order_id":"ord-1"}`))
		payload, err := event.Payload()
		require.NoError(t, err)
		assert.Equal(t, "ord-1", payload["order_id"])
	})
}

func TestEventClone(t *testing.T) {
	original := NewEvent(models.GenerateUUID(), OrderCreatedTopic, map[string]interface{}{"k": "v"}).
		WithCorrelationID(models.GenerateUUID()).
		WithMetadata("source", "test")

	clone := original.Clone()
	assert.Equal(t, original.ID, clone.ID)
	assert.Equal(t, original.CorrelationID, clone.CorrelationID)

	// Metadata is copied, not shared.
	clone.Metadata.Set("source", "changed")
	v, _ := original.Metadata.Get("source")
	assert.Equal(t, "test", v)
}
