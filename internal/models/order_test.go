package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-tickets/internal/models"
)

func TestOrderPayloadAcceptsNumericAndStringIDs(t *testing.T) {
	// Shopify sends numeric ids; internal tooling sends strings.
	payload := []byte(`{
		"id": 450789469,
		"email": "buyer@example.com",
		"line_items": [
			{"id": "L1", "sku": "EVT1", "quantity": 2, "title": "Entrada General"},
			{"id": 703073504, "sku": "", "quantity": 1, "title": "Gastos de envío"}
		]
	}`)

	var order models.OrderPayload
	require.NoError(t, json.Unmarshal(payload, &order))

	assert.Equal(t, "450789469", order.ID.String())
	assert.Equal(t, "buyer@example.com", order.Email)
	require.Len(t, order.LineItems, 2)
	assert.Equal(t, "L1", order.LineItems[0].ID.String())
	assert.Equal(t, "703073504", order.LineItems[1].ID.String())
	assert.Equal(t, 2, order.LineItems[0].Quantity)
}

func TestFlexIDNull(t *testing.T) {
	var order models.OrderPayload
	require.NoError(t, json.Unmarshal([]byte(`{"id": null}`), &order))
	assert.Empty(t, order.ID.String(), "null id should decode to empty")
}
