package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexID accepts both JSON numbers and JSON strings. Shopify sends order and
// line item ids as numbers; internal tooling and tests send strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// OrderPayload is the paid-order notification body sent by the Shopify
// orders/paid webhook (and mirrored on the orders.paid Kafka topic).
type OrderPayload struct {
	ID        FlexID     `json:"id"`
	Email     string     `json:"email"`
	LineItems []LineItem `json:"line_items"`
}

// LineItem is one purchased product line. Only lines with a SKU produce
// tickets; quantity is the number of admitted units.
type LineItem struct {
	ID       FlexID `json:"id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Title    string `json:"title"`
}
