package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is a single-use access credential for one admitted unit at an event.
// The used flag only ever moves from false to true; the store performs that
// transition with a conditional UPDATE, never read-then-write.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID      string    `bun:"ticket_id,pk" json:"ticket_id"`
	EventSKU      string    `bun:"event_sku,notnull" json:"event_sku"`
	CustomerEmail string    `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	OrderID       string    `bun:"order_id" json:"order_id"`
	Used          bool      `bun:"used,notnull" json:"used"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}
