package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-tickets/internal/models"
)

// IssuanceResult reports how many tickets a notification actually created.
// Re-processing the same notification yields zero.
type IssuanceResult struct {
	OrderID        string `json:"order_id"`
	TicketsCreated int    `json:"tickets_created"`
}

// TicketIDFor derives the identifier for one admitted unit. The derivation is
// pure: redelivering a notification regenerates the same ids, and the unique
// insert absorbs them.
func TicketIDFor(orderID, itemID string, unitIndex int) string {
	return fmt.Sprintf("TICKET-%s-%s-%d", orderID, itemID, unitIndex)
}

// IssueFromOrder creates one ticket per purchased unit of every line item
// that carries a SKU. Lines without a SKU are not tickets and are skipped.
func (s *TicketService) IssueFromOrder(ctx context.Context, order models.OrderPayload) (IssuanceResult, error) {
	orderID := order.ID.String()
	if orderID == "" {
		return IssuanceResult{}, ErrMissingOrderID
	}

	result := IssuanceResult{OrderID: orderID}
	now := time.Now()

	for _, item := range order.LineItems {
		if item.SKU == "" {
			continue
		}
		for n := 1; n <= item.Quantity; n++ {
			ticket := models.Ticket{
				TicketID:      TicketIDFor(orderID, item.ID.String(), n),
				EventSKU:      item.SKU,
				CustomerEmail: order.Email,
				OrderID:       orderID,
				Used:          false,
				CreatedAt:     now,
			}

			created, err := s.DB.InsertTicket(ctx, ticket)
			if err != nil {
				return result, fmt.Errorf("issue order %s: %w", orderID, err)
			}
			if created {
				result.TicketsCreated++
				s.logInfo("ISSUANCE", fmt.Sprintf("Ticket generated: %s", ticket.TicketID))
			} else {
				s.logInfo("ISSUANCE", fmt.Sprintf("Ticket %s already existed", ticket.TicketID))
			}
		}
	}

	s.publishIssued(result)
	return result, nil
}

func (s *TicketService) publishIssued(result IssuanceResult) {
	if s.Publisher == nil || s.Topics.TicketsIssued == "" || result.TicketsCreated == 0 {
		return
	}
	value, err := json.Marshal(result)
	if err != nil {
		s.logError("KAFKA", fmt.Sprintf("Failed to marshal issuance event: %v", err))
		return
	}
	if err := s.Publisher.Publish(s.Topics.TicketsIssued, result.OrderID, value); err != nil {
		s.logError("KAFKA", fmt.Sprintf("Failed to publish issuance event for order %s: %v", result.OrderID, err))
	}
}
