package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ms-tickets/internal/tickets/db"
)

// RedemptionOutcome is the scanner-facing verdict. The JSON keys match the
// operator UI contract.
type RedemptionOutcome struct {
	Valid    bool   `json:"valido"`
	Message  string `json:"mensaje"`
	EventSKU string `json:"sku,omitempty"`
}

// testProbePrefix marks diagnostic identifiers used for operational smoke
// tests of the scanning pipeline. Issued tickets always start with TICKET-,
// so a probe can never shadow a real identifier.
const testProbePrefix = "TEST-"

// Redeem consumes a ticket on first scan and rejects every later scan. Among
// any number of concurrent calls for the same identifier, exactly one observes
// Valid=true; the rest see the already-used outcome. The race is closed by the
// store's conditional update, not by any in-process lock.
func (s *TicketService) Redeem(ctx context.Context, rawTicketID string) (RedemptionOutcome, error) {
	ticketID := NormalizeTicketID(rawTicketID)

	if s.TestProbes && strings.HasPrefix(ticketID, testProbePrefix) {
		s.logInfo("REDEMPTION", fmt.Sprintf("Test probe accepted: %s", ticketID))
		return RedemptionOutcome{
			Valid:   true,
			Message: "✅ ACCESO PERMITIDO (MODO PRUEBA)",
		}, nil
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if db.IsNotFound(err) {
			return RedemptionOutcome{
				Valid:   false,
				Message: "❌ TICKET NO ENCONTRADO O INVÁLIDO",
			}, nil
		}
		return RedemptionOutcome{}, fmt.Errorf("redeem %s: %w", ticketID, err)
	}

	if ticket.Used {
		return s.alreadyUsed(ticket.EventSKU), nil
	}

	consumed, err := s.DB.ConsumeTicket(ctx, ticketID)
	if err != nil {
		return RedemptionOutcome{}, fmt.Errorf("redeem %s: %w", ticketID, err)
	}
	if !consumed {
		// Lost the race to a concurrent scan of the same ticket.
		return s.alreadyUsed(ticket.EventSKU), nil
	}

	s.logInfo("REDEMPTION", fmt.Sprintf("Ticket %s redeemed", ticketID))
	s.publishRedeemed(ticketID, ticket.EventSKU)

	return RedemptionOutcome{
		Valid:    true,
		Message:  fmt.Sprintf("✅ ACCESO PERMITIDO\nEvento: %s\nTitular: %s", ticket.EventSKU, ticket.CustomerEmail),
		EventSKU: ticket.EventSKU,
	}, nil
}

func (s *TicketService) alreadyUsed(sku string) RedemptionOutcome {
	return RedemptionOutcome{
		Valid:    false,
		Message:  fmt.Sprintf("⚠️ ALERTA: ESTE TICKET YA FUE USADO.\nSKU: %s", sku),
		EventSKU: sku,
	}
}

type redeemedEvent struct {
	TicketID   string    `json:"ticket_id"`
	EventSKU   string    `json:"event_sku"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

func (s *TicketService) publishRedeemed(ticketID, sku string) {
	if s.Publisher == nil || s.Topics.TicketsRedeemed == "" {
		return
	}
	value, err := json.Marshal(redeemedEvent{
		TicketID:   ticketID,
		EventSKU:   sku,
		RedeemedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logError("KAFKA", fmt.Sprintf("Failed to marshal redemption event: %v", err))
		return
	}
	if err := s.Publisher.Publish(s.Topics.TicketsRedeemed, ticketID, value); err != nil {
		s.logError("KAFKA", fmt.Sprintf("Failed to publish redemption event for %s: %v", ticketID, err))
	}
}
