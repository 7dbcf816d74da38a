package tickets

import (
	"context"
	"errors"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
)

// ErrMissingOrderID marks a malformed order payload. It is a client error,
// distinct from store failures, and nothing is written when it is returned.
var ErrMissingOrderID = errors.New("order payload has no id")

// TicketDBLayer is the store surface the service needs. All mutation goes
// through the store's atomic primitives; the service never read-then-writes.
type TicketDBLayer interface {
	InsertTicket(ctx context.Context, ticket models.Ticket) (bool, error)
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	ConsumeTicket(ctx context.Context, ticketID string) (bool, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	GetTotalTicketsCount(ctx context.Context) (int, error)
}

// EventPublisher streams ticket lifecycle events to the message bus.
type EventPublisher interface {
	Publish(topic string, key string, value []byte) error
}

type TicketService struct {
	DB        TicketDBLayer
	Publisher EventPublisher // optional; nil disables event streaming
	Logger    *logger.Logger // optional
	Topics    Topics

	// TestProbes enables the diagnostic TEST- branch in Redeem.
	TestProbes bool
}

// Topics names the Kafka topics the service publishes to.
type Topics struct {
	TicketsIssued   string
	TicketsRedeemed string
}

func NewTicketService(db TicketDBLayer) *TicketService {
	return &TicketService{DB: db}
}

func (s *TicketService) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByOrder(ctx, orderID)
}

func (s *TicketService) GetTotalTicketsCount(ctx context.Context) (int, error) {
	return s.DB.GetTotalTicketsCount(ctx)
}

func (s *TicketService) logInfo(category, message string) {
	if s.Logger != nil {
		s.Logger.Info(category, message)
	}
}

func (s *TicketService) logError(category, message string) {
	if s.Logger != nil {
		s.Logger.Error(category, message)
	}
}
