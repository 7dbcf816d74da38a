package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-tickets/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// InsertTicket inserts a ticket if its id is not already present and reports
// whether a new row was created. Re-delivered webhooks hit the conflict path
// and are absorbed silently.
func (d *DB) InsertTicket(ctx context.Context, ticket models.Ticket) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(&ticket).
		On("CONFLICT (ticket_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert ticket %s: %w", ticket.TicketID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert ticket %s: %w", ticket.TicketID, err)
	}
	return rows == 1, nil
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ConsumeTicket flips used to true only when it is currently false, as a
// single conditional UPDATE. Under concurrent scans of the same ticket the
// store serializes the writes and exactly one caller sees true.
func (d *DB) ConsumeTicket(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("used = ?", true).
		Where("ticket_id = ?", id).
		Where("used = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("consume ticket %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume ticket %s: %w", id, err)
	}
	return rows == 1, nil
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("ticket_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTotalTicketsCount returns the total number of issued tickets.
func (d *DB) GetTotalTicketsCount(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Count(ctx)
}

// IsNotFound reports whether err is the store's no-rows condition, as opposed
// to an I/O or corruption failure.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
