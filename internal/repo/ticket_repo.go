// Package repo – ticket repository.
//
// Functions for tickets and their append-only comment trail. Ticket numbers
// are unique; CountTicketsWithPrefix and TicketNumberExists back the
// collision-checked identifier generation in the service layer.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// CreateTicket inserts a new ticket row. The caller supplies the number,
// priority, and description; ID and CreatedAt are filled here.
func CreateTicket(ctx context.Context, db *gorm.DB, t *domain.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(t).Error
}

// GetTicket fetches a ticket by id, or ErrNotFound.
func GetTicket(ctx context.Context, db *gorm.DB, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicketByReceipt fetches the ticket owned by a goods receipt, if any.
// A missing ticket yields (nil, nil): absence of a ticket is a normal state
// for a receipt whose verification found no mismatches.
func GetTicketByReceipt(ctx context.Context, db *gorm.DB, receiptID string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).First(&t, "goods_receipt_id = ?", receiptID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTicketStatus persists a workflow transition together with the
// resolution timestamp (set on RESOLVED/CLOSED, cleared otherwise).
func UpdateTicketStatus(ctx context.Context, db *gorm.DB, id string, status domain.TicketStatus, resolvedAt *time.Time) error {
	return db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": resolvedAt,
		}).Error
}

// TicketNumberExists reports whether any ticket already holds the candidate
// number.
func TicketNumberExists(ctx context.Context, db *gorm.DB, number string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("number = ?", number).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountTicketsWithPrefix counts tickets whose number starts with prefix.
// Used to derive the next same-day sequence value.
func CountTicketsWithPrefix(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("number LIKE ?", prefix+"%").Count(&n).Error
	return n, err
}

// CreateComment appends an audit comment to a ticket.
func CreateComment(ctx context.Context, db *gorm.DB, ticketID, authorID, body string, system bool) (*domain.TicketComment, error) {
	c := &domain.TicketComment{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		AuthorID:  authorID,
		Body:      body,
		System:    system,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns the comment trail of a ticket in chronological order.
func ListComments(ctx context.Context, db *gorm.DB, ticketID string) ([]domain.TicketComment, error) {
	var out []domain.TicketComment
	err := db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
