// Package services – TicketService
//
// Ticket lifecycle after creation: workflow transitions, the resolution
// timestamp invariant (ResolvedAt set iff RESOLVED or CLOSED), and the
// append-only comment trail. Transitions and the accompanying audit comment
// are written in one transaction.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
)

// TicketService provides ticket workflow operations.
type TicketService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewTicketService constructs a TicketService.
func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{DB: db}
}

// Get fetches a ticket by id.
func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := repo.GetTicket(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

// GetByGoodsReceiptID fetches the ticket opened for a goods receipt.
// Receipts verified clean have no ticket; that case maps to ErrTicketNotFound.
func (s *TicketService) GetByGoodsReceiptID(ctx context.Context, receiptID string) (*domain.Ticket, error) {
	t, err := repo.GetTicketByReceipt(ctx, s.DB, receiptID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// UpdateStatus applies a workflow transition to a ticket. The transition is
// validated against the workflow table, ResolvedAt is stamped or cleared to
// match the new state, and a system comment records the change. A non-empty
// note is appended as a regular comment by the actor.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID string, next domain.TicketStatus, actorID, note string) (*domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("ticket.id", ticketID),
			attribute.String("ticket.next_status", string(next)),
		),
	)
	defer span.End()

	if !next.Valid() {
		return nil, ErrInvalidStatus
	}
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}

	var out *domain.Ticket
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTicket(ctx, tx, ticketID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		if !t.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
		}

		var resolvedAt *time.Time
		if next.Resolved() {
			if t.ResolvedAt != nil {
				resolvedAt = t.ResolvedAt
			} else {
				now := time.Now().UTC()
				resolvedAt = &now
			}
		}
		if err := repo.UpdateTicketStatus(ctx, tx, t.ID, next, resolvedAt); err != nil {
			return err
		}

		body := fmt.Sprintf("Status changed from %s to %s by %s", t.Status, next, actorID)
		if _, err := repo.CreateComment(ctx, tx, t.ID, "system", body, true); err != nil {
			return err
		}
		if note = strings.TrimSpace(note); note != "" {
			if _, err := repo.CreateComment(ctx, tx, t.ID, actorID, note, false); err != nil {
				return err
			}
		}

		t.Status = next
		t.ResolvedAt = resolvedAt
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Comment appends a caller-authored comment to a ticket.
func (s *TicketService) Comment(ctx context.Context, ticketID, authorID, body string) (*domain.TicketComment, error) {
	if body = strings.TrimSpace(body); body == "" {
		return nil, fmt.Errorf("%w: comment body is empty", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	return repo.CreateComment(ctx, s.DB, ticketID, authorID, body, false)
}

// ListComments returns a ticket's comment trail in chronological order.
func (s *TicketService) ListComments(ctx context.Context, ticketID string) ([]domain.TicketComment, error) {
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	return repo.ListComments(ctx, s.DB, ticketID)
}
