// Package services – VerificationService
//
// This file implements the goods-receipt verification flow: it classifies
// every receiving line, folds the line outcomes into the receipt status, and,
// when mismatches exist, opens exactly one issue ticket inside the same
// database transaction. A receipt is verified at most once; a racing second
// verifier loses on the guarded status update and gets ErrAlreadyVerified.
//
// Ticket numbers follow TKT-YYYYMMDD-seq-rand. Candidate numbers are checked
// for collisions with a bounded retry loop; if every attempt collides the
// generator falls back to a timestamp-based number that cannot collide in
// practice. The unique index on tickets.number remains the final arbiter.
//
// Notification of the responsible roles happens after commit, on a detached
// context, so a slow or failing push gateway can never roll back or delay a
// completed verification.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/config"
	"github.com/ordwell/go-fulfillment-backend/internal/domain"
	"github.com/ordwell/go-fulfillment-backend/internal/metrics"
	"github.com/ordwell/go-fulfillment-backend/internal/mismatch"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
)

// LineVerification is the caller-reported outcome for one receipt line.
type LineVerification struct {
	// LineID references an existing GoodsReceiptLine of the receipt.
	LineID string
	// ReceivedQty is the physically counted quantity, >= 0.
	ReceivedQty int
	// Damaged marks the line as damage-reported regardless of quantity.
	Damaged bool
	// DamageDescription describes the damage when Damaged is set.
	DamageDescription string
	// Remark is a free-text operator note for this line.
	Remark string
	// StatusOverride optionally refines a computed SHORTAGE_REPORTED into
	// QUANTITY_MISMATCH. Any other override is rejected.
	StatusOverride domain.LineStatus
}

// VerifyRequest is one verification submission covering a whole receipt.
type VerifyRequest struct {
	ReceiptID  string
	VerifierID string
	Remark     string
	Lines      []LineVerification
}

// VerifyResult reports the outcome of a processed verification.
type VerifyResult struct {
	Receipt *domain.GoodsReceipt
	// Ticket is non-nil iff the verification found mismatches.
	Ticket *domain.Ticket
}

// VerificationService processes goods-receipt verifications and opens issue
// tickets for mismatches.
type VerificationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cfg supplies priority thresholds, timeouts, and notification roles.
	Cfg config.Config
	// Notifier delivers the post-commit ticket notifications. Optional; when
	// nil no notification is attempted.
	Notifier *NotificationService
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(db *gorm.DB, cfg config.Config, notifier *NotificationService) *VerificationService {
	return &VerificationService{DB: db, Cfg: cfg, Notifier: notifier}
}

// ProcessGRNVerification validates the submission, persists every line
// outcome, moves the receipt to its terminal status, and opens an issue
// ticket when mismatches exist. All writes happen in one transaction bounded
// by the configured verification timeout.
func (s *VerificationService) ProcessGRNVerification(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	tr := otel.Tracer("services/VerificationService")
	ctx, span := tr.Start(ctx, "ProcessGRNVerification",
		trace.WithAttributes(
			attribute.String("receipt.id", req.ReceiptID),
			attribute.String("verifier.id", req.VerifierID),
			attribute.Int("lines", len(req.Lines)),
		),
	)
	defer span.End()

	if req.ReceiptID == "" || req.VerifierID == "" {
		return nil, fmt.Errorf("%w: receipt and verifier ids are required", ErrInvalidInput)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Cfg.VerifyTimeout)
	defer cancel()

	var (
		receipt *domain.GoodsReceipt
		ticket  *domain.Ticket
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.GetReceipt(ctx, tx, req.ReceiptID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrReceiptNotFound
		}
		if err != nil {
			return err
		}
		if r.Status != domain.ReceiptStatusPending {
			return ErrAlreadyVerified
		}

		statuses, err := s.applyLines(ctx, tx, r, req.Lines)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		status := mismatch.Aggregate(statuses)
		rows, err := repo.MarkReceiptVerified(ctx, tx, r.ID, status, req.Remark, req.VerifierID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// A racing verifier won between our read and the guarded update.
			return ErrAlreadyVerified
		}
		r.Status = status
		r.Remark = req.Remark
		r.VerifiedBy = req.VerifierID
		r.VerifiedAt = &now
		receipt = r

		if status == domain.ReceiptStatusVerified {
			return nil
		}

		t, err := s.openTicket(ctx, tx, r)
		if err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		metrics.VerificationProcessed("rejected")
		return nil, err
	}

	metrics.VerificationProcessed(string(receipt.Status))
	if ticket != nil {
		metrics.TicketCreated(string(ticket.Priority))
		span.SetAttributes(
			attribute.String("ticket.number", ticket.Number),
			attribute.String("ticket.priority", string(ticket.Priority)),
		)
		s.notifyAsync(ticket, receipt)
	}

	return &VerifyResult{Receipt: receipt, Ticket: ticket}, nil
}

// applyLines classifies and persists every submitted line. The submission
// must cover the receipt's line set exactly, line by line.
func (s *VerificationService) applyLines(ctx context.Context, tx *gorm.DB, r *domain.GoodsReceipt, inputs []LineVerification) ([]domain.LineStatus, error) {
	byID := make(map[string]*domain.GoodsReceiptLine, len(r.Lines))
	for i := range r.Lines {
		byID[r.Lines[i].ID] = &r.Lines[i]
	}
	if len(inputs) != len(r.Lines) {
		return nil, ErrLineMismatch
	}

	seen := make(map[string]bool, len(inputs))
	statuses := make([]domain.LineStatus, 0, len(inputs))
	for _, in := range inputs {
		line, ok := byID[in.LineID]
		if !ok || seen[in.LineID] {
			return nil, ErrLineMismatch
		}
		seen[in.LineID] = true
		if in.ReceivedQty < 0 {
			return nil, fmt.Errorf("%w: received quantity must be >= 0", ErrInvalidInput)
		}

		status, disc := mismatch.ClassifyLine(line.ConfirmedQty, in.ReceivedQty, in.Damaged)
		if in.StatusOverride != "" {
			if in.StatusOverride != domain.LineStatusQtyDiff || status != domain.LineStatusShortage {
				return nil, fmt.Errorf("%w: unsupported status override %q", ErrInvalidInput, in.StatusOverride)
			}
			status = domain.LineStatusQtyDiff
		}

		line.ReceivedQty = in.ReceivedQty
		line.Discrepancy = disc
		line.Status = status
		line.Damaged = in.Damaged
		line.DamageDescription = in.DamageDescription
		line.Remark = in.Remark
		if err := repo.SaveLineVerification(ctx, tx, line); err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// openTicket creates the issue ticket for a mismatched receipt together with
// its initial system comment.
func (s *VerificationService) openTicket(ctx context.Context, tx *gorm.DB, r *domain.GoodsReceipt) (*domain.Ticket, error) {
	number, err := s.generateTicketNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	summary := mismatchSummary(r.Lines)
	t := &domain.Ticket{
		Number:         number,
		GoodsReceiptID: r.ID,
		Title:          fmt.Sprintf("Goods receipt mismatch for dispatch %s", r.DispatchID),
		Description:    summary,
		Priority:       mismatch.Priority(r.Lines, s.Cfg.PriorityHighQty, s.Cfg.PriorityUrgentQty),
		Status:         domain.TicketOpen,
		CreatedBy:      r.VerifiedBy,
	}
	if err := repo.CreateTicket(ctx, tx, t); err != nil {
		return nil, err
	}
	if _, err := repo.CreateComment(ctx, tx, t.ID, "system", summary, true); err != nil {
		return nil, err
	}
	return t, nil
}

// generateTicketNumber produces a unique TKT-YYYYMMDD-seq-rand identifier.
// Candidates are collision-checked; after the configured number of attempts
// the generator falls back to a timestamp form.
func (s *VerificationService) generateTicketNumber(ctx context.Context, tx *gorm.DB) (string, error) {
	prefix := "TKT-" + time.Now().UTC().Format("20060102") + "-"
	seq, err := repo.CountTicketsWithPrefix(ctx, tx, prefix)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < s.Cfg.TicketIDMaxAttempts; attempt++ {
		if attempt > 0 {
			// Randomized pause so concurrent generators desynchronize.
			select {
			case <-time.After(time.Duration(10+rand.Intn(41)) * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		candidate := fmt.Sprintf("%s%03d-%s", prefix, seq+1+int64(attempt), randSuffix())
		exists, err := repo.TicketNumberExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("TKT-%d-%s", time.Now().UnixNano(), randSuffix()), nil
}

// randSuffix returns 4 hex characters of entropy for ticket numbers.
func randSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}

// mismatchSummary renders the human-readable mismatch digest used as the
// ticket description and its first system comment.
func mismatchSummary(lines []domain.GoodsReceiptLine) string {
	var b strings.Builder
	b.WriteString("Verification found the following discrepancies:\n")
	for _, l := range lines {
		if l.Status == domain.LineStatusOK {
			continue
		}
		fmt.Fprintf(&b, "- item %s: %s (confirmed %d, received %d, diff %+d)",
			l.OrderItemID, mismatch.Humanize(l.Status), l.ConfirmedQty, l.ReceivedQty, l.Discrepancy)
		if l.Damaged && l.DamageDescription != "" {
			fmt.Fprintf(&b, " damage: %s", l.DamageDescription)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// notifyAsync fans the new-ticket notification out to the configured roles on
// a detached context. Failures are logged and never surfaced to the verifier.
func (s *VerificationService) notifyAsync(t *domain.Ticket, r *domain.GoodsReceipt) {
	if s.Notifier == nil || len(s.Cfg.NotifyRoles) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		p := Payload{
			Title:    fmt.Sprintf("New issue ticket %s", t.Number),
			Body:     fmt.Sprintf("Goods receipt %s for dispatch %s was verified with mismatches (priority %s).", r.ID, r.DispatchID, t.Priority),
			Priority: string(t.Priority),
			Data: map[string]string{
				"ticket_id":        t.ID,
				"ticket_number":    t.Number,
				"goods_receipt_id": r.ID,
				"priority":         string(t.Priority),
			},
		}
		if _, err := s.Notifier.SendToRole(ctx, s.Cfg.NotifyRoles, p); err != nil {
			log.Warn().Err(err).
				Str("ticket", t.Number).
				Msg("ticket notification delivery incomplete")
		}
	}()
}
