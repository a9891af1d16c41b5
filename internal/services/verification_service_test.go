package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
)

var ticketNumberRe = regexp.MustCompile(`^TKT-\d{8}-\d{3}-[0-9a-f]{4}$`)

func verifyAll(r *domain.GoodsReceipt, received func(i int) int, damaged func(i int) bool) VerifyRequest {
	req := VerifyRequest{ReceiptID: r.ID, VerifierID: "verifier-1"}
	for i, l := range r.Lines {
		lv := LineVerification{LineID: l.ID, ReceivedQty: received(i)}
		if damaged != nil {
			lv.Damaged = damaged(i)
		}
		req.Lines = append(req.Lines, lv)
	}
	return req
}

func TestProcessGRNVerification_AllOK(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)
	r := seedReceipt(t, db, 10, 20)

	res, err := svc.ProcessGRNVerification(context.Background(), verifyAll(r, func(i int) int {
		return r.Lines[i].ConfirmedQty
	}, nil))
	if err != nil {
		t.Fatalf("ProcessGRNVerification: %v", err)
	}
	if res.Receipt.Status != domain.ReceiptStatusVerified {
		t.Fatalf("status = %s, want VERIFIED_OK", res.Receipt.Status)
	}
	if res.Ticket != nil {
		t.Fatalf("clean verification must not open a ticket, got %s", res.Ticket.Number)
	}
	if res.Receipt.VerifiedAt == nil || res.Receipt.VerifiedBy != "verifier-1" {
		t.Fatalf("verification metadata not stamped: %+v", res.Receipt)
	}
}

func TestProcessGRNVerification_ShortageOpensTicket(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)
	r := seedReceipt(t, db, 100)

	// 100 confirmed, 40 received: shortage of 60, above the HIGH threshold.
	res, err := svc.ProcessGRNVerification(context.Background(), verifyAll(r, func(int) int { return 40 }, nil))
	if err != nil {
		t.Fatalf("ProcessGRNVerification: %v", err)
	}
	if res.Receipt.Status != domain.ReceiptStatusMismatch {
		t.Fatalf("status = %s, want VERIFIED_MISMATCH", res.Receipt.Status)
	}
	if res.Ticket == nil {
		t.Fatal("mismatch must open a ticket")
	}
	if res.Ticket.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", res.Ticket.Priority)
	}
	if !ticketNumberRe.MatchString(res.Ticket.Number) {
		t.Fatalf("ticket number %q does not match expected format", res.Ticket.Number)
	}
	if res.Ticket.Status != domain.TicketOpen {
		t.Fatalf("new ticket status = %s, want OPEN", res.Ticket.Status)
	}

	comments, err := repo.ListComments(context.Background(), db, res.Ticket.ID)
	if err != nil || len(comments) != 1 {
		t.Fatalf("comments = %v (%v), want one system comment", comments, err)
	}
	if !comments[0].System || !strings.Contains(comments[0].Body, "Shortage Reported") {
		t.Fatalf("system comment = %+v", comments[0])
	}
}

func TestProcessGRNVerification_DamageEscalatesToUrgent(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)
	r := seedReceipt(t, db, 10)

	res, err := svc.ProcessGRNVerification(context.Background(),
		verifyAll(r, func(int) int { return 10 }, func(int) bool { return true }))
	if err != nil {
		t.Fatalf("ProcessGRNVerification: %v", err)
	}
	if res.Ticket == nil || res.Ticket.Priority != domain.PriorityUrgent {
		t.Fatalf("ticket = %+v, want URGENT priority", res.Ticket)
	}
}

func TestProcessGRNVerification_ExcessOnlyIsPartial(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)
	r := seedReceipt(t, db, 10)

	res, err := svc.ProcessGRNVerification(context.Background(), verifyAll(r, func(int) int { return 15 }, nil))
	if err != nil {
		t.Fatalf("ProcessGRNVerification: %v", err)
	}
	if res.Receipt.Status != domain.ReceiptStatusPartial {
		t.Fatalf("status = %s, want PARTIALLY_VERIFIED", res.Receipt.Status)
	}
	if res.Ticket == nil || res.Ticket.Priority != domain.PriorityLow {
		t.Fatalf("ticket = %+v, want LOW priority", res.Ticket)
	}
}

func TestProcessGRNVerification_SecondAttemptRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)
	r := seedReceipt(t, db, 10)
	req := verifyAll(r, func(int) int { return 10 }, nil)

	if _, err := svc.ProcessGRNVerification(context.Background(), req); err != nil {
		t.Fatalf("first verification: %v", err)
	}
	if _, err := svc.ProcessGRNVerification(context.Background(), req); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("second verification = %v, want ErrAlreadyVerified", err)
	}
}

func TestProcessGRNVerification_UnknownReceipt(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)

	_, err := svc.ProcessGRNVerification(context.Background(), VerifyRequest{
		ReceiptID:  "missing",
		VerifierID: "v",
		Lines:      []LineVerification{{LineID: "x", ReceivedQty: 1}},
	})
	if !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("err = %v, want ErrReceiptNotFound", err)
	}
}

func TestProcessGRNVerification_LineSetMustMatch(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)

	t.Run("unknown line id", func(t *testing.T) {
		r := seedReceipt(t, db, 10)
		req := verifyAll(r, func(int) int { return 10 }, nil)
		req.Lines[0].LineID = "not-a-line"
		if _, err := svc.ProcessGRNVerification(context.Background(), req); !errors.Is(err, ErrLineMismatch) {
			t.Fatalf("err = %v, want ErrLineMismatch", err)
		}
	})

	t.Run("incomplete line set", func(t *testing.T) {
		r := seedReceipt(t, db, 10, 20)
		req := verifyAll(r, func(int) int { return 10 }, nil)
		req.Lines = req.Lines[:1]
		if _, err := svc.ProcessGRNVerification(context.Background(), req); !errors.Is(err, ErrLineMismatch) {
			t.Fatalf("err = %v, want ErrLineMismatch", err)
		}
	})

	t.Run("duplicate line id", func(t *testing.T) {
		r := seedReceipt(t, db, 10, 20)
		req := verifyAll(r, func(int) int { return 10 }, nil)
		req.Lines[1].LineID = req.Lines[0].LineID
		if _, err := svc.ProcessGRNVerification(context.Background(), req); !errors.Is(err, ErrLineMismatch) {
			t.Fatalf("err = %v, want ErrLineMismatch", err)
		}
	})
}

func TestProcessGRNVerification_InputValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)

	t.Run("no lines", func(t *testing.T) {
		_, err := svc.ProcessGRNVerification(context.Background(), VerifyRequest{ReceiptID: "r", VerifierID: "v"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("negative quantity", func(t *testing.T) {
		r := seedReceipt(t, db, 10)
		req := verifyAll(r, func(int) int { return -1 }, nil)
		if _, err := svc.ProcessGRNVerification(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("unsupported override", func(t *testing.T) {
		r := seedReceipt(t, db, 10)
		req := verifyAll(r, func(int) int { return 10 }, nil)
		req.Lines[0].StatusOverride = domain.LineStatusDamage
		if _, err := svc.ProcessGRNVerification(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestProcessGRNVerification_QuantityMismatchOverride(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)
	r := seedReceipt(t, db, 10)

	req := verifyAll(r, func(int) int { return 4 }, nil)
	req.Lines[0].StatusOverride = domain.LineStatusQtyDiff
	res, err := svc.ProcessGRNVerification(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessGRNVerification: %v", err)
	}

	fresh, err := repo.GetReceipt(context.Background(), db, r.ID)
	if err != nil {
		t.Fatalf("reload receipt: %v", err)
	}
	if fresh.Lines[0].Status != domain.LineStatusQtyDiff {
		t.Fatalf("line status = %s, want QUANTITY_MISMATCH", fresh.Lines[0].Status)
	}
	if fresh.Lines[0].Discrepancy != -6 {
		t.Fatalf("discrepancy = %d, want -6", fresh.Lines[0].Discrepancy)
	}
	if res.Receipt.Status != domain.ReceiptStatusMismatch {
		t.Fatalf("status = %s, want VERIFIED_MISMATCH", res.Receipt.Status)
	}
}

func TestProcessGRNVerification_DistinctTicketNumbers(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, testConfig(), nil)

	numbers := map[string]bool{}
	for i := 0; i < 8; i++ {
		r := seedReceipt(t, db, 10)
		res, err := svc.ProcessGRNVerification(context.Background(), verifyAll(r, func(int) int { return 2 }, nil))
		if err != nil {
			t.Fatalf("verification %d: %v", i, err)
		}
		if res.Ticket == nil {
			t.Fatalf("verification %d opened no ticket", i)
		}
		if numbers[res.Ticket.Number] {
			t.Fatalf("duplicate ticket number %s", res.Ticket.Number)
		}
		numbers[res.Ticket.Number] = true
	}
}
