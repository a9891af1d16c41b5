package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// failThenFix seeds a FAILED record by sending through a broken gateway, then
// clears the fault so the sweeper's re-delivery can succeed.
func failThenFix(t *testing.T, db *gorm.DB, svc *NotificationService, gw *fakeGateway, userID string) *domain.NotificationRecord {
	t.Helper()
	gw.batchErr = errors.New("gateway unavailable")
	if _, err := svc.SendToUser(context.Background(), userID, Payload{Title: "hi", Body: "b"}); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("seeding failed delivery: %v", err)
	}
	gw.batchErr = nil

	recs := recordsFor(t, db, userID)
	if len(recs) != 1 || recs[0].Status != domain.NotificationFailed {
		t.Fatalf("seed records = %+v, want one FAILED", recs)
	}
	return &recs[0]
}

func TestRetrySweep_RedeliversFailed(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	notifier := newNotifier(t, db, gw)
	sweeper := NewRetryService(db, testConfig(), notifier)

	seedDeviceToken(t, db, "user-1", "fcm_token_a_abcdefghij")
	rec := failThenFix(t, db, notifier, gw, "user-1")

	sum, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Processed != 1 || sum.Succeeded != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	fresh := recordsFor(t, db, "user-1")[0]
	if fresh.ID != rec.ID || fresh.Status != domain.NotificationSent {
		t.Fatalf("record after sweep = %+v, want SENT", fresh)
	}
	if fresh.RetryCount != 1 || fresh.LastRetryAt == nil {
		t.Fatalf("retry bookkeeping = %+v", fresh)
	}
}

func TestRetrySweep_StillFailingStaysInOutbox(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	notifier := newNotifier(t, db, gw)
	sweeper := NewRetryService(db, testConfig(), notifier)

	seedDeviceToken(t, db, "user-1", "fcm_token_a_abcdefghij")
	failThenFix(t, db, notifier, gw, "user-1")
	gw.batchErr = errors.New("still down")

	sum, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	fresh := recordsFor(t, db, "user-1")[0]
	if fresh.Status != domain.NotificationFailed || fresh.RetryCount != 1 {
		t.Fatalf("record = %+v, want FAILED with retry count 1", fresh)
	}
}

func TestRetrySweep_SkipsExhaustedRecords(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	notifier := newNotifier(t, db, gw)
	sweeper := NewRetryService(db, testConfig(), notifier)

	seedDeviceToken(t, db, "user-1", "fcm_token_a_abcdefghij")
	rec := failThenFix(t, db, notifier, gw, "user-1")
	db.Model(rec).Update("retry_count", testConfig().MaxRetries)

	sum, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Processed != 0 {
		t.Fatalf("summary = %+v, want no records processed", sum)
	}
}

func TestRetrySweep_ExpiresOverdueRecords(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	notifier := newNotifier(t, db, gw)
	sweeper := NewRetryService(db, testConfig(), notifier)

	seedDeviceToken(t, db, "user-1", "fcm_token_a_abcdefghij")
	rec := failThenFix(t, db, notifier, gw, "user-1")
	db.Model(rec).Update("expires_at", time.Now().UTC().Add(-time.Minute))

	sum, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Expired != 1 || sum.Processed != 0 {
		t.Fatalf("summary = %+v, want one expired and none processed", sum)
	}

	fresh := recordsFor(t, db, "user-1")[0]
	if fresh.Status != domain.NotificationExpired {
		t.Fatalf("record = %+v, want EXPIRED", fresh)
	}
}

func TestRetrySweep_NoEndpointsExpiresRecord(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	notifier := newNotifier(t, db, gw)
	sweeper := NewRetryService(db, testConfig(), notifier)

	seedDeviceToken(t, db, "user-1", "fcm_token_a_abcdefghij")
	failThenFix(t, db, notifier, gw, "user-1")
	if _, err := notifier.Devices.RemoveAll(context.Background(), "user-1"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	sum, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.Processed != 1 || sum.Succeeded != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	fresh := recordsFor(t, db, "user-1")[0]
	if fresh.Status != domain.NotificationExpired {
		t.Fatalf("record = %+v, want EXPIRED when the user has no endpoints", fresh)
	}
}
