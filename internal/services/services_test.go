package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ordwell/go-fulfillment-backend/internal/config"
	"github.com/ordwell/go-fulfillment-backend/internal/domain"
	"github.com/ordwell/go-fulfillment-backend/internal/push"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		LogLevel:            "info",
		DBPath:              "test.db",
		PriorityHighQty:     50,
		PriorityUrgentQty:   100,
		TicketIDMaxAttempts: 5,
		VerifyTimeout:       30 * time.Second,
		NotifyRoles:         []string{"ADMIN", "OPERATIONS"},
		DeviceRetentionCap:  5,
		DeviceGracePeriod:   7 * 24 * time.Hour,
		DeviceTokenTTL:      60 * 24 * time.Hour,
		TTLUrgent:           time.Hour,
		TTLNormal:           24 * time.Hour,
		TTLLow:              7 * 24 * time.Hour,
		RetryBatchLimit:     100,
		MaxRetries:          3,
		Push: config.PushConfig{
			Enabled:       true,
			BatchSize:     500,
			Timeout:       5 * time.Second,
			RatePerSecond: 1000,
			RateBurst:     1000,
		},
	}
}

// seedReceipt inserts a PENDING receipt with one line per confirmed quantity
// and returns it with lines preloaded.
func seedReceipt(t *testing.T, db *gorm.DB, confirmed ...int) *domain.GoodsReceipt {
	t.Helper()
	r := &domain.GoodsReceipt{
		ID:         uuid.NewString(),
		DispatchID: "DSP-" + uuid.NewString()[:8],
		Status:     domain.ReceiptStatusPending,
		ReceivedAt: time.Now().UTC(),
	}
	for i, q := range confirmed {
		r.Lines = append(r.Lines, domain.GoodsReceiptLine{
			ID:           uuid.NewString(),
			OrderItemID:  fmt.Sprintf("ITEM-%d", i+1),
			AssignedQty:  q,
			ConfirmedQty: q,
			Status:       domain.LineStatusOK,
		})
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed receipt: %v", err)
	}
	return r
}

func seedUser(t *testing.T, db *gorm.DB, role string, active bool) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:     uuid.NewString(),
		Name:   "user-" + uuid.NewString()[:8],
		Email:  uuid.NewString() + "@example.com",
		Role:   role,
		Active: active,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedDeviceToken(t *testing.T, db *gorm.DB, userID, token string) *domain.DeviceToken {
	t.Helper()
	now := time.Now().UTC()
	d := &domain.DeviceToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		Token:      token,
		Category:   "web",
		Active:     true,
		LastUsedAt: now,
		ExpiresAt:  now.Add(30 * 24 * time.Hour),
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("seed device token: %v", err)
	}
	return d
}

// fakeGateway is an in-memory push.Gateway that records every batch and can
// fail whole batches or individual tokens.
type fakeGateway struct {
	mu    sync.Mutex
	calls []*push.BatchMessage

	// batchErr fails every Send call outright.
	batchErr error
	// failTokens maps token values to per-token errors.
	failTokens map[string]error
	// unregistered marks failing tokens as permanently invalid.
	unregistered map[string]bool
}

func (g *fakeGateway) Enabled() bool { return true }

func (g *fakeGateway) Send(_ context.Context, msg *push.BatchMessage) (*push.BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.batchErr != nil {
		return nil, g.batchErr
	}
	cp := *msg
	cp.Tokens = append([]string(nil), msg.Tokens...)
	g.calls = append(g.calls, &cp)

	res := &push.BatchResult{}
	for _, tok := range msg.Tokens {
		if err, ok := g.failTokens[tok]; ok {
			res.FailureCount++
			res.Responses = append(res.Responses, push.SendOutcome{
				Token:        tok,
				Err:          err,
				Unregistered: g.unregistered[tok],
			})
			continue
		}
		res.SuccessCount++
		res.Responses = append(res.Responses, push.SendOutcome{
			Token:     tok,
			MessageID: "msg-" + tok,
		})
	}
	return res, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
