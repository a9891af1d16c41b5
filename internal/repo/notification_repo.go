// Package repo – notification record repository.
//
// NotificationRecord rows double as the durable outbox consumed by the retry
// sweeper, so the selection queries here mirror an outbox claim: FAILED,
// below the retry bound, not expired, bounded batch.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// CreateNotification inserts a new record in PENDING state.
func CreateNotification(ctx context.Context, db *gorm.DB, r *domain.NotificationRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.NotificationPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(r).Error
}

// SaveNotification persists every field of an existing record.
func SaveNotification(ctx context.Context, db *gorm.DB, r *domain.NotificationRecord) error {
	return db.WithContext(ctx).Save(r).Error
}

// GetNotification fetches a record by id, or ErrNotFound.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.NotificationRecord, error) {
	var r domain.NotificationRecord
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRetryable returns FAILED records still below the retry bound and not
// yet expired, oldest first, capped at limit.
func ListRetryable(ctx context.Context, db *gorm.DB, maxRetries, limit int, now time.Time) ([]domain.NotificationRecord, error) {
	var out []domain.NotificationRecord
	err := db.WithContext(ctx).
		Where("status = ? AND retry_count < ? AND expires_at > ?", domain.NotificationFailed, maxRetries, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkExpiredNotifications flips PENDING and FAILED records past their
// expiry to EXPIRED, and returns how many rows changed. Terminal states are
// never touched.
func MarkExpiredNotifications(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.NotificationRecord{}).
		Where("status IN ? AND expires_at <= ?",
			[]domain.NotificationStatus{domain.NotificationPending, domain.NotificationFailed}, now).
		Update("status", domain.NotificationExpired)
	return res.RowsAffected, res.Error
}
