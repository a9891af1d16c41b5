// Package repo – device token repository.
//
// Persistence for push endpoints. The registry service layers the lifecycle
// rules (validation, ownership transfer, retention cap) on top of these
// primitives; everything here is plain query composition.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// GetTokenByValue fetches a device token row by its endpoint value,
// or ErrNotFound.
func GetTokenByValue(ctx context.Context, db *gorm.DB, token string) (*domain.DeviceToken, error) {
	var t domain.DeviceToken
	if err := db.WithContext(ctx).First(&t, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateToken inserts a new device token row.
func CreateToken(ctx context.Context, db *gorm.DB, t *domain.DeviceToken) error {
	return db.WithContext(ctx).Create(t).Error
}

// SaveToken persists every field of an existing token row.
func SaveToken(ctx context.Context, db *gorm.DB, t *domain.DeviceToken) error {
	return db.WithContext(ctx).Save(t).Error
}

// ActiveTokens returns the active, non-expired tokens of one user, newest
// first. An empty category matches all categories.
func ActiveTokens(ctx context.Context, db *gorm.DB, userID, category string, now time.Time) ([]domain.DeviceToken, error) {
	q := db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, now)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var out []domain.DeviceToken
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// ActiveTokensForUsers returns the active, non-expired tokens of a user set,
// grouped by user id. Users without tokens are absent from the map.
func ActiveTokensForUsers(ctx context.Context, db *gorm.DB, userIDs []string, category string, now time.Time) (map[string][]domain.DeviceToken, error) {
	if len(userIDs) == 0 {
		return map[string][]domain.DeviceToken{}, nil
	}
	q := db.WithContext(ctx).
		Where("user_id IN ? AND active = ? AND expires_at > ?", userIDs, true, now)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var rows []domain.DeviceToken
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]domain.DeviceToken, len(userIDs))
	for _, r := range rows {
		out[r.UserID] = append(out[r.UserID], r)
	}
	return out, nil
}

// DeactivateTokens flips the active flag off for the given endpoint values
// and returns the number of rows affected.
func DeactivateTokens(ctx context.Context, db *gorm.DB, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.DeviceToken{}).
		Where("token IN ?", tokens).
		Update("active", false)
	return res.RowsAffected, res.Error
}

// DeleteToken removes one (user, endpoint) pair. It reports whether a row
// was actually deleted.
func DeleteToken(ctx context.Context, db *gorm.DB, userID, token string) (bool, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&domain.DeviceToken{})
	return res.RowsAffected > 0, res.Error
}

// DeleteTokensForUser removes every token of a user and returns the count.
func DeleteTokensForUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.DeviceToken{})
	return res.RowsAffected, res.Error
}

// TrimTokensBeyondCap deletes the oldest tokens of a (user, category) pair
// beyond the retention cap, keeping the `keep` most recently created rows.
// Deletes are keyed by id so the operation is safe to run concurrently with
// registration.
func TrimTokensBeyondCap(ctx context.Context, db *gorm.DB, userID, category string, keep int) (int64, error) {
	if keep < 1 {
		return 0, errors.New("repo: retention cap must be at least 1")
	}
	var stale []string
	err := db.WithContext(ctx).Model(&domain.DeviceToken{}).
		Where("user_id = ? AND category = ?", userID, category).
		Order("created_at DESC").
		Offset(keep).
		Pluck("id", &stale).Error
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Where("id IN ?", stale).Delete(&domain.DeviceToken{})
	return res.RowsAffected, res.Error
}

// DeleteExpiredTokens removes rows past their expiry timestamp.
func DeleteExpiredTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.DeviceToken{})
	return res.RowsAffected, res.Error
}

// DeleteInactiveTokensBefore removes deactivated rows whose last use is
// older than the cutoff.
func DeleteInactiveTokensBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("active = ? AND last_used_at <= ?", false, cutoff).
		Delete(&domain.DeviceToken{})
	return res.RowsAffected, res.Error
}
