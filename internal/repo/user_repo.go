// Package repo – user directory queries.
//
// The notification fan-out only needs two narrow views of the user table:
// active members of a role set, and the active subset of an explicit id list.
// Everything else about users is owned by the surrounding application.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// ActiveUserIDsByRole lists ids of active users whose role is in roles.
func ActiveUserIDsByRole(ctx context.Context, db *gorm.DB, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var ids []string
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("role IN ? AND active = ?", roles, true).
		Pluck("id", &ids).Error
	return ids, err
}

// ActiveUserIDsIn filters an explicit id list down to active users.
func ActiveUserIDsIn(ctx context.Context, db *gorm.DB, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []string
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("id IN ? AND active = ?", ids, true).
		Pluck("id", &out).Error
	return out, err
}
