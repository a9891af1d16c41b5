// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for goods receipts
// and their lines.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only CRUD persistence and query composition.
//
// Error semantics:
//   - When a receipt is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// GetReceipt fetches a goods receipt with its lines preloaded, or
// ErrNotFound if missing.
func GetReceipt(ctx context.Context, db *gorm.DB, id string) (*domain.GoodsReceipt, error) {
	var r domain.GoodsReceipt
	if err := db.WithContext(ctx).Preload("Lines").First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveLineVerification persists the verification outcome of a single line:
// received quantity, discrepancy, status, damage flags, and remark.
func SaveLineVerification(ctx context.Context, db *gorm.DB, l *domain.GoodsReceiptLine) error {
	return db.WithContext(ctx).Model(&domain.GoodsReceiptLine{}).
		Where("id = ?", l.ID).
		Updates(map[string]interface{}{
			"received_qty":       l.ReceivedQty,
			"discrepancy":        l.Discrepancy,
			"status":             l.Status,
			"damaged":            l.Damaged,
			"damage_description": l.DamageDescription,
			"remark":             l.Remark,
		}).Error
}

// MarkReceiptVerified moves a receipt out of PENDING_VERIFICATION, stamping
// the verification metadata. The WHERE clause re-checks the PENDING status so
// a racing verifier cannot overwrite a terminal state; callers must treat a
// zero rows-affected result as a lost race.
func MarkReceiptVerified(ctx context.Context, db *gorm.DB, id string, status domain.ReceiptStatus, remark, verifierID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.GoodsReceipt{}).
		Where("id = ? AND status = ?", id, domain.ReceiptStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"remark":      remark,
			"verified_by": verifierID,
			"verified_at": at,
		})
	return res.RowsAffected, res.Error
}
