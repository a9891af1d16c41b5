// Package mismatch implements the pure classification rules that turn raw
// received-vs-confirmed quantities and damage flags into per-line and
// aggregate goods-receipt statuses, and computes the priority of the issue
// ticket derived from them. All functions are side-effect free so the rule
// table can be unit-tested exhaustively.
package mismatch

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ordwell/go-fulfillment-backend/internal/domain"
)

// ClassifyLine derives the status and signed discrepancy for a single
// receiving line. Rules are checked in order:
//
//  1. damage flag set            -> DAMAGE_REPORTED
//  2. received < confirmed      -> SHORTAGE_REPORTED
//  3. received > confirmed      -> EXCESS_RECEIVED
//  4. otherwise                 -> VERIFIED_OK
//
// The discrepancy is always received minus confirmed, so it is negative for
// shortages, positive for excess, and zero for an exact match.
//
// Callers that already distinguish a partial shortfall from a total loss may
// override a SHORTAGE_REPORTED result with the finer-grained
// QUANTITY_MISMATCH; the two are weighted identically everywhere downstream.
func ClassifyLine(confirmed, received int, damaged bool) (domain.LineStatus, int) {
	disc := received - confirmed
	switch {
	case damaged:
		return domain.LineStatusDamage, disc
	case received < confirmed:
		return domain.LineStatusShortage, disc
	case received > confirmed:
		return domain.LineStatusExcess, disc
	default:
		return domain.LineStatusOK, disc
	}
}

// IsCritical reports whether a line status counts as a critical mismatch
// (quantity mismatch, shortage, or damage). EXCESS_RECEIVED is a mismatch
// but not critical.
func IsCritical(s domain.LineStatus) bool {
	switch s {
	case domain.LineStatusQtyDiff, domain.LineStatusShortage, domain.LineStatusDamage:
		return true
	default:
		return false
	}
}

// Aggregate folds per-line statuses into the goods-receipt status:
// VERIFIED_OK iff every line is OK, VERIFIED_MISMATCH iff any line is
// critical, PARTIALLY_VERIFIED otherwise (only excess present).
// An empty line set aggregates to VERIFIED_OK.
func Aggregate(statuses []domain.LineStatus) domain.ReceiptStatus {
	hasExcess := false
	for _, s := range statuses {
		if IsCritical(s) {
			return domain.ReceiptStatusMismatch
		}
		if s == domain.LineStatusExcess {
			hasExcess = true
		}
	}
	if hasExcess {
		return domain.ReceiptStatusPartial
	}
	return domain.ReceiptStatusVerified
}

// Priority computes the ticket priority over the non-OK lines of a receipt.
//
// Let critical be the lines with a critical status and totalCriticalQty the
// sum of their absolute discrepancies. Then:
//
//   - critical non-empty: MEDIUM, or HIGH when totalCriticalQty > highQty;
//     escalated to URGENT when any critical line is damaged or
//     totalCriticalQty > urgentQty.
//   - only excess lines: LOW.
//   - no mismatch at all (should not occur for a ticket): MEDIUM as a safe
//     default.
func Priority(lines []domain.GoodsReceiptLine, highQty, urgentQty int) domain.TicketPriority {
	totalCritical := 0
	anyCritical := false
	anyDamage := false
	anyExcess := false

	for _, l := range lines {
		switch {
		case IsCritical(l.Status):
			anyCritical = true
			if l.Damaged {
				anyDamage = true
			}
			if l.Discrepancy < 0 {
				totalCritical -= l.Discrepancy
			} else {
				totalCritical += l.Discrepancy
			}
		case l.Status == domain.LineStatusExcess:
			anyExcess = true
		}
	}

	switch {
	case anyCritical:
		if anyDamage || totalCritical > urgentQty {
			return domain.PriorityUrgent
		}
		if totalCritical > highQty {
			return domain.PriorityHigh
		}
		return domain.PriorityMedium
	case anyExcess:
		return domain.PriorityLow
	default:
		return domain.PriorityMedium
	}
}

var statusCaser = cases.Title(language.English)

// Humanize renders a line status constant as a readable label, e.g.
// QUANTITY_MISMATCH -> "Quantity Mismatch".
func Humanize(s domain.LineStatus) string {
	return statusCaser.String(strings.ToLower(strings.ReplaceAll(string(s), "_", " ")))
}
