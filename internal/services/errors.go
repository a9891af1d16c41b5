// Package services implements the business logic of the goods-receipt
// verification, ticketing, and notification core. This file centralizes the
// service-level error values so they can be consistently returned by service
// methods and checked by callers with errors.Is.
//
// Translation into transport-facing responses is the caller's concern; the
// values below only encode the failure class.
package services

import "errors"

// Verification and ticket errors.
var (
	// ErrReceiptNotFound indicates the requested goods receipt does not exist.
	ErrReceiptNotFound = errors.New("goods receipt not found")

	// ErrAlreadyVerified is returned when a verification is attempted on a
	// receipt that has already left PENDING_VERIFICATION. Verification is a
	// one-shot operation.
	ErrAlreadyVerified = errors.New("goods receipt already verified")

	// ErrLineMismatch is returned when the verified line set does not match
	// the receipt's line set (unknown, duplicate, or missing line ids).
	ErrLineMismatch = errors.New("verification lines do not match receipt lines")

	// ErrInvalidInput is returned for malformed requests: empty identifiers,
	// negative quantities, or unsupported status overrides.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTicketNotFound indicates the requested ticket does not exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrInvalidStatus is returned when a ticket status value is outside the
	// known workflow states.
	ErrInvalidStatus = errors.New("invalid ticket status")

	// ErrInvalidTransition is returned when a requested ticket status change
	// is not permitted by the workflow table.
	ErrInvalidTransition = errors.New("invalid ticket status transition")
)

// Device registry errors.
var (
	// ErrInvalidToken is returned when a device token fails format validation.
	ErrInvalidToken = errors.New("invalid device token")
)

// Notification delivery errors.
var (
	// ErrDeliveryFailed is returned when every endpoint of a delivery failed.
	// The notification record stays FAILED and is picked up by the sweeper.
	ErrDeliveryFailed = errors.New("notification delivery failed")

	// ErrPartialDelivery is returned when some endpoints succeeded and some
	// failed. The record is SENT; per-endpoint errors are kept in its metadata.
	ErrPartialDelivery = errors.New("notification partially delivered")
)
