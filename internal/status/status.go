package status

import "errors"

// Permanent rejections. Callers must not retry these expecting a
// different outcome for the same ticket or payment.
var (
	ErrPaymentNotFound      = errors.New("payment: payment not found")
	ErrPaymentNotSuccessful = errors.New("payment: payment not successful")
	ErrPaymentMismatch      = errors.New("payment: payment does not belong to user")
	ErrTicketAlreadyExists  = errors.New("ticket: ticket already issued for this payment")
	ErrEventNotFound        = errors.New("event: event not found")
	ErrTierNotFound         = errors.New("tier: event tier not found")
	ErrTierSoldOut          = errors.New("tier: tier is sold out")
	ErrTicketNotFound       = errors.New("ticket: ticket not found")
	ErrUserNotFound         = errors.New("user: user not found")
	ErrTicketNotActive      = errors.New("ticket: ticket is not active")
	ErrMissingCredential    = errors.New("ticket: no verification code provided")
)

// ErrStoreUnavailable marks transient persistence failures. Wrapped
// store errors carry it so callers can retry Issue/Redeem safely; the
// idempotency and conditional-update guards make those retries harmless.
var ErrStoreUnavailable = errors.New("store: temporarily unavailable")
