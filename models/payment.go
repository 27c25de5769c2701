package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusSuccessful = "successful"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

type Payment struct {
	ID          string          `json:"payment_id"`
	UserID      string          `json:"user_id"`
	EventID     string          `json:"event_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Method      string          `json:"payment_method"` // qr_code, credit_card, bank_transfer, wallet
	Reference   string          `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// PaymentNotification is the shape published by the payment gateway on
// the bank notification channel.
type PaymentNotification struct {
	PaymentID     string    `json:"payment_id"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}
