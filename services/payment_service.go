package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"tikit/internal/status"
	"tikit/models"
)

// UserNotifier pushes a message to one user's live sessions.
// realtime.Notifier satisfies it.
type UserNotifier interface {
	NotifyUser(userID string, message map[string]any)
}

// PaymentService owns payment records and listens for gateway
// confirmations on the bank notification channel. The gateway itself is
// an external collaborator; only the record lifecycle lives here.
type PaymentService struct {
	app      core.App
	Redis    *redis.Client
	PubNub   *pubnub.PubNub
	notifier UserNotifier
}

func NewPaymentService(app core.App, redisClient *redis.Client, pn *pubnub.PubNub, notifier UserNotifier) *PaymentService {
	return &PaymentService{
		app:      app,
		Redis:    redisClient,
		PubNub:   pn,
		notifier: notifier,
	}
}

func (s *PaymentService) PaymentByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	record, err := s.app.FindRecordById("payments", paymentID)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrPaymentNotFound)
	}
	return paymentFromRecord(record), nil
}

// CreatePayment records a pending payment awaiting gateway
// confirmation. A short-lived Redis mirror lets the status polling
// endpoint answer without hitting the store.
func (s *PaymentService) CreatePayment(ctx context.Context, userID, eventID, method string, amount decimal.Decimal) (*models.Payment, error) {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return nil, fmt.Errorf("%w: payments collection: %v", status.ErrStoreUnavailable, err)
	}

	amountFloat, _ := amount.Float64()
	record := core.NewRecord(collection)
	record.Set("user_id", userID)
	record.Set("event_id", eventID)
	record.Set("amount", amountFloat)
	record.Set("status", models.PaymentStatusPending)
	record.Set("payment_method", method)
	record.Set("reference", fmt.Sprintf("pay_%s_%d", userID, time.Now().Unix()))

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: create payment: %v", status.ErrStoreUnavailable, err)
	}

	payment := paymentFromRecord(record)
	s.cachePaymentStatus(ctx, payment.ID, payment.Status)
	return payment, nil
}

// PaymentStatus answers the polling endpoint, preferring the Redis
// mirror and falling back to the store.
func (s *PaymentService) PaymentStatus(ctx context.Context, paymentID string) (string, error) {
	if cached, err := s.Redis.Get(ctx, paymentStatusKey(paymentID)).Result(); err == nil && cached != "" {
		return cached, nil
	}

	payment, err := s.PaymentByID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	s.cachePaymentStatus(ctx, paymentID, payment.Status)
	return payment.Status, nil
}

// ConfirmPayment flips a pending payment to its terminal gateway
// outcome and notifies the payer's live sessions. The transition is
// conditional on the pending status so replayed gateway callbacks
// cannot double-complete a payment.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID, newStatus, transactionID string) error {
	if newStatus != models.PaymentStatusSuccessful && newStatus != models.PaymentStatusFailed {
		return fmt.Errorf("unsupported payment status %q", newStatus)
	}

	result, err := s.app.DB().NewQuery(`
		UPDATE payments
		SET status = {:status}, completed_at = {:at}, transaction_id = {:txn}
		WHERE id = {:id} AND status = {:pending}
	`).Bind(dbx.Params{
		"status":  newStatus,
		"at":      time.Now().UTC().Format(time.RFC3339),
		"txn":     transactionID,
		"id":      paymentID,
		"pending": models.PaymentStatusPending,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("%w: confirm payment: %v", status.ErrStoreUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: confirm payment: %v", status.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return status.ErrPaymentNotFound
	}

	s.cachePaymentStatus(ctx, paymentID, newStatus)

	if newStatus == models.PaymentStatusSuccessful && s.notifier != nil {
		if payment, err := s.PaymentByID(ctx, paymentID); err == nil {
			s.notifier.NotifyUser(payment.UserID, map[string]any{
				"type":       "payment_success",
				"payment_id": paymentID,
				"event_id":   payment.EventID,
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
	return nil
}

// SubscribeToPaymentNotifications consumes gateway confirmations pushed
// on the bank notification channel and applies them as payment
// transitions.
func (s *PaymentService) SubscribeToPaymentNotifications(ctx context.Context) {
	if s.PubNub == nil {
		return
	}

	listener := pubnub.NewListener()
	s.PubNub.AddListener(listener)
	s.PubNub.Subscribe().
		Channels([]string{"bank-payment-notifications"}).
		Execute()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-listener.Message:
			go s.handlePaymentNotification(message)
		}
	}
}

func (s *PaymentService) handlePaymentNotification(message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]interface{})
	if !ok {
		return
	}

	var notification models.PaymentNotification
	raw, _ := json.Marshal(data)
	if err := json.Unmarshal(raw, &notification); err != nil {
		log.Printf("Error parsing payment notification: %v", err)
		return
	}
	if notification.PaymentID == "" {
		return
	}

	mapped := models.PaymentStatusFailed
	if notification.Status == "success" || notification.Status == models.PaymentStatusSuccessful {
		mapped = models.PaymentStatusSuccessful
	}

	if err := s.ConfirmPayment(context.Background(), notification.PaymentID, mapped, notification.TransactionID); err != nil {
		log.Printf("Error applying payment notification for %s: %v", notification.PaymentID, err)
	}
}

func (s *PaymentService) cachePaymentStatus(ctx context.Context, paymentID, paymentStatus string) {
	s.Redis.Set(ctx, paymentStatusKey(paymentID), paymentStatus, 10*time.Minute)
}

func paymentStatusKey(paymentID string) string {
	return fmt.Sprintf("payment:status:%s", paymentID)
}

func paymentFromRecord(record *core.Record) *models.Payment {
	payment := &models.Payment{
		ID:        record.Id,
		UserID:    record.GetString("user_id"),
		EventID:   record.GetString("event_id"),
		Amount:    decimal.NewFromFloat(record.GetFloat("amount")),
		Status:    record.GetString("status"),
		Method:    record.GetString("payment_method"),
		Reference: record.GetString("reference"),
		CreatedAt: record.GetDateTime("created").Time(),
	}
	if completed := record.GetDateTime("completed_at").Time(); !completed.IsZero() {
		payment.CompletedAt = &completed
	}
	return payment
}
