package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"tikit/internal/status"
	"tikit/models"
)

// TicketStore is the persistence surface the lifecycle manager needs:
// point lookups by unique field, inserts, counts, and conditional
// updates that report failure instead of silently no-oping.
type TicketStore interface {
	PaymentByID(ctx context.Context, id string) (*models.Payment, error)
	EventByID(ctx context.Context, id string) (*models.Event, error)
	TierByID(ctx context.Context, tierID, eventID string) (*models.EventTier, error)
	UserDisplayName(ctx context.Context, userID string) (string, error)

	TicketByPaymentID(ctx context.Context, paymentID string) (*models.Ticket, error)
	TicketByCredential(ctx context.Context, cred models.Credential) (*models.Ticket, error)
	TicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	TicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	InsertTicket(ctx context.Context, ticket *models.Ticket) (*models.Ticket, error)

	// MarkTicketUsed transitions active -> used. Returns false when the
	// ticket was not active anymore; the caller treats that as a
	// permanent conflict, not a transient failure.
	MarkTicketUsed(ctx context.Context, ticketID, agentID, location string, at time.Time) (bool, error)
	// CancelTicket transitions active -> cancelled under the same
	// conditional-update contract.
	CancelTicket(ctx context.Context, ticketID string, at time.Time) (bool, error)

	// IncrementTierSold bumps the sold counter only while capacity
	// remains; returns false on a full tier.
	IncrementTierSold(ctx context.Context, tierID string) (bool, error)
	DecrementTierSold(ctx context.Context, tierID string) error
	// CountTierTickets recounts issued tickets (active + used) for
	// reconciling the sold counter against ground truth.
	CountTierTickets(ctx context.Context, tierID string) (int, error)

	AppendScanRecord(ctx context.Context, record *models.ScanRecord) error
	ScanHistory(ctx context.Context, ticketID string) ([]models.ScanRecord, error)
}

// pbTicketStore backs TicketStore with PocketBase collections; the
// conditional transitions go through dbx so a failed precondition is
// visible as zero affected rows.
type pbTicketStore struct {
	app core.App
}

func NewTicketStore(app core.App) TicketStore {
	return &pbTicketStore{app: app}
}

func (s *pbTicketStore) PaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrPaymentNotFound)
	}

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
	return payment, nil
}

func (s *pbTicketStore) EventByID(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", id)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrEventNotFound)
	}

	return &models.Event{
		ID:          record.Id,
		Title:       record.GetString("title"),
		Description: record.GetString("description"),
		Venue:       record.GetString("venue"),
		StartDate:   record.GetDateTime("start_date").Time(),
		EndDate:     record.GetDateTime("end_date").Time(),
		Status:      record.GetString("status"),
		OrganizerID: record.GetString("organizer_id"),
	}, nil
}

func (s *pbTicketStore) TierByID(ctx context.Context, tierID, eventID string) (*models.EventTier, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"event_tiers",
		"id = {:tierId} && event_id = {:eventId}",
		dbx.Params{"tierId": tierID, "eventId": eventID},
	)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrTierNotFound)
	}

	return &models.EventTier{
		ID:       record.Id,
		EventID:  record.GetString("event_id"),
		Name:     record.GetString("name"),
		Price:    decimal.NewFromFloat(record.GetFloat("price")),
		Quantity: record.GetInt("quantity"),
		Sold:     record.GetInt("sold"),
	}, nil
}

func (s *pbTicketStore) UserDisplayName(ctx context.Context, userID string) (string, error) {
	record, err := s.app.FindRecordById("users", userID)
	if err != nil {
		return "", wrapLookupErr(err, status.ErrUserNotFound)
	}
	if name := record.GetString("name"); name != "" {
		return name, nil
	}
	return record.GetString("email"), nil
}

func (s *pbTicketStore) TicketByPaymentID(ctx context.Context, paymentID string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"payment_id = {:paymentId}",
		dbx.Params{"paymentId": paymentID},
	)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrTicketNotFound)
	}
	return ticketFromRecord(record), nil
}

func (s *pbTicketStore) TicketByCredential(ctx context.Context, cred models.Credential) (*models.Ticket, error) {
	var filter string
	var params dbx.Params
	switch {
	case cred.QRCode != "":
		filter = "qr_code = {:code}"
		params = dbx.Params{"code": cred.QRCode}
	case cred.BackupCode != "":
		filter = "backup_code = {:code}"
		params = dbx.Params{"code": cred.BackupCode}
	default:
		return nil, status.ErrMissingCredential
	}

	record, err := s.app.FindFirstRecordByFilter("tickets", filter, params)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrTicketNotFound)
	}
	return ticketFromRecord(record), nil
}

func (s *pbTicketStore) TicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, wrapLookupErr(err, status.ErrTicketNotFound)
	}
	return ticketFromRecord(record), nil
}

func (s *pbTicketStore) TicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"user_id = {:userId}",
		"-created",
		0,
		0,
		dbx.Params{"userId": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list tickets: %v", status.ErrStoreUnavailable, err)
	}

	tickets := make([]models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, *ticketFromRecord(record))
	}
	return tickets, nil
}

func (s *pbTicketStore) InsertTicket(ctx context.Context, ticket *models.Ticket) (*models.Ticket, error) {
	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("%w: tickets collection: %v", status.ErrStoreUnavailable, err)
	}

	record := core.NewRecord(collection)
	record.Set("event_id", ticket.EventID)
	record.Set("tier_id", ticket.TierID)
	record.Set("user_id", ticket.UserID)
	record.Set("payment_id", ticket.PaymentID)
	record.Set("qr_code", ticket.QRCode)
	record.Set("backup_code", ticket.BackupCode)
	record.Set("qr_code_image", ticket.QRCodeImage)
	record.Set("status", ticket.Status)
	record.Set("cultural_selections", ticket.CulturalSelections)
	record.Set("issued_at", ticket.IssuedAt)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: insert ticket: %v", status.ErrStoreUnavailable, err)
	}
	return ticketFromRecord(record), nil
}

func (s *pbTicketStore) MarkTicketUsed(ctx context.Context, ticketID, agentID, location string, at time.Time) (bool, error) {
	result, err := s.app.DB().NewQuery(`
		UPDATE tickets
		SET status = {:used}, used_at = {:at}, scanned_by = {:agent}, scan_location = {:location}
		WHERE id = {:id} AND status = {:active}
	`).Bind(dbx.Params{
		"used":     models.TicketStatusUsed,
		"at":       at.UTC().Format(time.RFC3339),
		"agent":    agentID,
		"location": location,
		"id":       ticketID,
		"active":   models.TicketStatusActive,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: mark ticket used: %v", status.ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: mark ticket used: %v", status.ErrStoreUnavailable, err)
	}
	return affected == 1, nil
}

func (s *pbTicketStore) CancelTicket(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	result, err := s.app.DB().NewQuery(`
		UPDATE tickets
		SET status = {:cancelled}, cancelled_at = {:at}
		WHERE id = {:id} AND status = {:active}
	`).Bind(dbx.Params{
		"cancelled": models.TicketStatusCancelled,
		"at":        at.UTC().Format(time.RFC3339),
		"id":        ticketID,
		"active":    models.TicketStatusActive,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: cancel ticket: %v", status.ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: cancel ticket: %v", status.ErrStoreUnavailable, err)
	}
	return affected == 1, nil
}

func (s *pbTicketStore) IncrementTierSold(ctx context.Context, tierID string) (bool, error) {
	result, err := s.app.DB().NewQuery(`
		UPDATE event_tiers
		SET sold = sold + 1
		WHERE id = {:id} AND sold < quantity
	`).Bind(dbx.Params{"id": tierID}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: increment sold: %v", status.ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: increment sold: %v", status.ErrStoreUnavailable, err)
	}
	return affected == 1, nil
}

func (s *pbTicketStore) DecrementTierSold(ctx context.Context, tierID string) error {
	_, err := s.app.DB().NewQuery(`
		UPDATE event_tiers
		SET sold = sold - 1
		WHERE id = {:id} AND sold > 0
	`).Bind(dbx.Params{"id": tierID}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("%w: decrement sold: %v", status.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *pbTicketStore) CountTierTickets(ctx context.Context, tierID string) (int, error) {
	total, err := s.app.CountRecords(
		"tickets",
		dbx.HashExp{"tier_id": tierID},
		dbx.In("status", models.TicketStatusActive, models.TicketStatusUsed),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: count tier tickets: %v", status.ErrStoreUnavailable, err)
	}
	return int(total), nil
}

func (s *pbTicketStore) AppendScanRecord(ctx context.Context, scan *models.ScanRecord) error {
	collection, err := s.app.FindCollectionByNameOrId("scan_history")
	if err != nil {
		return fmt.Errorf("%w: scan_history collection: %v", status.ErrStoreUnavailable, err)
	}

	record := core.NewRecord(collection)
	record.Set("ticket_id", scan.TicketID)
	record.Set("scanned_by", scan.ScannedBy)
	record.Set("scanned_at", scan.ScannedAt)
	record.Set("location", scan.Location)
	record.Set("device_info", scan.DeviceInfo)
	record.Set("scan_type", scan.ScanType)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("%w: append scan record: %v", status.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *pbTicketStore) ScanHistory(ctx context.Context, ticketID string) ([]models.ScanRecord, error) {
	records, err := s.app.FindRecordsByFilter(
		"scan_history",
		"ticket_id = {:ticketId}",
		"-scanned_at",
		0,
		0,
		dbx.Params{"ticketId": ticketID},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan history: %v", status.ErrStoreUnavailable, err)
	}

	history := make([]models.ScanRecord, 0, len(records))
	for _, record := range records {
		history = append(history, models.ScanRecord{
			ID:         record.Id,
			TicketID:   record.GetString("ticket_id"),
			ScannedBy:  record.GetString("scanned_by"),
			ScannedAt:  record.GetDateTime("scanned_at").Time(),
			Location:   record.GetString("location"),
			DeviceInfo: record.GetString("device_info"),
			ScanType:   record.GetString("scan_type"),
		})
	}
	return history, nil
}

func ticketFromRecord(record *core.Record) *models.Ticket {
	ticket := &models.Ticket{
		ID:                 record.Id,
		EventID:            record.GetString("event_id"),
		TierID:             record.GetString("tier_id"),
		UserID:             record.GetString("user_id"),
		PaymentID:          record.GetString("payment_id"),
		QRCode:             record.GetString("qr_code"),
		BackupCode:         record.GetString("backup_code"),
		QRCodeImage:        record.GetString("qr_code_image"),
		Status:             record.GetString("status"),
		CulturalSelections: record.GetString("cultural_selections"),
		IssuedAt:           record.GetDateTime("issued_at").Time(),
		ScannedBy:          record.GetString("scanned_by"),
		ScanLocation:       record.GetString("scan_location"),
	}
	if used := record.GetDateTime("used_at").Time(); !used.IsZero() {
		ticket.UsedAt = &used
	}
	if cancelled := record.GetDateTime("cancelled_at").Time(); !cancelled.IsZero() {
		ticket.CancelledAt = &cancelled
	}
	return ticket
}

// wrapLookupErr separates "row does not exist" from transient store
// failures so a timeout can never masquerade as a not-found rejection.
func wrapLookupErr(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("%w: %v", status.ErrStoreUnavailable, err)
}
