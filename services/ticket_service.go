package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tikit/internal/status"
	"tikit/models"
	"tikit/utils"
)

// EventNotifier receives occupancy changes produced by redemptions.
// realtime.Notifier satisfies it; tests plug in fakes.
type EventNotifier interface {
	NotifyEventUpdate(eventID, updateType string, data map[string]any)
}

type TicketServiceOptions struct {
	// LogVerifyScans also writes an audit record for read-only
	// verifications, for venues that want every physical scan logged.
	LogVerifyScans bool
}

// TicketService governs a ticket from issuance through redemption:
// exactly one ticket per payment, at-most-once redemption, append-only
// scan audit trail.
type TicketService struct {
	store    TicketStore
	notifier EventNotifier
	events   *EventCache
	opts     TicketServiceOptions
}

func NewTicketService(store TicketStore, notifier EventNotifier, events *EventCache, opts TicketServiceOptions) *TicketService {
	return &TicketService{
		store:    store,
		notifier: notifier,
		events:   events,
		opts:     opts,
	}
}

type IssueRequest struct {
	PaymentID          string `json:"payment_id"`
	EventID            string `json:"event_id"`
	TierID             string `json:"tier_id"`
	UserID             string `json:"-"`
	CulturalSelections string `json:"cultural_selections,omitempty"`
}

// Issue creates the ticket for a confirmed payment. The precondition
// chain is ordered; the first failure wins. The payment-to-ticket check
// makes retries idempotent, and the sold counter moves through a
// conditional increment so concurrent purchases cannot oversell a tier.
func (s *TicketService) Issue(ctx context.Context, req IssueRequest) (*models.Ticket, error) {
	payment, err := s.store.PaymentByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSuccessful {
		return nil, status.ErrPaymentNotSuccessful
	}
	if payment.UserID != req.UserID {
		return nil, status.ErrPaymentMismatch
	}

	if _, err := s.store.TicketByPaymentID(ctx, req.PaymentID); err == nil {
		return nil, status.ErrTicketAlreadyExists
	} else if !errors.Is(err, status.ErrTicketNotFound) {
		return nil, err
	}

	if _, err := s.eventByID(ctx, req.EventID); err != nil {
		return nil, err
	}
	if _, err := s.store.TierByID(ctx, req.TierID, req.EventID); err != nil {
		return nil, err
	}

	qrToken, err := utils.GenerateQRToken()
	if err != nil {
		return nil, err
	}
	backupCode, err := utils.GenerateBackupCode()
	if err != nil {
		return nil, err
	}

	// Claim capacity before inserting; compensate if the insert fails
	// so the counter stays consistent with actual tickets.
	ok, err := s.store.IncrementTierSold(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.ErrTierSoldOut
	}

	ticket, err := s.store.InsertTicket(ctx, &models.Ticket{
		EventID:            req.EventID,
		TierID:             req.TierID,
		UserID:             req.UserID,
		PaymentID:          req.PaymentID,
		QRCode:             qrToken,
		BackupCode:         backupCode,
		QRCodeImage:        utils.RenderQRTokenSVG(qrToken),
		Status:             models.TicketStatusActive,
		CulturalSelections: req.CulturalSelections,
		IssuedAt:           time.Now().UTC(),
	})
	if err != nil {
		if derr := s.store.DecrementTierSold(ctx, req.TierID); derr != nil {
			slog.Error("Failed to release tier capacity after insert failure",
				"tier_id", req.TierID, "error", derr)
		}
		return nil, err
	}

	slog.Info("Ticket issued", "ticket_id", ticket.ID, "payment_id", req.PaymentID, "tier_id", req.TierID)
	return ticket, nil
}

// Verify checks a credential without mutating anything. An already-used
// ticket answers with its full scan history so front-of-house staff can
// see when and where it was first redeemed.
func (s *TicketService) Verify(ctx context.Context, cred models.Credential, agentID string) (*models.VerificationResult, error) {
	if err := validateCredential(cred); err != nil {
		return nil, err
	}

	ticket, err := s.store.TicketByCredential(ctx, cred)
	if errors.Is(err, status.ErrTicketNotFound) {
		// No cross-ticket detail leaks for unknown codes.
		return &models.VerificationResult{Valid: false, Reason: "invalid ticket code"}, nil
	}
	if err != nil {
		return nil, err
	}

	if s.opts.LogVerifyScans {
		s.appendScan(ctx, ticket.ID, agentID, "", "", cred.ScanType())
	}

	result := &models.VerificationResult{
		TicketID: ticket.ID,
		Status:   ticket.Status,
	}
	// A valid answer asserts the event is live, so the lookup must
	// succeed: a transient store failure surfaces as an error instead
	// of an unfounded yes. A deleted event is definitively not active.
	event, err := s.eventByID(ctx, ticket.EventID)
	switch {
	case err == nil:
		result.EventTitle = event.Title
		if ticket.Status == models.TicketStatusActive && event.Status != models.EventStatusPublished {
			result.Reason = "event not active"
			return result, nil
		}
	case errors.Is(err, status.ErrEventNotFound):
		if ticket.Status == models.TicketStatusActive {
			result.Reason = "event not active"
			return result, nil
		}
	default:
		return nil, err
	}
	if tier, err := s.store.TierByID(ctx, ticket.TierID, ticket.EventID); err == nil {
		result.TierName = tier.Name
	}
	if name, err := s.store.UserDisplayName(ctx, ticket.UserID); err == nil {
		result.AttendeeName = name
	}

	switch ticket.Status {
	case models.TicketStatusUsed:
		result.Reason = "already used"
		if history, err := s.store.ScanHistory(ctx, ticket.ID); err == nil {
			result.ScanHistory = history
		}
	case models.TicketStatusCancelled:
		result.Reason = "cancelled"
	default:
		result.Valid = true
	}
	return result, nil
}

type RedeemRequest struct {
	Credential models.Credential
	AgentID    string
	Location   string
	DeviceInfo string
}

// Redeem consumes the ticket at the point of entry. The lookup is
// always fresh and the transition is a conditional update keyed on the
// active status, so of N concurrent attempts exactly one succeeds and
// the rest observe TicketNotActive.
func (s *TicketService) Redeem(ctx context.Context, req RedeemRequest) (*models.RedemptionResult, error) {
	if err := validateCredential(req.Credential); err != nil {
		return nil, err
	}

	ticket, err := s.store.TicketByCredential(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	event, err := s.eventByID(ctx, ticket.EventID)
	if err != nil {
		// Unknown event state never lets a redemption through: a
		// deleted event is a permanent rejection, anything else is the
		// store failing and stays retryable.
		if errors.Is(err, status.ErrEventNotFound) {
			return nil, status.ErrTicketNotActive
		}
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		return nil, status.ErrTicketNotActive
	}

	now := time.Now().UTC()
	ok, err := s.store.MarkTicketUsed(ctx, ticket.ID, req.AgentID, req.Location, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race or the ticket was already consumed/cancelled.
		// No mutation happened, so no audit record is written.
		return nil, status.ErrTicketNotActive
	}

	s.appendScan(ctx, ticket.ID, req.AgentID, req.Location, req.DeviceInfo, req.Credential.ScanType())

	if s.notifier != nil {
		s.notifier.NotifyEventUpdate(ticket.EventID, "attendance", map[string]any{
			"ticket_id": ticket.ID,
			"tier_id":   ticket.TierID,
		})
	}

	slog.Info("Ticket redeemed", "ticket_id", ticket.ID, "agent_id", req.AgentID)
	return &models.RedemptionResult{
		TicketID:   ticket.ID,
		EventID:    ticket.EventID,
		RedeemedAt: now,
	}, nil
}

// Cancel retires an active ticket and releases its tier capacity. Used
// and cancelled tickets stay terminal.
func (s *TicketService) Cancel(ctx context.Context, ticketID, userID, reason string) error {
	ticket, err := s.store.TicketByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.UserID != userID {
		return status.ErrTicketNotFound
	}

	ok, err := s.store.CancelTicket(ctx, ticketID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return status.ErrTicketNotActive
	}

	if err := s.store.DecrementTierSold(ctx, ticket.TierID); err != nil {
		slog.Error("Failed to release tier capacity after cancellation",
			"ticket_id", ticketID, "tier_id", ticket.TierID, "error", err)
	}

	slog.Info("Ticket cancelled", "ticket_id", ticketID, "reason", reason)
	return nil
}

// TicketsByUser lists a user's tickets with the roll-up counters the
// mobile wallet view shows.
func (s *TicketService) TicketsByUser(ctx context.Context, userID string) (*models.TicketSummary, error) {
	tickets, err := s.store.TicketsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.TicketSummary{
		Tickets: tickets,
		Total:   len(tickets),
	}
	now := time.Now()
	for i := range tickets {
		ticket := &tickets[i]
		s.expandTicket(ctx, ticket)

		switch ticket.Status {
		case models.TicketStatusActive:
			summary.ActiveTickets++
		case models.TicketStatusUsed:
			summary.UsedTickets++
		}
		if ticket.EventStartDate != nil && ticket.EventStartDate.After(now) {
			summary.UpcomingEvents++
		}
	}
	return summary, nil
}

// TicketByID fetches one ticket; the requesting user must own it.
func (s *TicketService) TicketByID(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	ticket, err := s.store.TicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, status.ErrTicketNotFound
	}
	s.expandTicket(ctx, ticket)
	return ticket, nil
}

func (s *TicketService) ScanHistory(ctx context.Context, ticketID string) ([]models.ScanRecord, error) {
	return s.store.ScanHistory(ctx, ticketID)
}

// ReconcileTierSold recounts a tier's issued tickets. The conditional
// increment cannot lose updates, but operators use this to audit the
// counter against ground truth.
func (s *TicketService) ReconcileTierSold(ctx context.Context, tierID string) (int, error) {
	return s.store.CountTierTickets(ctx, tierID)
}

// appendScan writes one audit record. A failed write after a successful
// transition never fails the redemption; the ticket state is the source
// of truth and the gap is logged for out-of-band reconciliation.
func (s *TicketService) appendScan(ctx context.Context, ticketID, agentID, location, deviceInfo, scanType string) {
	err := s.store.AppendScanRecord(ctx, &models.ScanRecord{
		TicketID:   ticketID,
		ScannedBy:  agentID,
		ScannedAt:  time.Now().UTC(),
		Location:   location,
		DeviceInfo: deviceInfo,
		ScanType:   scanType,
	})
	if err != nil {
		slog.Error("Scan audit write failed", "ticket_id", ticketID, "error", err)
	}
}

func (s *TicketService) eventByID(ctx context.Context, eventID string) (*models.Event, error) {
	if s.events != nil {
		return s.events.EventByID(ctx, eventID, s.store)
	}
	return s.store.EventByID(ctx, eventID)
}

func (s *TicketService) expandTicket(ctx context.Context, ticket *models.Ticket) {
	if event, err := s.eventByID(ctx, ticket.EventID); err == nil {
		ticket.EventTitle = event.Title
		ticket.EventVenue = event.Venue
		if !event.StartDate.IsZero() {
			start := event.StartDate
			ticket.EventStartDate = &start
		}
	}
	if tier, err := s.store.TierByID(ctx, ticket.TierID, ticket.EventID); err == nil {
		ticket.TierName = tier.Name
		ticket.TierPrice, _ = tier.Price.Float64()
	}
}

func validateCredential(cred models.Credential) error {
	qr := strings.TrimSpace(cred.QRCode)
	backup := strings.TrimSpace(cred.BackupCode)
	if (qr == "") == (backup == "") {
		return status.ErrMissingCredential
	}
	return nil
}
