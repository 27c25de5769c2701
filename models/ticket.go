package models

import (
	"time"
)

// Ticket statuses. A ticket never leaves used or cancelled.
const (
	TicketStatusActive    = "active"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
)

// Scan channels recorded in the audit trail.
const (
	ScanTypeQRCode     = "qr_code"
	ScanTypeBackupCode = "backup_code"
)

type Ticket struct {
	ID                 string     `json:"id"`
	EventID            string     `json:"event_id"`
	TierID             string     `json:"tier_id"`
	UserID             string     `json:"user_id"`
	PaymentID          string     `json:"payment_id"`
	QRCode             string     `json:"qr_code"`
	BackupCode         string     `json:"backup_code"`
	QRCodeImage        string     `json:"qr_code_image,omitempty"`
	Status             string     `json:"status"`
	CulturalSelections string     `json:"cultural_selections,omitempty"`
	IssuedAt           time.Time  `json:"issued_at"`
	UsedAt             *time.Time `json:"used_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ScannedBy          string     `json:"scanned_by,omitempty"`
	ScanLocation       string     `json:"scan_location,omitempty"`

	// Expanded references, populated on read paths.
	EventTitle     string     `json:"event_title,omitempty"`
	EventVenue     string     `json:"event_venue,omitempty"`
	EventStartDate *time.Time `json:"event_start_date,omitempty"`
	TierName       string     `json:"tier_name,omitempty"`
	TierPrice      float64    `json:"tier_price,omitempty"`
}

// ScanRecord is one append-only audit entry for a verification attempt.
type ScanRecord struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	ScannedBy  string    `json:"scanned_by"`
	ScannedAt  time.Time `json:"scanned_at"`
	Location   string    `json:"location,omitempty"`
	DeviceInfo string    `json:"device_info,omitempty"`
	ScanType   string    `json:"scan_type"`
}

// Credential carries exactly one of the two redemption codes.
type Credential struct {
	QRCode     string `json:"qr_code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

func (c Credential) ScanType() string {
	if c.QRCode != "" {
		return ScanTypeQRCode
	}
	return ScanTypeBackupCode
}

type VerificationResult struct {
	Valid        bool         `json:"valid"`
	Reason       string       `json:"reason,omitempty"`
	TicketID     string       `json:"ticket_id,omitempty"`
	EventTitle   string       `json:"event_title,omitempty"`
	TierName     string       `json:"tier_name,omitempty"`
	AttendeeName string       `json:"attendee_name,omitempty"`
	Status       string       `json:"status,omitempty"`
	ScanHistory  []ScanRecord `json:"scan_history,omitempty"`
}

type RedemptionResult struct {
	TicketID   string    `json:"ticket_id"`
	EventID    string    `json:"event_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// TicketSummary is the per-user roll-up returned with ticket listings.
type TicketSummary struct {
	Tickets        []Ticket `json:"tickets"`
	Total          int      `json:"total"`
	ActiveTickets  int      `json:"active_tickets"`
	UsedTickets    int      `json:"used_tickets"`
	UpcomingEvents int      `json:"upcoming_events"`
}
