package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event statuses. Only published events accept redemptions.
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status"`
	OrganizerID string    `json:"organizer_id"`
}

// EventTier is a priced capacity bucket within an event.
// Sold never exceeds Quantity; the increment happens as a conditional
// update at the store so concurrent issuances cannot oversell.
type EventTier struct {
	ID       string          `json:"id"`
	EventID  string          `json:"event_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Sold     int             `json:"sold"`
}

func (t EventTier) Remaining() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}
