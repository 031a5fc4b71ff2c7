package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus transitions are owned by the backend.
type TicketStatus string

const (
	TicketStatusConfirmed TicketStatus = "confirmed"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket grants an identity entitlements to one event within a validity window.
type Ticket struct {
	ID              uuid.UUID    `json:"id"`
	EventID         uuid.UUID    `json:"event_id"`
	OwnerID         uuid.UUID    `json:"owner_id"`
	Status          TicketStatus `json:"status"`
	ValidFrom       time.Time    `json:"valid_from"`
	ValidUntil      time.Time    `json:"valid_until"`
	CanAccessLive   bool         `json:"can_access_live"`
	CanAccessReplay bool         `json:"can_access_replay"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Expired reports whether validUntil is at or before now.
func (t *Ticket) Expired(now time.Time) bool {
	return !t.ValidUntil.After(now)
}
