package models

import (
	"time"

	"github.com/google/uuid"
)

// ReminderJob is one booked (or skipped) event-start reminder.
// Booked is false when the fire time had already passed at scheduling time.
type ReminderJob struct {
	ID       uuid.UUID     `json:"id"`
	EventID  uuid.UUID     `json:"event_id"`
	Title    string        `json:"title"`
	StartsAt time.Time     `json:"starts_at"`
	FireAt   time.Time     `json:"fire_at"`
	Lead     time.Duration `json:"lead"`
	Booked   bool          `json:"booked"`
}
