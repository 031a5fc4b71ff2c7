package models

import (
	"time"

	"github.com/google/uuid"
)

// Pricing is how an event is sold.
type Pricing string

const (
	PricingFree     Pricing = "free"
	PricingPaid     Pricing = "paid"
	PricingFeatured Pricing = "featured"
)

// Event is a read-only snapshot of a ticketed broadcast. The backend owns the record.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	IsLive         bool       `json:"is_live"`
	CurrentViewers int        `json:"current_viewers"`
	MaxViewers     int        `json:"max_viewers"`
	Pricing        Pricing    `json:"pricing"`
	Capacity       int        `json:"capacity"`
	ReplayURL      string     `json:"replay_url,omitempty"`
	ReplayS3Key    string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasEnded reports whether the event's end time is at or before now.
func (e *Event) HasEnded(now time.Time) bool {
	return e.EndsAt != nil && !e.EndsAt.After(now)
}
