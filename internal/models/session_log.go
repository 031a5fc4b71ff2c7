package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the viewer session lifecycle.
type SessionStatus string

const (
	SessionNotJoined SessionStatus = "not_joined"
	SessionJoined    SessionStatus = "joined"
	SessionLeft      SessionStatus = "left"
)

// ViewerSession is one identity's connection to one event's live feed.
type ViewerSession struct {
	TicketID  uuid.UUID     `json:"ticket_id"`
	EventID   uuid.UUID     `json:"event_id"`
	WatchTime time.Duration `json:"watch_time"`
	Status    SessionStatus `json:"status"`
	JoinedAt  *time.Time    `json:"joined_at,omitempty"`
	LeftAt    *time.Time    `json:"left_at,omitempty"`
}

// UserSessionLog is the backend's watch ledger row per ticket.
type UserSessionLog struct {
	ID           uuid.UUID  `json:"id"`
	EventID      uuid.UUID  `json:"event_id"`
	TicketID     uuid.UUID  `json:"ticket_id"`
	UserID       uuid.UUID  `json:"user_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	WatchSeconds int64      `json:"watch_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
}
