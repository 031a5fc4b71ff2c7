package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessSource names where a capability came from.
type AccessSource string

const (
	AccessSourceLive   AccessSource = "live"
	AccessSourceReplay AccessSource = "replay"
)

// Permissions is the permission set carried by a capability.
type Permissions struct {
	CanWatch  bool `json:"can_watch"`
	CanChat   bool `json:"can_chat"`
	CanReplay bool `json:"can_replay"`
}

// StreamingAccess is a time-bounded capability to play (and chat on) an event.
// URLs maps a quality label ("auto", "720p", ...) to a playable URL.
type StreamingAccess struct {
	ID          uuid.UUID         `json:"id"`
	TicketID    uuid.UUID         `json:"ticket_id"`
	EventID     uuid.UUID         `json:"event_id"`
	ViewerID    uuid.UUID         `json:"viewer_id"`
	Token       string            `json:"token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Permissions Permissions       `json:"permissions"`
	URLs        map[string]string `json:"urls"`
	Source      AccessSource      `json:"source"`
	RoomID      string            `json:"room_id,omitempty"`
	AppID       uint32            `json:"app_id,omitempty"`
}

// Expired reports whether the capability is no longer usable at now.
func (a *StreamingAccess) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// UserAccess is the backend's access answer for one event and the calling identity.
type UserAccess struct {
	EventID      uuid.UUID  `json:"event_id"`
	HasAccess    bool       `json:"has_access"`
	AccessType   string     `json:"access_type"`
	RequiresAuth bool       `json:"requires_auth"`
	Reason       string     `json:"reason,omitempty"`
	TicketID     *uuid.UUID `json:"ticket_id,omitempty"`
}
