package streaming

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

// EventLookup returns an event snapshot.
type EventLookup interface {
	Event(id uuid.UUID) (models.Event, bool)
}

// SnapshotReplaySource serves the replay URL pre-generated on the event snapshot.
type SnapshotReplaySource struct {
	Events EventLookup
	TTL    time.Duration
}

// ReplayURL implements ReplaySource.
func (s SnapshotReplaySource) ReplayURL(_ context.Context, ticket models.Ticket) (string, time.Time, error) {
	ev, ok := s.Events.Event(ticket.EventID)
	if !ok || ev.ReplayURL == "" {
		return "", time.Time{}, apperr.AccessDenied("no replay available")
	}
	var exp time.Time
	if s.TTL > 0 {
		exp = time.Now().Add(s.TTL)
	}
	return ev.ReplayURL, exp, nil
}
