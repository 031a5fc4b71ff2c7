// Package streaming turns a granted ticket into a time-bounded StreamingAccess capability.
package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

// DefaultReplayTTL bounds a replay capability whose source gave no expiry.
const DefaultReplayTTL = 6 * time.Hour

// LinkSource issues low-latency live capabilities (GET /streaming-access/{ticketId}).
type LinkSource interface {
	StreamingAccess(ctx context.Context, ticketID uuid.UUID) (models.StreamingAccess, error)
}

// ReplaySource resolves a pre-generated on-demand URL for a ticket's event.
// A zero expiry means the URL does not expire on its own.
type ReplaySource interface {
	ReplayURL(ctx context.Context, ticket models.Ticket) (url string, expiresAt time.Time, err error)
}

type holder struct {
	ticketID uuid.UUID
	viewerID uuid.UUID
}

// Issuer requests capabilities and remembers the single active one per (ticket, viewer).
// Superseded tokens are not revoked server-side; callers check IsActive before use.
type Issuer struct {
	live   LinkSource
	replay ReplaySource
	now    func() time.Time
	logger *zap.Logger

	mu     sync.Mutex
	active map[holder]models.StreamingAccess
}

// NewIssuer creates an issuer. Either source may be nil.
func NewIssuer(live LinkSource, replay ReplaySource, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{
		live:   live,
		replay: replay,
		now:    time.Now,
		logger: logger,
		active: make(map[holder]models.StreamingAccess),
	}
}

// RequestLink issues a capability for ticket, preferring the live transport and falling back to
// the replay URL on transient failure. The result never outlives the ticket nor exceeds its
// entitlements.
func (i *Issuer) RequestLink(ctx context.Context, ticket models.Ticket) (models.StreamingAccess, error) {
	now := i.now()
	if ticket.Expired(now) {
		return models.StreamingAccess{}, apperr.AccessDenied("ticket expired")
	}
	if ticket.Status == models.TicketStatusCancelled {
		return models.StreamingAccess{}, apperr.AccessDenied("ticket cancelled")
	}
	if !ticket.CanAccessLive && !ticket.CanAccessReplay {
		return models.StreamingAccess{}, apperr.AccessDenied("ticket has no streaming entitlement")
	}

	var liveErr error
	if ticket.CanAccessLive && i.live != nil {
		access, err := i.live.StreamingAccess(ctx, ticket.ID)
		if err == nil {
			if access.Source == "" {
				access.Source = models.AccessSourceLive
			}
			return i.commit(ticket, access, now)
		}
		if apperr.KindOf(err).Terminal() {
			return models.StreamingAccess{}, err
		}
		i.logger.Warn("live link failed, trying replay",
			zap.Error(err), zap.String("ticket_id", ticket.ID.String()))
		liveErr = err
	}

	if !ticket.CanAccessReplay || i.replay == nil {
		if liveErr != nil {
			return models.StreamingAccess{}, liveErr
		}
		return models.StreamingAccess{}, apperr.AccessDenied("no stream available for ticket")
	}
	url, expiresAt, err := i.replay.ReplayURL(ctx, ticket)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Network("resolve replay url", err)
		}
		return models.StreamingAccess{}, err
	}
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultReplayTTL)
	}
	return i.commit(ticket, models.StreamingAccess{
		ExpiresAt:   expiresAt,
		Permissions: models.Permissions{CanWatch: true, CanChat: true, CanReplay: true},
		URLs:        map[string]string{"auto": url},
		Source:      models.AccessSourceReplay,
	}, now)
}

// commit clamps access to the ticket and records it as the active capability.
func (i *Issuer) commit(ticket models.Ticket, access models.StreamingAccess, now time.Time) (models.StreamingAccess, error) {
	access = clamp(ticket, access)
	if access.Expired(now) {
		return models.StreamingAccess{}, apperr.AccessDenied("capability expired on issue")
	}
	if access.ID == uuid.Nil {
		access.ID = uuid.New()
	}

	i.mu.Lock()
	i.active[holder{ticket.ID, ticket.OwnerID}] = access
	i.mu.Unlock()

	i.logger.Debug("capability issued",
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("source", string(access.Source)),
		zap.Time("expires_at", access.ExpiresAt))
	return access, nil
}

func clamp(ticket models.Ticket, access models.StreamingAccess) models.StreamingAccess {
	access.TicketID = ticket.ID
	access.EventID = ticket.EventID
	access.ViewerID = ticket.OwnerID
	if access.ExpiresAt.IsZero() || access.ExpiresAt.After(ticket.ValidUntil) {
		access.ExpiresAt = ticket.ValidUntil
	}
	p := access.Permissions
	p.CanReplay = p.CanReplay && ticket.CanAccessReplay
	if access.Source == models.AccessSourceReplay {
		p.CanWatch = p.CanWatch && ticket.CanAccessReplay
	} else {
		p.CanWatch = p.CanWatch && ticket.CanAccessLive
	}
	access.Permissions = p
	return access
}

// Active returns the current, unexpired capability for (ticket, viewer).
func (i *Issuer) Active(ticketID, viewerID uuid.UUID) (models.StreamingAccess, bool) {
	i.mu.Lock()
	access, ok := i.active[holder{ticketID, viewerID}]
	i.mu.Unlock()
	if !ok || access.Expired(i.now()) {
		return models.StreamingAccess{}, false
	}
	return access, true
}

// IsActive reports whether access is still the current capability for its holder.
func (i *Issuer) IsActive(access models.StreamingAccess) bool {
	cur, ok := i.Active(access.TicketID, access.ViewerID)
	return ok && cur.ID == access.ID
}

// Forget drops the active capability for (ticket, viewer).
func (i *Issuer) Forget(ticketID, viewerID uuid.UUID) {
	i.mu.Lock()
	delete(i.active, holder{ticketID, viewerID})
	i.mu.Unlock()
}
