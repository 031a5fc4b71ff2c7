// Package streamaccess issues playback capabilities on the server side: live room tokens while an
// event runs and pre-signed replay URLs after it ends.
package streamaccess

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/entitlement"
	"github.com/aura-webinar/livecore/internal/events"
	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/internal/tickets"
)

// ErrNotConfigured means no transport can serve the request on this deployment.
var ErrNotConfigured = errors.New("streaming transport not configured")

// EventStore loads events.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// TicketStore loads tickets.
type TicketStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
}

// Checker answers access checks.
type Checker interface {
	CheckAccess(ctx context.Context, event *models.Event, identity *entitlement.Identity) entitlement.Decision
}

// RoomTokens signs live room tokens.
type RoomTokens interface {
	Enabled() bool
	AppID() uint32
	TTL() time.Duration
	AudienceToken(roomID, userID string, ttl time.Duration) (string, error)
}

// ReplayPresigner signs replay object URLs.
type ReplayPresigner interface {
	PresignReplay(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}

// WatchLedger accumulates reported watch time.
type WatchLedger interface {
	RecordAccess(ctx context.Context, eventID, ticketID, userID uuid.UUID, seconds int64) (int64, error)
}

// Service is the server side of streaming access.
type Service struct {
	events   EventStore
	tickets  TicketStore
	checker  Checker
	tokens   RoomTokens
	replays  ReplayPresigner
	sessions WatchLedger
	now      func() time.Time
	logger   *zap.Logger
}

// Deps bundles the Service collaborators. Tokens and Replays may be nil.
type Deps struct {
	Events   EventStore
	Tickets  TicketStore
	Checker  Checker
	Tokens   RoomTokens
	Replays  ReplayPresigner
	Sessions WatchLedger
}

// NewService creates a streaming access service.
func NewService(d Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		events:   d.Events,
		tickets:  d.Tickets,
		checker:  d.Checker,
		tokens:   d.Tokens,
		replays:  d.Replays,
		sessions: d.Sessions,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Service) event(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if errors.Is(err, events.ErrNotFound) {
		return nil, apperr.AccessDenied("event not found")
	}
	if err != nil {
		return nil, apperr.Network("load event", err)
	}
	return e, nil
}

// ownedTicket loads a ticket and checks it belongs to userID.
func (s *Service) ownedTicket(ctx context.Context, ticketID, userID uuid.UUID) (*models.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, tickets.ErrNotFound) {
		return nil, apperr.AccessDenied("ticket not found")
	}
	if err != nil {
		return nil, apperr.Network("load ticket", err)
	}
	if t.OwnerID != userID {
		return nil, apperr.AccessDenied("ticket belongs to another user")
	}
	return t, nil
}

// Check answers GET /streaming-access/check/:eventId. userID is nil for anonymous callers.
func (s *Service) Check(ctx context.Context, eventID uuid.UUID, userID *uuid.UUID) (models.UserAccess, error) {
	e, err := s.event(ctx, eventID)
	if err != nil {
		return models.UserAccess{}, err
	}
	var identity *entitlement.Identity
	if userID != nil {
		identity = &entitlement.Identity{UserID: *userID}
	}
	d := s.checker.CheckAccess(ctx, e, identity)
	if d.Reason == entitlement.ReasonLookupFailed {
		return models.UserAccess{}, d.Error()
	}
	out := models.UserAccess{
		EventID:      eventID,
		HasAccess:    d.Granted,
		AccessType:   string(d.AccessType),
		RequiresAuth: d.RequiresAuth,
		Reason:       string(d.Reason),
	}
	if d.Ticket != nil {
		id := d.Ticket.ID
		out.TicketID = &id
	}
	return out, nil
}

// AllowChat grants chat to anyone the resolver would let join the event.
func (s *Service) AllowChat(ctx context.Context, eventID, userID uuid.UUID) error {
	e, err := s.event(ctx, eventID)
	if err != nil {
		return err
	}
	return s.checker.CheckAccess(ctx, e, &entitlement.Identity{UserID: userID}).Error()
}

// Issue returns a capability for the caller's ticket. Before the event ends it is a live room
// token; afterwards it is a replay URL. Either way it never outlives the ticket.
func (s *Service) Issue(ctx context.Context, ticketID, userID uuid.UUID) (models.StreamingAccess, error) {
	t, err := s.ownedTicket(ctx, ticketID, userID)
	if err != nil {
		return models.StreamingAccess{}, err
	}
	now := s.now()
	if t.Status != models.TicketStatusConfirmed {
		return models.StreamingAccess{}, apperr.AccessDenied("ticket is " + string(t.Status))
	}
	if t.Expired(now) {
		return models.StreamingAccess{}, apperr.AccessDenied("ticket expired")
	}
	e, err := s.event(ctx, t.EventID)
	if err != nil {
		return models.StreamingAccess{}, err
	}
	base := models.StreamingAccess{
		ID:       uuid.New(),
		TicketID: t.ID,
		EventID:  e.ID,
		ViewerID: userID,
	}
	if e.HasEnded(now) {
		if !t.CanAccessReplay {
			return models.StreamingAccess{}, apperr.AccessDenied("ticket does not include replay")
		}
		return s.replay(ctx, base, t, e)
	}
	if !t.CanAccessLive {
		return models.StreamingAccess{}, apperr.AccessDenied("ticket does not include live access")
	}
	return s.live(base, t, e, now)
}

func (s *Service) live(a models.StreamingAccess, t *models.Ticket, e *models.Event, now time.Time) (models.StreamingAccess, error) {
	if s.tokens == nil || !s.tokens.Enabled() {
		return models.StreamingAccess{}, ErrNotConfigured
	}
	exp := now.Add(s.tokens.TTL())
	if t.ValidUntil.Before(exp) {
		exp = t.ValidUntil
	}
	room := e.ID.String()
	token, err := s.tokens.AudienceToken(room, a.ViewerID.String(), exp.Sub(now))
	if err != nil {
		return models.StreamingAccess{}, apperr.Server("sign room token", err)
	}
	a.Token = token
	a.ExpiresAt = exp
	a.Permissions = models.Permissions{CanWatch: true, CanChat: true, CanReplay: t.CanAccessReplay}
	a.URLs = map[string]string{}
	a.Source = models.AccessSourceLive
	a.RoomID = room
	a.AppID = s.tokens.AppID()
	s.logger.Info("live access issued", zap.String("ticket_id", t.ID.String()), zap.Time("expires_at", exp))
	return a, nil
}

func (s *Service) replay(ctx context.Context, a models.StreamingAccess, t *models.Ticket, e *models.Event) (models.StreamingAccess, error) {
	var (
		url string
		exp time.Time
	)
	switch {
	case e.ReplayS3Key != "" && s.replays != nil:
		signed, until, err := s.replays.PresignReplay(ctx, e.ReplayS3Key, 0)
		if err != nil {
			return models.StreamingAccess{}, apperr.Network("presign replay", err)
		}
		url, exp = signed, until
		if exp.After(t.ValidUntil) {
			exp = t.ValidUntil
		}
	case e.ReplayURL != "":
		url, exp = e.ReplayURL, t.ValidUntil
	case e.ReplayS3Key != "":
		return models.StreamingAccess{}, ErrNotConfigured
	default:
		return models.StreamingAccess{}, apperr.AccessDenied("no replay available")
	}
	a.ExpiresAt = exp
	a.Permissions = models.Permissions{CanWatch: true, CanChat: true, CanReplay: true}
	a.URLs = map[string]string{"auto": url}
	a.Source = models.AccessSourceReplay
	s.logger.Info("replay access issued", zap.String("ticket_id", t.ID.String()), zap.Time("expires_at", exp))
	return a, nil
}

// RecordAccess adds a watch-time report to the caller's ticket and returns the running total.
func (s *Service) RecordAccess(ctx context.Context, ticketID, userID uuid.UUID, seconds int64) (int64, error) {
	if seconds < 0 {
		return 0, apperr.Validation("watch time must not be negative")
	}
	t, err := s.ownedTicket(ctx, ticketID, userID)
	if err != nil {
		return 0, err
	}
	total, err := s.sessions.RecordAccess(ctx, t.EventID, t.ID, userID, seconds)
	if err != nil {
		return 0, apperr.Server("record watch time", err)
	}
	return total, nil
}
