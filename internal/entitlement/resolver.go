// Package entitlement decides whether an identity may join an event and holds the snapshots
// that decision is made from.
package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

// Kind is the access variant of an event. Every event maps to exactly one Kind.
type Kind int

const (
	KindFree Kind = iota
	KindFeatured
	KindLive
	KindPaid
)

// AccessType is the wire name of a Kind.
type AccessType string

const (
	AccessFree     AccessType = "free"
	AccessFeatured AccessType = "featured"
	AccessLive     AccessType = "live"
	AccessPaid     AccessType = "paid"
)

func (k Kind) AccessType() AccessType {
	switch k {
	case KindFree:
		return AccessFree
	case KindFeatured:
		return AccessFeatured
	case KindLive:
		return AccessLive
	default:
		return AccessPaid
	}
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonAuthRequired Reason = "auth_required"
	ReasonNoTicket     Reason = "no_ticket"
	ReasonLookupFailed Reason = "lookup_failed"
)

// Remedy is what the caller should prompt for after a denial.
type Remedy string

const (
	RemedyNone     Remedy = ""
	RemedyLogin    Remedy = "login"
	RemedyPurchase Remedy = "purchase_ticket"
	RemedyRetry    Remedy = "retry"
)

// Identity is the authenticated viewer. A nil *Identity means anonymous.
type Identity struct {
	UserID uuid.UUID
}

// Decision is the outcome of one CheckAccess call.
type Decision struct {
	Granted      bool
	AccessType   AccessType
	RequiresAuth bool
	Reason       Reason
	Remedy       Remedy
	// Ticket is the matched ticket for granted paid access.
	Ticket *models.Ticket
	// Err is the lookup failure behind ReasonLookupFailed.
	Err error
}

// Error maps a denial onto the error taxonomy; nil when granted.
func (d Decision) Error() error {
	switch {
	case d.Granted:
		return nil
	case d.Reason == ReasonLookupFailed:
		return apperr.Network("ticket lookup failed", d.Err)
	case d.RequiresAuth:
		return apperr.AuthRequired("login required for " + string(d.AccessType) + " event")
	default:
		return apperr.AccessDenied("no valid ticket for event")
	}
}

// TicketSource lists an owner's tickets for an event.
type TicketSource interface {
	TicketsFor(ctx context.Context, eventID, ownerID uuid.UUID) ([]models.Ticket, error)
}

// Classify maps an event onto its access variant. Order matters: free, featured, live, paid.
func Classify(e *models.Event) Kind {
	switch {
	case e.Pricing == models.PricingFree:
		return KindFree
	case e.Pricing == models.PricingFeatured:
		return KindFeatured
	case e.IsLive:
		return KindLive
	default:
		return KindPaid
	}
}

// Resolver answers access checks. It keeps no mutable state of its own.
type Resolver struct {
	tickets TicketSource
	now     func() time.Time
	logger  *zap.Logger
}

// NewResolver creates a resolver reading tickets from src.
func NewResolver(src TicketSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tickets: src, now: time.Now, logger: logger}
}

// CheckAccess decides whether identity may join event.
func (r *Resolver) CheckAccess(ctx context.Context, event *models.Event, identity *Identity) Decision {
	kind := Classify(event)
	switch kind {
	case KindFree, KindFeatured, KindLive:
		return resolveOpen(kind, identity)
	default:
		return r.resolvePaid(ctx, event, identity)
	}
}

// resolveOpen handles the variants that only need an identity.
func resolveOpen(kind Kind, identity *Identity) Decision {
	if identity == nil {
		return Decision{
			AccessType:   kind.AccessType(),
			RequiresAuth: true,
			Reason:       ReasonAuthRequired,
			Remedy:       RemedyLogin,
		}
	}
	return Decision{Granted: true, AccessType: kind.AccessType()}
}

func (r *Resolver) resolvePaid(ctx context.Context, event *models.Event, identity *Identity) Decision {
	if identity == nil {
		return Decision{
			AccessType:   AccessPaid,
			RequiresAuth: true,
			Reason:       ReasonAuthRequired,
			Remedy:       RemedyLogin,
		}
	}
	if r.tickets == nil {
		return Decision{AccessType: AccessPaid, Reason: ReasonNoTicket, Remedy: RemedyPurchase}
	}
	list, err := r.tickets.TicketsFor(ctx, event.ID, identity.UserID)
	if err != nil {
		r.logger.Warn("ticket lookup failed", zap.Error(err), zap.String("event_id", event.ID.String()))
		return Decision{AccessType: AccessPaid, Reason: ReasonLookupFailed, Remedy: RemedyRetry, Err: err}
	}
	t := MatchTicket(list, event, identity.UserID, r.now())
	if t == nil {
		return Decision{AccessType: AccessPaid, Reason: ReasonNoTicket, Remedy: RemedyPurchase}
	}
	return Decision{Granted: true, AccessType: AccessPaid, Ticket: t}
}

// MatchTicket returns the first confirmed, unexpired ticket for (event, owner) that carries the
// entitlement the event needs now: live access before the end, replay access after it.
func MatchTicket(tickets []models.Ticket, event *models.Event, ownerID uuid.UUID, now time.Time) *models.Ticket {
	ended := event.HasEnded(now)
	for i := range tickets {
		t := tickets[i]
		if t.EventID != event.ID || t.OwnerID != ownerID {
			continue
		}
		if t.Status != models.TicketStatusConfirmed || t.Expired(now) {
			continue
		}
		if ended && !t.CanAccessReplay {
			continue
		}
		if !ended && !t.CanAccessLive {
			continue
		}
		return &t
	}
	return nil
}
