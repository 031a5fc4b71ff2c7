package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

type fakeTickets struct {
	list  []models.Ticket
	err   error
	calls int
}

func (f *fakeTickets) TicketsFor(_ context.Context, eventID, ownerID uuid.UUID) ([]models.Ticket, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Ticket
	for _, t := range f.list {
		if t.EventID == eventID && t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

var now = time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

func newTestResolver(src TicketSource) *Resolver {
	r := NewResolver(src, nil)
	r.now = func() time.Time { return now }
	return r
}

func paidEvent() *models.Event {
	return &models.Event{ID: uuid.New(), Pricing: models.PricingPaid, StartsAt: now.Add(2 * time.Hour)}
}

func ticketFor(e *models.Event, owner uuid.UUID) models.Ticket {
	return models.Ticket{
		ID:            uuid.New(),
		EventID:       e.ID,
		OwnerID:       owner,
		Status:        models.TicketStatusConfirmed,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		CanAccessLive: true,
	}
}

func TestFreeEventWithoutIdentityRequiresAuth(t *testing.T) {
	r := newTestResolver(nil)
	d := r.CheckAccess(context.Background(), &models.Event{ID: uuid.New(), Pricing: models.PricingFree}, nil)

	assert.False(t, d.Granted)
	assert.True(t, d.RequiresAuth)
	assert.Equal(t, AccessFree, d.AccessType)
	assert.Equal(t, RemedyLogin, d.Remedy)
	assert.True(t, errors.Is(d.Error(), apperr.ErrAuthRequired))
}

func TestOpenVariants(t *testing.T) {
	id := &Identity{UserID: uuid.New()}
	cases := []struct {
		name  string
		event models.Event
		want  AccessType
	}{
		{"free", models.Event{Pricing: models.PricingFree}, AccessFree},
		{"featured", models.Event{Pricing: models.PricingFeatured}, AccessFeatured},
		{"featured wins over live", models.Event{Pricing: models.PricingFeatured, IsLive: true}, AccessFeatured},
		{"live paid", models.Event{Pricing: models.PricingPaid, IsLive: true}, AccessLive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeTickets{}
			r := newTestResolver(src)
			ev := tc.event
			ev.ID = uuid.New()

			anon := r.CheckAccess(context.Background(), &ev, nil)
			assert.False(t, anon.Granted)
			assert.True(t, anon.RequiresAuth)
			assert.Equal(t, tc.want, anon.AccessType)

			authed := r.CheckAccess(context.Background(), &ev, id)
			assert.True(t, authed.Granted)
			assert.Equal(t, tc.want, authed.AccessType)
			assert.NoError(t, authed.Error())
			assert.Zero(t, src.calls, "open variants never look up tickets")
		})
	}
}

func TestPaidEventDecisions(t *testing.T) {
	owner := uuid.New()
	ev := paidEvent()

	t.Run("anonymous", func(t *testing.T) {
		d := newTestResolver(&fakeTickets{}).CheckAccess(context.Background(), ev, nil)
		assert.False(t, d.Granted)
		assert.True(t, d.RequiresAuth)
		assert.Equal(t, AccessPaid, d.AccessType)
	})

	t.Run("no ticket", func(t *testing.T) {
		d := newTestResolver(&fakeTickets{}).CheckAccess(context.Background(), ev, &Identity{UserID: owner})
		assert.False(t, d.Granted)
		assert.False(t, d.RequiresAuth)
		assert.Equal(t, ReasonNoTicket, d.Reason)
		assert.Equal(t, RemedyPurchase, d.Remedy)
		assert.True(t, errors.Is(d.Error(), apperr.ErrAccessDenied))
	})

	t.Run("owned ticket", func(t *testing.T) {
		tk := ticketFor(ev, owner)
		d := newTestResolver(&fakeTickets{list: []models.Ticket{tk}}).CheckAccess(context.Background(), ev, &Identity{UserID: owner})
		require.True(t, d.Granted)
		require.NotNil(t, d.Ticket)
		assert.Equal(t, tk.ID, d.Ticket.ID)
	})

	t.Run("someone else's ticket", func(t *testing.T) {
		tk := ticketFor(ev, uuid.New())
		d := newTestResolver(&fakeTickets{list: []models.Ticket{tk}}).CheckAccess(context.Background(), ev, &Identity{UserID: owner})
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonNoTicket, d.Reason)
	})

	t.Run("lookup failure is not a denial", func(t *testing.T) {
		d := newTestResolver(&fakeTickets{err: errors.New("connection refused")}).CheckAccess(context.Background(), ev, &Identity{UserID: owner})
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonLookupFailed, d.Reason)
		assert.Equal(t, RemedyRetry, d.Remedy)
		assert.True(t, errors.Is(d.Error(), apperr.ErrNetwork))
		assert.False(t, errors.Is(d.Error(), apperr.ErrAccessDenied))
	})
}

func TestMatchTicket(t *testing.T) {
	owner := uuid.New()
	ev := paidEvent()
	ended := paidEvent()
	end := now.Add(-time.Hour)
	ended.EndsAt = &end

	live := ticketFor(ev, owner)
	expired := ticketFor(ev, owner)
	expired.ValidUntil = now.Add(-time.Second)
	cancelled := ticketFor(ev, owner)
	cancelled.Status = models.TicketStatusCancelled
	liveOnlyEnded := ticketFor(ended, owner)
	replayEnded := ticketFor(ended, owner)
	replayEnded.CanAccessLive = false
	replayEnded.CanAccessReplay = true

	assert.Nil(t, MatchTicket([]models.Ticket{expired, cancelled}, ev, owner, now))
	assert.Equal(t, live.ID, MatchTicket([]models.Ticket{expired, live}, ev, owner, now).ID)
	assert.Nil(t, MatchTicket([]models.Ticket{liveOnlyEnded}, ended, owner, now), "ended event needs replay entitlement")
	assert.Equal(t, replayEnded.ID, MatchTicket([]models.Ticket{liveOnlyEnded, replayEnded}, ended, owner, now).ID)
}

func TestClassifyIsExhaustive(t *testing.T) {
	for _, p := range []models.Pricing{models.PricingFree, models.PricingPaid, models.PricingFeatured, ""} {
		for _, live := range []bool{false, true} {
			k := Classify(&models.Event{Pricing: p, IsLive: live})
			assert.Contains(t, []Kind{KindFree, KindFeatured, KindLive, KindPaid}, k)
		}
	}
}
