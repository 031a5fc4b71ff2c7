package streamaccess

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/entitlement"
	"github.com/aura-webinar/livecore/internal/events"
	"github.com/aura-webinar/livecore/internal/middleware"
	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/internal/tickets"
)

var now = time.Now().UTC().Truncate(time.Second)

type memEvents map[uuid.UUID]*models.Event

func (m memEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, events.ErrNotFound
}

type memTickets map[uuid.UUID]*models.Ticket

func (m memTickets) GetByID(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	if t, ok := m[id]; ok {
		return t, nil
	}
	return nil, tickets.ErrNotFound
}

func (m memTickets) TicketsFor(_ context.Context, eventID, ownerID uuid.UUID) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range m {
		if t.EventID == eventID && t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeTokens struct {
	enabled bool
	lastTTL time.Duration
}

func (f *fakeTokens) Enabled() bool      { return f.enabled }
func (f *fakeTokens) AppID() uint32      { return 42 }
func (f *fakeTokens) TTL() time.Duration { return time.Hour }
func (f *fakeTokens) AudienceToken(roomID, userID string, ttl time.Duration) (string, error) {
	f.lastTTL = ttl
	return "04token-" + roomID, nil
}

type fakePresigner struct{ err error }

func (f fakePresigner) PresignReplay(_ context.Context, key string, _ time.Duration) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return "https://s3.example/" + key + "?sig=1", now.Add(6 * time.Hour), nil
}

type memLedger struct{ totals map[uuid.UUID]int64 }

func (m *memLedger) RecordAccess(_ context.Context, _, ticketID, _ uuid.UUID, seconds int64) (int64, error) {
	m.totals[ticketID] += seconds
	return m.totals[ticketID], nil
}

type fixture struct {
	svc     *Service
	events  memEvents
	tickets memTickets
	tokens  *fakeTokens
	ledger  *memLedger
	owner   uuid.UUID
}

func newFixture(replays ReplayPresigner) *fixture {
	f := &fixture{
		events:  memEvents{},
		tickets: memTickets{},
		tokens:  &fakeTokens{enabled: true},
		ledger:  &memLedger{totals: map[uuid.UUID]int64{}},
		owner:   uuid.New(),
	}
	f.svc = NewService(Deps{
		Events:   f.events,
		Tickets:  f.tickets,
		Checker:  entitlement.NewResolver(f.tickets, nil),
		Tokens:   f.tokens,
		Replays:  replays,
		Sessions: f.ledger,
	}, nil)
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *fixture) addEvent(e models.Event) *models.Event {
	e.ID = uuid.New()
	f.events[e.ID] = &e
	return &e
}

func (f *fixture) addTicket(eventID uuid.UUID, validUntil time.Time, live, replay bool) *models.Ticket {
	t := &models.Ticket{
		ID:              uuid.New(),
		EventID:         eventID,
		OwnerID:         f.owner,
		Status:          models.TicketStatusConfirmed,
		ValidFrom:       now.Add(-time.Hour),
		ValidUntil:      validUntil,
		CanAccessLive:   live,
		CanAccessReplay: replay,
	}
	f.tickets[t.ID] = t
	return t
}

func TestIssueLiveClampsToTicket(t *testing.T) {
	f := newFixture(nil)
	e := f.addEvent(models.Event{Pricing: models.PricingPaid, IsLive: true})
	tk := f.addTicket(e.ID, now.Add(20*time.Minute), true, false)

	a, err := f.svc.Issue(context.Background(), tk.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.AccessSourceLive, a.Source)
	assert.Equal(t, tk.ValidUntil, a.ExpiresAt)
	assert.Equal(t, 20*time.Minute, f.tokens.lastTTL)
	assert.Equal(t, e.ID.String(), a.RoomID)
	assert.Equal(t, uint32(42), a.AppID)
	assert.True(t, a.Permissions.CanWatch)
	assert.False(t, a.Permissions.CanReplay)
}

func TestIssueRefusals(t *testing.T) {
	f := newFixture(nil)
	e := f.addEvent(models.Event{Pricing: models.PricingPaid})
	tk := f.addTicket(e.ID, now.Add(time.Hour), true, false)

	_, err := f.svc.Issue(context.Background(), tk.ID, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	_, err = f.svc.Issue(context.Background(), uuid.New(), f.owner)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	expired := f.addTicket(e.ID, now, true, false)
	_, err = f.svc.Issue(context.Background(), expired.ID, f.owner)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	cancelled := f.addTicket(e.ID, now.Add(time.Hour), true, false)
	cancelled.Status = models.TicketStatusCancelled
	_, err = f.svc.Issue(context.Background(), cancelled.ID, f.owner)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	f.tokens.enabled = false
	_, err = f.svc.Issue(context.Background(), tk.ID, f.owner)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestIssueReplayAfterEnd(t *testing.T) {
	ended := now.Add(-time.Hour)

	f := newFixture(fakePresigner{})
	e := f.addEvent(models.Event{Pricing: models.PricingPaid, EndsAt: &ended, ReplayS3Key: "replays/x/index.m3u8"})
	tk := f.addTicket(e.ID, now.Add(2*time.Hour), true, true)

	a, err := f.svc.Issue(context.Background(), tk.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.AccessSourceReplay, a.Source)
	assert.Contains(t, a.URLs["auto"], "replays/x/index.m3u8")
	assert.Equal(t, tk.ValidUntil, a.ExpiresAt)

	liveOnly := f.addTicket(e.ID, now.Add(2*time.Hour), true, false)
	_, err = f.svc.Issue(context.Background(), liveOnly.ID, f.owner)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))

	f = newFixture(fakePresigner{err: errors.New("throttled")})
	e = f.addEvent(models.Event{Pricing: models.PricingPaid, EndsAt: &ended, ReplayS3Key: "k"})
	tk = f.addTicket(e.ID, now.Add(2*time.Hour), false, true)
	_, err = f.svc.Issue(context.Background(), tk.ID, f.owner)
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))

	f = newFixture(nil)
	e = f.addEvent(models.Event{Pricing: models.PricingPaid, EndsAt: &ended, ReplayURL: "https://cdn/r.m3u8"})
	tk = f.addTicket(e.ID, now.Add(2*time.Hour), false, true)
	a, err = f.svc.Issue(context.Background(), tk.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/r.m3u8", a.URLs["auto"])
}

func TestCheckVariants(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	free := f.addEvent(models.Event{Pricing: models.PricingFree})
	paid := f.addEvent(models.Event{Pricing: models.PricingPaid})

	got, err := f.svc.Check(ctx, free.ID, nil)
	require.NoError(t, err)
	assert.False(t, got.HasAccess)
	assert.True(t, got.RequiresAuth)

	got, err = f.svc.Check(ctx, paid.ID, &f.owner)
	require.NoError(t, err)
	assert.False(t, got.HasAccess)
	assert.Equal(t, "no_ticket", got.Reason)

	tk := f.addTicket(paid.ID, now.Add(time.Hour), true, false)
	got, err = f.svc.Check(ctx, paid.ID, &f.owner)
	require.NoError(t, err)
	assert.True(t, got.HasAccess)
	require.NotNil(t, got.TicketID)
	assert.Equal(t, tk.ID, *got.TicketID)

	_, err = f.svc.Check(ctx, uuid.New(), nil)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))
}

func TestAllowChat(t *testing.T) {
	f := newFixture(nil)
	paid := f.addEvent(models.Event{Pricing: models.PricingPaid})

	assert.True(t, errors.Is(f.svc.AllowChat(context.Background(), paid.ID, f.owner), apperr.ErrAccessDenied))
	f.addTicket(paid.ID, now.Add(time.Hour), true, false)
	assert.NoError(t, f.svc.AllowChat(context.Background(), paid.ID, f.owner))
}

func TestRecordAccessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(nil)
	e := f.addEvent(models.Event{Pricing: models.PricingPaid})
	tk := f.addTicket(e.ID, now.Add(time.Hour), true, false)

	h := NewHandler(f.svc, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, f.owner) })
	r.POST("/streaming-access/:ticketId/record-access", h.RecordAccess)
	r.GET("/streaming-access/:ticketId", h.Issue)
	r.GET("/streaming-access/check/:eventId", h.Check)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/streaming-access/"+tk.ID.String()+"/record-access", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}
	require.Equal(t, http.StatusOK, post(`{"watchTime":0}`).Code)
	require.Equal(t, http.StatusOK, post(`{"watchTime":10}`).Code)
	w := post(`{"watchTime":10}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			WatchSeconds int64 `json:"watch_seconds"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(20), body.Data.WatchSeconds)

	assert.Equal(t, http.StatusBadRequest, post(`{"watchTime":-5}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)

	f.tokens.enabled = false
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/streaming-access/"+tk.ID.String(), nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/streaming-access/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/streaming-access/check/"+e.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
