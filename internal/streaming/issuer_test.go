package streaming

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

var now = time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC)

type fakeLive struct {
	access models.StreamingAccess
	err    error
	calls  int
}

func (f *fakeLive) StreamingAccess(_ context.Context, ticketID uuid.UUID) (models.StreamingAccess, error) {
	f.calls++
	if f.err != nil {
		return models.StreamingAccess{}, f.err
	}
	a := f.access
	a.ID = uuid.New()
	return a, nil
}

type fakeReplay struct {
	url   string
	exp   time.Time
	err   error
	calls int
}

func (f *fakeReplay) ReplayURL(context.Context, models.Ticket) (string, time.Time, error) {
	f.calls++
	return f.url, f.exp, f.err
}

func newTestIssuer(live LinkSource, replay ReplaySource) *Issuer {
	i := NewIssuer(live, replay, nil)
	i.now = func() time.Time { return now }
	return i
}

func validTicket() models.Ticket {
	return models.Ticket{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		OwnerID:       uuid.New(),
		Status:        models.TicketStatusConfirmed,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(3 * time.Hour),
		CanAccessLive: true,
	}
}

func liveAccess(exp time.Time) models.StreamingAccess {
	return models.StreamingAccess{
		Token:       "tok",
		ExpiresAt:   exp,
		Permissions: models.Permissions{CanWatch: true, CanChat: true, CanReplay: true},
		URLs:        map[string]string{"720p": "https://cdn/live/720.m3u8"},
	}
}

func TestExpiredTicketAlwaysDenied(t *testing.T) {
	for _, flags := range [][2]bool{{true, true}, {true, false}, {false, true}, {false, false}} {
		tk := validTicket()
		tk.ValidUntil = now.Add(-time.Second)
		tk.CanAccessLive, tk.CanAccessReplay = flags[0], flags[1]

		live := &fakeLive{access: liveAccess(now.Add(time.Hour))}
		replay := &fakeReplay{url: "https://cdn/replay.m3u8"}
		_, err := newTestIssuer(live, replay).RequestLink(context.Background(), tk)

		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrAccessDenied))
		assert.Equal(t, "ticket expired", err.Error())
		assert.Zero(t, live.calls+replay.calls)
	}
}

func TestExpiryClampedToTicket(t *testing.T) {
	tk := validTicket()
	live := &fakeLive{access: liveAccess(now.Add(48 * time.Hour))}

	access, err := newTestIssuer(live, nil).RequestLink(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, tk.ValidUntil, access.ExpiresAt)
	assert.Equal(t, models.AccessSourceLive, access.Source)
	assert.Equal(t, tk.OwnerID, access.ViewerID)
}

func TestPermissionsNeverExceedTicket(t *testing.T) {
	tk := validTicket()
	tk.CanAccessReplay = false
	access, err := newTestIssuer(&fakeLive{access: liveAccess(now.Add(time.Hour))}, nil).RequestLink(context.Background(), tk)
	require.NoError(t, err)

	assert.True(t, access.Permissions.CanWatch)
	assert.True(t, access.Permissions.CanChat)
	assert.False(t, access.Permissions.CanReplay)
}

func TestRevokedChatPassesThrough(t *testing.T) {
	a := liveAccess(now.Add(time.Hour))
	a.Permissions.CanChat = false
	access, err := newTestIssuer(&fakeLive{access: a}, nil).RequestLink(context.Background(), validTicket())
	require.NoError(t, err)
	assert.False(t, access.Permissions.CanChat)
}

func TestFallsBackToReplayOnTransientFailure(t *testing.T) {
	tk := validTicket()
	tk.CanAccessReplay = true
	live := &fakeLive{err: apperr.Network("dial", errors.New("timeout"))}
	replay := &fakeReplay{url: "https://cdn/replay.m3u8"}

	access, err := newTestIssuer(live, replay).RequestLink(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, models.AccessSourceReplay, access.Source)
	assert.Equal(t, "https://cdn/replay.m3u8", access.URLs["auto"])
	assert.True(t, access.Permissions.CanReplay)
	assert.False(t, access.ExpiresAt.After(tk.ValidUntil))
}

func TestNoFallbackWithoutReplayEntitlement(t *testing.T) {
	tk := validTicket()
	live := &fakeLive{err: apperr.Server("upstream", nil)}
	replay := &fakeReplay{url: "https://cdn/replay.m3u8"}

	_, err := newTestIssuer(live, replay).RequestLink(context.Background(), tk)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrServer))
	assert.Zero(t, replay.calls)
}

func TestTerminalErrorsDoNotFallBack(t *testing.T) {
	tk := validTicket()
	tk.CanAccessReplay = true
	live := &fakeLive{err: apperr.AccessDenied("not your ticket")}
	replay := &fakeReplay{url: "https://cdn/replay.m3u8"}

	_, err := newTestIssuer(live, replay).RequestLink(context.Background(), tk)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))
	assert.Zero(t, replay.calls)
}

func TestReissueSupersedesPrevious(t *testing.T) {
	tk := validTicket()
	iss := newTestIssuer(&fakeLive{access: liveAccess(now.Add(time.Hour))}, nil)

	first, err := iss.RequestLink(context.Background(), tk)
	require.NoError(t, err)
	assert.True(t, iss.IsActive(first))

	second, err := iss.RequestLink(context.Background(), tk)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, iss.IsActive(first))
	assert.True(t, iss.IsActive(second))

	cur, ok := iss.Active(tk.ID, tk.OwnerID)
	require.True(t, ok)
	assert.Equal(t, second.ID, cur.ID)

	iss.Forget(tk.ID, tk.OwnerID)
	assert.False(t, iss.IsActive(second))
}

func TestSnapshotReplaySource(t *testing.T) {
	tk := validTicket()
	src := SnapshotReplaySource{Events: eventsMap{tk.EventID: {ID: tk.EventID, ReplayURL: "https://cdn/r.m3u8"}}}

	url, exp, err := src.ReplayURL(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/r.m3u8", url)
	assert.True(t, exp.IsZero())

	tk.EventID = uuid.New()
	_, _, err = src.ReplayURL(context.Background(), tk)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied))
}

type eventsMap map[uuid.UUID]models.Event

func (m eventsMap) Event(id uuid.UUID) (models.Event, bool) {
	e, ok := m[id]
	return e, ok
}
