package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

type fakeAPI struct {
	mu         sync.Mutex
	window     []models.ChatMessage
	active     int
	pinned     []models.ChatMessage
	nextID     int64
	fetchErr   error
	fetchDelay time.Duration

	calls      atomic.Int64
	fetches    atomic.Int64
	sends      atomic.Int64
	leaves     atomic.Int64
	inFlight   atomic.Int64
	overlapped atomic.Bool
}

func (f *fakeAPI) setWindow(m []models.ChatMessage) {
	f.mu.Lock()
	f.window = m
	f.mu.Unlock()
}

func (f *fakeAPI) JoinChat(context.Context, uuid.UUID) (int, error) {
	f.calls.Add(1)
	return 3, nil
}

func (f *fakeAPI) LeaveChat(context.Context, uuid.UUID) (int, error) {
	f.calls.Add(1)
	f.leaves.Add(1)
	return 2, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, eventID uuid.UUID, req models.SendMessageRequest) (models.ChatMessage, error) {
	f.calls.Add(1)
	f.sends.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return models.ChatMessage{ID: f.nextID, EventID: eventID, Body: req.Message, Type: req.Type}, nil
}

func (f *fakeAPI) RecentMessages(ctx context.Context, _ uuid.UUID, _ int) (models.ChatPage, error) {
	f.calls.Add(1)
	f.fetches.Add(1)
	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	delay, err := f.fetchDelay, f.fetchErr
	page := models.ChatPage{Messages: append([]models.ChatMessage(nil), f.window...), ActiveUsers: f.active}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.ChatPage{}, ctx.Err()
		}
	}
	if err != nil {
		return models.ChatPage{}, err
	}
	return page, nil
}

func (f *fakeAPI) PinnedMessages(context.Context, uuid.UUID) ([]models.ChatMessage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatMessage(nil), f.pinned...), nil
}

func (f *fakeAPI) ChatStats(context.Context, uuid.UUID) (models.ChatStats, error) {
	f.calls.Add(1)
	return models.ChatStats{TotalMessages: 42, ActiveUsers: 3}, nil
}

func (f *fakeAPI) AddReaction(_ context.Context, id int64, emoji string) (models.ChatMessage, error) {
	f.calls.Add(1)
	return models.ChatMessage{ID: id, Body: "m", Reactions: []models.Reaction{{Emoji: emoji, Count: 1}}}, nil
}

func (f *fakeAPI) RemoveReaction(_ context.Context, id int64, _ string) (models.ChatMessage, error) {
	f.calls.Add(1)
	return models.ChatMessage{ID: id, Body: "m"}, nil
}

func newTestEngine(api API, interval time.Duration) *Engine {
	return NewEngine(uuid.New(), api, Config{PollInterval: interval}, nil)
}

func TestJoinLoadsInitialState(t *testing.T) {
	api := &fakeAPI{window: msgs(38, 39, 40, 41, 42), active: 5, pinned: msgs(40)}
	e := newTestEngine(api, time.Hour)
	require.NoError(t, e.Join(context.Background()))
	defer e.Leave(context.Background())

	assert.Equal(t, StateConnected, e.State())
	assert.Equal(t, int64(42), e.LastSeenID())
	assert.Equal(t, 5, e.ActiveUsers())
	assert.Equal(t, 42, e.Stats().TotalMessages)
	assert.Len(t, e.Pinned(), 1)
	assert.Len(t, e.Messages(), 5)

	assert.ErrorIs(t, e.Join(context.Background()), ErrAlreadyJoined)
}

func TestPollMergesNewerMessages(t *testing.T) {
	api := &fakeAPI{window: msgs(38, 39, 40, 41, 42)}
	e := newTestEngine(api, 10*time.Millisecond)
	require.NoError(t, e.Join(context.Background()))
	defer e.Leave(context.Background())

	updates := e.Subscribe()
	api.setWindow(msgs(40, 41, 42, 43, 44))

	require.Eventually(t, func() bool { return e.LastSeenID() == 44 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{38, 39, 40, 41, 42, 43, 44}, ids(e.Messages()))

	select {
	case batch := <-updates:
		assert.Equal(t, []int64{43, 44}, ids(batch))
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestPollFailureKeepsFeed(t *testing.T) {
	api := &fakeAPI{window: msgs(1, 2)}
	e := newTestEngine(api, 5*time.Millisecond)
	require.NoError(t, e.Join(context.Background()))
	defer e.Leave(context.Background())

	api.mu.Lock()
	api.fetchErr = apperr.Network("poll", errors.New("reset"))
	api.mu.Unlock()

	start := api.fetches.Load()
	require.Eventually(t, func() bool { return api.fetches.Load() > start+2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, e.State())
	assert.Equal(t, []int64{1, 2}, ids(e.Messages()))
}

func TestLeaveStopsPollingImmediately(t *testing.T) {
	api := &fakeAPI{window: msgs(1)}
	e := newTestEngine(api, 5*time.Millisecond)
	require.NoError(t, e.Join(context.Background()))
	require.NoError(t, e.Leave(context.Background()))

	after := api.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, api.calls.Load())
	assert.Equal(t, int64(1), api.leaves.Load())
	assert.Equal(t, StateDisconnected, e.State())

	assert.ErrorIs(t, e.Join(context.Background()), ErrClosed)
	_, err := e.SendMessage(context.Background(), "hi", models.MessageTypeText, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, e.Leave(context.Background()))
	assert.Equal(t, int64(1), api.leaves.Load())
}

func TestLeaveDuringSlowPoll(t *testing.T) {
	api := &fakeAPI{window: msgs(1)}
	e := newTestEngine(api, time.Millisecond)
	require.NoError(t, e.Join(context.Background()))

	api.mu.Lock()
	api.fetchDelay = 50 * time.Millisecond
	api.window = msgs(1, 2, 3)
	api.mu.Unlock()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, e.Leave(context.Background()))
	assert.Equal(t, int64(1), e.LastSeenID())
	assert.Equal(t, []int64{1}, ids(e.Messages()))
}

func TestPollTicksNeverOverlap(t *testing.T) {
	api := &fakeAPI{window: msgs(1), fetchDelay: 15 * time.Millisecond}
	e := newTestEngine(api, time.Millisecond)
	require.NoError(t, e.Join(context.Background()))

	require.Eventually(t, func() bool { return api.fetches.Load() > 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Leave(context.Background()))
	assert.False(t, api.overlapped.Load())
}

func TestOverLongMessageRejectedLocally(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(api, time.Hour)
	require.NoError(t, e.Join(context.Background()))
	defer e.Leave(context.Background())

	text := strings.Repeat("x", 600)
	for i := 0; i < 2; i++ {
		_, err := e.SendMessage(context.Background(), text, models.MessageTypeText, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	}
	assert.Zero(t, api.sends.Load())
}

func TestSendInsertsWithoutAdvancingMarker(t *testing.T) {
	api := &fakeAPI{window: msgs(1, 2), nextID: 4}
	e := newTestEngine(api, 5*time.Millisecond)
	require.NoError(t, e.Join(context.Background()))
	defer e.Leave(context.Background())

	sent, err := e.SendMessage(context.Background(), "  hello  ", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sent.ID)
	assert.Equal(t, "hello", sent.Body)
	assert.Equal(t, models.MessageTypeText, sent.Type)

	api.setWindow(msgs(1, 2, 3, 4, 5))
	require.Eventually(t, func() bool { return e.LastSeenID() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(e.Messages()))
}

func TestSendRequiresConnection(t *testing.T) {
	e := newTestEngine(&fakeAPI{}, time.Hour)
	_, err := e.SendMessage(context.Background(), "hi", models.MessageTypeText, nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = e.SendMessage(context.Background(), "hi", models.MessageType("shout"), nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestReactionReplacesMessage(t *testing.T) {
	api := &fakeAPI{window: msgs(7, 8), pinned: msgs(7)}
	e := newTestEngine(api, time.Hour)
	require.NoError(t, e.Join(context.Background()))
	defer e.Leave(context.Background())

	msg, err := e.AddReaction(context.Background(), 7, "🔥")
	require.NoError(t, err)
	require.Len(t, msg.Reactions, 1)

	got := e.Messages()[0]
	assert.Equal(t, "🔥", got.Reactions[0].Emoji)
	assert.Equal(t, 1, e.Pinned()[0].Reactions[0].Count)

	_, err = e.RemoveReaction(context.Background(), 7, "🔥")
	require.NoError(t, err)
	assert.Empty(t, e.Messages()[0].Reactions)
	assert.Empty(t, e.Pinned()[0].Reactions)

	_, err = e.AddReaction(context.Background(), 7, " ")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestSubscribeClosedOnLeave(t *testing.T) {
	e := newTestEngine(&fakeAPI{}, time.Hour)
	require.NoError(t, e.Join(context.Background()))
	ch := e.Subscribe()
	require.NoError(t, e.Leave(context.Background()))

	_, open := <-ch
	assert.False(t, open)

	_, open = <-e.Subscribe()
	assert.False(t, open)
}

// blockingJoinAPI holds JoinChat until release is closed, ignoring cancellation like a slow server.
type blockingJoinAPI struct {
	*fakeAPI
	entered chan struct{}
	release chan struct{}
}

func (b *blockingJoinAPI) JoinChat(ctx context.Context, id uuid.UUID) (int, error) {
	close(b.entered)
	<-b.release
	return b.fakeAPI.JoinChat(ctx, id)
}

func TestLeaveWaitsForInFlightJoin(t *testing.T) {
	api := &blockingJoinAPI{
		fakeAPI: &fakeAPI{window: msgs(1, 2)},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := newTestEngine(api, 10*time.Millisecond)

	joinErr := make(chan error, 1)
	go func() { joinErr <- e.Join(context.Background()) }()
	<-api.entered
	require.Equal(t, StateJoining, e.State())

	left := make(chan error, 1)
	go func() { left <- e.Leave(context.Background()) }()

	select {
	case <-left:
		t.Fatal("Leave returned while join was still in flight")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Zero(t, api.leaves.Load(), "leave must not overtake join")

	close(api.release)
	require.NoError(t, <-left)
	assert.ErrorIs(t, <-joinErr, ErrClosed)

	callsAtLeave := api.calls.Load()
	assert.Equal(t, int64(2), callsAtLeave, "join then leave, no bootstrap fetches")
	assert.Zero(t, api.fetches.Load())
	assert.Equal(t, int64(1), api.leaves.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, callsAtLeave, api.calls.Load())
	assert.Equal(t, StateDisconnected, e.State())
}
