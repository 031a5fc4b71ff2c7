// Package chatsync keeps one event's chat feed in sync with the backend by polling.
//
// An Engine is owned by its caller: one engine per (event, viewer). Join starts a single poll
// loop, Leave stops it synchronously, and after Leave the engine issues no further requests.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultHistoryLimit = 50
	subscriberBuffer    = 16
)

var (
	ErrAlreadyJoined = errors.New("chat already joined")
	ErrNotConnected  = errors.New("chat not connected")
	ErrClosed        = errors.New("chat engine closed")
)

// State is the engine's connection state.
type State int

const (
	StateDisconnected State = iota
	StateJoining
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// API is the chat REST surface the engine consumes.
type API interface {
	JoinChat(ctx context.Context, eventID uuid.UUID) (int, error)
	LeaveChat(ctx context.Context, eventID uuid.UUID) (int, error)
	SendMessage(ctx context.Context, eventID uuid.UUID, req models.SendMessageRequest) (models.ChatMessage, error)
	RecentMessages(ctx context.Context, eventID uuid.UUID, limit int) (models.ChatPage, error)
	PinnedMessages(ctx context.Context, eventID uuid.UUID) ([]models.ChatMessage, error)
	ChatStats(ctx context.Context, eventID uuid.UUID) (models.ChatStats, error)
	AddReaction(ctx context.Context, messageID int64, emoji string) (models.ChatMessage, error)
	RemoveReaction(ctx context.Context, messageID int64, emoji string) (models.ChatMessage, error)
}

// Config tunes an engine. Zero values take the defaults.
type Config struct {
	PollInterval   time.Duration
	HistoryLimit   int
	MaxLength      int
	ForbiddenWords []string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxMessageLength
	}
	return c
}

// Engine synchronizes one event's chat.
//
// The last-seen marker is written once by Join, under mu, before the poll loop goroutine is
// started; from then on only the poll loop writes it. Leave waits for an in-flight Join as well
// as for the loop, so no call leaves the engine after Leave returns.
type Engine struct {
	eventID uuid.UUID
	api     API
	cfg     Config
	logger  *zap.Logger

	mu          sync.Mutex
	state       State
	closed      bool
	feed        *Feed
	marker      int64
	pinned      []models.ChatMessage
	stats       models.ChatStats
	activeUsers int
	cancel      context.CancelFunc
	done        chan struct{} // closed when the running bootstrap or poll loop exits
	subs        []chan []models.ChatMessage
}

// NewEngine creates a disconnected engine for eventID.
func NewEngine(eventID uuid.UUID, api API, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		eventID: eventID,
		api:     api,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(zap.String("event_id", eventID.String())),
		feed:    NewFeed(),
	}
}

// Join registers with the chat, loads the initial window, pinned messages and stats
// concurrently, then starts polling. On failure the engine returns to Disconnected.
func (e *Engine) Join(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return ErrAlreadyJoined
	}
	jctx, cancel := context.WithCancel(ctx)
	boot := make(chan struct{})
	e.state = StateJoining
	e.cancel = cancel
	e.done = boot
	e.mu.Unlock()

	page, pinned, stats, err := e.bootstrap(jctx)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	defer close(boot)
	if e.closed {
		return ErrClosed
	}
	e.cancel, e.done = nil, nil
	if err != nil {
		e.state = StateDisconnected
		e.logger.Warn("chat join failed", zap.Error(err))
		return err
	}

	marker, inserted := e.feed.Merge(e.marker, page.Messages)
	e.marker = marker
	e.pinned = pinned
	e.stats = stats
	e.activeUsers = page.ActiveUsers

	loopCtx, loopCancel := context.WithCancel(context.Background())
	e.cancel = loopCancel
	e.done = make(chan struct{})
	e.state = StateConnected
	go e.pollLoop(loopCtx, e.done)

	e.publish(inserted)
	e.logger.Info("chat joined", zap.Int("messages", len(inserted)), zap.Int64("last_seen_id", marker))
	return nil
}

func (e *Engine) bootstrap(ctx context.Context) (models.ChatPage, []models.ChatMessage, models.ChatStats, error) {
	var (
		page   models.ChatPage
		pinned []models.ChatMessage
		stats  models.ChatStats
	)
	active, err := e.api.JoinChat(ctx, e.eventID)
	if err != nil {
		return page, nil, stats, fmt.Errorf("join chat: %w", err)
	}
	if e.isClosed() {
		return page, nil, stats, ErrClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = e.api.RecentMessages(gctx, e.eventID, e.cfg.HistoryLimit)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		pinned, err = e.api.PinnedMessages(gctx, e.eventID)
		if err != nil {
			return fmt.Errorf("load pinned: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = e.api.ChatStats(gctx, e.eventID)
		if err != nil {
			return fmt.Errorf("load stats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return page, nil, stats, err
	}
	if page.ActiveUsers == 0 {
		page.ActiveUsers = active
	}
	return page, pinned, stats, nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// pollLoop fetches one window per interval. The timer is re-armed only after a fetch
// completes, so ticks never overlap.
func (e *Engine) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		e.tick(ctx)
		timer.Reset(e.cfg.PollInterval)
	}
}

func (e *Engine) tick(ctx context.Context) {
	page, err := e.api.RecentMessages(ctx, e.eventID, e.cfg.HistoryLimit)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.logger.Warn("chat poll failed", zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return
	}
	marker, inserted := e.feed.Merge(e.marker, page.Messages)
	e.marker = marker
	e.activeUsers = page.ActiveUsers
	e.publish(inserted)
}

// Leave stops polling, waits for the loop or an in-flight Join to exit, then tells the
// backend. The engine is unusable afterwards.
func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	wasJoined := e.state != StateDisconnected
	e.closed = true
	e.state = StateDisconnected
	cancel, done, subs := e.cancel, e.done, e.subs
	e.cancel, e.done, e.subs = nil, nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	for _, ch := range subs {
		close(ch)
	}
	if !wasJoined {
		return nil
	}
	if _, err := e.api.LeaveChat(ctx, e.eventID); err != nil {
		e.logger.Warn("chat leave failed", zap.Error(err))
		return fmt.Errorf("leave chat: %w", err)
	}
	e.logger.Info("chat left")
	return nil
}

// SendMessage validates text locally, sends it, and inserts the server's message.
func (e *Engine) SendMessage(ctx context.Context, text string, typ models.MessageType, replyTo *int64) (models.ChatMessage, error) {
	if err := ValidateMessage(text, e.cfg.MaxLength, e.cfg.ForbiddenWords); err != nil {
		return models.ChatMessage{}, err
	}
	if typ == "" {
		typ = models.MessageTypeText
	}
	if !typ.Valid() {
		return models.ChatMessage{}, apperr.Validation("unknown message type " + string(typ))
	}
	if err := e.requireConnected(); err != nil {
		return models.ChatMessage{}, err
	}

	msg, err := e.api.SendMessage(ctx, e.eventID, models.SendMessageRequest{
		Message: strings.TrimSpace(text),
		Type:    typ,
		ReplyTo: replyTo,
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("send message: %w", err)
	}

	e.mu.Lock()
	if e.state == StateConnected && e.feed.Insert(msg) {
		e.publish([]models.ChatMessage{msg})
	}
	e.mu.Unlock()
	return msg, nil
}

// AddReaction reacts to a message and adopts the server's copy of it.
func (e *Engine) AddReaction(ctx context.Context, messageID int64, emoji string) (models.ChatMessage, error) {
	return e.react(ctx, messageID, emoji, e.api.AddReaction)
}

// RemoveReaction withdraws a reaction and adopts the server's copy of the message.
func (e *Engine) RemoveReaction(ctx context.Context, messageID int64, emoji string) (models.ChatMessage, error) {
	return e.react(ctx, messageID, emoji, e.api.RemoveReaction)
}

func (e *Engine) react(ctx context.Context, messageID int64, emoji string,
	call func(context.Context, int64, string) (models.ChatMessage, error)) (models.ChatMessage, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.ChatMessage{}, apperr.Validation("emoji is required")
	}
	if err := e.requireConnected(); err != nil {
		return models.ChatMessage{}, err
	}
	msg, err := call(ctx, messageID, emoji)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("update reaction: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return msg, nil
	}
	e.feed.Replace(msg)
	for i := range e.pinned {
		if e.pinned[i].ID == msg.ID {
			e.pinned[i] = msg
		}
	}
	return msg, nil
}

// RefreshPinned reloads the pinned list.
func (e *Engine) RefreshPinned(ctx context.Context) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	pinned, err := e.api.PinnedMessages(ctx, e.eventID)
	if err != nil {
		return fmt.Errorf("load pinned: %w", err)
	}
	e.mu.Lock()
	if e.state == StateConnected {
		e.pinned = pinned
	}
	e.mu.Unlock()
	return nil
}

// RefreshStats reloads chat statistics.
func (e *Engine) RefreshStats(ctx context.Context) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	stats, err := e.api.ChatStats(ctx, e.eventID)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	e.mu.Lock()
	if e.state == StateConnected {
		e.stats = stats
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) requireConnected() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.state != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// Subscribe returns a channel receiving each batch of newly merged messages. Slow receivers
// miss batches rather than stall the poll loop. The channel is closed on Leave.
func (e *Engine) Subscribe() <-chan []models.ChatMessage {
	ch := make(chan []models.ChatMessage, subscriberBuffer)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

// publish must be called with e.mu held.
func (e *Engine) publish(batch []models.ChatMessage) {
	if len(batch) == 0 {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- batch:
		default:
			e.logger.Debug("chat subscriber lagging, batch dropped")
		}
	}
}

// Messages returns the feed in id order.
func (e *Engine) Messages() []models.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feed.Snapshot()
}

// Pinned returns the pinned messages as last loaded.
func (e *Engine) Pinned() []models.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ChatMessage, len(e.pinned))
	copy(out, e.pinned)
	return out
}

func (e *Engine) Stats() models.ChatStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) ActiveUsers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeUsers
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastSeenID returns the de-duplication marker.
func (e *Engine) LastSeenID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marker
}
