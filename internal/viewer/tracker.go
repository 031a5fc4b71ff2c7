// Package viewer tracks one viewer's presence on an event and reports watch time.
package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/apperr"
	"github.com/aura-webinar/livecore/internal/models"
)

const (
	DefaultReportInterval = 10 * time.Second
	flushTimeout          = 5 * time.Second
)

var (
	ErrAlreadyJoined = errors.New("session already joined")
	ErrSessionEnded  = errors.New("session ended")
)

// WatchReporter records watch-time increments for a ticket. A zero increment registers presence.
type WatchReporter interface {
	RecordAccess(ctx context.Context, ticketID uuid.UUID, watchTime time.Duration) error
}

// Tracker owns a single viewer session.
type Tracker struct {
	api      WatchReporter
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	session models.ViewerSession
	mark    time.Time // start of the unreported span
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTracker creates a tracker. interval <= 0 uses DefaultReportInterval.
func NewTracker(api WatchReporter, interval time.Duration, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		api:      api,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		session:  models.ViewerSession{Status: models.SessionNotJoined},
	}
}

// Join registers presence and starts the reporter. The reporter lives until Leave or until ctx
// is cancelled; either way the unreported remainder is flushed once.
func (t *Tracker) Join(ctx context.Context, ticketID, eventID uuid.UUID) error {
	t.mu.Lock()
	switch t.session.Status {
	case models.SessionJoined:
		t.mu.Unlock()
		return ErrAlreadyJoined
	case models.SessionLeft:
		t.mu.Unlock()
		return ErrSessionEnded
	}
	t.mu.Unlock()

	if err := t.api.RecordAccess(ctx, ticketID, 0); err != nil {
		if apperr.KindOf(err).Terminal() {
			return err
		}
		t.logger.Warn("presence registration failed", zap.String("ticket_id", ticketID.String()), zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Status != models.SessionNotJoined {
		return ErrAlreadyJoined
	}
	now := t.now()
	t.session = models.ViewerSession{
		TicketID: ticketID,
		EventID:  eventID,
		Status:   models.SessionJoined,
		JoinedAt: &now,
	}
	t.mark = now

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(loopCtx, t.done)

	t.logger.Info("viewer joined",
		zap.String("ticket_id", ticketID.String()),
		zap.String("event_id", eventID.String()))
	return nil
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.finish()
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				t.finish()
				return
			}
			t.report()
		}
	}
}

// report sends one fixed increment. The increment counts locally even if the call fails.
// The call is bounded by flushTimeout rather than the session context, so a report in flight
// when the session ends is still delivered before the final flush.
func (t *Tracker) report() {
	t.mu.Lock()
	if t.session.Status != models.SessionJoined {
		t.mu.Unlock()
		return
	}
	t.session.WatchTime += t.interval
	t.mark = t.mark.Add(t.interval)
	ticketID := t.session.TicketID
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := t.api.RecordAccess(ctx, ticketID, t.interval); err != nil {
		t.logger.Warn("watch time report failed", zap.String("ticket_id", ticketID.String()), zap.Error(err))
	}
}

// finish moves the session to Left and flushes the unreported span in one attempt.
func (t *Tracker) finish() {
	t.mu.Lock()
	if t.session.Status != models.SessionJoined {
		t.mu.Unlock()
		return
	}
	now := t.now()
	rest := now.Sub(t.mark)
	if rest < 0 {
		rest = 0
	}
	t.session.WatchTime += rest
	t.session.Status = models.SessionLeft
	t.session.LeftAt = &now
	t.mark = now
	ticketID, total := t.session.TicketID, t.session.WatchTime
	t.mu.Unlock()

	t.logger.Info("viewer left", zap.String("ticket_id", ticketID.String()), zap.Duration("watch_time", total))
	if rest == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := t.api.RecordAccess(ctx, ticketID, rest); err != nil {
		t.logger.Warn("watch time flush dropped", zap.String("ticket_id", ticketID.String()), zap.Error(err))
	}
}

// Leave ends the session and waits for the final flush, or for ctx.
func (t *Tracker) Leave(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	if t.session.Status == models.SessionNotJoined {
		t.session.Status = models.SessionLeft
	}
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WatchTime returns the accumulated watch time, including the span not yet reported.
func (t *Tracker) WatchTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Status != models.SessionJoined {
		return t.session.WatchTime
	}
	pending := t.now().Sub(t.mark)
	if pending < 0 {
		pending = 0
	}
	return t.session.WatchTime + pending
}

func (t *Tracker) Status() models.SessionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Status
}

// Session returns a copy of the session record.
func (t *Tracker) Session() models.ViewerSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}
