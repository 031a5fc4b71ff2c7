// Package reminder books event-start reminders and keeps the bookkeeping needed to cancel them.
// Delivery is delegated to a Notifier.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/models"
)

// DefaultLead is how long before the start a reminder fires.
const DefaultLead = 15 * time.Minute

// Notifier delivers booked reminders at their fire time.
type Notifier interface {
	Book(ctx context.Context, job models.ReminderJob) error
	Unbook(ctx context.Context, id uuid.UUID) error
}

type Scheduler struct {
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[uuid.UUID]models.ReminderJob
}

func NewScheduler(notifier Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
		jobs:     make(map[uuid.UUID]models.ReminderJob),
	}
}

// Schedule books a reminder at startsAt-lead. lead <= 0 uses DefaultLead. When the fire time
// has already passed the returned job is a valid handle with Booked=false and nothing is booked.
func (s *Scheduler) Schedule(ctx context.Context, eventID uuid.UUID, title string, startsAt time.Time, lead time.Duration) (models.ReminderJob, error) {
	if lead <= 0 {
		lead = DefaultLead
	}
	job := models.ReminderJob{
		ID:       uuid.New(),
		EventID:  eventID,
		Title:    title,
		StartsAt: startsAt,
		FireAt:   startsAt.Add(-lead),
		Lead:     lead,
	}
	if !job.FireAt.After(s.now()) {
		s.logger.Debug("reminder fire time passed, not booking",
			zap.String("event_id", eventID.String()), zap.Time("fire_at", job.FireAt))
		return job, nil
	}

	if err := s.notifier.Book(ctx, job); err != nil {
		return models.ReminderJob{}, fmt.Errorf("book reminder: %w", err)
	}
	job.Booked = true

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("reminder booked",
		zap.String("reminder_id", job.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.Time("fire_at", job.FireAt))
	return job, nil
}

// Cancel withdraws a reminder. Unknown, fired and already cancelled ids are not errors.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if job.FireAt.After(s.now()) {
		if err := s.notifier.Unbook(ctx, id); err != nil {
			return fmt.Errorf("cancel reminder: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}

// Pending lists booked reminders that have not fired yet, soonest first.
func (s *Scheduler) Pending() []models.ReminderJob {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReminderJob, 0, len(s.jobs))
	for id, job := range s.jobs {
		if !job.FireAt.After(now) {
			delete(s.jobs, id)
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}
