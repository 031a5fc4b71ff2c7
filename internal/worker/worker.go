package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/pkg/queue"
)

const (
	defaultPollInterval = time.Second
	dueBatch            = 100
	dequeueTimeout      = 5 * time.Second
)

// Queue is the slice of queue.ReminderQueue the dispatcher drives.
type Queue interface {
	PopDue(ctx context.Context, now time.Time, limit int64) ([]models.ReminderJob, error)
	Book(ctx context.Context, job models.ReminderJob) error
	Enqueue(ctx context.Context, job *queue.Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Deliverer hands a due reminder to the notification transport.
type Deliverer interface {
	Deliver(ctx context.Context, r models.ReminderJob) error
}

// LogDeliverer only logs reminders. Used when no push transport is configured.
type LogDeliverer struct {
	Logger *zap.Logger
}

func (d LogDeliverer) Deliver(_ context.Context, r models.ReminderJob) error {
	d.Logger.Info("event reminder due",
		zap.String("reminder_id", r.ID.String()),
		zap.String("event_id", r.EventID.String()),
		zap.String("title", r.Title),
		zap.Time("starts_at", r.StartsAt))
	return nil
}

// ReminderDispatcher moves due reminders onto the notification list and delivers them.
type ReminderDispatcher struct {
	queue        Queue
	deliverer    Deliverer
	pollInterval time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewReminderDispatcher creates a dispatcher. pollInterval <= 0 uses one second.
func NewReminderDispatcher(q Queue, d Deliverer, pollInterval time.Duration, logger *zap.Logger) *ReminderDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &ReminderDispatcher{queue: q, deliverer: d, pollInterval: pollInterval, now: time.Now, logger: logger}
}

// Promote moves every reminder due at now onto the notification list. PopDue has already
// claimed the batch, so when Enqueue fails the unprocessed remainder is booked again.
func (p *ReminderDispatcher) Promote(ctx context.Context) (int, error) {
	due, err := p.queue.PopDue(ctx, p.now(), dueBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, r := range due {
		job, err := queue.NewReminderJob(r)
		if err != nil {
			p.logger.Error("wrap reminder", zap.String("reminder_id", r.ID.String()), zap.Error(err))
			continue
		}
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.rebook(due[i:])
			return n, fmt.Errorf("enqueue reminder %s: %w", r.ID, err)
		}
		n++
	}
	return n, nil
}

func (p *ReminderDispatcher) rebook(rest []models.ReminderJob) {
	ctx, cancel := context.WithTimeout(context.Background(), dequeueTimeout)
	defer cancel()
	for _, r := range rest {
		if err := p.queue.Book(ctx, r); err != nil {
			p.logger.Error("rebook reminder", zap.String("reminder_id", r.ID.String()), zap.Error(err))
		}
	}
}

// Process delivers one notification job.
func (p *ReminderDispatcher) Process(ctx context.Context, job *queue.Job) error {
	r, err := queue.DecodeReminder(job)
	if err != nil {
		return err
	}
	if err := p.deliverer.Deliver(ctx, r); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

// RunScheduler promotes due reminders every poll interval until ctx is done.
func (p *ReminderDispatcher) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reminder scheduler stopping")
			return
		case <-ticker.C:
		}
		n, err := p.Promote(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("promote due reminders", zap.Error(err))
			continue
		}
		if n > 0 {
			p.logger.Debug("reminders promoted", zap.Int("count", n))
		}
	}
}

// Run starts the delivery loop: dequeue, process, retry on error.
func (p *ReminderDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reminder worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, queue.RetryBackoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
