package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/models"
)

const (
	// KeyScheduled is the sorted set of booked reminder ids scored by fire time (unix ms).
	KeyScheduled = "reminders:scheduled"
	// KeyJobs is the hash of reminder id -> ReminderJob JSON.
	KeyJobs = "reminders:jobs"
	// QueueNotifications is the Redis list key for due reminders awaiting delivery.
	QueueNotifications = "worker:notifications"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const JobTypeReminder JobType = "event_reminder"

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReminderQueue books reminders in Redis and hands due ones to the notification list.
// It satisfies reminder.Notifier.
type ReminderQueue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewReminderQueue creates a Redis-backed reminder queue.
func NewReminderQueue(client *redis.Client, logger *zap.Logger) *ReminderQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderQueue{client: client, logger: logger}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// Book stores the job and schedules it at job.FireAt. Re-booking an id replaces it.
func (q *ReminderQueue) Book(ctx context.Context, job models.ReminderJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}
	id := job.ID.String()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, KeyJobs, id, raw)
	pipe.ZAdd(ctx, KeyScheduled, redis.Z{Score: score(job.FireAt), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("book reminder: %w", err)
	}
	q.logger.Debug("reminder booked", zap.String("reminder_id", id), zap.Time("fire_at", job.FireAt))
	return nil
}

// Unbook removes a booked reminder. Unknown ids are ignored.
func (q *ReminderQueue) Unbook(ctx context.Context, id uuid.UUID) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, KeyScheduled, id.String())
	pipe.HDel(ctx, KeyJobs, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unbook reminder: %w", err)
	}
	return nil
}

// PopDue claims up to limit reminders whose fire time is at or before now. A reminder is claimed
// by whichever caller removes it from the sorted set, so concurrent workers never double-fire.
func (q *ReminderQueue) PopDue(ctx context.Context, now time.Time, limit int64) ([]models.ReminderJob, error) {
	ids, err := q.client.ZRangeByScore(ctx, KeyScheduled, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range due reminders: %w", err)
	}
	var due []models.ReminderJob
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, KeyScheduled, id).Result()
		if err != nil {
			return due, fmt.Errorf("claim reminder: %w", err)
		}
		if removed == 0 {
			continue
		}
		raw, err := q.client.HGet(ctx, KeyJobs, id).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return due, fmt.Errorf("load reminder: %w", err)
		}
		q.client.HDel(ctx, KeyJobs, id)

		var job models.ReminderJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn("invalid reminder payload", zap.String("reminder_id", id), zap.Error(err))
			continue
		}
		due = append(due, job)
	}
	return due, nil
}

// NewReminderJob wraps a due reminder in a job envelope.
func NewReminderJob(r models.ReminderJob) (*Job, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      JobTypeReminder,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// DecodeReminder extracts the reminder from a job envelope.
func DecodeReminder(job *Job) (models.ReminderJob, error) {
	var r models.ReminderJob
	if job.Type != JobTypeReminder {
		return r, fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err := json.Unmarshal(job.Payload, &r); err != nil {
		return r, fmt.Errorf("unmarshal payload: %w", err)
	}
	return r, nil
}

// Enqueue pushes a job onto the notification list.
func (q *ReminderQueue) Enqueue(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueNotifications, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued notification job", zap.String("job_id", job.ID))
	return nil
}

// Dequeue blocks for up to timeout for a notification job. It returns nil, nil on timeout.
func (q *ReminderQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueNotifications).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *ReminderQueue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueNotifications, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
