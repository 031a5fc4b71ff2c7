package sessionlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/livecore/internal/models"
)

// Repository handles user_session_logs. One row per ticket accumulates watch time.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordAccess adds seconds to the ticket's watch total and returns the new total.
// The first report for a ticket opens its row.
func (r *Repository) RecordAccess(ctx context.Context, eventID, ticketID, userID uuid.UUID, seconds int64) (int64, error) {
	const q = `INSERT INTO user_session_logs (event_id, ticket_id, user_id, watch_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticket_id) DO UPDATE
		SET watch_seconds = user_session_logs.watch_seconds + EXCLUDED.watch_seconds, last_seen_at = NOW(), left_at = NULL
		RETURNING watch_seconds`
	var total int64
	err := r.pool.QueryRow(ctx, q, eventID, ticketID, userID, seconds).Scan(&total)
	return total, err
}

// MarkLeft stamps left_at on a ticket's row.
func (r *Repository) MarkLeft(ctx context.Context, ticketID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE user_session_logs SET left_at = NOW() WHERE ticket_id = $1 AND left_at IS NULL`, ticketID)
	return err
}

// WatchTimeAggregates holds sum of watch_seconds and distinct viewer count for an event.
type WatchTimeAggregates struct {
	TotalWatchSeconds int64 `json:"total_watch_seconds"`
	DistinctViewers   int   `json:"distinct_viewers"`
}

// Aggregates returns total watch time and distinct viewer count for an event.
func (r *Repository) Aggregates(ctx context.Context, eventID uuid.UUID) (WatchTimeAggregates, error) {
	const q = `SELECT COALESCE(SUM(watch_seconds), 0), COUNT(DISTINCT user_id) FROM user_session_logs WHERE event_id = $1`
	var agg WatchTimeAggregates
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&agg.TotalWatchSeconds, &agg.DistinctViewers)
	return agg, err
}

// ListByEvent returns the attendee ledger for an event, most recently seen first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.UserSessionLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_id, ticket_id, user_id, joined_at, last_seen_at, watch_seconds, created_at, left_at
		 FROM user_session_logs WHERE event_id = $1 ORDER BY last_seen_at DESC`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.UserSessionLog{}
	for rows.Next() {
		var row models.UserSessionLog
		if err := rows.Scan(&row.ID, &row.EventID, &row.TicketID, &row.UserID, &row.JoinedAt, &row.LastSeenAt,
			&row.WatchSeconds, &row.CreatedAt, &row.LeftAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
