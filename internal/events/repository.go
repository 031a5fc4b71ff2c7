package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/livecore/internal/models"
)

var ErrNotFound = errors.New("event not found")

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, title, description, starts_at, ends_at, is_live, current_viewers, max_viewers,
	pricing, capacity, replay_url, replay_s3_key, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.IsLive, &e.CurrentViewers, &e.MaxViewers,
		&e.Pricing, &e.Capacity, &e.ReplayURL, &e.ReplayS3Key, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, starts_at, ends_at, pricing, capacity, replay_url, replay_s3_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Title, e.Description, e.StartsAt, e.EndsAt, e.Pricing, e.Capacity, e.ReplayURL, e.ReplayS3Key).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// List returns events ordered by start time, soonest first.
func (r *Repository) List(ctx context.Context) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// SetLive flips the live flag. Ending a broadcast stamps ends_at if unset.
func (r *Repository) SetLive(ctx context.Context, id uuid.UUID, live bool) error {
	const q = `UPDATE events SET is_live = $2,
		ends_at = CASE WHEN $2 THEN ends_at ELSE COALESCE(ends_at, NOW()) END,
		updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, live)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateViewers records the current audience size and raises the peak.
func (r *Repository) UpdateViewers(ctx context.Context, id uuid.UUID, current int) error {
	const q = `UPDATE events SET current_viewers = $2, max_viewers = GREATEST(max_viewers, $2) WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, current)
	return err
}

// SetReplay records where an ended event's replay lives.
func (r *Repository) SetReplay(ctx context.Context, id uuid.UUID, url, s3Key string) error {
	const q = `UPDATE events SET replay_url = $2, replay_s3_key = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, url, s3Key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
