package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/livecore/internal/models"
)

var ErrNotFound = errors.New("ticket not found")

// Repository handles ticket persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tickets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ticketColumns = `id, event_id, owner_id, status, valid_from, valid_until, can_access_live, can_access_replay, created_at, updated_at`

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.EventID, &t.OwnerID, &t.Status, &t.ValidFrom, &t.ValidUntil,
		&t.CanAccessLive, &t.CanAccessReplay, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collect(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	list := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// Create issues a ticket.
func (r *Repository) Create(ctx context.Context, t *models.Ticket) error {
	const q = `INSERT INTO tickets (event_id, owner_id, status, valid_from, valid_until, can_access_live, can_access_replay)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, t.EventID, t.OwnerID, t.Status, t.ValidFrom, t.ValidUntil, t.CanAccessLive, t.CanAccessReplay).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns a ticket by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

// TicketsFor returns the owner's tickets for an event, newest first.
func (r *Repository) TicketsFor(ctx context.Context, eventID, ownerID uuid.UUID) ([]models.Ticket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1 AND owner_id = $2 ORDER BY created_at DESC`,
		eventID, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListByEvent returns every ticket for an event.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateStatus moves a ticket to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TicketStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
