package chat

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/livecore/internal/models"
)

var ErrNotFound = errors.New("message not found")

// Repository handles chat_messages and chat_reactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageSelect = `SELECT m.id, m.event_id, m.user_id, u.username, m.message, m.type, m.is_pinned, m.is_moderated,
	m.reply_to, m.created_at, m.updated_at
	FROM chat_messages m JOIN users u ON u.id = m.user_id`

func scanMessage(row pgx.Row) (*models.ChatMessage, error) {
	var m models.ChatMessage
	err := row.Scan(&m.ID, &m.EventID, &m.UserID, &m.Username, &m.Body, &m.Type, &m.Pinned, &m.Moderated,
		&m.ReplyTo, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Reactions = []models.Reaction{}
	return &m, nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, r.attachReactions(ctx, list)
}

// attachReactions fills Reactions for every message in list, grouped by emoji in first-use order.
func (r *Repository) attachReactions(ctx context.Context, list []models.ChatMessage) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, m := range list {
		ids[i] = m.ID
		index[m.ID] = i
	}
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, emoji, user_id FROM chat_reactions WHERE message_id = ANY($1) ORDER BY message_id, created_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			msgID  int64
			emoji  string
			userID uuid.UUID
		)
		if err := rows.Scan(&msgID, &emoji, &userID); err != nil {
			return err
		}
		m := &list[index[msgID]]
		m.Reactions = addReaction(m.Reactions, emoji, userID)
	}
	return rows.Err()
}

func addReaction(rs []models.Reaction, emoji string, userID uuid.UUID) []models.Reaction {
	for i := range rs {
		if rs[i].Emoji == emoji {
			rs[i].Users = append(rs[i].Users, userID)
			rs[i].Count++
			return rs
		}
	}
	return append(rs, models.Reaction{Emoji: emoji, Count: 1, Users: []uuid.UUID{userID}})
}

// Create inserts a message and fills its server-assigned fields.
func (r *Repository) Create(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (event_id, user_id, message, type, reply_to)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, m.EventID, m.UserID, m.Body, m.Type, m.ReplyTo).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return err
	}
	m.Reactions = []models.Reaction{}
	return nil
}

// GetByID returns a message with its reactions.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.ChatMessage, error) {
	list, err := r.query(ctx, messageSelect+` WHERE m.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// Recent returns the latest limit messages for an event in ascending id order.
func (r *Repository) Recent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	list, err := r.query(ctx, messageSelect+` WHERE m.event_id = $1 AND NOT m.is_moderated ORDER BY m.id DESC LIMIT $2`, eventID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(list)
	return list, nil
}

// Pinned returns the pinned messages for an event, oldest first.
func (r *Repository) Pinned(ctx context.Context, eventID uuid.UUID) ([]models.ChatMessage, error) {
	return r.query(ctx, messageSelect+` WHERE m.event_id = $1 AND m.is_pinned AND NOT m.is_moderated ORDER BY m.id`, eventID)
}

// Stats returns message totals for an event. ActiveUsers is left for the caller.
func (r *Repository) Stats(ctx context.Context, eventID uuid.UUID) (models.ChatStats, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_pinned), MAX(created_at)
		FROM chat_messages WHERE event_id = $1 AND NOT is_moderated`
	var s models.ChatStats
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&s.TotalMessages, &s.PinnedCount, &s.LastMessageAt)
	return s, err
}

// SetPinned pins or unpins a message.
func (r *Repository) SetPinned(ctx context.Context, id int64, pinned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_messages SET is_pinned = $2, updated_at = NOW() WHERE id = $1`, id, pinned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddReaction records userID's emoji on a message. Repeating it is a no-op.
func (r *Repository) AddReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		messageID, userID, emoji)
	return err
}

// RemoveReaction deletes userID's emoji on a message.
func (r *Repository) RemoveReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chat_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	return err
}
