package events

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/pkg/response"
)

// Store is the persistence the handler needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context) ([]models.Event, error)
	SetLive(ctx context.Context, id uuid.UUID, live bool) error
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	StartsAt    time.Time  `json:"starts_at" binding:"required"`
	EndsAt      *time.Time `json:"ends_at"`
	Pricing     string     `json:"pricing" binding:"required,oneof=free paid featured"`
	Capacity    int        `json:"capacity" binding:"min=0"`
	ReplayURL   string     `json:"replay_url"`
	ReplayS3Key string     `json:"replay_s3_key"`
}

// LiveRequest is the body for PATCH /events/:id/live.
type LiveRequest struct {
	Live *bool `json:"live" binding:"required"`
}

// ReminderBooker books the start reminder for a new event.
type ReminderBooker interface {
	Schedule(ctx context.Context, eventID uuid.UUID, title string, startsAt time.Time, lead time.Duration) (models.ReminderJob, error)
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo      Store
	reminders ReminderBooker
	lead      time.Duration
	logger    *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// SetReminders enables start reminders for events created through this handler.
func (h *Handler) SetReminders(r ReminderBooker, lead time.Duration) {
	h.reminders = r
	h.lead = lead
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.EndsAt != nil && !req.EndsAt.After(req.StartsAt) {
		response.BadRequest(c, "ends_at must be after starts_at")
		return
	}
	e := &models.Event{
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Pricing:     models.Pricing(req.Pricing),
		Capacity:    req.Capacity,
		ReplayURL:   req.ReplayURL,
		ReplayS3Key: req.ReplayS3Key,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	if h.reminders != nil {
		job, err := h.reminders.Schedule(c.Request.Context(), e.ID, e.Title, e.StartsAt, h.lead)
		if err != nil {
			h.logger.Warn("book reminder failed", zap.Error(err), zap.String("event_id", e.ID.String()))
		} else if job.Booked {
			h.logger.Info("reminder booked", zap.String("event_id", e.ID.String()), zap.Time("fire_at", job.FireAt))
		}
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, gin.H{"events": list})
}

// SetLive handles PATCH /events/:id/live (admin only).
func (h *Handler) SetLive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req LiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetLive(c.Request.Context(), id, *req.Live); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to update event")
		return
	}
	h.logger.Info("event live state changed", zap.String("event_id", id.String()), zap.Bool("live", *req.Live))
	response.OK(c, gin.H{"id": id, "is_live": *req.Live})
}
