package tickets

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/middleware"
	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/pkg/response"
)

// Store is the persistence the handler needs.
type Store interface {
	Create(ctx context.Context, t *models.Ticket) error
	TicketsFor(ctx context.Context, eventID, ownerID uuid.UUID) ([]models.Ticket, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TicketStatus) error
}

// IssueRequest is the body for POST /events/:id/tickets.
type IssueRequest struct {
	OwnerID         uuid.UUID  `json:"owner_id" binding:"required"`
	ValidFrom       *time.Time `json:"valid_from"`
	ValidUntil      time.Time  `json:"valid_until" binding:"required"`
	CanAccessLive   *bool      `json:"can_access_live"`
	CanAccessReplay bool       `json:"can_access_replay"`
}

// StatusRequest is the body for PATCH /tickets/:ticketId/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed used cancelled"`
}

// Handler handles ticket HTTP endpoints.
type Handler struct {
	repo   Store
	now    func() time.Time
	logger *zap.Logger
}

// NewHandler creates a tickets handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, now: time.Now, logger: logger}
}

// Mine handles GET /events/:id/tickets. Viewers only ever see their own tickets.
func (h *Handler) Mine(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.repo.TicketsFor(c.Request.Context(), eventID, userID)
	if err != nil {
		h.logger.Error("list tickets failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list tickets")
		return
	}
	response.OK(c, gin.H{"tickets": list})
}

// ListAll handles GET /events/:id/tickets/all (admin only).
func (h *Handler) ListAll(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to list tickets")
		return
	}
	response.OK(c, gin.H{"tickets": list})
}

// Issue handles POST /events/:id/tickets (admin only).
func (h *Handler) Issue(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	from := h.now().UTC()
	if req.ValidFrom != nil {
		from = *req.ValidFrom
	}
	if !req.ValidUntil.After(from) {
		response.BadRequest(c, "valid_until must be after valid_from")
		return
	}
	live := true
	if req.CanAccessLive != nil {
		live = *req.CanAccessLive
	}
	t := &models.Ticket{
		EventID:         eventID,
		OwnerID:         req.OwnerID,
		Status:          models.TicketStatusConfirmed,
		ValidFrom:       from,
		ValidUntil:      req.ValidUntil,
		CanAccessLive:   live,
		CanAccessReplay: req.CanAccessReplay,
	}
	if err := h.repo.Create(c.Request.Context(), t); err != nil {
		h.logger.Error("issue ticket failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to issue ticket")
		return
	}
	response.Created(c, t)
}

// SetStatus handles PATCH /tickets/:ticketId/status (admin only).
func (h *Handler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("ticketId"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.UpdateStatus(c.Request.Context(), id, models.TicketStatus(req.Status)); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "ticket not found")
			return
		}
		response.Internal(c, "failed to update ticket")
		return
	}
	response.OK(c, gin.H{"id": id, "status": req.Status})
}
