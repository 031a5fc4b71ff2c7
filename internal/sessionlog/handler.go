package sessionlog

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/pkg/response"
)

// Ledger is the read side the handler needs.
type Ledger interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.UserSessionLog, error)
	Aggregates(ctx context.Context, eventID uuid.UUID) (WatchTimeAggregates, error)
}

// Handler handles GET /events/:id/attendees.
type Handler struct {
	repo   Ledger
	logger *zap.Logger
}

// NewHandler creates a session log handler.
func NewHandler(repo Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// GetAttendees handles GET /events/:id/attendees (admin/moderator).
func (h *Handler) GetAttendees(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list attendees failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list attendees")
		return
	}
	agg, err := h.repo.Aggregates(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to aggregate watch time")
		return
	}
	response.OK(c, gin.H{"attendees": list, "summary": agg})
}
