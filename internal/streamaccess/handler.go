package streamaccess

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/middleware"
	"github.com/aura-webinar/livecore/pkg/response"
)

// RecordAccessRequest is the body for POST /streaming-access/:ticketId/record-access.
// WatchTime is in seconds.
type RecordAccessRequest struct {
	WatchTime *int64 `json:"watchTime" binding:"required"`
}

// Handler handles streaming access HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a streaming access handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, ErrNotConfigured) {
		response.ServiceUnavailable(c, err.Error())
		return
	}
	h.logger.Debug("streaming access refused", zap.Error(err), zap.String("path", c.FullPath()))
	response.Error(c, err)
}

// Check handles GET /streaming-access/check/:eventId. Anonymous callers are allowed.
func (h *Handler) Check(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var caller *uuid.UUID
	if id, ok := middleware.UserID(c); ok {
		caller = &id
	}
	access, err := h.svc.Check(c.Request.Context(), eventID, caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, access)
}

// Issue handles GET /streaming-access/:ticketId.
func (h *Handler) Issue(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("ticketId"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	access, err := h.svc.Issue(c.Request.Context(), ticketID, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, access)
}

// RecordAccess handles POST /streaming-access/:ticketId/record-access.
func (h *Handler) RecordAccess(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("ticketId"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req RecordAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	total, err := h.svc.RecordAccess(c.Request.Context(), ticketID, userID, *req.WatchTime)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"ticket_id": ticketID, "watch_seconds": total})
}
