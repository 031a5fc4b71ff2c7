// Package chat serves the polled chat endpoints: messages, pins, reactions, and presence.
package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/internal/chatsync"
	"github.com/aura-webinar/livecore/internal/middleware"
	"github.com/aura-webinar/livecore/internal/models"
	"github.com/aura-webinar/livecore/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 100
	maxEmojiLen  = 16
)

// Store is the persistence the handler needs.
type Store interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	GetByID(ctx context.Context, id int64) (*models.ChatMessage, error)
	Recent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.ChatMessage, error)
	Pinned(ctx context.Context, eventID uuid.UUID) ([]models.ChatMessage, error)
	Stats(ctx context.Context, eventID uuid.UUID) (models.ChatStats, error)
	SetPinned(ctx context.Context, id int64, pinned bool) error
	AddReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error
	RemoveReaction(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error
}

// Presence counts active chat users per event.
type Presence interface {
	Touch(ctx context.Context, eventID, userID uuid.UUID) (int, error)
	Leave(ctx context.Context, eventID, userID uuid.UUID) (int, error)
	Count(ctx context.Context, eventID uuid.UUID) (int, error)
}

// Gate decides whether a user may read or write an event's chat.
// Errors are classified with apperr.
type Gate interface {
	AllowChat(ctx context.Context, eventID, userID uuid.UUID) error
}

// Config holds server-side message rules.
type Config struct {
	MaxLength      int
	ForbiddenWords []string
}

// ReactionRequest is the body for reaction endpoints.
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// PinRequest is the body for PATCH /chat/messages/:messageId/pin.
type PinRequest struct {
	Pinned *bool `json:"pinned" binding:"required"`
}

// Handler handles chat HTTP endpoints.
type Handler struct {
	repo     Store
	presence Presence
	gate     Gate
	cfg      Config
	logger   *zap.Logger

	onAudienceChange func(eventID uuid.UUID, count int)
}

// NewHandler creates a chat handler. gate may be nil to allow every authenticated user.
func NewHandler(repo Store, presence Presence, gate Gate, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, presence: presence, gate: gate, cfg: cfg, logger: logger}
}

// SetAudienceChangeHandler is called with the active count after every join and leave.
func (h *Handler) SetAudienceChangeHandler(fn func(eventID uuid.UUID, count int)) {
	h.onAudienceChange = fn
}

func (h *Handler) audienceChanged(eventID uuid.UUID, count int) {
	if h.onAudienceChange != nil {
		h.onAudienceChange(eventID, count)
	}
}

// Register mounts the chat routes on an authenticated group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/chat/:eventId/join", h.Join)
	g.POST("/chat/:eventId/leave", h.Leave)
	g.POST("/chat/:eventId/send", h.Send)
	g.GET("/chat/:eventId/messages", h.Messages)
	g.GET("/chat/:eventId/pinned", h.Pinned)
	g.GET("/chat/:eventId/stats", h.Stats)
	g.POST("/chat/messages/:messageId/reaction", h.AddReaction)
	g.DELETE("/chat/messages/:messageId/reaction", h.RemoveReaction)
	g.PATCH("/chat/messages/:messageId/pin", middleware.RequireStaff(), h.Pin)
}

// admit parses the event id, resolves the caller, and runs the gate. It writes the error response itself.
func (h *Handler) admit(c *gin.Context) (eventID, userID uuid.UUID, ok bool) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok = middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return uuid.Nil, uuid.Nil, false
	}
	if h.gate != nil {
		if err := h.gate.AllowChat(c.Request.Context(), eventID, userID); err != nil {
			response.Error(c, err)
			return uuid.Nil, uuid.Nil, false
		}
	}
	return eventID, userID, true
}

func (h *Handler) activeUsers(ctx context.Context, eventID uuid.UUID) int {
	n, err := h.presence.Count(ctx, eventID)
	if err != nil {
		h.logger.Warn("presence count failed", zap.Error(err), zap.String("event_id", eventID.String()))
	}
	return n
}

// Join handles POST /chat/:eventId/join.
func (h *Handler) Join(c *gin.Context) {
	eventID, userID, ok := h.admit(c)
	if !ok {
		return
	}
	n, err := h.presence.Touch(c.Request.Context(), eventID, userID)
	if err != nil {
		h.logger.Error("presence join failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.ServiceUnavailable(c, "presence unavailable")
		return
	}
	h.audienceChanged(eventID, n)
	response.OK(c, gin.H{"activeUsers": n})
}

// Leave handles POST /chat/:eventId/leave. Leaving never needs the gate.
func (h *Handler) Leave(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	n, err := h.presence.Leave(c.Request.Context(), eventID, userID)
	if err != nil {
		h.logger.Warn("presence leave failed", zap.Error(err), zap.String("event_id", eventID.String()))
	} else {
		h.audienceChanged(eventID, n)
	}
	response.OK(c, gin.H{"activeUsers": n})
}

// staffType reports whether only moderators and admins may send t.
func staffType(t models.MessageType) bool {
	return t == models.MessageTypeSystem || t == models.MessageTypeModerator || t == models.MessageTypeAnnouncement
}

// Send handles POST /chat/:eventId/send.
func (h *Handler) Send(c *gin.Context) {
	eventID, userID, ok := h.admit(c)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := chatsync.ValidateMessage(req.Message, h.cfg.MaxLength, h.cfg.ForbiddenWords); err != nil {
		response.Error(c, err)
		return
	}
	if req.Type == "" {
		req.Type = models.MessageTypeText
	}
	if !req.Type.Valid() {
		response.BadRequest(c, "unknown message type")
		return
	}
	if staffType(req.Type) && !middleware.Role(c).Staff() {
		response.Forbidden(c, "message type requires moderator role")
		return
	}
	m := &models.ChatMessage{
		EventID:  eventID,
		UserID:   userID,
		Username: c.GetString(middleware.ContextUsername),
		Body:     strings.TrimSpace(req.Message),
		Type:     req.Type,
		ReplyTo:  req.ReplyTo,
	}
	if err := h.repo.Create(c.Request.Context(), m); err != nil {
		h.logger.Error("send message failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to send message")
		return
	}
	if _, err := h.presence.Touch(c.Request.Context(), eventID, userID); err != nil {
		h.logger.Warn("presence touch failed", zap.Error(err))
	}
	response.Created(c, m)
}

// Messages handles GET /chat/:eventId/messages?limit=N. Messages are in ascending id order.
func (h *Handler) Messages(c *gin.Context) {
	eventID, userID, ok := h.admit(c)
	if !ok {
		return
	}
	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}
	list, err := h.repo.Recent(c.Request.Context(), eventID, limit)
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list messages")
		return
	}
	active, err := h.presence.Touch(c.Request.Context(), eventID, userID)
	if err != nil {
		h.logger.Warn("presence touch failed", zap.Error(err))
	}
	response.OK(c, models.ChatPage{Messages: list, ActiveUsers: active})
}

// Pinned handles GET /chat/:eventId/pinned.
func (h *Handler) Pinned(c *gin.Context) {
	eventID, _, ok := h.admit(c)
	if !ok {
		return
	}
	list, err := h.repo.Pinned(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to list pinned messages")
		return
	}
	response.OK(c, gin.H{"messages": list})
}

// Stats handles GET /chat/:eventId/stats.
func (h *Handler) Stats(c *gin.Context) {
	eventID, _, ok := h.admit(c)
	if !ok {
		return
	}
	s, err := h.repo.Stats(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load chat stats")
		return
	}
	s.ActiveUsers = h.activeUsers(c.Request.Context(), eventID)
	response.OK(c, s)
}

func parseMessageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid message id")
		return 0, false
	}
	return id, true
}

// AddReaction handles POST /chat/messages/:messageId/reaction.
func (h *Handler) AddReaction(c *gin.Context) {
	h.react(c, true)
}

// RemoveReaction handles DELETE /chat/messages/:messageId/reaction.
func (h *Handler) RemoveReaction(c *gin.Context) {
	h.react(c, false)
}

func (h *Handler) react(c *gin.Context, add bool) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || len(emoji) > maxEmojiLen {
		response.BadRequest(c, "invalid emoji")
		return
	}
	ctx := c.Request.Context()
	m, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "message not found")
			return
		}
		response.Internal(c, "failed to load message")
		return
	}
	if h.gate != nil {
		if err := h.gate.AllowChat(ctx, m.EventID, userID); err != nil {
			response.Error(c, err)
			return
		}
	}
	if add {
		err = h.repo.AddReaction(ctx, id, userID, emoji)
	} else {
		err = h.repo.RemoveReaction(ctx, id, userID, emoji)
	}
	if err != nil {
		h.logger.Error("reaction update failed", zap.Error(err), zap.Int64("message_id", id))
		response.Internal(c, "failed to update reaction")
		return
	}
	if m, err = h.repo.GetByID(ctx, id); err != nil {
		response.Internal(c, "failed to load message")
		return
	}
	response.OK(c, m)
}

// Pin handles PATCH /chat/messages/:messageId/pin (moderator or admin).
func (h *Handler) Pin(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetPinned(c.Request.Context(), id, *req.Pinned); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "message not found")
			return
		}
		response.Internal(c, "failed to pin message")
		return
	}
	m, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load message")
		return
	}
	response.OK(c, m)
}
