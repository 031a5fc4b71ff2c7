package events

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/livecore/pkg/response"
	"github.com/aura-webinar/livecore/pkg/storage"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// ReplayStore records replay locations.
type ReplayStore interface {
	SetReplay(ctx context.Context, id uuid.UUID, url, s3Key string) error
}

// ReplayReadyPayload is the body the recording pipeline posts once a replay is published.
// With neither field set, the replay is assumed at the default key for the event.
type ReplayReadyPayload struct {
	EventID   string `json:"event_id" binding:"required"`
	S3Key     string `json:"s3_key"`
	ReplayURL string `json:"replay_url"`
}

// WebhookHandler handles callbacks from the recording pipeline.
type WebhookHandler struct {
	repo   ReplayStore
	secret string
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret rejects every call.
func NewWebhookHandler(repo ReplayStore, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{repo: repo, secret: secret, logger: logger}
}

// ReplayReady handles POST /webhooks/replay-ready.
func (h *WebhookHandler) ReplayReady(c *gin.Context) {
	got := c.GetHeader(SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		response.Unauthorized(c, "invalid webhook secret")
		return
	}
	var body ReplayReadyPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	eventID, err := uuid.Parse(body.EventID)
	if err != nil {
		response.BadRequest(c, "invalid event_id")
		return
	}
	key := body.S3Key
	if key == "" && body.ReplayURL == "" {
		key = storage.ReplayKey(eventID.String())
	}
	if err := h.repo.SetReplay(c.Request.Context(), eventID, body.ReplayURL, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("set replay failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to record replay")
		return
	}
	h.logger.Info("replay_ready webhook processed", zap.String("event_id", eventID.String()), zap.String("s3_key", key))
	response.OK(c, gin.H{"event_id": eventID, "s3_key": key, "replay_url": body.ReplayURL})
}
