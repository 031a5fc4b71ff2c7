package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/aura-webinar/livecore/internal/models"
)

type presence struct {
	ActiveUsers int `json:"activeUsers"`
}

type messageList struct {
	Messages []models.ChatMessage `json:"messages"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func chatPath(eventID uuid.UUID, suffix string) string {
	return "/chat/" + eventID.String() + "/" + suffix
}

func (c *Client) JoinChat(ctx context.Context, eventID uuid.UUID) (int, error) {
	var p presence
	err := c.do(ctx, http.MethodPost, chatPath(eventID, "join"), nil, nil, &p, scopeAccess)
	return p.ActiveUsers, err
}

func (c *Client) LeaveChat(ctx context.Context, eventID uuid.UUID) (int, error) {
	var p presence
	err := c.do(ctx, http.MethodPost, chatPath(eventID, "leave"), nil, nil, &p, scopeDefault)
	return p.ActiveUsers, err
}

func (c *Client) SendMessage(ctx context.Context, eventID uuid.UUID, req models.SendMessageRequest) (models.ChatMessage, error) {
	var m models.ChatMessage
	err := c.do(ctx, http.MethodPost, chatPath(eventID, "send"), nil, req, &m, scopeAccess)
	return m, err
}

// RecentMessages returns the latest limit messages. limit <= 0 leaves the server default.
func (c *Client) RecentMessages(ctx context.Context, eventID uuid.UUID, limit int) (models.ChatPage, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var page models.ChatPage
	err := c.do(ctx, http.MethodGet, chatPath(eventID, "messages"), q, nil, &page, scopeAccess)
	return page, err
}

func (c *Client) PinnedMessages(ctx context.Context, eventID uuid.UUID) ([]models.ChatMessage, error) {
	var l messageList
	err := c.do(ctx, http.MethodGet, chatPath(eventID, "pinned"), nil, nil, &l, scopeAccess)
	return l.Messages, err
}

func (c *Client) ChatStats(ctx context.Context, eventID uuid.UUID) (models.ChatStats, error) {
	var s models.ChatStats
	err := c.do(ctx, http.MethodGet, chatPath(eventID, "stats"), nil, nil, &s, scopeAccess)
	return s, err
}

func (c *Client) AddReaction(ctx context.Context, messageID int64, emoji string) (models.ChatMessage, error) {
	return c.reaction(ctx, http.MethodPost, messageID, emoji)
}

func (c *Client) RemoveReaction(ctx context.Context, messageID int64, emoji string) (models.ChatMessage, error) {
	return c.reaction(ctx, http.MethodDelete, messageID, emoji)
}

func (c *Client) reaction(ctx context.Context, method string, messageID int64, emoji string) (models.ChatMessage, error) {
	var m models.ChatMessage
	path := "/chat/messages/" + strconv.FormatInt(messageID, 10) + "/reaction"
	err := c.do(ctx, method, path, nil, reactionRequest{Emoji: emoji}, &m, scopeDefault)
	return m, err
}
