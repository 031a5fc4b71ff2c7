package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies chat messages.
type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeEmoji        MessageType = "emoji"
	MessageTypeSystem       MessageType = "system"
	MessageTypeModerator    MessageType = "moderator"
	MessageTypeAnnouncement MessageType = "announcement"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeEmoji, MessageTypeSystem, MessageTypeModerator, MessageTypeAnnouncement:
		return true
	}
	return false
}

// Reaction is the aggregated state of one emoji on a message.
type Reaction struct {
	Emoji string      `json:"emoji"`
	Count int         `json:"count"`
	Users []uuid.UUID `json:"users"`
}

// ChatMessage is created by the backend on send; ID is server-assigned and increasing per event.
type ChatMessage struct {
	ID        int64       `json:"id"`
	EventID   uuid.UUID   `json:"event_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Username  string      `json:"username"`
	Body      string      `json:"message"`
	Type      MessageType `json:"type"`
	Pinned    bool        `json:"is_pinned"`
	Moderated bool        `json:"is_moderated"`
	ReplyTo   *int64      `json:"reply_to,omitempty"`
	Reactions []Reaction  `json:"reactions"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ChatStats summarises one event's chat.
type ChatStats struct {
	TotalMessages int        `json:"total_messages"`
	ActiveUsers   int        `json:"active_users"`
	PinnedCount   int        `json:"pinned_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// SendMessageRequest is the body of POST /chat/{event}/send.
type SendMessageRequest struct {
	Message string      `json:"message"`
	Type    MessageType `json:"type"`
	ReplyTo *int64      `json:"replyTo,omitempty"`
}

// ChatPage is one window of recent messages.
type ChatPage struct {
	Messages    []ChatMessage `json:"messages"`
	ActiveUsers int           `json:"activeUsers"`
}
