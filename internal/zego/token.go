// Package zego issues ZEGOCLOUD room tokens for the low-latency live transport.
package zego

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"

	"github.com/aura-webinar/livecore/config"
)

var ErrNotConfigured = errors.New("zego: app_id and server_secret required")

// RtcRoomPayload is the payload for room-based token (live streaming). See ZEGOCLOUD token04 docs.
type RtcRoomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// Tokens signs audience room tokens with one app's credentials.
type Tokens struct {
	cfg config.ZegoConfig
}

func NewTokens(cfg config.ZegoConfig) *Tokens {
	return &Tokens{cfg: cfg}
}

// Enabled reports whether credentials are configured.
func (t *Tokens) Enabled() bool {
	return t.cfg.AppID != 0 && t.cfg.ServerSecret != ""
}

func (t *Tokens) AppID() uint32 { return t.cfg.AppID }

// TTL is the configured token lifetime (one hour when unset).
func (t *Tokens) TTL() time.Duration {
	if t.cfg.TokenTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(t.cfg.TokenTTLSeconds) * time.Second
}

// AudienceToken signs a login-only token for roomID valid for ttl. Viewers never get publish rights.
func (t *Tokens) AudienceToken(roomID, userID string, ttl time.Duration) (string, error) {
	if !t.Enabled() {
		return "", ErrNotConfigured
	}
	if len(t.cfg.ServerSecret) != 32 {
		return "", fmt.Errorf("zego: server_secret must be 32 characters")
	}
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		return "", fmt.Errorf("zego: token ttl must be at least one second")
	}
	payload := RtcRoomPayload{
		RoomID: roomID,
		Privilege: map[int]int{
			token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
			token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
		},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("zego: marshal payload: %w", err)
	}
	return token04.GenerateToken04(t.cfg.AppID, userID, t.cfg.ServerSecret, secs, string(payloadJSON))
}
