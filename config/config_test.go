package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_POLL_INTERVAL", "")
	t.Setenv("ZEGO_APP_ID", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Client.ChatPollInterval)
	assert.Equal(t, 500, cfg.Client.MaxMessageLength)
	assert.Equal(t, 15*time.Minute, cfg.Client.ReminderLead)
	assert.Equal(t, uint32(0), cfg.Zego.AppID)
	assert.Empty(t, cfg.Server.WebhookSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_POLL_INTERVAL", "500ms")
	t.Setenv("WATCH_REPORT_INTERVAL", "3")
	t.Setenv("CHAT_FORBIDDEN_WORDS", "spam, scam ,")
	t.Setenv("ZEGO_APP_ID", "123456")
	t.Setenv("WEBHOOK_SECRET", "hook")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Client.ChatPollInterval)
	assert.Equal(t, 3*time.Second, cfg.Client.WatchReportInterval)
	assert.Equal(t, []string{"spam", "scam"}, cfg.Client.ForbiddenWords)
	assert.Equal(t, uint32(123456), cfg.Zego.AppID)
	assert.Equal(t, "hook", cfg.Server.WebhookSecret)
}

func TestLoadRejectsBadZegoAppID(t *testing.T) {
	t.Setenv("ZEGO_APP_ID", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())
	c.URL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}
