package chatsync

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aura-webinar/livecore/internal/apperr"
)

// DefaultMaxMessageLength is the longest message body accepted, in characters.
const DefaultMaxMessageLength = 500

// ValidateMessage rejects empty, over-long, or forbidden outgoing text. It never touches the network.
func ValidateMessage(text string, maxLen int, forbidden []string) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return apperr.Validation("message is empty")
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return apperr.Validation(fmt.Sprintf("message exceeds %d characters", maxLen))
	}
	lower := strings.ToLower(trimmed)
	for _, w := range forbidden {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			return apperr.Validation("message contains forbidden content")
		}
	}
	return nil
}
