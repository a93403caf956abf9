package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NormalizeChat trims the text and enforces the length limit.
func NormalizeChat(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > MaxChatLen {
		return "", fmt.Errorf("%w: %d runes", ErrMessageTooLong, n)
	}
	return text, nil
}

// SenderName falls back to "User <short id>" when the client did not supply one.
func SenderName(id MemberID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "User " + id.Short()
	}
	return name
}
