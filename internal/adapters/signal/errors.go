package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/meshcall/internal/domain"
)

// errorMessage renders a rejection the way clients display it.
func errorMessage(err error, rawRoomID string) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRoomID):
		return "Invalid room ID"
	case errors.Is(err, domain.ErrRoomIDTooShort):
		return fmt.Sprintf("Room ID must be at least %d characters", domain.MinRoomIDLen)
	case errors.Is(err, domain.ErrRoomExists):
		return "Room already exists. Please join instead."
	case errors.Is(err, domain.ErrRoomNotFound):
		return fmt.Sprintf("Room \"%s\" not found.", strings.TrimSpace(rawRoomID))
	case errors.Is(err, domain.ErrRoomFull):
		return fmt.Sprintf("Room is full. Maximum %d participants.", domain.MaxMembers)
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "Too many attempts, slow down."
	case errors.Is(err, domain.ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, domain.ErrMessageTooLong):
		return fmt.Sprintf("Message too long (max %d characters)", domain.MaxChatLen)
	default:
		return "Request failed"
	}
}
