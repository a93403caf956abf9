package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxMembers   = 10
	MinRoomIDLen = 4
	MaxChatLen   = 4000
)

type RoomID string

// RoomStats is the read-only view of a room sent to clients and the HTTP API.
type RoomStats struct {
	RoomID                RoomID     `json:"roomId"`
	MemberCount           int        `json:"memberCount"`
	Members               []MemberID `json:"members"`
	CreatorID             MemberID   `json:"creatorId"`
	ScreenSharingMemberID *MemberID  `json:"screenSharingMemberId"`
	CreatedAt             time.Time  `json:"createdAt"`
}

// ParseRoomID trims the raw id; empty ids are invalid.
func ParseRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrInvalidRoomID
	}
	return RoomID(id), nil
}

// ParseNewRoomID is ParseRoomID plus the minimum length rule applied on creation.
func ParseNewRoomID(raw string) (RoomID, error) {
	id, err := ParseRoomID(raw)
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(string(id)) < MinRoomIDLen {
		return "", ErrRoomIDTooShort
	}
	return id, nil
}
