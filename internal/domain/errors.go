package domain

import "errors"

var (
	ErrInvalidRoomID   = errors.New("invalid room id")
	ErrRoomIDTooShort  = errors.New("room id too short")
	ErrRoomExists      = errors.New("room already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrNotInRoom       = errors.New("not in a room")
	ErrNotMember       = errors.New("not a member of the room")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrEmptyMessage    = errors.New("empty chat message")
	ErrMessageTooLong  = errors.New("chat message too long")
)
